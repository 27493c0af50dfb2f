package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/blockfs/fatro/config"
	"github.com/blockfs/fatro/disks"
	"github.com/blockfs/fatro/driver"
	"github.com/blockfs/fatro/file_systems/common"
	"github.com/blockfs/fatro/file_systems/fat"
)

// application carries the merged configuration and logger from the global
// flags to the command actions.
type application struct {
	cfg config.Config
	log *zap.SugaredLogger
}

func (app *application) setup(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		app.cfg = cfg
	}

	if c.IsSet("log-level") {
		app.cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("partition") {
		app.cfg.Partition = c.Int("partition")
	}
	if c.IsSet("cache-sectors") {
		app.cfg.CacheSectors = c.Uint("cache-sectors")
	}
	if c.IsSet("max-memory") {
		app.cfg.MaxMemoryBytes = c.Uint64("max-memory")
	}

	err := app.cfg.Validate()
	if err != nil {
		return err
	}

	app.log, err = config.NewLogger(app.cfg)
	return err
}

func (app *application) teardown(c *cli.Context) error {
	if app.log != nil {
		// Syncing stderr fails on some platforms; there's nothing to do about it.
		_ = app.log.Sync()
	}
	return nil
}

// outputFormat is the command's --format, falling back to the configured one.
func (app *application) outputFormat(c *cli.Context) (string, error) {
	cfg := app.cfg
	if c.IsSet("format") {
		cfg.OutputFormat = c.String("format")
	}
	err := cfg.Validate()
	if err != nil {
		return "", err
	}
	return cfg.OutputFormat, nil
}

// session is a mounted image.
type session struct {
	imagePath string
	image     *disks.Image
	allocator *common.HeapAllocator
	volume    *fat.Volume
	driver    *driver.Driver
}

func (app *application) mount(c *cli.Context) (*session, error) {
	imagePath := c.Args().First()
	if imagePath == "" {
		return nil, fmt.Errorf("missing IMAGE argument")
	}

	image, err := disks.Open(imagePath, disks.Options{
		Partition:    app.cfg.Partition,
		CacheSectors: app.cfg.CacheSectors,
		Logger:       app.log,
	})
	if err != nil {
		return nil, err
	}

	allocator := common.NewHeapAllocator(app.cfg.MaxMemoryBytes)
	volume, err := fat.Attach(image.Device(), fat.Options{
		Logger:    app.log,
		Allocator: allocator,
	})
	if err != nil {
		image.Close()
		return nil, fmt.Errorf("mount %s: %w", imagePath, err)
	}

	return &session{
		imagePath: imagePath,
		image:     image,
		allocator: allocator,
		volume:    volume,
		driver:    driver.New(volume),
	}, nil
}

func (s *session) Close() {
	s.volume.Unmount()
	s.image.Close()
}

func (app *application) info(c *cli.Context) error {
	format, err := app.outputFormat(c)
	if err != nil {
		return err
	}

	s, err := app.mount(c)
	if err != nil {
		return err
	}
	defer s.Close()

	summary := newVolumeSummary(s, app.cfg.Partition)
	if c.Bool("free") {
		for _, free := range s.volume.Usage().FreeRanges() {
			summary.FreeRanges = append(summary.FreeRanges, freeRange{
				Start:  uint32(free.Start),
				Length: free.Length,
			})
		}
	}
	return render(c.App.Writer, format, summary, []*volumeSummary{summary}, summary.writeText)
}

func (app *application) list(c *cli.Context) error {
	format, err := app.outputFormat(c)
	if err != nil {
		return err
	}

	s, err := app.mount(c)
	if err != nil {
		return err
	}
	defer s.Close()

	dirPath := c.Args().Get(1)
	if dirPath == "" {
		dirPath = "/"
	}

	entries, err := s.driver.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("ls %s: %w", dirPath, err)
	}

	rows := make([]*entryRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, newEntryRow(entry))
	}
	return render(c.App.Writer, format, rows, rows, func(w io.Writer) error {
		for _, row := range rows {
			if err := row.writeLine(w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (app *application) stat(c *cli.Context) error {
	format, err := app.outputFormat(c)
	if err != nil {
		return err
	}

	s, err := app.mount(c)
	if err != nil {
		return err
	}
	defer s.Close()

	target := c.Args().Get(1)
	if target == "" {
		return fmt.Errorf("missing PATH argument")
	}

	info, err := s.driver.Stat(target)
	if err != nil {
		return fmt.Errorf("stat %s: %w", target, err)
	}

	row := newEntryRow(info)
	return render(c.App.Writer, format, row, []*entryRow{row}, row.writeDetails)
}

func (app *application) cat(c *cli.Context) error {
	s, err := app.mount(c)
	if err != nil {
		return err
	}
	defer s.Close()

	target := c.Args().Get(1)
	if target == "" {
		return fmt.Errorf("missing PATH argument")
	}

	file, err := s.driver.Open(target)
	if err != nil {
		return fmt.Errorf("cat %s: %w", target, err)
	}
	defer file.Close()

	if info, _ := file.Stat(); info != nil && info.IsDir() {
		return fmt.Errorf("cat %s: is a directory", target)
	}

	_, err = io.Copy(c.App.Writer, file)
	return err
}

func (app *application) tree(c *cli.Context) error {
	s, err := app.mount(c)
	if err != nil {
		return err
	}
	defer s.Close()

	out := c.App.Writer
	return fs.WalkDir(s.driver.FS(), ".", func(name string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name == "." {
			_, err = fmt.Fprintln(out, "/")
			return err
		}

		depth := strings.Count(name, "/") + 1
		suffix := ""
		if entry.IsDir() {
			suffix = "/"
		}
		_, err = fmt.Fprintf(out, "%s%s%s\n", strings.Repeat("  ", depth), entry.Name(), suffix)
		return err
	})
}

func (app *application) expand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected IMAGE and OUTPUT arguments, got %d", c.NArg())
	}
	sourcePath := c.Args().Get(0)
	outputPath := c.Args().Get(1)

	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open file for reading: %w", err)
	}
	defer source.Close()

	compression, err := disks.DetectCompression(source)
	if err != nil {
		return err
	}

	output, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to open file for writing: %w", err)
	}
	defer output.Close()

	written, err := disks.Expand(source, output, compression, disks.IsRLE8Name(sourcePath))
	if err != nil {
		return fmt.Errorf("error expanding %s: %w", sourcePath, err)
	}

	app.log.Infow(
		"expanded image",
		"source", sourcePath,
		"output", outputPath,
		"compression", compression.String(),
		"bytes", written,
	)
	return output.Close()
}
