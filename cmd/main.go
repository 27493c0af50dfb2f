package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/blockfs/fatro/config"
)

func newApp() *cli.App {
	app := &application{cfg: config.Default()}

	return &cli.App{
		Name:  "fatro",
		Usage: "Inspect FAT12, FAT16, and FAT32 disk images without modifying them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "load settings from a YAML `FILE`",
				EnvVars: []string{"FATRO_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn, or error",
			},
			&cli.IntFlag{
				Name:  "partition",
				Usage: "mount partition `N` (1-based) of a partitioned image",
			},
			&cli.UintFlag{
				Name:  "cache-sectors",
				Usage: "keep the first `N` sectors of the volume in memory",
			},
			&cli.Uint64Flag{
				Name:  "max-memory",
				Usage: "limit driver buffers to `BYTES` (0 is unlimited)",
			},
		},
		Before: app.setup,
		After:  app.teardown,
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Show the volume's type, label, and space usage",
				ArgsUsage: "IMAGE",
				Action:    app.info,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "free", Usage: "list free cluster ranges"},
					formatFlag(),
				},
			},
			{
				Name:      "ls",
				Usage:     "List a directory",
				ArgsUsage: "IMAGE [PATH]",
				Action:    app.list,
				Flags:     []cli.Flag{formatFlag()},
			},
			{
				Name:      "cat",
				Usage:     "Write a file's contents to standard output",
				ArgsUsage: "IMAGE PATH",
				Action:    app.cat,
			},
			{
				Name:      "stat",
				Usage:     "Show a file's or directory's metadata",
				ArgsUsage: "IMAGE PATH",
				Action:    app.stat,
				Flags:     []cli.Flag{formatFlag()},
			},
			{
				Name:      "tree",
				Usage:     "Print the whole directory hierarchy",
				ArgsUsage: "IMAGE",
				Action:    app.tree,
			},
			{
				Name:      "expand",
				Usage:     "Write the raw, decompressed contents of an image to a file",
				ArgsUsage: "IMAGE OUTPUT",
				Action:    app.expand,
			},
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "format",
		Usage: "output `FORMAT`: text, csv, json, or yaml",
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
