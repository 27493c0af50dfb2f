package driver

import (
	"github.com/blockfs/fatro"
)

// objectHandle is a node loaded from the file system together with the path it
// was reached by and the metadata its parent reported for it.
type objectHandle struct {
	node         fatro.Node
	metadata     fatro.NodeMetadata
	absolutePath string
	isRoot       bool
}

func (object *objectHandle) AbsolutePath() string {
	return object.absolutePath
}

func (object *objectHandle) IsDir() bool {
	return object.metadata.IsDir()
}
