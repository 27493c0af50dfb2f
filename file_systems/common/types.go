// Package common contains definitions of fundamental types and functions used
// across the driver's supporting packages.
package common

// LogicalBlock is the index of a block within a device or cache.
type LogicalBlock uint
