// Package core provides shared constants, date helpers and error types for convocache.
package core

import "time"

// Date formats
const (
	DateFmt = "2006-01-02"
)

// Cache directory layout
const (
	SnapshotFileName = "last-seen-sizes.json"
	EntryExt         = ".json"
	TmpSuffix        = ".tmp"
)

// Raw log discovery
const (
	DefaultLogSuffix = ".log"
)

// External step policy
const (
	DefaultScanTimeout  = 30 * time.Second
	DefaultBuildTimeout = 5 * time.Minute
	DefaultParallel     = 4
)

// Environment
const (
	EnvPrefix = "CONVOCACHE_"
)

// Version is the current CLI version.
const Version = "0.3.0"
