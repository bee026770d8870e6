// Package models contains the data structures used throughout gomysql-telegram.
package models

import "time"

// BackupConfig holds the complete configuration for a backup run.
type BackupConfig struct {
	MySQL       MySQLConfig
	Telegram    TelegramConfig
	Workspace   WorkspaceConfig
	Compression CompressionConfig
	Message     string             // custom message prefix, optional
	WOL         *WOLConfig         // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
}

// WorkspaceConfig holds the filesystem locations used by a run.
type WorkspaceConfig struct {
	BaseDir string // parent of the per-run directory and the log file
	LogFile string // set once the process log file is open
}

// CompressionConfig selects the codec used for the dump artifact.
type CompressionConfig struct {
	Codec string // "xz" (default), "zstd", "lz4", "gzip"
}

// RunContext holds the paths owned by a single run.
type RunContext struct {
	ID             string
	Timestamp      string
	StartTime      time.Time
	Dir            string
	RawPath        string
	CompressedPath string
}
