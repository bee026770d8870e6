package models

import "time"

// MySQLConfig holds the data source and mysqldump settings.
type MySQLConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Database     string // empty means all databases
	DumpBinary   string
	ProbeTimeout time.Duration
	DumpTimeout  time.Duration
	MinDumpSize  int64 // smaller dumps are logged as suspicious
}

// DatabaseLabel returns the configured database name or "all_databases".
func (c MySQLConfig) DatabaseLabel() string {
	if c.Database == "" {
		return "all_databases"
	}
	return c.Database
}

// ProbeResult holds the result of a connectivity probe.
type ProbeResult struct {
	Reachable bool
	Grants    []string
	Duration  time.Duration
	Error     error
}

// DumpResult holds the result of a mysqldump run.
type DumpResult struct {
	OutputPath string
	SizeBytes  int64
	Suspicious bool   // below MinDumpSize
	Stderr     string // captured for diagnostics
	Duration   time.Duration
	Error      error
}
