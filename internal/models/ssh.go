package models

import "time"

// SSHShutdownConfig holds the settings used to power the database host off after a run.
type SSHShutdownConfig struct {
	Host          string
	Port          int
	Username      string
	KeyPath       string
	PrivateKey    []byte // loaded from KeyPath when nil
	ShutdownDelay int    // minutes
	OS            string // "linux" (default) or "windows"
	Timeout       time.Duration
}

// ShutdownResult holds the result of a remote shutdown.
type ShutdownResult struct {
	CommandRun bool
	Output     string
	Error      error
}
