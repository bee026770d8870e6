package models

import "time"

// WOLConfig holds Wake-on-LAN settings for the database host.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string
	TargetAddr    string        // host:port polled over TCP until it accepts connections
	Timeout       time.Duration // max time to wait for the target
	PollInterval  time.Duration
	StabilizeWait time.Duration // extra wait once the port answers
}

// WakeResult holds the result of waking the database host.
type WakeResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}
