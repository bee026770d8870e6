package models

import "time"

// Stage names, in pipeline order.
const (
	StageStart       = "start"
	StageWake        = "wake"
	StageProbe       = "probe"
	StageExport      = "export"
	StageCompress    = "compress"
	StageDeliver     = "deliver"
	StageCleanup     = "cleanup"
	StageShutdown    = "shutdown"
	StageLogDelivery = "log_delivery"
	StageWorkspace   = "workspace_cleanup"
)

// StageOutcome records how a single stage ended.
type StageOutcome struct {
	Stage    string
	Success  bool
	Detail   string
	Duration time.Duration
}

// RunResult collects the outcomes of one run.
type RunResult struct {
	RunID    string
	Stages   []StageOutcome
	Duration time.Duration
}

// Record appends an outcome.
func (r *RunResult) Record(stage string, success bool, detail string, d time.Duration) {
	r.Stages = append(r.Stages, StageOutcome{
		Stage:    stage,
		Success:  success,
		Detail:   detail,
		Duration: d,
	})
}

// Outcome returns the outcome of a stage, if it ran.
func (r *RunResult) Outcome(stage string) (StageOutcome, bool) {
	for _, o := range r.Stages {
		if o.Stage == stage {
			return o, true
		}
	}
	return StageOutcome{}, false
}

// Succeeded reports whether every recorded stage succeeded.
func (r *RunResult) Succeeded() bool {
	for _, o := range r.Stages {
		if !o.Success {
			return false
		}
	}
	return true
}
