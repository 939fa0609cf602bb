package model

import "time"

// Stage is a step of a smoke run
type Stage string

const (
	StageLoad    Stage = "load"
	StageStart   Stage = "start"
	StageWait    Stage = "wait"
	StageProbe   Stage = "probe"
	StageCleanup Stage = "cleanup"
)

// Stages lists the run stages in execution order.
var Stages = []Stage{StageLoad, StageStart, StageWait, StageProbe, StageCleanup}

// Outcome is the pass/fail result of a run
type Outcome string

const (
	OutcomePassed Outcome = "passed"
	OutcomeFailed Outcome = "failed"
)

// RunRecord is the persisted summary of one smoke run
type RunRecord struct {
	ID          string        `json:"id" yaml:"id"`
	Archive     string        `json:"archive" yaml:"archive"`
	ImageID     string        `json:"image_id,omitempty" yaml:"image_id,omitempty"`
	ContainerID string        `json:"container_id,omitempty" yaml:"container_id,omitempty"`
	User        string        `json:"user,omitempty" yaml:"user,omitempty"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Outcome     Outcome       `json:"outcome" yaml:"outcome"`
	FailedStage Stage         `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	StatusCode  int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	HostPort    int           `json:"host_port,omitempty" yaml:"host_port,omitempty"`
}

// Passed reports whether the run succeeded.
func (r *RunRecord) Passed() bool {
	return r.Outcome == OutcomePassed
}

// Event is a progress notification emitted while a run executes
type Event struct {
	Time    time.Time
	Stage   Stage
	Message string
	Log     *LogEntry // container log line; on the wait stage's Done event, the line that matched
	Err     error     // set when the stage failed
	Done    bool      // set when the stage finished
}
