package lifecycle

import "time"

// Outcome classifies one step of a run.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// StepResult records one executed (or skipped) step.
type StepResult struct {
	Step     string        `json:"step"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Report summarizes a full lifecycle run. A skipped run — missing
// configuration or collaborators, nothing attempted — is distinguished
// from a run that started and failed.
type Report struct {
	ObjectType  string       `json:"object_type"`
	ObjectName  string       `json:"object_name"`
	SessionID   string       `json:"session_id"`
	StepReached Step         `json:"-"`
	Step        string       `json:"step_reached"`
	Steps       []StepResult `json:"steps"`
	Skipped     bool         `json:"skipped,omitempty"`

	CompensationAttempted bool `json:"compensation_attempted,omitempty"`
	CompensationSucceeded bool `json:"compensation_succeeded,omitempty"`

	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Failed reports whether any step failed.
func (r *Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

func (r *Report) record(step string, outcome Outcome, d time.Duration, err error) {
	result := StepResult{Step: step, Outcome: outcome, Duration: d}
	if err != nil {
		result.Error = err.Error()
	}
	r.Steps = append(r.Steps, result)
}
