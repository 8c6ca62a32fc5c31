// Package lifecycle sequences remote repository-object operations through
// the fixed edit flow — validate, create, lock, update, unlock, activate,
// check, delete — with per-operation delays, bounded check retries, and
// compensating cleanup when a step fails partway. Lock ownership is
// registered synchronously so a crashed run leaves a discoverable record.
package lifecycle

// Step identifies how far through the flow a run has progressed.
type Step int

const (
	StepIdle Step = iota
	StepValidated
	StepCreated
	StepLocked
	StepUpdated
	StepUnlocked
	StepActivated
	StepChecked
	StepDeleted
)

var stepNames = map[Step]string{
	StepIdle:      "idle",
	StepValidated: "validated",
	StepCreated:   "created",
	StepLocked:    "locked",
	StepUpdated:   "updated",
	StepUnlocked:  "unlocked",
	StepActivated: "activated",
	StepChecked:   "checked",
	StepDeleted:   "deleted",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Operation names used for delay configuration lookup.
const (
	opValidate = "validate"
	opCreate   = "create"
	opLock     = "lock"
	opUpdate   = "update"
	opUnlock   = "unlock"
	opActivate = "activate"
	opCheck    = "check"
	opDelete   = "delete"
)
