package lockreg

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/openabap/adtflow/internal/errors"
)

const (
	advisoryTimeout = 2 * time.Second
	advisoryPoll    = 50 * time.Millisecond
)

// advisoryLock is a PID-stamped lock file serializing registry writes
// across cooperating local processes. Creation uses O_EXCL so two
// processes cannot both think they won; a lock whose owner has exited is
// removed and retried.
type advisoryLock struct {
	path string
}

type advisoryLockInfo struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// acquireAdvisory takes the advisory lock at path, waiting up to timeout
// for a living owner to release it.
func acquireAdvisory(path string, timeout time.Duration) (*advisoryLock, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := tryAdvisory(path)
		if err != nil {
			return nil, err
		}
		if ok {
			return &advisoryLock{path: path}, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.NewStorageError("lock registry is busy", nil).WithPath(path)
		}
		time.Sleep(advisoryPoll)
	}
}

// tryAdvisory makes one attempt. Returns (false, nil) when a living owner
// holds the lock.
func tryAdvisory(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err == nil {
		hostname, hErr := os.Hostname()
		if hErr != nil {
			hostname = "unknown"
		}
		data, _ := json.Marshal(advisoryLockInfo{
			PID:        os.Getpid(),
			Hostname:   hostname,
			AcquiredAt: time.Now(),
		})
		if _, wErr := f.Write(data); wErr != nil {
			f.Close()
			os.Remove(path)
			return false, errors.NewStorageError("failed to write advisory lock", wErr).WithPath(path)
		}
		if cErr := f.Close(); cErr != nil {
			os.Remove(path)
			return false, errors.NewStorageError("failed to write advisory lock", cErr).WithPath(path)
		}
		return true, nil
	}
	if !os.IsExist(err) {
		return false, errors.NewStorageError("failed to create advisory lock", err).WithPath(path)
	}

	// Someone holds it. A dead owner's lock is stale and gets cleared.
	data, rErr := os.ReadFile(path)
	if rErr != nil {
		if os.IsNotExist(rErr) {
			return false, nil // released between attempts
		}
		return false, errors.NewStorageError("failed to read advisory lock", rErr).WithPath(path)
	}
	var info advisoryLockInfo
	if jErr := json.Unmarshal(data, &info); jErr != nil {
		// Unparseable lock file, likely a crashed writer. Claim it.
		_ = os.Remove(path)
		return false, nil
	}
	if isProcessAlive(info.PID) {
		return false, nil
	}
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return false, errors.NewStorageError(
			fmt.Sprintf("failed to remove stale advisory lock (pid %d)", info.PID), rmErr).WithPath(path)
	}
	return false, nil
}

// release removes the lock file. Failing to remove it is not fatal: the
// next acquirer will detect this process is gone and clear it.
func (l *advisoryLock) release() {
	_ = os.Remove(l.path)
}
