// Package lock guards a report file against concurrent runs with a PID
// lock file next to it.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when a live process holds the lock.
var ErrLocked = errors.New("report is locked by another process")

// Lock is a held lock file.
type Lock struct {
	path string
}

// Path returns the lock file used for target.
func Path(target string) string {
	return target + ".lock"
}

// Acquire creates the lock file for target containing the current PID.
// A lock file left behind by a process that is no longer running is
// replaced.
func Acquire(target string) (*Lock, error) {
	path := Path(target)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		err := writePID(path)
		if err == nil {
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}

		if pid, ok := ReadPID(path); ok && IsPIDRunning(pid) {
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrLocked, pid, path)
		}
		// Stale: the owner is gone.
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func writePID(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "%d", os.Getpid())
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		return errors.Join(werr, cerr)
	}
	return nil
}

// ReadPID reads the PID stored in a lock file.
func ReadPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// IsPIDRunning checks if a process with the given PID is running.
func IsPIDRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return signalAlive(proc.Signal(syscall.Signal(0)))
}

// signalAlive interprets the result of sending signal 0. EPERM means the
// process exists but belongs to someone else, so it still counts as running.
func signalAlive(err error) bool {
	return err == nil || errors.Is(err, syscall.EPERM)
}
