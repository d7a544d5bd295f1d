package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/afero"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
)

// Lock is a PID file that keeps two runs from provisioning one host at once.
type Lock struct {
	fs   afero.Fs
	path string
}

// pidAlive is swapped in tests.
var pidAlive = func(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// lockGrace is how long an empty or unparsable lock counts as held. Another
// run may have created the file without having written its PID yet.
const lockGrace = 10 * time.Second

// AcquireLock creates path exclusively and writes the current PID into it.
// A lock left by a process that no longer exists is taken over, as is an
// unreadable one older than lockGrace.
func AcquireLock(fs afero.Fs, path string) (*Lock, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = fs.Remove(path)
				return nil, fmt.Errorf("write lock: %w", errors.Join(werr, cerr))
			}
			return &Lock{fs: fs, path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}

		pid, rerr := readPID(fs, path)
		switch {
		case rerr == nil && pidAlive(pid):
			return nil, exitcodes.Preconditionf("another provisioning run is in progress (pid %d, lock %s)", pid, path)
		case rerr != nil && fresh(fs, path):
			return nil, exitcodes.Preconditionf("another provisioning run is starting (lock %s)", path)
		}
		if err := fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return nil, exitcodes.Preconditionf("could not acquire lock %s", path)
}

func fresh(fs afero.Fs, path string) bool {
	fi, err := fs.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(fi.ModTime()) < lockGrace
}

func readPID(fs afero.Fs, path string) (int, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := l.fs.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
