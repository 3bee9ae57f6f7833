// Package runlock guards an audit output directory against concurrent runs.
// The guard is an advisory flock(2) on a lock file holding the PID of the
// owning process; a lock file left behind by a dead process is taken over.
package runlock

import (
	errs "errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/go-stdlog/stdlog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/heyvito/reportvault/errors"
)

// FileName is the name of the lock file created inside the guarded directory.
const FileName = ".reportvault.lock"

var ClosedErr = fmt.Errorf("run lock has already been released")

// openFile is replaced in tests to interleave a concurrent release.
var openFile = func(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
}

type Lock struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	locked bool
	closed bool
	log    stdlog.Logger
}

// Acquire takes the run lock of dir. When another live process holds it,
// errors.CannotAcquireAuditLockError is returned with that process' PID.
func Acquire(dir string, log stdlog.Logger) (*Lock, error) {
	if log == nil {
		log = stdlog.Discard
	}
	path := filepath.Join(dir, FileName)
	f, err := lockFile(path)
	if err != nil {
		return nil, err
	}
	l := &Lock{path: path, file: f, locked: true, log: log}

	holder, err := l.checkHolder()
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	if holder != -1 {
		_ = l.Close()
		return nil, errors.CannotAcquireAuditLockError{PID: holder}
	}

	if err = l.writePID(os.Getpid()); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed writing current pid to lockfile: %w", err)
	}
	log.Debug("Run lock acquired", "path", path, "pid", os.Getpid())
	return l, nil
}

// lockFile opens and flocks path. Release unlinks the file while holding its
// lock, so a descriptor opened just before that may lock an inode no longer
// reachable through path; such a lock is dropped and taken again.
func lockFile(path string) (*os.File, error) {
	for {
		f, err := openFile(path)
		if err != nil {
			return nil, err
		}
		if err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			pid, _ := readPID(f)
			_ = f.Close()
			if errs.Is(err, syscall.EWOULDBLOCK) {
				return nil, errors.CannotAcquireAuditLockError{PID: pid}
			}
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		held, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		current, err := os.Stat(path)
		if err == nil && os.SameFile(held, current) {
			return f, nil
		}
		_ = f.Close()
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
}

// checkHolder inspects the PID recorded in the lock file. It returns -1 when
// the lock can be taken over, or the PID of a live process holding it.
func (l *Lock) checkHolder() (int, error) {
	pid, err := readPID(l.file)
	if err != nil || pid <= 0 || pid > math.MaxInt32 || pid == os.Getpid() {
		return -1, nil
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		if errs.Is(err, process.ErrorProcessNotRunning) {
			return -1, nil
		}
		return -1, fmt.Errorf("failed querying pid %d: %w", pid, err)
	}
	running, err := proc.IsRunning()
	if err != nil {
		return -1, fmt.Errorf("failed querying pid %d status: %w", pid, err)
	}
	if !running {
		return -1, nil
	}

	cmd, err := proc.CmdlineSlice()
	if err != nil && !errs.Is(err, syscall.EINVAL) {
		return -1, fmt.Errorf("failed querying pid %d cmdline: %w", pid, err)
	}

	// An empty command line may indicate a zombie process.
	if len(cmd) == 0 {
		state, err := GetPIDState(pid)
		if err != nil {
			return -1, fmt.Errorf("failed querying pid %d state: %w", pid, err)
		}
		if state&StateDefunct == StateDefunct {
			return -1, nil
		}
		return pid, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return -1, fmt.Errorf("failed querying current executable path: %w", err)
	}
	if cmd[0] == exe {
		l.log.Warning("Run lock recorded by a live process of the same executable", "pid", pid)
		return pid, nil
	}

	// The recorded process died and its PID was reused by something else.
	return -1, nil
}

func readPID(f *os.File) (int, error) {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(buf[:n])))
}

func (l *Lock) writePID(pid int) error {
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	if _, err := l.file.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return err
	}
	return l.file.Sync()
}

// Path returns the location of the lock file.
func (l *Lock) Path() string { return l.path }

func (l *Lock) unlock() error {
	if l.closed || !l.locked {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		return err
	}
	l.locked = false
	return nil
}

// Close releases the lock and closes the lock file, leaving it on disk.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.close()
}

func (l *Lock) close() error {
	if l.closed {
		return ClosedErr
	}
	if err := l.unlock(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	l.closed = true
	return nil
}

// Release removes the lock file and releases the lock.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	// removed while still locked; lockFile rejects locks on the old inode
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := l.close(); err != nil && !errs.Is(err, ClosedErr) {
		return err
	}
	return nil
}
