package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/butnext/butnext/internal/buterr"
	"github.com/butnext/butnext/internal/uuid"
	storagedriver "github.com/butnext/butnext/storagedriver"
)

const lockPath = ".but/lock"

// lockFile records who holds the repository's exclusive writer lock,
// adapted from the checkpoint lock the teacher's garbage collector uses to
// keep concurrent GC runs from stepping on each other. ID disambiguates
// holders beyond hostname+pid, which can collide across containers sharing
// a network filesystem.
type lockFile struct {
	ID        string    `json:"id"`
	Hostname  string    `json:"hostname"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
}

// lockStaleAfter bounds how long a lock file is honored after it was
// written, so a crashed writer cannot wedge the repository forever. The
// holder never rewrites the lock's timestamp, so a lock older than this is
// treated as stale even while its holder is still running.
const lockStaleAfter = 10 * time.Minute

// acquireLock takes the repository's exclusive writer lock, retrying until
// timeout elapses if another writer currently holds it. It never overwrites
// a live lock file: acquisition goes through driver.CreateExclusive, which
// fails atomically if the lock path already exists, so two callers racing
// to acquire the same lock can never both observe success the way a
// separate read-then-write check would allow.
func acquireLock(ctx context.Context, driver storagedriver.StorageDriver, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		err := writeLock(ctx, driver)
		if err == nil {
			return nil
		}

		var exists storagedriver.AlreadyExistsError
		if !errors.As(err, &exists) {
			return err
		}

		held, err := readLock(ctx, driver)
		if err != nil {
			return err
		}
		if held == nil || time.Since(held.Timestamp) >= lockStaleAfter {
			// Either the lock file is corrupt (readLock treats that as no
			// lock) or it is older than lockStaleAfter. Either way, steal
			// it by removing the file and retrying the exclusive create
			// right away, without waiting out a tick or consuming the
			// deadline.
			if err := driver.Delete(ctx, lockPath); err != nil {
				return fmt.Errorf("%w: remove stale lock: %v", buterr.ErrIO, err)
			}
			continue
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: locked by %s (pid %d, lock %s) since %s", buterr.ErrRepositoryBusy, held.Hostname, held.PID, held.ID, held.Timestamp)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", buterr.ErrCancelled, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func readLock(ctx context.Context, driver storagedriver.StorageDriver) (*lockFile, error) {
	raw, err := driver.GetContent(ctx, lockPath)
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read lock: %v", buterr.ErrIO, err)
	}

	var lf lockFile
	if err := json.Unmarshal(raw, &lf); err != nil {
		// A corrupt lock file is treated as no lock: a fresh writer will
		// overwrite it.
		return nil, nil
	}
	return &lf, nil
}

// writeLock attempts to atomically create the lock file. It returns the raw
// storagedriver.AlreadyExistsError (unwrapped) when the lock is already
// held, so acquireLock can distinguish "lock busy" from a hard I/O failure
// with errors.As.
func writeLock(ctx context.Context, driver storagedriver.StorageDriver) error {
	hostname, _ := os.Hostname()
	lf := lockFile{ID: uuid.NewString(), Hostname: hostname, PID: os.Getpid(), Timestamp: time.Now().UTC()}

	raw, err := json.Marshal(lf)
	if err != nil {
		return fmt.Errorf("%w: marshal lock: %v", buterr.ErrIO, err)
	}

	err = driver.CreateExclusive(ctx, lockPath, raw)
	if err == nil {
		return nil
	}

	var exists storagedriver.AlreadyExistsError
	if errors.As(err, &exists) {
		return err
	}
	return fmt.Errorf("%w: write lock: %v", buterr.ErrIO, err)
}

// releaseLock drops the exclusive writer lock. It is safe to call with no
// lock held.
func releaseLock(ctx context.Context, driver storagedriver.StorageDriver) error {
	if err := driver.Delete(ctx, lockPath); err != nil {
		return fmt.Errorf("%w: release lock: %v", buterr.ErrIO, err)
	}
	return nil
}
