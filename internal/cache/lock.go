package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/danjacques/gofslock/fslock"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/pkgs/ref"
)

const lockHeldDelay = 10 * time.Millisecond

// LockKey names the lock guarding the cache entry of r: the recipe
// revision, or one package of it when r carries a package id.
func LockKey(r ref.Reference) string {
	k := r.Recipe().String()
	if r.PkgID != "" {
		k += ":" + r.PkgID
	}
	return k
}

// blocker retries until the deadline passes.
func blocker(timeout time.Duration) fslock.Blocker {
	deadline := time.Now().Add(timeout)
	return func() error {
		if time.Now().After(deadline) {
			return fslock.ErrLockHeld
		}
		time.Sleep(lockHeldDelay)
		return nil
	}
}

func (c *Cache) lockPath(key string) (string, error) {
	dir := filepath.Join(c.root, ".locks")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	sum := sha1.Sum([]byte(key))
	return filepath.Join(dir, hex.EncodeToString(sum[:8])+".lock"), nil
}

// Lock takes the exclusive lock of key, waiting at most the configured
// timeout. A timeout is errs.CacheLockTimeout.
func (c *Cache) Lock(key string) (unlock func(), err error) {
	return c.lock(key, fslock.LockBlocking)
}

// RLock takes a shared lock of key.
func (c *Cache) RLock(key string) (unlock func(), err error) {
	return c.lock(key, fslock.LockSharedBlocking)
}

func (c *Cache) lock(key string, acquire func(string, fslock.Blocker) (fslock.Handle, error)) (func(), error) {
	path, err := c.lockPath(key)
	if err != nil {
		return nil, err
	}
	h, err := acquire(path, blocker(c.lockTimeout))
	if err != nil {
		if errors.Is(err, fslock.ErrLockHeld) {
			return nil, errs.New(errs.CacheLockTimeout, key, "lock still held after %s", c.lockTimeout)
		}
		return nil, err
	}
	return func() {
		if err := h.Unlock(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Failed to release cache lock")
		}
	}, nil
}
