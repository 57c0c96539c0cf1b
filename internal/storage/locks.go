package db

import (
	"context"
	"fmt"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

// Advisory lock IDs for scan cycles. One lock per platform keeps concurrent
// instances from running overlapping cycles against the same sources.
const (
	TelegramScanLockID int64 = 2001
	FacebookScanLockID int64 = 2002
)

func scanLockID(platform domain.Platform) int64 {
	if platform == domain.PlatformFacebook {
		return FacebookScanLockID
	}

	return TelegramScanLockID
}

// TryAcquireScanLock takes the advisory lock guarding one platform's scan
// cycle. It returns false when another instance already holds the lock.
// The lock rides a dedicated connection; pg advisory locks are session
// scoped, so releasing through the pool from another connection would not
// work.
func (db *DB) TryAcquireScanLock(ctx context.Context, platform domain.Platform) (bool, error) {
	lockID := scanLockID(platform)

	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired); err != nil {
		conn.Release()

		return false, fmt.Errorf("try acquire advisory lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return false, nil
	}

	db.lockMu.Lock()
	db.lockConns[lockID] = conn
	db.lockMu.Unlock()

	return true, nil
}

// ReleaseScanLock unlocks the per-platform scan lock on the connection that
// holds it and returns that connection to the pool. Releasing a lock that
// was never acquired is a no-op.
func (db *DB) ReleaseScanLock(ctx context.Context, platform domain.Platform) error {
	lockID := scanLockID(platform)

	db.lockMu.Lock()
	conn, ok := db.lockConns[lockID]
	delete(db.lockConns, lockID)
	db.lockMu.Unlock()

	if !ok {
		return nil
	}

	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, lockID); err != nil {
		return fmt.Errorf("release advisory lock: %w", err)
	}

	return nil
}
