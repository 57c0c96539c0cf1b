package telegrambot

import (
	"context"
	"time"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
	db "github.com/leadscan/lead-scan-bot/internal/storage"
)

// Repository defines the storage operations required by the Bot.
type Repository interface {
	GetSetting(ctx context.Context, key string, target interface{}) error
	LatestProgressAt(ctx context.Context, platform domain.Platform) (time.Time, bool, error)
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Scanner is the cycle control surface the bot drives.
type Scanner interface {
	RunCycle(ctx context.Context, platform domain.Platform) error
	Pause(ctx context.Context, platform domain.Platform, paused bool) error
	Reset(ctx context.Context, sourceIDs []string) (int64, error)
	Status(ctx context.Context) ([]scan.PlatformStatus, error)
}

// Compile-time assertion that *scan.Scanner implements Scanner.
var _ Scanner = (*scan.Scanner)(nil)
