package scan

import (
	"context"
	"fmt"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

// Pause flips the platform's pause switch. It takes effect at the next
// scheduled tick; an in-flight cycle finishes normally.
func (s *Scanner) Pause(ctx context.Context, platform domain.Platform, paused bool) error {
	if err := s.repo.SetPaused(ctx, platform, paused); err != nil {
		return fmt.Errorf("set paused: %w", err)
	}

	s.logger.Info().Str(logFieldPlatform, string(platform)).Bool("paused", paused).Msg("scan control updated")

	return nil
}

// Reset clears committed scan progress so the next cycle re-bootstraps the
// affected sources. With no IDs every source is reset. Returns the number of
// progress records removed.
func (s *Scanner) Reset(ctx context.Context, sourceIDs []string) (int64, error) {
	watermarks, err := s.repo.ResetWatermarks(ctx, sourceIDs)
	if err != nil {
		return 0, fmt.Errorf("reset watermarks: %w", err)
	}

	processed, err := s.repo.DeleteProcessed(ctx, sourceIDs)
	if err != nil {
		return watermarks, fmt.Errorf("delete processed: %w", err)
	}

	s.logger.Info().
		Int64("watermarks", watermarks).
		Int64("processed", processed).
		Msg("scan progress reset")

	return watermarks + processed, nil
}

// PlatformStatus is one platform's view for the status command.
type PlatformStatus struct {
	Platform  domain.Platform
	Paused    bool
	Running   bool
	Sources   int
	LastCycle *domain.ScanStats
}

// Status reports the control state of every configured platform.
func (s *Scanner) Status(ctx context.Context) ([]PlatformStatus, error) {
	platforms := []domain.Platform{domain.PlatformTelegram, domain.PlatformFacebook}

	var out []PlatformStatus

	for _, platform := range platforms {
		if _, ok := s.adapters[platform]; !ok {
			continue
		}

		state, err := s.repo.GetControlState(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("get control state: %w", err)
		}

		sources, err := s.repo.ListEnabledSources(ctx, kindFor(platform))
		if err != nil {
			return nil, fmt.Errorf("list enabled sources: %w", err)
		}

		status := PlatformStatus{
			Platform: platform,
			Paused:   state.Paused,
			Running:  s.isRunning(platform),
			Sources:  len(sources),
		}

		s.statsMu.Lock()
		if last, ok := s.lastStats[platform]; ok {
			status.LastCycle = &last
		}
		s.statsMu.Unlock()

		out = append(out, status)
	}

	return out, nil
}

// isRunning probes the platform's cycle lock without blocking.
func (s *Scanner) isRunning(platform domain.Platform) bool {
	mu, ok := s.locks[platform]
	if !ok {
		return false
	}

	if !mu.TryLock() {
		return true
	}
	mu.Unlock()

	return false
}
