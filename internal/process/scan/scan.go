// Package scan drives the fetch, filter, classify, commit cycle over
// platform sources.
//
// One cycle fetches new candidate items from every enabled source of a
// platform, filters them as one combined batch, classifies the survivors and
// commits progress markers only after every classification chunk succeeded.
// An aborted cycle leaves watermarks and processed sets untouched, so the
// next run re-fetches the same items; the message rows written before
// classification are the only trace of the attempt.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/platform/config"
	"github.com/leadscan/lead-scan-bot/internal/platform/observability"
	"github.com/leadscan/lead-scan-bot/internal/process/batch"
	"github.com/leadscan/lead-scan-bot/internal/process/filters"
	db "github.com/leadscan/lead-scan-bot/internal/storage"
)

// bootstrapWindow is how far back a source with no committed progress is
// scanned on its first cycle.
const bootstrapWindow = 24 * time.Hour

// settingExcludeWords is the settings key for the operator-saved exclusion
// list. When present and non-empty it replaces the configured EXCLUDE_WORDS.
const settingExcludeWords = "scan_exclude_words"

const (
	logFieldPlatform = "platform"
	logFieldCycleID  = "cycle_id"
	logFieldSource   = "source"
)

// Scanner errors.
var (
	ErrCycleRunning          = errors.New("scan cycle already running")
	ErrCycleAborted          = errors.New("scan cycle aborted")
	ErrPlatformNotConfigured = errors.New("platform not configured")
)

// Repository is the persistence surface one scan cycle drives.
type Repository interface {
	GetWatermark(ctx context.Context, sourceID string) (int64, bool, error)
	AdvanceWatermark(ctx context.Context, sourceID string, ordinal int64) error
	ResetWatermarks(ctx context.Context, sourceIDs []string) (int64, error)
	LoadProcessedSet(ctx context.Context, sourceIDs []string) (map[string]struct{}, error)
	MarkProcessedBatch(ctx context.Context, records []domain.ProcessedRecord) error
	DeleteProcessed(ctx context.Context, sourceIDs []string) (int64, error)
	UpsertSource(ctx context.Context, src domain.Source) error
	ListEnabledSources(ctx context.Context, kind domain.SourceKind) ([]domain.Source, error)
	SaveMessage(ctx context.Context, item domain.CandidateItem) (string, error)
	UpdateVerdict(ctx context.Context, messageID string, v domain.Verdict) error
	GetSetting(ctx context.Context, key string, target interface{}) error
	GetControlState(ctx context.Context, platform domain.Platform) (domain.ScanControlState, error)
	SetPaused(ctx context.Context, platform domain.Platform, paused bool) error
	TryAcquireScanLock(ctx context.Context, platform domain.Platform) (bool, error)
	ReleaseScanLock(ctx context.Context, platform domain.Platform) error
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Batcher classifies one cycle's survivors in chunked batches.
type Batcher interface {
	Classify(ctx context.Context, items []batch.Item) batch.Result
}

// Notifier delivers cycle results to the target chat. Delivery failures are
// logged and never fail a cycle.
type Notifier interface {
	SendLeadsBatch(ctx context.Context, leads []domain.Lead) error
	SendStats(ctx context.Context, stats domain.ScanStats) error
}

// FetchMark tells an adapter where to resume fetching for one source.
type FetchMark struct {
	// Watermark is the highest committed ordinal, valid when HasWatermark.
	Watermark    int64
	HasWatermark bool

	// Bootstrap bounds the first scan of a source with no committed progress.
	// Zero once progress exists.
	Bootstrap time.Time

	// IsProcessed reports whether an item was handled in a committed cycle.
	// Set for identifier-tracked sources, nil for watermarked ones.
	IsProcessed func(itemID string) bool
}

// FetchResult is one source's fetch outcome.
type FetchResult struct {
	// Items are the new candidate items, oldest first.
	Items []domain.CandidateItem

	// MaxOrdinal is the highest ordinal seen during the fetch, including
	// items outside the bootstrap window; zero when nothing was seen.
	MaxOrdinal int64
}

// SourceAdapter fetches candidate items from one platform.
type SourceAdapter interface {
	// Platform identifies which platform the adapter serves.
	Platform() domain.Platform

	// ListSources discovers the currently monitored sources.
	ListSources(ctx context.Context) ([]domain.Source, error)

	// FetchNew returns items that appeared after the mark.
	FetchNew(ctx context.Context, src domain.Source, mark FetchMark) (FetchResult, error)
}

// Scanner coordinates scan cycles across platforms. Cycles for different
// platforms may overlap; per platform only one runs at a time, enforced in
// process by a mutex and across instances by an advisory lock.
type Scanner struct {
	cfg      *config.Config
	repo     Repository
	batcher  Batcher
	notifier Notifier
	adapters map[domain.Platform]SourceAdapter
	logger   *zerolog.Logger

	locks map[domain.Platform]*sync.Mutex

	statsMu   sync.Mutex
	lastStats map[domain.Platform]domain.ScanStats
}

// New creates a Scanner over the given adapters.
func New(cfg *config.Config, repo Repository, batcher Batcher, notifier Notifier, adapters []SourceAdapter, logger *zerolog.Logger) *Scanner {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	byPlatform := make(map[domain.Platform]SourceAdapter, len(adapters))
	locks := make(map[domain.Platform]*sync.Mutex, len(adapters))

	for _, a := range adapters {
		byPlatform[a.Platform()] = a
		locks[a.Platform()] = &sync.Mutex{}
	}

	return &Scanner{
		cfg:       cfg,
		repo:      repo,
		batcher:   batcher,
		notifier:  notifier,
		adapters:  byPlatform,
		locks:     locks,
		logger:    logger,
		lastStats: make(map[domain.Platform]domain.ScanStats),
	}
}

// RunScheduled runs one cycle unless the platform is paused. Pause state is
// read here, at the tick; a cycle already in flight is never aborted by a
// pause, and a busy platform just skips the tick.
func (s *Scanner) RunScheduled(ctx context.Context, platform domain.Platform) error {
	state, err := s.repo.GetControlState(ctx, platform)
	if err != nil {
		return fmt.Errorf("get control state: %w", err)
	}

	if state.Paused {
		s.logger.Info().Str(logFieldPlatform, string(platform)).Msg("scanning paused, skipping tick")
		observability.ScanCycles.WithLabelValues(string(platform), observability.CycleStatusSkipped).Inc()

		return nil
	}

	err = s.RunCycle(ctx, platform)
	if errors.Is(err, ErrCycleRunning) {
		s.logger.Warn().Str(logFieldPlatform, string(platform)).Msg("previous cycle still running, skipping tick")

		return nil
	}

	return err
}

// RunCycle executes one full scan cycle for a platform. It returns
// ErrCycleRunning when a cycle for the platform is already in flight in this
// or another instance, and ErrCycleAborted when classification failed and
// nothing was committed.
func (s *Scanner) RunCycle(ctx context.Context, platform domain.Platform) error {
	adapter, ok := s.adapters[platform]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlatformNotConfigured, platform)
	}

	mu := s.locks[platform]
	if !mu.TryLock() {
		return ErrCycleRunning
	}
	defer mu.Unlock()

	acquired, err := s.repo.TryAcquireScanLock(ctx, platform)
	if err != nil {
		return fmt.Errorf("acquire scan lock: %w", err)
	}

	if !acquired {
		return ErrCycleRunning
	}

	defer func() {
		if err := s.repo.ReleaseScanLock(ctx, platform); err != nil {
			s.logger.Warn().Err(err).Str(logFieldPlatform, string(platform)).Msg("failed to release scan lock")
		}
	}()

	err = s.runCycle(ctx, platform, adapter)

	switch {
	case errors.Is(err, ErrCycleAborted):
		observability.ScanCycles.WithLabelValues(string(platform), observability.CycleStatusAborted).Inc()
	case err != nil:
		observability.ScanCycles.WithLabelValues(string(platform), observability.CycleStatusFailed).Inc()
	default:
		observability.ScanCycles.WithLabelValues(string(platform), observability.CycleStatusCompleted).Inc()
	}

	return err
}

func (s *Scanner) runCycle(ctx context.Context, platform domain.Platform, adapter SourceAdapter) error {
	started := time.Now()
	cycleID := uuid.New().String()

	logger := s.logger.With().
		Str(logFieldPlatform, string(platform)).
		Str(logFieldCycleID, cycleID).
		Logger()

	logger.Info().Msg("Starting scan cycle")

	stats := domain.ScanStats{
		Platform:  platform,
		CycleID:   cycleID,
		StartedAt: started,
		PerSource: make(map[string]int),
	}

	fetched, err := s.fetchAll(ctx, adapter, platform, &stats, &logger)
	if err != nil {
		return s.failCycle(ctx, stats, started, &logger, err)
	}

	var items []domain.CandidateItem
	for _, f := range fetched {
		items = append(items, f.result.Items...)
	}

	survivors, drops := filters.New(s.excludeWords(ctx)).Apply(items)
	stats.Filtered = len(survivors)

	for reason, n := range drops {
		observability.DropsTotal.WithLabelValues(string(platform), reason).Add(float64(n))
	}

	if len(drops) > 0 {
		logger.Info().Interface("drops", drops).Int("survivors", len(survivors)).Msg("content filter applied")
	}

	// Survivors are recorded before classification so an aborted cycle still
	// leaves an audit trail.
	messageIDs := make([]string, len(survivors))

	for i, item := range survivors {
		id, err := s.repo.SaveMessage(ctx, item)
		if err != nil {
			return s.failCycle(ctx, stats, started, &logger, fmt.Errorf("save message: %w", err))
		}

		messageIDs[i] = id
	}

	result := s.batcher.Classify(ctx, batchItems(survivors))

	observability.ItemsAnalyzed.WithLabelValues(string(platform)).Add(float64(len(survivors)))

	if !result.Succeeded {
		stats.Aborted = true
		stats.Duration = time.Since(started)

		logger.Error().Int("survivors", len(survivors)).Msg("classification failed, aborting cycle without commit")

		s.finishCycle(ctx, stats, &logger)

		return ErrCycleAborted
	}

	stats.Analyzed = len(survivors)

	// Commit order: verdicts, leads notification, progress markers, stats.
	var leads []domain.Lead

	for i, item := range survivors {
		verdict := result.Verdicts[i]

		if err := s.repo.UpdateVerdict(ctx, messageIDs[i], verdict); err != nil {
			return s.failCycle(ctx, stats, started, &logger, fmt.Errorf("update verdict: %w", err))
		}

		if verdict.IsLead {
			leads = append(leads, newLead(item, verdict))
			observability.LeadsFound.WithLabelValues(string(platform), string(verdict.Category)).Inc()
		}
	}

	stats.Leads = len(leads)

	if len(leads) > 0 {
		if err := s.notifier.SendLeadsBatch(ctx, leads); err != nil {
			logger.Error().Err(err).Int("leads", len(leads)).Msg("failed to send leads notification")
		}
	}

	if err := s.commitMarks(ctx, fetched); err != nil {
		return s.failCycle(ctx, stats, started, &logger, err)
	}

	stats.Duration = time.Since(started)

	logger.Info().
		Int("fetched", stats.Fetched).
		Int("filtered", stats.Filtered).
		Int("analyzed", stats.Analyzed).
		Int("leads", stats.Leads).
		Dur("duration", stats.Duration).
		Msg("Scan cycle finished")

	s.finishCycle(ctx, stats, &logger)

	return nil
}

type fetchedSource struct {
	src    domain.Source
	result FetchResult
}

// fetchAll discovers sources, registers them and fetches new items from each
// enabled one. A source that fails to fetch is skipped, not fatal; listing
// failures abort the cycle before anything was done.
func (s *Scanner) fetchAll(ctx context.Context, adapter SourceAdapter, platform domain.Platform, stats *domain.ScanStats, logger *zerolog.Logger) ([]fetchedSource, error) {
	discovered, err := adapter.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	for _, src := range discovered {
		if err := s.repo.UpsertSource(ctx, src); err != nil {
			logger.Warn().Err(err).Str(logFieldSource, src.Ref.String()).Msg("failed to register source")
		}
	}

	enabled, err := s.repo.ListEnabledSources(ctx, kindFor(platform))
	if err != nil {
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}

	stats.Sources = len(enabled)
	observability.SourcesScanned.WithLabelValues(string(platform)).Set(float64(len(enabled)))

	fetched := make([]fetchedSource, 0, len(enabled))

	for _, src := range enabled {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch interrupted: %w", ctx.Err())
		}

		mark, err := s.fetchMark(ctx, src)
		if err != nil {
			logger.Warn().Err(err).Str(logFieldSource, src.Ref.String()).Msg("skipping source, cannot build fetch mark")
			observability.SourceFetchErrors.WithLabelValues(string(platform)).Inc()

			continue
		}

		result, err := adapter.FetchNew(ctx, src, mark)
		if err != nil {
			logger.Warn().Err(err).Str(logFieldSource, src.Ref.String()).Msg("skipping source, fetch failed")
			observability.SourceFetchErrors.WithLabelValues(string(platform)).Inc()

			continue
		}

		stats.Fetched += len(result.Items)

		if len(result.Items) > 0 {
			stats.PerSource[sourceLabel(src)] += len(result.Items)
		}

		fetched = append(fetched, fetchedSource{src: src, result: result})
	}

	observability.ItemsFetched.WithLabelValues(string(platform)).Add(float64(stats.Fetched))

	return fetched, nil
}

// fetchMark builds the resume position for one source: the watermark for
// chats, a processed-set membership check for groups. A source with neither
// bootstraps from the window.
func (s *Scanner) fetchMark(ctx context.Context, src domain.Source) (FetchMark, error) {
	mark := FetchMark{Bootstrap: time.Now().Add(-bootstrapWindow)}

	switch src.Ref.Kind {
	case domain.KindChat:
		watermark, ok, err := s.repo.GetWatermark(ctx, src.Ref.ID)
		if err != nil {
			return FetchMark{}, err
		}

		mark.Watermark = watermark
		mark.HasWatermark = ok
	case domain.KindGroup:
		set, err := s.repo.LoadProcessedSet(ctx, []string{src.Ref.ID})
		if err != nil {
			return FetchMark{}, err
		}

		if len(set) > 0 {
			// Once progress exists the processed set bounds the fetch,
			// not the window.
			mark.Bootstrap = time.Time{}
		}

		mark.IsProcessed = func(itemID string) bool {
			_, done := set[itemID]

			return done
		}
	}

	return mark, nil
}

// commitMarks advances watermarks and processed sets after a fully successful
// cycle. A fetch that saw no ordinal does not move the watermark, so a source
// bootstrapping over an empty window keeps bootstrapping until something is
// actually seen. Group marks cover every fetched item, filtered ones
// included; an excluded post must never resurface.
func (s *Scanner) commitMarks(ctx context.Context, fetched []fetchedSource) error {
	for _, f := range fetched {
		switch f.src.Ref.Kind {
		case domain.KindChat:
			if f.result.MaxOrdinal <= 0 {
				continue
			}

			if err := s.repo.AdvanceWatermark(ctx, f.src.Ref.ID, f.result.MaxOrdinal); err != nil {
				return fmt.Errorf("advance watermark: %w", err)
			}
		case domain.KindGroup:
			if len(f.result.Items) == 0 {
				continue
			}

			records := make([]domain.ProcessedRecord, len(f.result.Items))
			for i, item := range f.result.Items {
				records[i] = domain.ProcessedRecord{ItemID: item.ItemID, SourceID: f.src.Ref.ID}
			}

			if err := s.repo.MarkProcessedBatch(ctx, records); err != nil {
				return fmt.Errorf("mark processed: %w", err)
			}
		}
	}

	return nil
}

// failCycle ends a cycle that hit a fatal error. Nothing further is
// committed; the stats summary still goes out, marked aborted, so a broken
// cycle is distinguishable from a quiet one. A canceled context skips the
// summary.
func (s *Scanner) failCycle(ctx context.Context, stats domain.ScanStats, started time.Time, logger *zerolog.Logger, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	logger.Error().Err(err).Msg("scan cycle failed")

	stats.Aborted = true
	stats.Duration = time.Since(started)

	s.finishCycle(ctx, stats, logger)

	return err
}

// finishCycle emits the cycle stats exactly once and remembers them for the
// status command.
func (s *Scanner) finishCycle(ctx context.Context, stats domain.ScanStats, logger *zerolog.Logger) {
	observability.ScanCycleDuration.WithLabelValues(string(stats.Platform)).Observe(stats.Duration.Seconds())

	s.statsMu.Lock()
	s.lastStats[stats.Platform] = stats
	s.statsMu.Unlock()

	if err := s.notifier.SendStats(ctx, stats); err != nil {
		logger.Error().Err(err).Msg("failed to send stats notification")
	}
}

// excludeWords returns the effective exclusion list: the settings override
// when an operator saved one, the configured default otherwise.
func (s *Scanner) excludeWords(ctx context.Context) []string {
	var override []string
	if err := s.repo.GetSetting(ctx, settingExcludeWords, &override); err != nil {
		s.logger.Warn().Err(err).Msg("failed to load exclusion override, using configured words")

		return s.cfg.ExcludeWords
	}

	if len(override) > 0 {
		return override
	}

	return s.cfg.ExcludeWords
}

// batchItems shapes survivors for classification. The item index is the
// survivor's position, so verdicts map back by position.
func batchItems(survivors []domain.CandidateItem) []batch.Item {
	items := make([]batch.Item, len(survivors))

	for i, item := range survivors {
		items[i] = batch.Item{
			Index:     i,
			AuthorTag: authorTag(item.Author),
			Text:      item.Text,
			ReplyText: item.ReplyText,
		}
	}

	return items
}

// authorTag renders a short author handle for the classification prompt.
func authorTag(a domain.Author) string {
	switch {
	case a.Username != "":
		return a.Username
	case a.PlatformUserID != 0:
		return strconv.FormatInt(a.PlatformUserID, 10)
	default:
		return a.DisplayName
	}
}

func kindFor(platform domain.Platform) domain.SourceKind {
	if platform == domain.PlatformFacebook {
		return domain.KindGroup
	}

	return domain.KindChat
}

func sourceLabel(src domain.Source) string {
	if src.Title != "" {
		return src.Title
	}

	return src.Ref.ID
}
