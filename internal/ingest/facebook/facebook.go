// Package facebook reads group feeds over plain HTTP and parses the mobile
// markup into candidate items. It requests the pages a logged-in mobile
// browser would, authenticated by a session cookie, and keeps the selector
// layer deliberately thin so markup drift degrades coverage instead of
// breaking the scan.
package facebook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/platform/config"
	"github.com/leadscan/lead-scan-bot/internal/platform/observability"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
)

const (
	headerUserAgent      = "User-Agent"
	headerAccept         = "Accept"
	headerAcceptLanguage = "Accept-Language"
	headerCookie         = "Cookie"

	defaultUserAgent = "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"

	canonicalHost     = "https://www.facebook.com"
	feedSortQuery     = "sorting_setting=CHRONOLOGICAL"
	groupsListingPath = "/groups/joins/?ordering=viewer_added"

	maxRedirects        = 10
	maxPageBytes        = 5 * 1024 * 1024 // 5MB
	defaultFetchTimeout = 30 * time.Second
	defaultPageDelay    = 1500 * time.Millisecond

	defaultPostsPerGroup = 20
)

// FetchRequests status label values.
const (
	fetchStatusOK    = "ok"
	fetchStatusError = "error"
)

var (
	// ErrLoginRedirect means the session cookie no longer authenticates.
	ErrLoginRedirect = errors.New("redirected to login page")

	errTooManyRedirects = errors.New("too many redirects")
	errHTTPStatus       = errors.New("HTTP error")
)

var _ scan.SourceAdapter = (*Scraper)(nil)

// Scraper lists group sources and fetches their feeds.
type Scraper struct {
	cfg       config.FacebookConfig
	client    *http.Client
	logger    *zerolog.Logger
	userAgent string
	pageDelay time.Duration

	mu     sync.RWMutex
	titles map[string]string
}

// New creates a Scraper with its own HTTP client.
func New(cfg config.FacebookConfig, logger *zerolog.Logger) *Scraper {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}

			if strings.Contains(req.URL.Path, "/login") {
				return ErrLoginRedirect
			}

			return nil
		},
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Scraper{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		userAgent: userAgent,
		pageDelay: defaultPageDelay,
		titles:    make(map[string]string),
	}
}

// Platform identifies the adapter inside the scanner.
func (s *Scraper) Platform() domain.Platform {
	return domain.PlatformFacebook
}

// ListSources returns the configured groups, or the account's joined groups
// when none are configured.
func (s *Scraper) ListSources(ctx context.Context) ([]domain.Source, error) {
	if len(s.cfg.GroupIDs) > 0 {
		return s.configuredSources(ctx), nil
	}

	return s.discoverSources(ctx)
}

// configuredSources builds sources from the configured group IDs, in config
// order. Titles come from the feed pages and are cached across cycles; a
// failed lookup leaves the title empty rather than dropping the source.
func (s *Scraper) configuredSources(ctx context.Context) []domain.Source {
	missing := make([]string, 0, len(s.cfg.GroupIDs))

	for _, id := range s.cfg.GroupIDs {
		if _, ok := s.cachedTitle(id); !ok {
			missing = append(missing, id)
		}
	}

	s.resolveTitles(ctx, missing)

	sources := make([]domain.Source, 0, len(s.cfg.GroupIDs))

	for _, id := range s.cfg.GroupIDs {
		title, _ := s.cachedTitle(id)

		sources = append(sources, domain.Source{
			Ref:     domain.SourceRef{Kind: domain.KindGroup, ID: id},
			Title:   title,
			Enabled: true,
		})
	}

	return sources
}

// resolveTitles fetches feed pages for groups with no cached title, a bounded
// number in flight at once.
func (s *Scraper) resolveTitles(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}

	workers := s.cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	type titleResult struct {
		id    string
		title string
		err   error
	}

	sem := make(chan struct{}, workers)
	results := make(chan titleResult, len(ids))

	for _, id := range ids {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func(id string) {
			defer func() { <-sem }()

			doc, err := s.fetchDocument(ctx, s.feedURL(id))
			if err != nil {
				results <- titleResult{id: id, err: err}

				return
			}

			results <- titleResult{id: id, title: groupTitle(doc)}
		}(id)
	}

	for range ids {
		select {
		case <-ctx.Done():
			return
		case res := <-results:
			if res.err != nil {
				s.logger.Warn().Str("group", res.id).Err(res.err).Msg("group title lookup failed")

				continue
			}

			if res.title != "" {
				s.cacheTitle(res.id, res.title)
			}
		}
	}
}

// discoverSources reads the joined-groups listing page.
func (s *Scraper) discoverSources(ctx context.Context) ([]domain.Source, error) {
	doc, err := s.fetchDocument(ctx, strings.TrimSuffix(s.cfg.BaseURL, "/")+groupsListingPath)
	if err != nil {
		return nil, fmt.Errorf("fetch joined groups: %w", err)
	}

	entries := collectGroupDirectory(doc)
	sources := make([]domain.Source, 0, len(entries))

	for _, entry := range entries {
		s.cacheTitle(entry.id, entry.name)

		sources = append(sources, domain.Source{
			Ref:     domain.SourceRef{Kind: domain.KindGroup, ID: entry.id},
			Title:   entry.name,
			Enabled: true,
		})
	}

	s.logger.Info().Int("groups", len(sources)).Msg("discovered joined groups")

	return sources, nil
}

// FetchNew walks the group's chronological feed newest first, page by page,
// and returns the posts not yet handled, oldest first. The walk ends at the
// first already-processed post, the per-group limit, or the page cap,
// whichever comes first.
func (s *Scraper) FetchNew(ctx context.Context, src domain.Source, mark scan.FetchMark) (scan.FetchResult, error) {
	limit := s.cfg.PostsPerGroup
	if limit < 1 {
		limit = defaultPostsPerGroup
	}

	maxPages := s.cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	title := src.Title
	seen := make(map[string]struct{})
	items := make([]domain.CandidateItem, 0, limit)
	pageURL := s.feedURL(src.Ref.ID)
	hitProcessed := false

	for page := 0; page < maxPages; page++ {
		doc, err := s.fetchDocument(ctx, pageURL)
		if err != nil {
			if page == 0 {
				return scan.FetchResult{}, fmt.Errorf("fetch group feed: %w", err)
			}

			// Earlier pages already produced items; losing the tail of
			// the walk only delays those posts to the next cycle.
			s.logger.Warn().Str("group", src.Ref.ID).Int("page", page).Err(err).Msg("feed page fetch failed")

			break
		}

		if t := groupTitle(doc); t != "" {
			title = t

			s.cacheTitle(src.Ref.ID, t)
		}

		pageItems, stop := collectPosts(doc, src, title, mark, seen, limit-len(items))
		items = append(items, pageItems...)
		hitProcessed = hitProcessed || stop

		if hitProcessed || len(items) >= limit {
			break
		}

		next, ok := nextPageURL(doc, pageURL)
		if !ok {
			break
		}

		pageURL = next

		if s.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return scan.FetchResult{}, ctx.Err()
			case <-time.After(s.pageDelay):
			}
		}
	}

	// Pages run newest first; the pipeline wants oldest first.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	s.logger.Debug().
		Str("group", src.Ref.ID).
		Int("posts", len(items)).
		Bool("hit_processed", hitProcessed).
		Msg("group feed fetched")

	return scan.FetchResult{Items: items}, nil
}

func (s *Scraper) feedURL(groupID string) string {
	return fmt.Sprintf("%s/groups/%s?%s", strings.TrimSuffix(s.cfg.BaseURL, "/"), groupID, feedSortQuery)
}

// fetchDocument gets and parses one page, counting the request outcome.
func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	doc, err := s.loadDocument(ctx, pageURL)

	status := fetchStatusOK
	if err != nil {
		status = fetchStatusError
	}

	observability.FetchRequests.WithLabelValues(string(domain.PlatformFacebook), status).Inc()

	return doc, err
}

func (s *Scraper) loadDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(headerUserAgent, s.userAgent)
	req.Header.Set(headerAccept, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set(headerAcceptLanguage, "en-US,en;q=0.8,ru;q=0.6")

	if s.cfg.Cookie != "" {
		req.Header.Set(headerCookie, s.cfg.Cookie)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrLoginRedirect) {
			return nil, ErrLoginRedirect
		}

		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errHTTPStatus, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	return doc, nil
}

func (s *Scraper) cacheTitle(groupID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.titles[groupID] = title
}

func (s *Scraper) cachedTitle(groupID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	title, ok := s.titles[groupID]

	return title, ok
}
