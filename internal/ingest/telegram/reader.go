// Package telegram fetches candidate items from Telegram group chats over
// MTProto using a regular user account. The monitored set comes from a chat
// folder on that account, so adding a chat to the scan is done from any
// Telegram client, not from config.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/platform/config"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
)

// folderAll monitors every group chat of the account instead of one folder.
const folderAll = "*"

// Reader errors.
var (
	ErrNotConnected      = errors.New("telegram client not connected")
	ErrFolderNotFound    = errors.New("chat folder not found")
	ErrChatNotFound      = errors.New("chat not found")
	ErrNotAChat          = errors.New("peer is not a group chat")
	ErrMissingAccessHash = errors.New("missing access_hash for chat")
)

var _ scan.SourceAdapter = (*Reader)(nil)

// peerInfo is the cached addressing info for one monitored chat. Legacy
// groups are addressed by bare ID, channels need the access hash.
type peerInfo struct {
	id         int64
	accessHash int64
	legacy     bool
	forum      bool
	title      string
	username   string
}

// Reader is the MTProto source adapter. Run keeps the client session alive;
// ListSources and FetchNew only work while Run is active.
type Reader struct {
	cfg     config.TelegramMTProtoConfig
	client  *telegram.Client
	logger  *zerolog.Logger
	limiter *rate.Limiter

	mu    sync.RWMutex
	api   *tg.Client
	peers map[int64]peerInfo

	ready chan struct{}
}

func New(cfg config.TelegramMTProtoConfig, logger *zerolog.Logger) *Reader {
	// One request per second is safe for a user account; anything above
	// ten invites immediate FLOOD_WAIT penalties.
	rps := cfg.RateLimitRPS
	if rps < 1 {
		rps = 1
	}

	if rps > 10 {
		rps = 10
	}

	return &Reader{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		peers:   make(map[int64]peerInfo),
		ready:   make(chan struct{}),
	}
}

// Platform identifies the adapter.
func (r *Reader) Platform() domain.Platform {
	return domain.PlatformTelegram
}

// Run connects and authenticates the user client, then holds the session
// open until ctx is done. It blocks for the whole lifetime of the process.
func (r *Reader) Run(ctx context.Context) error {
	client := telegram.NewClient(r.cfg.APIID, r.cfg.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: r.cfg.SessionPath,
		},
	})

	r.client = client

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, r.authFlow()); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}

		r.logger.Info().Msg("Successfully authenticated as user")

		r.mu.Lock()
		r.api = tg.NewClient(client)
		r.mu.Unlock()

		close(r.ready)

		<-ctx.Done()

		return ctx.Err()
	})
}

// WaitReady blocks until the client is authenticated or ctx is done. One-shot
// scan modes call this before starting the cycle.
func (r *Reader) WaitReady(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reader) apiClient() (*tg.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.api == nil {
		return nil, ErrNotConnected
	}

	return r.api, nil
}

func (r *Reader) cachePeer(info peerInfo) {
	r.mu.Lock()
	r.peers[info.id] = info
	r.mu.Unlock()
}

func (r *Reader) cachedPeer(id int64) (peerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.peers[id]

	return info, ok
}

// peerFor resolves a source to its addressing info: from the cache filled by
// ListSources, or by resolving the username when the cache misses (for
// example after a restart in a one-shot mode).
func (r *Reader) peerFor(ctx context.Context, api *tg.Client, src domain.Source) (peerInfo, error) {
	id, err := strconv.ParseInt(src.Ref.ID, 10, 64)
	if err != nil {
		return peerInfo{}, fmt.Errorf("parse chat id %q: %w", src.Ref.ID, err)
	}

	if info, ok := r.cachedPeer(id); ok {
		return info, nil
	}

	if src.Username == "" {
		return peerInfo{}, fmt.Errorf("%w: %s", ErrChatNotFound, src.Ref.ID)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return peerInfo{}, err
	}

	r.logger.Debug().Str("username", src.Username).Msg("Resolving username (no cached peer info)")

	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: src.Username})
	if err != nil {
		return peerInfo{}, fmt.Errorf("resolve username: %w", err)
	}

	for _, chat := range resolved.Chats {
		channel, ok := chat.(*tg.Channel)
		if !ok || channel.ID != id {
			continue
		}

		if channel.AccessHash == 0 {
			return peerInfo{}, fmt.Errorf("%w: %d", ErrMissingAccessHash, channel.ID)
		}

		info := peerInfo{
			id:         channel.ID,
			accessHash: channel.AccessHash,
			forum:      channel.Forum,
			title:      channel.Title,
			username:   channel.Username,
		}
		r.cachePeer(info)

		return info, nil
	}

	return peerInfo{}, fmt.Errorf("%w: %s", ErrChatNotFound, src.Username)
}

// inputPeer builds the wire peer for a cached chat.
func (info peerInfo) inputPeer() tg.InputPeerClass {
	if info.legacy {
		return &tg.InputPeerChat{ChatID: info.id}
	}

	return &tg.InputPeerChannel{
		ChannelID:  info.id,
		AccessHash: info.accessHash,
	}
}

func (info peerInfo) source() domain.Source {
	return domain.Source{
		Ref:      domain.SourceRef{Kind: domain.KindChat, ID: strconv.FormatInt(info.id, 10)},
		Title:    info.title,
		Username: info.username,
		Enabled:  true,
	}
}
