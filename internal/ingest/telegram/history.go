package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/platform/observability"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
)

// replyExcerptRunes bounds the quoted reply context carried on an item.
const replyExcerptRunes = 200

// FetchRequests status label values.
const (
	fetchStatusOK        = "ok"
	fetchStatusError     = "error"
	fetchStatusFloodWait = "flood_wait"
)

// rawItem is a candidate item plus the message ID it replies to, resolved to
// text in a second pass.
type rawItem struct {
	item    domain.CandidateItem
	replyTo int
}

// FetchNew fetches messages newer than the mark from one chat. With a
// watermark the request window starts right above it, so a backlog larger
// than the fetch limit is drained across cycles without gaps; without one the
// latest messages are fetched and the bootstrap window filters them.
func (r *Reader) FetchNew(ctx context.Context, src domain.Source, mark scan.FetchMark) (scan.FetchResult, error) {
	api, err := r.apiClient()
	if err != nil {
		return scan.FetchResult{}, err
	}

	info, err := r.peerFor(ctx, api, src)
	if err != nil {
		return scan.FetchResult{}, err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return scan.FetchResult{}, err
	}

	req := &tg.MessagesGetHistoryRequest{
		Peer:  info.inputPeer(),
		Limit: r.cfg.FetchLimit,
	}

	if mark.HasWatermark {
		// Fetch messages newer than the last committed one, oldest window
		// first.
		req.OffsetID = int(mark.Watermark)
		req.AddOffset = -r.cfg.FetchLimit
	}

	history, err := api.MessagesGetHistory(ctx, req)
	if err != nil {
		floodErr, ok := tgerr.As(err)
		if ok && floodErr.Type == "FLOOD_WAIT" {
			observability.FetchRequests.WithLabelValues(string(domain.PlatformTelegram), fetchStatusFloodWait).Inc()
			observability.FloodWaitSecondsTotal.Add(float64(floodErr.Argument))

			r.logger.Warn().Int("seconds", floodErr.Argument).Str("chat", src.Ref.ID).Msg("flood wait")

			select {
			case <-ctx.Done():
				return scan.FetchResult{}, ctx.Err()
			case <-time.After(time.Duration(floodErr.Argument) * time.Second):
			}

			// The chat yields nothing this cycle; the next one retries
			// from the same mark.
			return scan.FetchResult{}, nil
		}

		observability.FetchRequests.WithLabelValues(string(domain.PlatformTelegram), fetchStatusError).Inc()

		return scan.FetchResult{}, fmt.Errorf("get history: %w", err)
	}

	observability.FetchRequests.WithLabelValues(string(domain.PlatformTelegram), fetchStatusOK).Inc()

	var (
		messages []tg.MessageClass
		users    []tg.UserClass
	)

	switch h := history.(type) {
	case *tg.MessagesMessages:
		messages, users = h.Messages, h.Users
	case *tg.MessagesMessagesSlice:
		messages, users = h.Messages, h.Users
	case *tg.MessagesChannelMessages:
		messages, users = h.Messages, h.Users
	case *tg.MessagesMessagesNotModified:
		r.logger.Debug().Str("chat", src.Ref.ID).Msg("History not modified")

		return scan.FetchResult{}, nil
	}

	raw, maxID := collectItems(src, info, mark, messages, userMap(users))

	items := r.resolveReplies(ctx, api, info, raw)

	r.logger.Debug().
		Str("chat", src.Ref.ID).
		Int("fetched", len(messages)).
		Int("kept", len(items)).
		Int64("max_id", maxID).
		Msg("Fetched chat history")

	return scan.FetchResult{Items: items, MaxOrdinal: maxID}, nil
}

// collectItems converts a history page into candidate items, oldest first.
// Every message counts toward the max ordinal, items outside the bootstrap
// window or without text or a user sender included; only the survivors become
// candidates.
func collectItems(src domain.Source, info peerInfo, mark scan.FetchMark, messages []tg.MessageClass, users map[int64]*tg.User) ([]rawItem, int64) {
	var (
		raw   []rawItem
		maxID int64
	)

	// History pages arrive newest first; walk backwards for oldest-first
	// output.
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(*tg.Message)
		if !ok {
			continue
		}

		if int64(msg.ID) > maxID {
			maxID = int64(msg.ID)
		}

		if mark.HasWatermark && int64(msg.ID) <= mark.Watermark {
			continue
		}

		postedAt := time.Unix(int64(msg.Date), 0)

		if !mark.HasWatermark && postedAt.Before(mark.Bootstrap) {
			continue
		}

		if msg.Message == "" {
			continue
		}

		peerUser, ok := msg.FromID.(*tg.PeerUser)
		if !ok {
			// Anonymous admin and channel posts carry no user contact.
			continue
		}

		user, ok := users[peerUser.UserID]
		if !ok {
			continue
		}

		var topicID int64

		replyTo := 0

		if header, ok := msg.ReplyTo.(*tg.MessageReplyHeader); ok {
			if info.forum {
				topicID = int64(header.ReplyToTopID)
				if topicID == 0 {
					topicID = int64(header.ReplyToMsgID)
				}
			} else {
				replyTo = header.ReplyToMsgID
			}
		}

		raw = append(raw, rawItem{
			item: domain.CandidateItem{
				Ref:            src.Ref,
				ItemID:         fmt.Sprintf("%s:%d", src.Ref.ID, msg.ID),
				Ordinal:        int64(msg.ID),
				Text:           msg.Message,
				TopicID:        topicID,
				Author:         authorOf(user),
				PostedAt:       postedAt,
				SourceTitle:    src.Title,
				SourceUsername: src.Username,
				Link:           messageLink(src.Username, info.id, topicID, int64(msg.ID)),
			},
			replyTo: replyTo,
		})
	}

	return raw, maxID
}

// resolveReplies attaches quoted text to items that reply to another message.
// The replied-to messages are fetched in one request per chat; a failure just
// loses the context, never the items.
func (r *Reader) resolveReplies(ctx context.Context, api *tg.Client, info peerInfo, raw []rawItem) []domain.CandidateItem {
	items := make([]domain.CandidateItem, len(raw))

	var ids []tg.InputMessageClass

	seen := make(map[int]struct{})

	for i, entry := range raw {
		items[i] = entry.item

		if entry.replyTo == 0 {
			continue
		}

		if _, dup := seen[entry.replyTo]; !dup {
			seen[entry.replyTo] = struct{}{}

			ids = append(ids, &tg.InputMessageID{ID: entry.replyTo})
		}
	}

	if len(ids) == 0 {
		return items
	}

	texts, err := r.fetchMessageTexts(ctx, api, info, ids)
	if err != nil {
		r.logger.Warn().Err(err).Int64("chat", info.id).Int("replies", len(ids)).Msg("failed to resolve reply context")

		return items
	}

	for i, entry := range raw {
		if entry.replyTo == 0 {
			continue
		}

		if text, ok := texts[entry.replyTo]; ok && text != "" {
			items[i].ReplyText = truncateRunes(text, replyExcerptRunes)
		}
	}

	return items
}

func (r *Reader) fetchMessageTexts(ctx context.Context, api *tg.Client, info peerInfo, ids []tg.InputMessageClass) (map[int]string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		res tg.MessagesMessagesClass
		err error
	)

	if info.legacy {
		res, err = api.MessagesGetMessages(ctx, ids)
	} else {
		res, err = api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: info.id, AccessHash: info.accessHash},
			ID:      ids,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	var messages []tg.MessageClass

	switch h := res.(type) {
	case *tg.MessagesMessages:
		messages = h.Messages
	case *tg.MessagesMessagesSlice:
		messages = h.Messages
	case *tg.MessagesChannelMessages:
		messages = h.Messages
	case *tg.MessagesMessagesNotModified:
		return map[int]string{}, nil
	}

	texts := make(map[int]string, len(messages))

	for _, m := range messages {
		if msg, ok := m.(*tg.Message); ok {
			texts[msg.ID] = msg.Message
		}
	}

	return texts, nil
}

func userMap(users []tg.UserClass) map[int64]*tg.User {
	m := make(map[int64]*tg.User, len(users))

	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			m[user.ID] = user
		}
	}

	return m
}

func authorOf(user *tg.User) domain.Author {
	return domain.Author{
		PlatformUserID: user.ID,
		Username:       user.Username,
		DisplayName:    strings.TrimSpace(user.FirstName + " " + user.LastName),
	}
}
