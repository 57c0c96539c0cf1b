package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

const (
	dialogPageSize = 100
	maxDialogPages = 5
)

// ListSources discovers the monitored chats: the members of the configured
// chat folder, or every group chat of the account when the folder is "*".
func (r *Reader) ListSources(ctx context.Context) ([]domain.Source, error) {
	api, err := r.apiClient()
	if err != nil {
		return nil, err
	}

	if r.cfg.ChatFolder == folderAll {
		return r.listAllGroupChats(ctx, api)
	}

	return r.listFolderChats(ctx, api)
}

// listFolderChats resolves the include list of the configured dialog folder.
func (r *Reader) listFolderChats(ctx context.Context, api *tg.Client) ([]domain.Source, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	filters, err := api.MessagesGetDialogFilters(ctx)
	if err != nil {
		return nil, fmt.Errorf("get dialog filters: %w", err)
	}

	var include []tg.InputPeerClass

	found := false

	for _, f := range filters.Filters {
		switch filter := f.(type) {
		case *tg.DialogFilter:
			if strings.EqualFold(filter.Title.Text, r.cfg.ChatFolder) {
				include = filter.IncludePeers
				found = true
			}
		case *tg.DialogFilterChatlist:
			if strings.EqualFold(filter.Title.Text, r.cfg.ChatFolder) {
				include = filter.IncludePeers
				found = true
			}
		}

		if found {
			break
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, r.cfg.ChatFolder)
	}

	var (
		channelIDs []tg.InputChannelClass
		chatIDs    []int64
	)

	for _, peer := range include {
		switch p := peer.(type) {
		case *tg.InputPeerChannel:
			channelIDs = append(channelIDs, &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash})
		case *tg.InputPeerChat:
			chatIDs = append(chatIDs, p.ChatID)
		}
		// User peers in the folder are not scannable sources.
	}

	var sources []domain.Source

	if len(channelIDs) > 0 {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		chats, err := api.ChannelsGetChannels(ctx, channelIDs)
		if err != nil {
			return nil, fmt.Errorf("get folder channels: %w", err)
		}

		sources = append(sources, r.collectGroupChats(chats)...)
	}

	if len(chatIDs) > 0 {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		chats, err := api.MessagesGetChats(ctx, chatIDs)
		if err != nil {
			return nil, fmt.Errorf("get folder chats: %w", err)
		}

		sources = append(sources, r.collectGroupChats(chats)...)
	}

	r.logger.Debug().Str("folder", r.cfg.ChatFolder).Int("chats", len(sources)).Msg("Resolved folder chats")

	return sources, nil
}

// listAllGroupChats walks the dialog list and keeps every group chat: legacy
// groups and megagroups, but not broadcast channels or user dialogs.
func (r *Reader) listAllGroupChats(ctx context.Context, api *tg.Client) ([]domain.Source, error) {
	var (
		sources []domain.Source
		seen    = make(map[int64]struct{})

		offsetDate int
		offsetID   int
		offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}
	)

	for page := 0; page < maxDialogPages; page++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("get dialogs: %w", err)
		}

		var (
			dialogs  []tg.DialogClass
			chats    []tg.ChatClass
			messages []tg.MessageClass
			users    []tg.UserClass
			lastPage bool
		)

		switch d := res.(type) {
		case *tg.MessagesDialogs:
			dialogs, chats, messages, users = d.Dialogs, d.Chats, d.Messages, d.Users
			lastPage = true
		case *tg.MessagesDialogsSlice:
			dialogs, chats, messages, users = d.Dialogs, d.Chats, d.Messages, d.Users
		case *tg.MessagesDialogsNotModified:
			return sources, nil
		}

		for _, src := range r.collectGroupChatsFrom(chats) {
			if _, dup := seen[src.id]; dup {
				continue
			}

			seen[src.id] = struct{}{}

			sources = append(sources, src.source())
		}

		if lastPage || len(dialogs) < dialogPageSize {
			break
		}

		next, ok := nextDialogOffset(dialogs, chats, messages, users)
		if !ok {
			break
		}

		offsetDate, offsetID, offsetPeer = next.date, next.id, next.peer
	}

	r.logger.Debug().Int("chats", len(sources)).Msg("Collected group chats from dialogs")

	return sources, nil
}

// collectGroupChats converts a chats response, caches peer info and returns
// the scannable sources.
func (r *Reader) collectGroupChats(res tg.MessagesChatsClass) []domain.Source {
	var chats []tg.ChatClass

	switch c := res.(type) {
	case *tg.MessagesChats:
		chats = c.Chats
	case *tg.MessagesChatsSlice:
		chats = c.Chats
	}

	infos := r.collectGroupChatsFrom(chats)

	sources := make([]domain.Source, 0, len(infos))
	for _, info := range infos {
		sources = append(sources, info.source())
	}

	return sources
}

// collectGroupChatsFrom filters a raw chat list down to group chats and
// caches their addressing info.
func (r *Reader) collectGroupChatsFrom(chats []tg.ChatClass) []peerInfo {
	var infos []peerInfo

	for _, chat := range chats {
		switch c := chat.(type) {
		case *tg.Chat:
			if c.Deactivated || c.MigratedTo != nil {
				continue
			}

			info := peerInfo{id: c.ID, legacy: true, title: c.Title}
			r.cachePeer(info)

			infos = append(infos, info)
		case *tg.Channel:
			if !c.Megagroup || c.Left {
				continue
			}

			info := peerInfo{
				id:         c.ID,
				accessHash: c.AccessHash,
				forum:      c.Forum,
				title:      c.Title,
				username:   c.Username,
			}
			r.cachePeer(info)

			infos = append(infos, info)
		}
	}

	return infos
}

type dialogOffset struct {
	date int
	id   int
	peer tg.InputPeerClass
}

// nextDialogOffset derives the pagination offset from the last dialog of a
// page: its top message's date and ID, and its peer. Missing access hashes
// end the walk early rather than erroring.
func nextDialogOffset(dialogs []tg.DialogClass, chats []tg.ChatClass, messages []tg.MessageClass, users []tg.UserClass) (dialogOffset, bool) {
	if len(dialogs) == 0 {
		return dialogOffset{}, false
	}

	last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
	if !ok {
		return dialogOffset{}, false
	}

	offset := dialogOffset{id: last.TopMessage}

	for _, m := range messages {
		switch msg := m.(type) {
		case *tg.Message:
			if msg.ID == last.TopMessage {
				offset.date = msg.Date
			}
		case *tg.MessageService:
			if msg.ID == last.TopMessage {
				offset.date = msg.Date
			}
		}

		if offset.date != 0 {
			break
		}
	}

	switch peer := last.Peer.(type) {
	case *tg.PeerChat:
		offset.peer = &tg.InputPeerChat{ChatID: peer.ChatID}
	case *tg.PeerChannel:
		for _, chat := range chats {
			if channel, ok := chat.(*tg.Channel); ok && channel.ID == peer.ChannelID {
				offset.peer = &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}

				break
			}
		}
	case *tg.PeerUser:
		for _, u := range users {
			if user, ok := u.(*tg.User); ok && user.ID == peer.UserID {
				offset.peer = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}

				break
			}
		}
	}

	if offset.peer == nil {
		return dialogOffset{}, false
	}

	return offset, true
}
