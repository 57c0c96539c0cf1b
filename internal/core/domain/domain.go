package domain

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// Platform identifies one of the two scan platforms.
type Platform string

// Platform constants.
const (
	PlatformTelegram Platform = "telegram"
	PlatformFacebook Platform = "facebook"
)

// SourceKind tags the two shapes of monitored sources. Chats carry a
// monotonic message ordinal usable as a watermark; groups expose no reliable
// ordering and are tracked by permanent processed-ID records instead.
type SourceKind string

// Source kind constants.
const (
	KindChat  SourceKind = "chat"
	KindGroup SourceKind = "group"
)

// SourceRef identifies a monitored source. Adapters normalize their
// platform-specific peer objects into a SourceRef once, at the boundary.
type SourceRef struct {
	Kind SourceKind
	ID   string
}

// Platform maps the source kind onto its scan platform.
func (r SourceRef) Platform() Platform {
	if r.Kind == KindGroup {
		return PlatformFacebook
	}

	return PlatformTelegram
}

func (r SourceRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Source is a monitored chat or group.
type Source struct {
	Ref      SourceRef
	Title    string
	Username string
	Enabled  bool
}

// Author is the durable identity of a message sender. Created or matched the
// first time a message from that user is stored; never deleted. Facebook
// authors frequently expose no numeric ID, so PlatformUserID may be zero;
// the display name is then the only handle.
type Author struct {
	PlatformUserID int64
	Username       string
	DisplayName    string
}

// CandidateItem is the ephemeral unit of work for one scan cycle. It lives
// only for the duration of the cycle; its classification outcome is persisted
// as a StoredMessage.
type CandidateItem struct {
	Ref            SourceRef
	ItemID         string // platform identifier, stable across cycles
	Ordinal        int64  // monotonic ordinal for chat sources, 0 for groups
	Text           string
	ReplyText      string // quoted message text, when the item is a reply
	TopicID        int64  // forum topic, 0 outside forums
	Author         Author
	PostedAt       time.Time
	SourceTitle    string
	SourceUsername string
	Link           string // canonical URL to the item, empty when none exists
}

// fingerprintPrefixRunes bounds how much text the prefix fingerprint covers.
const fingerprintPrefixRunes = 100

// PrefixFingerprint hashes the first 100 runes of the trimmed text. It is an
// intentionally weak fingerprint: good enough for same-cycle in-memory dedup
// and as a last-resort item ID for posts without one, never used for
// cross-cycle identity.
func PrefixFingerprint(text string) string {
	trimmed := strings.TrimSpace(text)

	runes := []rune(trimmed)
	if len(runes) > fingerprintPrefixRunes {
		runes = runes[:fingerprintPrefixRunes]
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(string(runes)))

	return fmt.Sprintf("%x", h.Sum64())
}

// LeadCategory labels what a lead offers.
type LeadCategory string

// Lead category constants.
const (
	CategoryProperty LeadCategory = "property"
	CategoryVehicle  LeadCategory = "vehicle"
	CategoryOther    LeadCategory = "other"
)

// NormalizeCategory maps a free-form backend label onto the known set.
func NormalizeCategory(raw string) LeadCategory {
	switch LeadCategory(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryProperty:
		return CategoryProperty
	case CategoryVehicle:
		return CategoryVehicle
	default:
		return CategoryOther
	}
}

// Verdict is the classification outcome for one CandidateItem. Absence of a
// verdict for an item means "not a lead".
type Verdict struct {
	IsLead     bool
	Reason     string
	Confidence float32
	Category   LeadCategory
}

// StoredMessage is the durable record of a classified item. It is inserted
// right after content filtering with nil IsLead (audit trail), and updated in
// place once the verdict arrives.
type StoredMessage struct {
	ID             string
	ItemID         string
	Ref            SourceRef
	SourceTitle    string
	SourceUsername string
	TopicID        int64
	AuthorID       int64
	AuthorName     string
	Text           string
	ReplyText      string
	IsLead         *bool
	Confidence     float32
	Reason         string
	Category       LeadCategory
	PostedAt       time.Time
	CreatedAt      time.Time
	AnalyzedAt     time.Time
}

// Lead is the notification payload for one found lead. Author and Ref stay
// raw; contact rendering is the notifier's job.
type Lead struct {
	Ref        SourceRef
	Author     Author
	SourceName string
	Link       string
	Excerpt    string
	Confidence float32
	Reason     string
	Category   LeadCategory
}

// ScanStats summarizes one cycle for the operator. Exactly one stats
// notification is emitted per cycle, aborted cycles included.
type ScanStats struct {
	Platform  Platform
	CycleID   string
	Fetched   int
	Filtered  int // items that survived the content filter
	Analyzed  int
	Leads     int
	Sources   int
	PerSource map[string]int // fetched count keyed by source title
	StartedAt time.Time
	Duration  time.Duration
	Aborted   bool
}

// ScanControlState is the explicit per-platform pause switch. The control
// surface mutates it through storage; schedulers read it before starting a
// cycle and never abort one already in flight.
type ScanControlState struct {
	Platform  Platform
	Paused    bool
	UpdatedAt time.Time
}

// ProcessedRecord marks one group item as permanently handled.
type ProcessedRecord struct {
	ItemID   string
	SourceID string
}
