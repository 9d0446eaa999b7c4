package offline

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnonymousUser is recorded as the owner of screenings submitted without a user.
const AnonymousUser = "anonymous"

// FormVersion tracks the questionnaire form layout stored with each submission.
const FormVersion = "1.0"

// SubmissionStatus is the sync state of a locally stored screening.
type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "pending"
	StatusSynced  SubmissionStatus = "synced"
	// StatusFailed is reserved; no code path currently produces it.
	StatusFailed SubmissionStatus = "failed"
)

// ClientMetadata is diagnostic information captured when a screening is stored.
type ClientMetadata struct {
	FormVersion string `json:"formVersion"`
	UserAgent   string `json:"userAgent,omitempty"`
	Locale      string `json:"language,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// Screening is a completed questionnaire as produced by the UI.
type Screening struct {
	Type           string         `json:"type,omitempty"`
	Answers        map[string]any `json:"answers"`
	Score          *int           `json:"score,omitempty"`
	Interpretation string         `json:"interpretation,omitempty"`
}

// ScreeningSubmission is a screening persisted in the local store.
// Timestamp is milliseconds since the Unix epoch, the same unit the server
// reports in history so records can be matched across both.
type ScreeningSubmission struct {
	ID             string           `json:"id"`
	Type           string           `json:"type,omitempty"`
	Answers        map[string]any   `json:"answers"`
	Score          *int             `json:"score,omitempty"`
	Interpretation string           `json:"interpretation,omitempty"`
	UserID         string           `json:"userId"`
	Status         SubmissionStatus `json:"status"`
	Timestamp      int64            `json:"timestamp"`
	ServerResponse json.RawMessage  `json:"serverResponse,omitempty"`
	SyncedAt       *int64           `json:"syncedAt,omitempty"`
	Metadata       ClientMetadata   `json:"metadata"`

	// ClientID is the local id the server echoes back in history entries.
	ClientID string `json:"clientId,omitempty"`

	// Offline marks history entries the server has never acknowledged.
	Offline bool `json:"offline,omitempty"`
}

// ResourceType is the kind of content a resource hub entry holds.
type ResourceType string

const (
	ResourceVideo   ResourceType = "video"
	ResourceAudio   ResourceType = "audio"
	ResourceArticle ResourceType = "article"
)

// ParseResourceType validates s. An empty string is treated as an article.
func ParseResourceType(s string) (ResourceType, error) {
	switch ResourceType(s) {
	case ResourceVideo, ResourceAudio, ResourceArticle:
		return ResourceType(s), nil
	case "":
		return ResourceArticle, nil
	default:
		return "", fmt.Errorf("unknown resource type: %q", s)
	}
}

// MediaType is the kind of binary payload cached for a resource.
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaImage MediaType = "image"
)

// ParseMediaType validates s.
func ParseMediaType(s string) (MediaType, error) {
	switch MediaType(s) {
	case MediaVideo, MediaAudio, MediaImage:
		return MediaType(s), nil
	default:
		return "", fmt.Errorf("unknown media type: %q", s)
	}
}

// CachedResource is resource hub metadata held for offline reading.
// Payload is the resource exactly as the server returned it.
type CachedResource struct {
	ID           string          `json:"id"`
	Category     string          `json:"category"`
	Type         ResourceType    `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Cached       bool            `json:"cached"`
	CachedAt     time.Time       `json:"cachedAt"`
	LastAccessed time.Time       `json:"lastAccessed"`
}

// Details decodes the descriptive fields of the payload.
func (r *CachedResource) Details() ResourceDetails {
	var d ResourceDetails
	if len(r.Payload) > 0 {
		_ = json.Unmarshal(r.Payload, &d)
	}
	return d
}

// ResourceDetails is the subset of a resource payload the offline layer reads.
type ResourceDetails struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Type         string     `json:"type"`
	Tags         []string   `json:"tags"`
	VideoURL     string     `json:"videoUrl"`
	AudioURL     string     `json:"audioUrl"`
	ThumbnailURL string     `json:"thumbnailUrl"`
	Duration     flexString `json:"duration"`
}

// MediaLink is one downloadable asset referenced by a resource.
type MediaLink struct {
	URL  string
	Type MediaType
}

// MediaLinks lists the video, audio and thumbnail URLs present in d.
func (d ResourceDetails) MediaLinks() []MediaLink {
	var links []MediaLink
	if d.VideoURL != "" {
		links = append(links, MediaLink{URL: d.VideoURL, Type: MediaVideo})
	}
	if d.AudioURL != "" {
		links = append(links, MediaLink{URL: d.AudioURL, Type: MediaAudio})
	}
	if d.ThumbnailURL != "" {
		links = append(links, MediaLink{URL: d.ThumbnailURL, Type: MediaImage})
	}
	return links
}

// flexString accepts either a JSON string or a JSON number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// CachedMedia describes a media blob held in the BlobStore.
// A CachedMedia row exists only while its blob exists.
type CachedMedia struct {
	URL        string    `json:"url"`
	Type       MediaType `json:"type"`
	ResourceID string    `json:"resourceId"`
	Title      string    `json:"title"`
	Duration   string    `json:"duration,omitempty"`
	Size       int64     `json:"size"`
	Cached     bool      `json:"cached"`
	CachedAt   time.Time `json:"cachedAt"`
}

// HelplineCategory groups helplines by urgency of the service offered.
type HelplineCategory string

const (
	CategoryCrisis     HelplineCategory = "crisis"
	CategoryCounseling HelplineCategory = "counseling"
	CategorySupport    HelplineCategory = "support"
)

// ParseHelplineCategory validates s.
func ParseHelplineCategory(s string) (HelplineCategory, error) {
	switch HelplineCategory(s) {
	case CategoryCrisis, CategoryCounseling, CategorySupport:
		return HelplineCategory(s), nil
	default:
		return "", fmt.Errorf("unknown helpline category: %q", s)
	}
}

const (
	// OnlineOnlyPhone is stored as the phone number of services without one.
	OnlineOnlyPhone = "Online Only"
	// NationalState marks helplines that serve a whole country.
	NationalState = "National"
)

// Directory sources.
const (
	SourceBundled = "bundled"
	SourceRemote  = "remote"
)

// HelplineEntry is one contact in the helpline directory.
// Lower Priority values are more urgent.
type HelplineEntry struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Phone          string           `json:"phone"`
	Country        string           `json:"country"`
	State          string           `json:"state"`
	Category       HelplineCategory `json:"category"`
	Priority       int              `json:"priority"`
	Available      string           `json:"available"`
	Languages      []string         `json:"languages"`
	Description    string           `json:"description"`
	Website        string           `json:"website,omitempty"`
	Services       []string         `json:"services"`
	IsGovt         bool             `json:"isGovt"`
	Specialization string           `json:"specialization,omitempty"`
	IsOnline       bool             `json:"isOnline,omitempty"`
	Source         string           `json:"source,omitempty"`
	CachedAt       time.Time        `json:"cachedAt,omitempty"`
}

// QueueStatus is the delivery state of a sync queue item.
type QueueStatus string

const (
	QueueQueued QueueStatus = "queued"
	QueueDead   QueueStatus = "dead"
)

// DefaultMaxRetries is the retry budget of a new queue item.
const DefaultMaxRetries = 3

// SyncQueueItem is a remote mutation waiting for connectivity.
// Ref names the local record the mutation belongs to, if any.
type SyncQueueItem struct {
	ID         int64           `json:"id"`
	Action     string          `json:"action"`
	Endpoint   string          `json:"endpoint"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"`
	EnqueuedAt time.Time       `json:"timestamp"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"maxRetries"`
	LastRetry  *time.Time      `json:"lastRetry,omitempty"`
	LastError  string          `json:"lastError,omitempty"`
	Status     QueueStatus     `json:"status"`
	Ref        string          `json:"ref,omitempty"`
}

// Exhausted reports whether the item has used its retry budget.
func (i *SyncQueueItem) Exhausted() bool {
	return i.Retries >= i.MaxRetries
}
