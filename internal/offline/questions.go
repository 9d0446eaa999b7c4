package offline

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// DefaultQuestionsTTL is how long a downloaded questionnaire is served from cache.
const DefaultQuestionsTTL = 24 * time.Hour

// DefaultScreeningType is used when GetQuestions is called without a type.
const DefaultScreeningType = "phq9"

//go:embed data/phq9.json
var bundledPHQ9 []byte

// Questionnaire sources.
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
	SourceDefault = "default"
)

// Questions is a questionnaire definition and where it came from.
type Questions struct {
	Data   json.RawMessage `json:"data"`
	Source string          `json:"source"`
	Stale  bool            `json:"stale,omitempty"`
}

type cachedQuestions struct {
	CachedAt time.Time       `json:"cachedAt"`
	Data     json.RawMessage `json:"data"`
}

func questionsKey(screeningType string) string {
	return "questions/" + url.PathEscape(screeningType)
}

// GetQuestions returns the questionnaire for screeningType. A cached copy
// younger than the TTL is used as is. Otherwise the server is asked when
// online, then an expired cached copy, and finally the bundled PHQ-9.
func (m *ScreeningManager) GetQuestions(ctx context.Context, screeningType string) *Questions {
	if screeningType == "" {
		screeningType = DefaultScreeningType
	}
	key := questionsKey(screeningType)

	cached := m.readCachedQuestions(ctx, key)
	if cached != nil && m.clock.Now().Sub(cached.CachedAt) < m.opts.QuestionsTTL {
		return &Questions{Data: cached.Data, Source: SourceCache}
	}

	if m.conn.IsOnline() {
		var data json.RawMessage
		err := m.api.Do(ctx, http.MethodGet, EndpointScreeningQuestions+url.PathEscape(screeningType), nil, &data)
		if err == nil && len(data) > 0 {
			m.writeCachedQuestions(ctx, key, data)
			return &Questions{Data: data, Source: SourceNetwork}
		}
		if err != nil {
			m.logger.Warn("failed to fetch screening questions", "type", screeningType, "error", err)
		}
	}

	if cached != nil {
		return &Questions{Data: cached.Data, Source: SourceCache, Stale: true}
	}
	return &Questions{Data: json.RawMessage(bundledPHQ9), Source: SourceDefault}
}

func (m *ScreeningManager) readCachedQuestions(ctx context.Context, key string) *cachedQuestions {
	var buf bytes.Buffer
	if err := m.blobs.GetBlob(ctx, key, &buf); err != nil {
		if !errors.Is(err, ErrBlobNotFound) {
			m.logger.Error("failed to read cached questions", "key", key, "error", err)
		}
		return nil
	}
	var c cachedQuestions
	if err := json.Unmarshal(buf.Bytes(), &c); err != nil {
		m.logger.Warn("discarding unreadable cached questions", "key", key, "error", err)
		return nil
	}
	return &c
}

func (m *ScreeningManager) writeCachedQuestions(ctx context.Context, key string, data json.RawMessage) {
	b, err := json.Marshal(cachedQuestions{CachedAt: m.clock.Now(), Data: data})
	if err != nil {
		m.logger.Error("failed to encode questions for cache", "error", err)
		return
	}
	if err := m.blobs.PutBlob(ctx, key, bytes.NewReader(b), int64(len(b))); err != nil {
		m.logger.Error("failed to cache questions", "key", key, "error", err)
	}
}
