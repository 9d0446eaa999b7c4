package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultNetworkTimeout     = 5 * time.Second
	DefaultResourceMaxAge     = 7 * 24 * time.Hour
	DefaultMediaMaxAge        = 30 * 24 * time.Hour
	DefaultPreloadConcurrency = 4
)

// ResourceCategories are the resource hub categories offered for preloading.
var ResourceCategories = []string{
	"anxiety",
	"depression",
	"stress",
	"meditation",
	"breathing",
	"sleep",
	"crisis",
	"support",
}

// endOfTime is a cutoff later than any stored timestamp.
var endOfTime = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// ResourceOptions tunes a ResourceManager. Zero values select defaults.
type ResourceOptions struct {
	// CacheFirst serves cached resources without asking the network unless
	// the caller forces a refresh.
	CacheFirst         bool
	NetworkTimeout     time.Duration
	ResourceMaxAge     time.Duration
	MediaMaxAge        time.Duration
	PreloadConcurrency int
}

// ResourceManager caches resource hub metadata in the database and media
// payloads in the blob store.
type ResourceManager struct {
	database Database
	blobs    BlobStore
	api      API
	conn     Connectivity
	clock    Clock
	logger   Logger
	opts     ResourceOptions

	flight singleflight.Group
}

// NewResourceManager creates a ResourceManager with the provided dependencies.
func NewResourceManager(database Database, blobs BlobStore, api API, conn Connectivity, clock Clock, logger Logger, opts ResourceOptions) *ResourceManager {
	if opts.NetworkTimeout <= 0 {
		opts.NetworkTimeout = DefaultNetworkTimeout
	}
	if opts.ResourceMaxAge <= 0 {
		opts.ResourceMaxAge = DefaultResourceMaxAge
	}
	if opts.MediaMaxAge <= 0 {
		opts.MediaMaxAge = DefaultMediaMaxAge
	}
	if opts.PreloadConcurrency <= 0 {
		opts.PreloadConcurrency = DefaultPreloadConcurrency
	}
	return &ResourceManager{
		database: database,
		blobs:    blobs,
		api:      api,
		conn:     conn,
		clock:    clock,
		logger:   logger,
		opts:     opts,
	}
}

// ResourceList is a set of resources and where they were read from.
type ResourceList struct {
	Resources []*CachedResource `json:"data"`
	Source    string            `json:"source"`
	Cached    bool              `json:"cached"`
}

type resourcesResponse struct {
	Resources []json.RawMessage `json:"resources"`
}

// GetResources lists resources in category, or all resources when category
// is empty. When online the network is tried first (bounded by the network
// timeout) unless the manager is cache-first and forceNetwork is false. The
// local cache is the fallback.
func (m *ResourceManager) GetResources(ctx context.Context, category string, forceNetwork bool) (*ResourceList, error) {
	if m.conn.IsOnline() && (!m.opts.CacheFirst || forceNetwork) {
		tctx, cancel := context.WithTimeout(ctx, m.opts.NetworkTimeout)
		resources, err := m.fetchResources(tctx, category)
		cancel()
		if err == nil {
			return &ResourceList{Resources: resources, Source: SourceNetwork, Cached: true}, nil
		}
		m.logger.Warn("network request failed, falling back to cache", "category", category, "error", err)
	}

	cached, err := m.database.FindResources(ctx, category)
	if err != nil {
		m.logger.Error("failed to read cached resources", "category", category, "error", err)
		cached = nil
	}
	if len(cached) > 0 {
		return &ResourceList{Resources: cached, Source: SourceCache, Cached: true}, nil
	}

	if !m.conn.IsOnline() {
		return nil, ErrNoOfflineData
	}

	resources, err := m.fetchResources(ctx, category)
	if err != nil {
		m.logger.Warn("resources unavailable online and offline", "category", category, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrResourcesUnavailable, err)
	}
	return &ResourceList{Resources: resources, Source: SourceNetwork, Cached: true}, nil
}

func (m *ResourceManager) fetchResources(ctx context.Context, category string) ([]*CachedResource, error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}
	var resp resourcesResponse
	if err := m.api.Do(ctx, http.MethodGet, withQuery(EndpointResources, params), nil, &resp); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	resources := make([]*CachedResource, 0, len(resp.Resources))
	for _, raw := range resp.Resources {
		r, err := newCachedResource(raw, now)
		if err != nil {
			m.logger.Warn("skipping malformed resource", "error", err)
			continue
		}
		resources = append(resources, r)
	}
	m.cacheResourceList(ctx, resources)
	return resources, nil
}

// cacheResourceList stores every resource, logging individual failures.
func (m *ResourceManager) cacheResourceList(ctx context.Context, resources []*CachedResource) {
	stored := 0
	for _, r := range resources {
		if err := m.database.PutResource(ctx, r); err != nil {
			m.logger.Error("failed to cache resource", "id", r.ID, "error", err)
			continue
		}
		stored++
	}
	m.logger.Debug("cached resources", "count", stored)
}

func newCachedResource(raw json.RawMessage, now time.Time) (*CachedResource, error) {
	var d ResourceDetails
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decoding resource: %w", err)
	}
	if d.ID == "" {
		return nil, errors.New("resource has no id")
	}
	t, err := ParseResourceType(d.Type)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", d.ID, err)
	}
	return &CachedResource{
		ID:           d.ID,
		Category:     d.Category,
		Type:         t,
		Payload:      raw,
		Cached:       true,
		CachedAt:     now,
		LastAccessed: now,
	}, nil
}

// ResourceResult is a single resource and where it was read from.
type ResourceResult struct {
	Resource *CachedResource `json:"data"`
	Source   string          `json:"source"`
}

// GetResource returns one resource. The cached copy is refreshed from the
// network when online; without a cached copy the network is the only source.
// With cacheMedia set, the resource's media is downloaded into the blob store.
func (m *ResourceManager) GetResource(ctx context.Context, id string, cacheMedia bool) (*ResourceResult, error) {
	now := m.clock.Now()
	if err := m.database.TouchResource(ctx, id, now); err != nil {
		m.logger.Error("failed to update resource access time", "id", id, "error", err)
	}

	resource, err := m.database.FindResource(ctx, id)
	if err != nil {
		m.logger.Error("failed to read cached resource", "id", id, "error", err)
		resource = nil
	}
	source := SourceCache

	if resource == nil || m.conn.IsOnline() {
		fresh, err := m.fetchResource(ctx, id)
		switch {
		case err == nil:
			resource = fresh
			source = SourceNetwork
		case resource == nil:
			return nil, fmt.Errorf("%w: %s", ErrResourceNotAvailable, id)
		default:
			m.logger.Warn("using cached resource due to network error", "id", id, "error", err)
		}
	}

	if cacheMedia {
		if _, err := m.CacheResourceMedia(ctx, resource); err != nil {
			m.logger.Warn("some media could not be cached", "id", id, "error", err)
		}
	}

	return &ResourceResult{Resource: resource, Source: source}, nil
}

func (m *ResourceManager) fetchResource(ctx context.Context, id string) (*CachedResource, error) {
	var raw json.RawMessage
	if err := m.api.Do(ctx, http.MethodGet, EndpointResources+"/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, err
	}
	r, err := newCachedResource(raw, m.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := m.database.PutResource(ctx, r); err != nil {
		m.logger.Error("failed to cache resource", "id", r.ID, "error", err)
	}
	return r, nil
}

// CacheResourceMedia downloads the video, audio and thumbnail of resource
// into the blob store and returns how many were newly stored. Concurrent
// calls for the same URL share one download. Failures are joined into the
// returned error; they do not stop the remaining downloads.
func (m *ResourceManager) CacheResourceMedia(ctx context.Context, resource *CachedResource) (int, error) {
	if resource == nil {
		return 0, nil
	}
	details := resource.Details()

	var (
		stored int
		errs   []error
	)
	for _, link := range details.MediaLinks() {
		// Waiters share the leader's result; only the leader counts the download.
		var leader bool
		v, err, _ := m.flight.Do(link.URL, func() (any, error) {
			leader = true
			return m.cacheMedia(ctx, resource.ID, details, link)
		})
		if err != nil {
			m.logger.Error("failed to cache media", "type", link.Type, "url", link.URL, "error", err)
			errs = append(errs, fmt.Errorf("%s %s: %w", link.Type, link.URL, err))
			continue
		}
		if downloaded, _ := v.(bool); downloaded && leader {
			stored++
		}
	}
	return stored, errors.Join(errs...)
}

// cacheMedia stores one media file. It reports false when the file was
// already cached.
func (m *ResourceManager) cacheMedia(ctx context.Context, resourceID string, details ResourceDetails, link MediaLink) (bool, error) {
	cached, err := m.IsCached(ctx, link.URL)
	if err != nil {
		return false, err
	}
	if cached {
		return false, nil
	}

	m.logger.Info("caching media", "type", link.Type, "url", link.URL)

	var buf bytes.Buffer
	size, err := m.api.Fetch(ctx, link.URL, &buf)
	if err != nil {
		return false, fmt.Errorf("downloading: %w", err)
	}
	if err := m.blobs.PutBlob(ctx, link.URL, &buf, size); err != nil {
		return false, fmt.Errorf("storing blob: %w", err)
	}

	meta := &CachedMedia{
		URL:        link.URL,
		Type:       link.Type,
		ResourceID: resourceID,
		Title:      details.Title,
		Duration:   string(details.Duration),
		Size:       size,
		Cached:     true,
		CachedAt:   m.clock.Now(),
	}
	if err := m.database.PutMedia(ctx, meta); err != nil {
		if delErr := m.blobs.DeleteBlob(ctx, link.URL); delErr != nil {
			m.logger.Error("failed to remove orphaned blob", "url", link.URL, "error", delErr)
		}
		return false, fmt.Errorf("storing media metadata: %w", err)
	}

	m.logger.Info("cached media", "type", link.Type, "url", link.URL, "size", size)
	return true, nil
}

// IsCached reports whether both the metadata and the blob of a media URL are present.
func (m *ResourceManager) IsCached(ctx context.Context, mediaURL string) (bool, error) {
	meta, err := m.database.FindMedia(ctx, mediaURL)
	if err != nil {
		return false, fmt.Errorf("reading media metadata: %w", err)
	}
	if meta == nil {
		return false, nil
	}
	ok, err := m.blobs.HasBlob(ctx, mediaURL)
	if err != nil {
		return false, fmt.Errorf("checking blob: %w", err)
	}
	return ok, nil
}

// GetCachedMediaURL returns a local URL for cached media, or originalURL
// when the media is not cached or cannot be read.
func (m *ResourceManager) GetCachedMediaURL(ctx context.Context, originalURL string) string {
	cached, err := m.IsCached(ctx, originalURL)
	if err != nil {
		m.logger.Error("failed to look up cached media", "url", originalURL, "error", err)
		return originalURL
	}
	if !cached {
		return originalURL
	}
	local, err := m.blobs.ObjectURL(ctx, originalURL)
	if err != nil {
		m.logger.Error("failed to resolve cached media url", "url", originalURL, "error", err)
		return originalURL
	}
	m.logger.Debug("using cached media", "url", originalURL)
	return local
}

// PreloadResult summarizes a preload.
type PreloadResult struct {
	TotalCached   int  `json:"totalCached"`
	MediaIncluded bool `json:"mediaIncluded"`
	Failed        int  `json:"failedCategories"`
}

// PreloadResources fetches each category from the network and optionally
// its media. Categories are loaded concurrently; a failing category is
// logged and counted without affecting the others.
func (m *ResourceManager) PreloadResources(ctx context.Context, categories []string, includeMedia bool) PreloadResult {
	m.logger.Info("starting resource preload", "categories", len(categories), "media", includeMedia)

	var (
		mu  sync.Mutex
		res = PreloadResult{MediaIncluded: includeMedia}
		g   errgroup.Group
	)
	g.SetLimit(m.opts.PreloadConcurrency)

	for _, category := range categories {
		category := category
		g.Go(func() error {
			list, err := m.GetResources(ctx, category, true)
			if err != nil {
				m.logger.Error("failed to preload category", "category", category, "error", err)
				mu.Lock()
				res.Failed++
				mu.Unlock()
				return nil
			}
			if includeMedia {
				for _, r := range list.Resources {
					if _, err := m.CacheResourceMedia(ctx, r); err != nil {
						m.logger.Warn("media preload incomplete", "resource", r.ID, "error", err)
					}
				}
			}
			mu.Lock()
			res.TotalCached += len(list.Resources)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info("preloaded resources", "total", res.TotalCached, "failed", res.Failed)
	return res
}

// SearchCached returns cached resources in category whose title,
// description or tags contain query, ignoring case. An empty query returns
// every cached resource in category.
func (m *ResourceManager) SearchCached(ctx context.Context, query, category string) ([]*CachedResource, error) {
	cached, err := m.database.FindResources(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("reading cached resources: %w", err)
	}
	if query == "" {
		return cached, nil
	}

	q := strings.ToLower(query)
	var out []*CachedResource
	for _, r := range cached {
		d := r.Details()
		if containsFold(d.Title, q) || containsFold(d.Description, q) || anyContainsFold(d.Tags, q) {
			out = append(out, r)
		}
	}
	return out, nil
}

// containsFold reports whether s contains the lowercased needle.
func containsFold(s, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}

func anyContainsFold(values []string, lowerNeedle string) bool {
	for _, v := range values {
		if containsFold(v, lowerNeedle) {
			return true
		}
	}
	return false
}

// StorageStats describes the resource cache.
type StorageStats struct {
	TotalResources int                  `json:"totalResources"`
	ByCategory     map[string]int       `json:"byCategory"`
	ByType         map[ResourceType]int `json:"byType"`
	LastUpdated    time.Time            `json:"lastUpdated"`
	MediaFiles     int                  `json:"mediaFiles"`
	MediaBytes     int64                `json:"mediaBytes"`
}

// StorageStats counts cached resources and media. Read failures yield zero counts.
func (m *ResourceManager) StorageStats(ctx context.Context) StorageStats {
	st := StorageStats{
		ByCategory: make(map[string]int),
		ByType:     make(map[ResourceType]int),
	}

	resources, err := m.database.FindResources(ctx, "")
	if err != nil {
		m.logger.Error("failed to read storage stats", "error", err)
		return st
	}
	st.TotalResources = len(resources)
	for _, r := range resources {
		st.ByCategory[r.Category]++
		st.ByType[r.Type]++
		if r.CachedAt.After(st.LastUpdated) {
			st.LastUpdated = r.CachedAt
		}
	}

	media, err := m.database.FindMediaCachedBefore(ctx, endOfTime)
	if err != nil {
		m.logger.Error("failed to read media stats", "error", err)
		return st
	}
	st.MediaFiles = len(media)
	for _, md := range media {
		st.MediaBytes += md.Size
	}
	return st
}

// CleanOldCache removes resources not accessed within maxAge. A
// non-positive maxAge uses the configured resource max age.
func (m *ResourceManager) CleanOldCache(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = m.opts.ResourceMaxAge
	}
	return m.deleteResourcesBefore(ctx, m.clock.Now().Add(-maxAge))
}

func (m *ResourceManager) deleteResourcesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := m.database.DeleteResourcesAccessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning resource cache: %w", err)
	}
	if n > 0 {
		m.logger.Info("cleaned old resources", "count", n)
	}
	return n, nil
}

// CleanOldMedia removes media cached longer ago than maxAge, blob first. A
// non-positive maxAge uses the configured media max age.
func (m *ResourceManager) CleanOldMedia(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = m.opts.MediaMaxAge
	}
	return m.deleteMediaBefore(ctx, m.clock.Now().Add(-maxAge))
}

func (m *ResourceManager) deleteMediaBefore(ctx context.Context, cutoff time.Time) (int, error) {
	old, err := m.database.FindMediaCachedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing old media: %w", err)
	}

	removed := 0
	for _, md := range old {
		if err := m.blobs.DeleteBlob(ctx, md.URL); err != nil {
			m.logger.Error("failed to delete media blob", "url", md.URL, "error", err)
			continue
		}
		if err := m.database.DeleteMedia(ctx, md.URL); err != nil {
			m.logger.Error("failed to delete media metadata", "url", md.URL, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("cleaned old media", "count", removed)
	}
	return removed, nil
}

// ClearResult counts what ClearCache removed.
type ClearResult struct {
	Resources int64 `json:"resources"`
	Media     int   `json:"media"`
}

// ClearCache removes resources not accessed within maxAge and media cached
// longer ago than maxAge. A non-positive maxAge applies the configured
// defaults: the resource max age and the media max age respectively.
func (m *ResourceManager) ClearCache(ctx context.Context, maxAge time.Duration) (ClearResult, error) {
	var res ClearResult

	n, err := m.CleanOldCache(ctx, maxAge)
	if err != nil {
		return res, err
	}
	res.Resources = n

	media, err := m.CleanOldMedia(ctx, maxAge)
	if err != nil {
		return res, err
	}
	res.Media = media
	return res, nil
}

// ClearAll removes every cached resource and media file.
func (m *ResourceManager) ClearAll(ctx context.Context) (ClearResult, error) {
	var res ClearResult

	n, err := m.deleteResourcesBefore(ctx, endOfTime)
	if err != nil {
		return res, err
	}
	res.Resources = n

	media, err := m.deleteMediaBefore(ctx, endOfTime)
	if err != nil {
		return res, err
	}
	res.Media = media
	return res, nil
}
