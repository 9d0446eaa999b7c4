package offline

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultCountry is used when a lookup names no country.
	DefaultCountry = "India"

	// DirectoryUpdateInterval is how old a downloaded directory may get
	// before CheckForUpdates asks for a refresh.
	DirectoryUpdateInterval = 30 * 24 * time.Hour

	emergencyMaxPriority = 5
	urgentMaxPriority    = 3
	fallbackSize         = 5
)

//go:embed data/helplines.json
var bundledHelplinesJSON []byte

type bundledDirectory struct {
	India         []*HelplineEntry `json:"india"`
	International []*HelplineEntry `json:"international"`
}

var loadBundled = sync.OnceValues(func() (bundledDirectory, error) {
	var d bundledDirectory
	if err := json.Unmarshal(bundledHelplinesJSON, &d); err != nil {
		return d, fmt.Errorf("decoding bundled helplines: %w", err)
	}
	return d, nil
})

func cloneEntries(entries []*HelplineEntry) []*HelplineEntry {
	out := make([]*HelplineEntry, len(entries))
	for i, e := range entries {
		c := *e
		out[i] = &c
	}
	return out
}

// BundledHelplines returns a copy of the directory shipped with the binary:
// Indian helplines first, then international ones.
func BundledHelplines() []*HelplineEntry {
	d, err := loadBundled()
	if err != nil {
		return nil
	}
	return append(cloneEntries(d.India), cloneEntries(d.International)...)
}

// fallbackHelplines is served when the store cannot be read.
func fallbackHelplines(country string) []*HelplineEntry {
	d, err := loadBundled()
	if err != nil {
		return nil
	}
	if country == DefaultCountry {
		return cloneEntries(d.India[:min(fallbackSize, len(d.India))])
	}
	return cloneEntries(d.International)
}

// HelplineDirectory serves helpline lookups from the local store. Reads
// never touch the network; only UpdateDirectory does.
type HelplineDirectory struct {
	database Database
	api      API
	conn     Connectivity
	clock    Clock
	logger   Logger

	mu          sync.Mutex
	initialized bool
}

// NewHelplineDirectory creates a HelplineDirectory with the provided dependencies.
func NewHelplineDirectory(database Database, api API, conn Connectivity, clock Clock, logger Logger) *HelplineDirectory {
	return &HelplineDirectory{
		database: database,
		api:      api,
		conn:     conn,
		clock:    clock,
		logger:   logger,
	}
}

// Initialize stores the bundled directory unless a downloaded one is already
// present. It runs once per HelplineDirectory; a failed attempt is retried
// by the next call.
func (h *HelplineDirectory) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialized {
		return nil
	}

	existing, err := h.database.FindAllHelplines(ctx)
	if err != nil {
		h.logger.Error("failed to read helpline directory", "error", err)
		return fmt.Errorf("reading helpline directory: %w", err)
	}
	for _, e := range existing {
		if e.Source == SourceRemote {
			h.initialized = true
			h.logger.Debug("helpline directory already downloaded", "entries", len(existing))
			return nil
		}
	}

	if _, err := loadBundled(); err != nil {
		return err
	}
	entries := BundledHelplines()
	now := h.clock.Now()
	for _, e := range entries {
		e.Source = SourceBundled
		e.CachedAt = now
	}
	if err := h.database.ReplaceHelplines(ctx, entries); err != nil {
		h.logger.Error("failed to initialize helpline directory", "error", err)
		return fmt.Errorf("seeding helpline directory: %w", err)
	}

	h.initialized = true
	h.logger.Info("helpline directory initialized", "entries", len(entries))
	return nil
}

func (h *HelplineDirectory) ensureInitialized(ctx context.Context) {
	// Reads fall back to whatever is stored, or to the bundled set.
	_ = h.Initialize(ctx)
}

func filterState(entries []*HelplineEntry, state string) []*HelplineEntry {
	var out []*HelplineEntry
	for _, e := range entries {
		if e.State == state {
			out = append(out, e)
		}
	}
	return out
}

// GetByLocation returns a country's helplines ordered by priority. With a
// state set, only that state's helplines are returned, or the national ones
// when the state has none.
func (h *HelplineDirectory) GetByLocation(ctx context.Context, country, state string) []*HelplineEntry {
	h.ensureInitialized(ctx)
	if country == "" {
		country = DefaultCountry
	}

	all, err := h.database.FindHelplinesByCountry(ctx, country)
	if err != nil {
		h.logger.Error("failed to get helplines by location", "country", country, "error", err)
		return fallbackHelplines(country)
	}
	if state == "" {
		return all
	}
	if local := filterState(all, state); len(local) > 0 {
		return local
	}
	return filterState(all, NationalState)
}

// GetByCategory returns helplines of a category ordered by priority.
func (h *HelplineDirectory) GetByCategory(ctx context.Context, category HelplineCategory) []*HelplineEntry {
	h.ensureInitialized(ctx)

	entries, err := h.database.FindHelplinesByCategory(ctx, category)
	if err != nil {
		h.logger.Error("failed to get helplines by category", "category", category, "error", err)
		return fallbackHelplines(DefaultCountry)
	}
	return entries
}

// GetEmergencyHelplines returns a country's crisis helplines with priority
// 5 or better, most urgent first.
func (h *HelplineDirectory) GetEmergencyHelplines(ctx context.Context, country string) []*HelplineEntry {
	h.ensureInitialized(ctx)
	if country == "" {
		country = DefaultCountry
	}

	all, err := h.database.FindHelplinesByCountry(ctx, country)
	if err != nil {
		h.logger.Error("failed to get emergency helplines", "country", country, "error", err)
		all = fallbackHelplines(country)
	}

	var out []*HelplineEntry
	for _, e := range all {
		if e.Category == CategoryCrisis && e.Priority <= emergencyMaxPriority {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Search returns a country's helplines whose name, description, services or
// languages contain query, ignoring case. An empty query returns them all.
func (h *HelplineDirectory) Search(ctx context.Context, query, country string) []*HelplineEntry {
	h.ensureInitialized(ctx)
	if country == "" {
		country = DefaultCountry
	}

	all, err := h.database.FindHelplinesByCountry(ctx, country)
	if err != nil {
		h.logger.Error("failed to search helplines", "country", country, "error", err)
		return nil
	}
	if query == "" {
		return all
	}

	q := strings.ToLower(query)
	var out []*HelplineEntry
	for _, e := range all {
		if containsFold(e.Name, q) || containsFold(e.Description, q) ||
			anyContainsFold(e.Services, q) || anyContainsFold(e.Languages, q) {
			out = append(out, e)
		}
	}
	return out
}

// GetAll returns the whole directory ordered by priority.
func (h *HelplineDirectory) GetAll(ctx context.Context) []*HelplineEntry {
	h.ensureInitialized(ctx)

	entries, err := h.database.FindAllHelplines(ctx)
	if err != nil {
		h.logger.Error("failed to get all helplines", "error", err)
		return BundledHelplines()
	}
	return entries
}

// HelplineStats summarizes the directory.
type HelplineStats struct {
	Total        int                      `json:"total"`
	ByCountry    map[string]int           `json:"byCountry"`
	ByCategory   map[HelplineCategory]int `json:"byCategory"`
	ByLanguage   map[string]int           `json:"byLanguage"`
	Available247 int                      `json:"available24x7"`
	Government   int                      `json:"government"`
	Private      int                      `json:"private"`
}

// Statistics counts directory entries. A read failure yields empty stats.
func (h *HelplineDirectory) Statistics(ctx context.Context) HelplineStats {
	h.ensureInitialized(ctx)

	st := HelplineStats{
		ByCountry:  make(map[string]int),
		ByCategory: make(map[HelplineCategory]int),
		ByLanguage: make(map[string]int),
	}
	entries, err := h.database.FindAllHelplines(ctx)
	if err != nil {
		h.logger.Error("failed to get helpline statistics", "error", err)
		return st
	}

	st.Total = len(entries)
	for _, e := range entries {
		st.ByCountry[e.Country]++
		st.ByCategory[e.Category]++
		for _, lang := range e.Languages {
			st.ByLanguage[lang]++
		}
		if e.Available == "24/7" {
			st.Available247++
		}
		if e.IsGovt {
			st.Government++
		} else {
			st.Private++
		}
	}
	return st
}

// HelplineView is an entry prepared for display.
type HelplineView struct {
	HelplineEntry
	FormattedPhone string   `json:"formattedPhone"`
	IsEmergency    bool     `json:"isEmergency"`
	Tags           []string `json:"tags"`
}

// Format prepares e for display.
func Format(e *HelplineEntry) HelplineView {
	availability := "limited-hours"
	if e.Available == "24/7" {
		availability = "24x7"
	}
	ownership := "private"
	if e.IsGovt {
		ownership = "government"
	}

	tags := []string{string(e.Category), availability, ownership}
	for _, lang := range e.Languages {
		tags = append(tags, strings.ToLower(lang))
	}

	return HelplineView{
		HelplineEntry:  *e,
		FormattedPhone: FormatPhone(e.Phone),
		IsEmergency:    e.Category == CategoryCrisis && e.Priority <= urgentMaxPriority,
		Tags:           tags,
	}
}

// FormatPhone renders Indian numbers with the +91 country code.
func FormatPhone(phone string) string {
	switch {
	case phone == OnlineOnlyPhone:
		return phone
	case strings.HasPrefix(phone, "91-"):
		return "+91 " + phone[len("91-"):]
	case strings.HasPrefix(phone, "0"):
		return "+91 " + phone[1:]
	default:
		return phone
	}
}

// UpdateStatus reports the age of the downloaded directory.
type UpdateStatus struct {
	NeedsUpdate     bool       `json:"needsUpdate"`
	LastUpdate      *time.Time `json:"lastUpdate,omitempty"`
	DaysSinceUpdate *int       `json:"daysSinceUpdate,omitempty"`
}

// CheckForUpdates reports whether the directory should be downloaded again.
// A directory that was never downloaded always needs an update.
func (h *HelplineDirectory) CheckForUpdates(ctx context.Context) (UpdateStatus, error) {
	entries, err := h.database.FindAllHelplines(ctx)
	if err != nil {
		return UpdateStatus{}, fmt.Errorf("reading helpline directory: %w", err)
	}

	var last time.Time
	for _, e := range entries {
		if e.Source == SourceRemote && e.CachedAt.After(last) {
			last = e.CachedAt
		}
	}
	if last.IsZero() {
		return UpdateStatus{NeedsUpdate: true}, nil
	}

	age := h.clock.Now().Sub(last)
	days := int(age / (24 * time.Hour))
	return UpdateStatus{
		NeedsUpdate:     age > DirectoryUpdateInterval,
		LastUpdate:      &last,
		DaysSinceUpdate: &days,
	}, nil
}

// UpdateResult reports the outcome of UpdateDirectory.
type UpdateResult struct {
	Updated bool   `json:"success"`
	Entries int    `json:"entries,omitempty"`
	Skipped string `json:"reason,omitempty"`
}

type helplinesResponse struct {
	Helplines []*HelplineEntry `json:"helplines"`
}

// UpdateDirectory downloads the directory and replaces the local copy
// wholesale. It is skipped while offline. On any failure the local
// directory is left untouched.
func (h *HelplineDirectory) UpdateDirectory(ctx context.Context) (UpdateResult, error) {
	if !h.conn.IsOnline() {
		return UpdateResult{Skipped: SkipOffline}, nil
	}

	var resp helplinesResponse
	if err := h.api.Do(ctx, http.MethodGet, EndpointHelplines, nil, &resp); err != nil {
		h.logger.Warn("failed to download helpline directory", "error", err)
		return UpdateResult{}, fmt.Errorf("downloading helpline directory: %w", err)
	}

	now := h.clock.Now()
	entries := make([]*HelplineEntry, 0, len(resp.Helplines))
	for _, e := range resp.Helplines {
		if err := validateHelpline(e); err != nil {
			h.logger.Warn("skipping invalid helpline", "error", err)
			continue
		}
		e.Source = SourceRemote
		e.CachedAt = now
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return UpdateResult{}, errors.New("downloaded helpline directory is empty")
	}

	if err := h.database.ReplaceHelplines(ctx, entries); err != nil {
		h.logger.Error("failed to store helpline directory", "error", err)
		return UpdateResult{}, fmt.Errorf("storing helpline directory: %w", err)
	}

	h.mu.Lock()
	h.initialized = true
	h.mu.Unlock()

	h.logger.Info("helpline directory updated", "entries", len(entries))
	return UpdateResult{Updated: true, Entries: len(entries)}, nil
}

func validateHelpline(e *HelplineEntry) error {
	if e == nil || e.ID == "" {
		return errors.New("helpline has no id")
	}
	if e.Name == "" || e.Phone == "" || e.Country == "" {
		return fmt.Errorf("helpline %s: missing name, phone or country", e.ID)
	}
	if _, err := ParseHelplineCategory(string(e.Category)); err != nil {
		return fmt.Errorf("helpline %s: %w", e.ID, err)
	}
	if e.State == "" {
		e.State = NationalState
	}
	return nil
}
