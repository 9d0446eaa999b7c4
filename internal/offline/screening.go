package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultSyncInterval is how often pending screenings are retried while online.
	DefaultSyncInterval = 5 * time.Minute
	// DefaultReconnectDelay is the wait between regaining connectivity and syncing.
	DefaultReconnectDelay = time.Second

	// screeningPriority ranks screening submissions above ordinary queue items.
	screeningPriority = 1
)

// ScreeningOptions tunes a ScreeningManager. Zero values select defaults.
type ScreeningOptions struct {
	SyncInterval   time.Duration
	ReconnectDelay time.Duration
	QuestionsTTL   time.Duration
	Client         ClientMetadata
}

// ScreeningManager submits screenings online when possible and keeps them
// durable locally when not. Pending submissions are replayed by Drain.
type ScreeningManager struct {
	emitter

	database Database
	blobs    BlobStore
	queue    *SyncQueue
	api      API
	conn     Connectivity
	clock    Clock
	idgen    IDGenerator
	logger   Logger
	opts     ScreeningOptions

	inProgress atomic.Bool

	mu             sync.Mutex
	lastAttempt    *time.Time
	nextScheduled  *time.Time
	reconnectTimer *time.Timer
	stop           context.CancelFunc
	wg             sync.WaitGroup
}

// NewScreeningManager creates a ScreeningManager with the provided dependencies.
func NewScreeningManager(database Database, blobs BlobStore, queue *SyncQueue, api API, conn Connectivity, clock Clock, idgen IDGenerator, logger Logger, opts ScreeningOptions) *ScreeningManager {
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.QuestionsTTL <= 0 {
		opts.QuestionsTTL = DefaultQuestionsTTL
	}
	if opts.Client.FormVersion == "" {
		opts.Client.FormVersion = FormVersion
	}
	return &ScreeningManager{
		emitter:  emitter{logger: logger},
		database: database,
		blobs:    blobs,
		queue:    queue,
		api:      api,
		conn:     conn,
		clock:    clock,
		idgen:    idgen,
		logger:   logger,
		opts:     opts,
	}
}

// SubmitResult reports how a screening was accepted.
type SubmitResult struct {
	ID       string          `json:"id"`
	Offline  bool            `json:"offline"`
	Response json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message"`
}

// submitRequest is the body posted to the screening endpoint.
type submitRequest struct {
	ClientID          string          `json:"clientId,omitempty"`
	Type              string          `json:"type,omitempty"`
	Answers           map[string]any  `json:"answers"`
	Score             *int            `json:"score,omitempty"`
	Interpretation    string          `json:"interpretation,omitempty"`
	UserID            string          `json:"userId"`
	Timestamp         int64           `json:"timestamp"`
	Metadata          *ClientMetadata `json:"metadata,omitempty"`
	OfflineMode       bool            `json:"offlineMode,omitempty"`
	SyncedOffline     bool            `json:"syncedOffline,omitempty"`
	OriginalTimestamp int64           `json:"originalTimestamp,omitempty"`
}

func requestFor(sub *ScreeningSubmission) submitRequest {
	md := sub.Metadata
	return submitRequest{
		ClientID:       sub.ID,
		Type:           sub.Type,
		Answers:        sub.Answers,
		Score:          sub.Score,
		Interpretation: sub.Interpretation,
		UserID:         sub.UserID,
		Timestamp:      sub.Timestamp,
		Metadata:       &md,
	}
}

func (m *ScreeningManager) newSubmission(s Screening, userID string, at time.Time, status SubmissionStatus) *ScreeningSubmission {
	return &ScreeningSubmission{
		ID:             m.idgen.New(),
		Type:           s.Type,
		Answers:        s.Answers,
		Score:          s.Score,
		Interpretation: s.Interpretation,
		UserID:         userID,
		Status:         status,
		Timestamp:      unixMilli(at),
		Metadata:       m.opts.Client,
	}
}

// Submit sends a screening to the server, or stores it for later sync when
// the server cannot be reached. Only a failure to store it locally on the
// offline path is reported as an error.
func (m *ScreeningManager) Submit(ctx context.Context, s Screening, userID string) (*SubmitResult, error) {
	if userID == "" {
		userID = AnonymousUser
	}

	if !m.conn.IsOnline() {
		return m.saveOffline(ctx, s, userID)
	}

	sub := m.newSubmission(s, userID, m.clock.Now(), StatusSynced)
	req := requestFor(sub)
	req.Metadata = nil

	var resp json.RawMessage
	if err := m.api.Do(ctx, http.MethodPost, EndpointScreeningSubmit, req, &resp); err != nil {
		m.logger.Warn("online submission failed, saving offline", "error", err)
		return m.saveOffline(ctx, s, userID)
	}

	syncedAt := unixMilli(m.clock.Now())
	sub.ServerResponse = resp
	sub.SyncedAt = &syncedAt
	if err := m.database.InsertSubmission(ctx, sub); err != nil {
		// The server has the record; only the local history copy is lost.
		m.logger.Error("failed to keep local copy of submitted screening", submissionFields(sub, "error", err)...)
	}

	m.logger.Info("screening submitted online", submissionFields(sub)...)
	m.emit(EventScreeningSubmitted, map[string]any{"id": sub.ID, "offline": false})

	return &SubmitResult{
		ID:       sub.ID,
		Offline:  false,
		Response: resp,
		Message:  "Screening submitted successfully",
	}, nil
}

func (m *ScreeningManager) saveOffline(ctx context.Context, s Screening, userID string) (*SubmitResult, error) {
	sub := m.newSubmission(s, userID, m.clock.Now(), StatusPending)

	if err := m.database.InsertSubmission(ctx, sub); err != nil {
		m.logger.Error("failed to save screening offline", submissionFields(sub, "error", err)...)
		return nil, fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}

	req := requestFor(sub)
	req.OfflineMode = true
	if _, err := m.queue.enqueue(ctx, http.MethodPost, EndpointScreeningSubmit, req, screeningPriority, sub.ID); err != nil {
		// The pending record alone is enough for Drain to find it.
		m.logger.Error("failed to enqueue offline screening", submissionFields(sub, "error", err)...)
	}

	m.logger.Info("screening saved offline", submissionFields(sub)...)
	m.emit(EventScreeningSaved, map[string]any{"id": sub.ID, "offline": true})

	return &SubmitResult{
		ID:      sub.ID,
		Offline: true,
		Message: "Screening saved offline. Will sync when online.",
	}, nil
}

// History is a user's screening history.
type History struct {
	Entries        []*ScreeningSubmission `json:"data"`
	HasOfflineData bool                   `json:"hasOfflineData"`
	OfflineOnly    bool                   `json:"offlineOnly,omitempty"`
}

type historyResponse struct {
	Screenings []*ScreeningSubmission `json:"screenings"`
}

// GetHistory returns local submissions merged with the server's history when
// the server is reachable. An empty userID returns every local submission.
func (m *ScreeningManager) GetHistory(ctx context.Context, userID string) *History {
	local, err := m.database.FindSubmissionsByUser(ctx, userID)
	if err != nil {
		m.logger.Error("failed to read local screening history", "error", err)
		local = nil
	}

	if m.conn.IsOnline() {
		params := url.Values{}
		if userID != "" {
			params.Set("userId", userID)
		}
		var resp historyResponse
		err := m.api.Do(ctx, http.MethodGet, withQuery(EndpointScreeningHistory, params), nil, &resp)
		if err == nil {
			return &History{
				Entries:        mergeHistories(resp.Screenings, local),
				HasOfflineData: len(local) > 0,
			}
		}
		m.logger.Warn("failed to fetch online history", "error", err)
	}

	entries := make([]*ScreeningSubmission, len(local))
	copy(entries, local)
	sortNewestFirst(entries)
	return &History{
		Entries:        entries,
		HasOfflineData: len(local) > 0,
		OfflineOnly:    true,
	}
}

// mergeHistories appends every local record the server list does not
// already hold, then orders the result newest first. A local record matches
// a server record by (timestamp, user), by the client id the server echoes,
// or by the server id stored from the submit response. Unmatched records are
// flagged Offline unless the server acknowledged them.
func mergeHistories(server, local []*ScreeningSubmission) []*ScreeningSubmission {
	type key struct {
		ts     int64
		userID string
	}
	seen := make(map[key]bool, len(server))
	serverIDs := make(map[string]bool, len(server))
	clientIDs := make(map[string]bool, len(server))
	combined := make([]*ScreeningSubmission, 0, len(server)+len(local))
	for _, s := range server {
		if s == nil {
			continue
		}
		seen[key{s.Timestamp, s.UserID}] = true
		if s.ID != "" {
			serverIDs[s.ID] = true
		}
		if s.ClientID != "" {
			clientIDs[s.ClientID] = true
		}
		combined = append(combined, s)
	}
	for _, l := range local {
		if seen[key{l.Timestamp, l.UserID}] || clientIDs[l.ID] {
			continue
		}
		if id := serverRecordID(l.ServerResponse); id != "" && serverIDs[id] {
			continue
		}
		c := *l
		c.Offline = !(l.Status == StatusSynced && len(l.ServerResponse) > 0)
		combined = append(combined, &c)
	}
	sortNewestFirst(combined)
	return combined
}

// serverRecordID extracts the id the server assigned in a submit response.
func serverRecordID(resp json.RawMessage) string {
	if len(resp) == 0 {
		return ""
	}
	type withID struct {
		ID flexString `json:"id"`
	}
	var r struct {
		ID        flexString `json:"id"`
		Screening withID     `json:"screening"`
		Data      withID     `json:"data"`
	}
	if err := json.Unmarshal(resp, &r); err != nil {
		return ""
	}
	for _, id := range []flexString{r.Screening.ID, r.Data.ID, r.ID} {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

func sortNewestFirst(entries []*ScreeningSubmission) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
}

// Drain skip reasons.
const (
	SkipAlreadySyncing = "already_syncing"
	SkipOffline        = "offline"
)

// DrainResult summarizes a Drain pass.
type DrainResult struct {
	Synced  int    `json:"synced"`
	Failed  int    `json:"failed"`
	Total   int    `json:"total"`
	Skipped string `json:"skipped,omitempty"`
}

// Drain re-submits every pending screening. Only one Drain runs at a time;
// a concurrent call returns immediately with Skipped set. A failing record
// is counted and left pending without stopping the rest of the batch.
func (m *ScreeningManager) Drain(ctx context.Context) DrainResult {
	if !m.inProgress.CompareAndSwap(false, true) {
		return DrainResult{Skipped: SkipAlreadySyncing}
	}
	defer m.inProgress.Store(false)

	if !m.conn.IsOnline() {
		return DrainResult{Skipped: SkipOffline}
	}

	now := m.clock.Now()
	m.mu.Lock()
	m.lastAttempt = &now
	m.mu.Unlock()

	pending, err := m.database.FindSubmissionsByStatus(ctx, StatusPending)
	if err != nil {
		m.logger.Error("failed to load pending screenings", "error", err)
		return DrainResult{}
	}

	res := DrainResult{Total: len(pending)}
	if len(pending) == 0 {
		m.logger.Debug("no pending screenings to sync")
		return res
	}

	m.logger.Info("syncing pending screenings", "count", len(pending))
	for _, sub := range pending {
		if ctx.Err() != nil {
			res.Failed += res.Total - res.Synced - res.Failed
			break
		}
		if m.syncOne(ctx, sub) {
			res.Synced++
		} else {
			res.Failed++
		}
	}

	m.logger.Info("screening sync finished", "synced", res.Synced, "failed", res.Failed, "total", res.Total)
	m.emit(EventSyncCompleted, res)
	return res
}

func (m *ScreeningManager) syncOne(ctx context.Context, sub *ScreeningSubmission) bool {
	req := requestFor(sub)
	req.SyncedOffline = true
	req.OriginalTimestamp = sub.Timestamp

	link, err := m.database.FindQueueItemByRef(ctx, sub.ID)
	if err != nil {
		m.logger.Warn("failed to look up queue item for screening", "id", sub.ID, "error", err)
		link = nil
	}

	var resp json.RawMessage
	if sendErr := m.api.Do(ctx, http.MethodPost, EndpointScreeningSubmit, req, &resp); sendErr != nil {
		m.logger.Error("failed to sync screening", submissionFields(sub, "error", sendErr)...)
		if link != nil {
			item, err := m.queue.MarkFailureAndRetry(ctx, link.ID, sendErr)
			if err != nil {
				m.logger.Error("failed to record screening retry", "id", sub.ID, "error", err)
			} else if item.Exhausted() {
				m.logger.Warn("screening past its retry budget, still pending", "id", sub.ID, "retries", item.Retries)
			}
		}
		return false
	}

	syncedAt := unixMilli(m.clock.Now())
	sub.Status = StatusSynced
	sub.ServerResponse = resp
	sub.SyncedAt = &syncedAt
	if err := m.database.UpdateSubmission(ctx, sub); err != nil {
		m.logger.Error("failed to mark screening synced", "id", sub.ID, "error", err)
	}
	if link != nil {
		if err := m.queue.MarkSuccess(ctx, link.ID); err != nil {
			m.logger.Error("failed to remove synced screening from queue", "id", sub.ID, "error", err)
		}
	}

	m.logger.Debug("synced screening", "id", sub.ID)
	return true
}

// SyncStatus describes pending work and scheduling.
type SyncStatus struct {
	HasPendingData    bool       `json:"hasPendingData"`
	PendingCount      int        `json:"pendingCount"`
	InProgress        bool       `json:"syncInProgress"`
	LastSyncAttempt   *time.Time `json:"lastSyncAttempt,omitempty"`
	NextSyncScheduled *time.Time `json:"nextSyncScheduled,omitempty"`
}

// SyncStatus reports the number of pending screenings and sync timing.
func (m *ScreeningManager) SyncStatus(ctx context.Context) SyncStatus {
	var st SyncStatus
	pending, err := m.database.FindSubmissionsByStatus(ctx, StatusPending)
	if err != nil {
		m.logger.Error("failed to count pending screenings", "error", err)
	}
	st.PendingCount = len(pending)
	st.HasPendingData = st.PendingCount > 0
	st.InProgress = m.inProgress.Load()

	m.mu.Lock()
	st.LastSyncAttempt = m.lastAttempt
	st.NextSyncScheduled = m.nextScheduled
	m.mu.Unlock()
	return st
}

// Start schedules automatic syncing: shortly after each reconnect and on a
// fixed interval while online. It returns immediately; call Stop to end it.
func (m *ScreeningManager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.stop = cancel
	m.mu.Unlock()

	unsubscribe := m.conn.OnOnline(func() {
		m.logger.Info("back online, scheduling sync", "delay", m.opts.ReconnectDelay)
		m.scheduleReconnectSync(ctx)
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer unsubscribe()

		ticker := time.NewTicker(m.opts.SyncInterval)
		defer ticker.Stop()
		m.setNextScheduled(m.clock.Now().Add(m.opts.SyncInterval))

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.conn.IsOnline() && !m.inProgress.Load() {
					m.Drain(ctx)
				}
				m.setNextScheduled(m.clock.Now().Add(m.opts.SyncInterval))
			}
		}
	}()
}

// scheduleReconnectSync restarts the reconnect timer so a burst of
// connectivity flaps produces a single Drain.
func (m *ScreeningManager) scheduleReconnectSync(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectTimer = time.AfterFunc(m.opts.ReconnectDelay, func() {
		if ctx.Err() == nil {
			m.Drain(ctx)
		}
	})
}

func (m *ScreeningManager) setNextScheduled(t time.Time) {
	m.mu.Lock()
	m.nextScheduled = &t
	m.mu.Unlock()
}

// Stop ends automatic syncing started by Start and waits for the scheduler to exit.
func (m *ScreeningManager) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.mu.Unlock()

	if stop != nil {
		stop()
		m.wg.Wait()
	}
}

// ClearOfflineData deletes local history that the server already holds.
// With onlySynced false, submissions in the failed state are removed too.
// Pending submissions are always kept.
func (m *ScreeningManager) ClearOfflineData(ctx context.Context, onlySynced bool) (int64, error) {
	n, err := m.database.DeleteSubmissionsByStatus(ctx, StatusSynced)
	if err != nil {
		return 0, fmt.Errorf("clearing synced screenings: %w", err)
	}
	if !onlySynced {
		failed, err := m.database.DeleteSubmissionsByStatus(ctx, StatusFailed)
		if err != nil {
			return n, fmt.Errorf("clearing failed screenings: %w", err)
		}
		n += failed
	}
	return n, nil
}
