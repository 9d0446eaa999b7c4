package database

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mindcare-go/internal/offline"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db := NewSQLiteDatabase(":memory:")
	if _, err := db.Open(context.Background()); err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func intPtr(v int) *int { return &v }

func newSubmission(id, userID string, status offline.SubmissionStatus, ts int64) *offline.ScreeningSubmission {
	return &offline.ScreeningSubmission{
		ID:             id,
		Type:           "phq9",
		Answers:        map[string]any{"q1": float64(2), "q2": float64(1)},
		Score:          intPtr(3),
		Interpretation: "minimal",
		UserID:         userID,
		Status:         status,
		Timestamp:      ts,
		Metadata:       offline.ClientMetadata{FormVersion: offline.FormVersion, Locale: "en-IN"},
	}
}

func TestSQLiteDatabase_Open(t *testing.T) {
	t.Run("concurrent opens share one handle", func(t *testing.T) {
		db := NewSQLiteDatabase(":memory:")
		defer db.Close()

		const n = 8
		handles := make(chan any, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h, err := db.Open(context.Background())
				if err != nil {
					t.Errorf("Open() error = %v", err)
					return
				}
				handles <- h
			}()
		}
		wg.Wait()
		close(handles)

		var first any
		for h := range handles {
			if first == nil {
				first = h
				continue
			}
			if h != first {
				t.Fatal("Open() returned different handles")
			}
		}
	})

	t.Run("fails after close", func(t *testing.T) {
		db := NewSQLiteDatabase(":memory:")
		if _, err := db.Open(context.Background()); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if _, err := db.Open(context.Background()); !errors.Is(err, ErrClosed) {
			t.Errorf("Open() after Close error = %v, want ErrClosed", err)
		}
	})

	t.Run("file database persists across handles", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "device.db")
		ctx := context.Background()

		first := NewSQLiteDatabase(path)
		if err := first.InsertSubmission(ctx, newSubmission("s1", "u1", offline.StatusPending, 1000)); err != nil {
			t.Fatalf("InsertSubmission() error = %v", err)
		}
		first.Close()

		second := NewSQLiteDatabase(path)
		defer second.Close()
		got, err := second.FindSubmission(ctx, "s1")
		if err != nil {
			t.Fatalf("FindSubmission() error = %v", err)
		}
		if got == nil {
			t.Fatal("FindSubmission() = nil after reopen, want submission")
		}
	})
}

func TestSQLiteDatabase_Submissions(t *testing.T) {
	ctx := context.Background()

	t.Run("insert and find round trip", func(t *testing.T) {
		db := newTestDB(t)
		sub := newSubmission("s1", "u1", offline.StatusPending, 1000)

		if err := db.InsertSubmission(ctx, sub); err != nil {
			t.Fatalf("InsertSubmission() error = %v", err)
		}

		got, err := db.FindSubmission(ctx, "s1")
		if err != nil {
			t.Fatalf("FindSubmission() error = %v", err)
		}
		if got == nil {
			t.Fatal("FindSubmission() returned nil")
		}
		if got.UserID != "u1" || got.Status != offline.StatusPending || got.Timestamp != 1000 {
			t.Errorf("FindSubmission() = %+v", got)
		}
		if got.Score == nil || *got.Score != 3 {
			t.Errorf("Score = %v, want 3", got.Score)
		}
		if got.Answers["q1"] != float64(2) {
			t.Errorf("Answers[q1] = %v, want 2", got.Answers["q1"])
		}
		if got.Metadata.Locale != "en-IN" {
			t.Errorf("Metadata.Locale = %q, want en-IN", got.Metadata.Locale)
		}
		if got.SyncedAt != nil {
			t.Errorf("SyncedAt = %v, want nil", *got.SyncedAt)
		}
	})

	t.Run("insert rejects duplicate id", func(t *testing.T) {
		db := newTestDB(t)
		sub := newSubmission("s1", "u1", offline.StatusPending, 1000)

		if err := db.InsertSubmission(ctx, sub); err != nil {
			t.Fatalf("InsertSubmission() error = %v", err)
		}
		if err := db.InsertSubmission(ctx, sub); err == nil {
			t.Error("second InsertSubmission() expected error for duplicate id")
		}
	})

	t.Run("returns nil when not found", func(t *testing.T) {
		db := newTestDB(t)

		got, err := db.FindSubmission(ctx, "missing")
		if err != nil {
			t.Fatalf("FindSubmission() error = %v", err)
		}
		if got != nil {
			t.Errorf("FindSubmission() = %v, want nil", got)
		}
	})

	t.Run("update marks synced", func(t *testing.T) {
		db := newTestDB(t)
		sub := newSubmission("s1", "u1", offline.StatusPending, 1000)
		if err := db.InsertSubmission(ctx, sub); err != nil {
			t.Fatalf("InsertSubmission() error = %v", err)
		}

		syncedAt := int64(2000)
		sub.Status = offline.StatusSynced
		sub.SyncedAt = &syncedAt
		sub.ServerResponse = json.RawMessage(`{"ok":true}`)
		if err := db.UpdateSubmission(ctx, sub); err != nil {
			t.Fatalf("UpdateSubmission() error = %v", err)
		}

		got, err := db.FindSubmission(ctx, "s1")
		if err != nil {
			t.Fatalf("FindSubmission() error = %v", err)
		}
		if got.Status != offline.StatusSynced {
			t.Errorf("Status = %q, want synced", got.Status)
		}
		if got.SyncedAt == nil || *got.SyncedAt != 2000 {
			t.Errorf("SyncedAt = %v, want 2000", got.SyncedAt)
		}
		if string(got.ServerResponse) != `{"ok":true}` {
			t.Errorf("ServerResponse = %s", got.ServerResponse)
		}
	})

	t.Run("find by status and user", func(t *testing.T) {
		db := newTestDB(t)
		for _, sub := range []*offline.ScreeningSubmission{
			newSubmission("s3", "u1", offline.StatusPending, 3000),
			newSubmission("s1", "u1", offline.StatusPending, 1000),
			newSubmission("s2", "u2", offline.StatusSynced, 2000),
		} {
			if err := db.InsertSubmission(ctx, sub); err != nil {
				t.Fatalf("InsertSubmission() error = %v", err)
			}
		}

		pending, err := db.FindSubmissionsByStatus(ctx, offline.StatusPending)
		if err != nil {
			t.Fatalf("FindSubmissionsByStatus() error = %v", err)
		}
		if len(pending) != 2 || pending[0].ID != "s1" || pending[1].ID != "s3" {
			t.Errorf("FindSubmissionsByStatus() = %v, want [s1 s3]", ids(pending))
		}

		byUser, err := db.FindSubmissionsByUser(ctx, "u2")
		if err != nil {
			t.Fatalf("FindSubmissionsByUser() error = %v", err)
		}
		if len(byUser) != 1 || byUser[0].ID != "s2" {
			t.Errorf("FindSubmissionsByUser(u2) = %v, want [s2]", ids(byUser))
		}

		all, err := db.FindSubmissionsByUser(ctx, "")
		if err != nil {
			t.Fatalf("FindSubmissionsByUser() error = %v", err)
		}
		if len(all) != 3 {
			t.Errorf("len(FindSubmissionsByUser(\"\")) = %d, want 3", len(all))
		}
	})

	t.Run("delete by status", func(t *testing.T) {
		db := newTestDB(t)
		db.InsertSubmission(ctx, newSubmission("s1", "u1", offline.StatusPending, 1000))
		db.InsertSubmission(ctx, newSubmission("s2", "u1", offline.StatusSynced, 2000))

		n, err := db.DeleteSubmissionsByStatus(ctx, offline.StatusSynced)
		if err != nil {
			t.Fatalf("DeleteSubmissionsByStatus() error = %v", err)
		}
		if n != 1 {
			t.Errorf("DeleteSubmissionsByStatus() = %d, want 1", n)
		}
		if got, _ := db.FindSubmission(ctx, "s1"); got == nil {
			t.Error("pending submission was deleted")
		}
	})
}

func ids(subs []*offline.ScreeningSubmission) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}

func TestSQLiteDatabase_Resources(t *testing.T) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	put := func(t *testing.T, db *SQLiteDatabase, id, category string, accessed time.Time) {
		t.Helper()
		r := &offline.CachedResource{
			ID:           id,
			Category:     category,
			Type:         offline.ResourceVideo,
			Payload:      json.RawMessage(`{"id":"` + id + `","title":"T ` + id + `"}`),
			Cached:       true,
			CachedAt:     base,
			LastAccessed: accessed,
		}
		if err := db.PutResource(ctx, r); err != nil {
			t.Fatalf("PutResource() error = %v", err)
		}
	}

	t.Run("put upserts and find filters by category", func(t *testing.T) {
		db := newTestDB(t)
		put(t, db, "r1", "anxiety", base)
		put(t, db, "r2", "sleep", base)
		put(t, db, "r1", "stress", base)

		got, err := db.FindResource(ctx, "r1")
		if err != nil {
			t.Fatalf("FindResource() error = %v", err)
		}
		if got.Category != "stress" {
			t.Errorf("Category = %q, want stress after upsert", got.Category)
		}
		if got.Type != offline.ResourceVideo {
			t.Errorf("Type = %q, want video", got.Type)
		}
		if !got.Cached {
			t.Error("Cached = false, want true")
		}

		sleep, err := db.FindResources(ctx, "sleep")
		if err != nil {
			t.Fatalf("FindResources() error = %v", err)
		}
		if len(sleep) != 1 || sleep[0].ID != "r2" {
			t.Errorf("FindResources(sleep) returned %d resources", len(sleep))
		}

		all, err := db.FindResources(ctx, "")
		if err != nil {
			t.Fatalf("FindResources() error = %v", err)
		}
		if len(all) != 2 {
			t.Errorf("len(FindResources(\"\")) = %d, want 2", len(all))
		}
	})

	t.Run("touch and range delete", func(t *testing.T) {
		db := newTestDB(t)
		put(t, db, "old", "sleep", base.Add(-10*24*time.Hour))
		put(t, db, "fresh", "sleep", base)

		if err := db.TouchResource(ctx, "missing", base); err != nil {
			t.Fatalf("TouchResource() on missing id error = %v", err)
		}

		n, err := db.DeleteResourcesAccessedBefore(ctx, base.Add(-7*24*time.Hour))
		if err != nil {
			t.Fatalf("DeleteResourcesAccessedBefore() error = %v", err)
		}
		if n != 1 {
			t.Errorf("DeleteResourcesAccessedBefore() = %d, want 1", n)
		}
		if got, _ := db.FindResource(ctx, "old"); got != nil {
			t.Error("old resource still present")
		}

		if err := db.TouchResource(ctx, "fresh", base.Add(time.Hour)); err != nil {
			t.Fatalf("TouchResource() error = %v", err)
		}
		got, _ := db.FindResource(ctx, "fresh")
		if !got.LastAccessed.Equal(base.Add(time.Hour)) {
			t.Errorf("LastAccessed = %v, want %v", got.LastAccessed, base.Add(time.Hour))
		}
	})
}

func TestSQLiteDatabase_Helplines(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	entries := []*offline.HelplineEntry{
		{ID: "b", Name: "B", Phone: "2", Country: "India", State: "National", Category: offline.CategoryCrisis, Priority: 2, Languages: []string{"Hindi"}, Services: []string{"Counseling"}, CachedAt: now},
		{ID: "a", Name: "A", Phone: "1", Country: "India", State: "Delhi", Category: offline.CategoryCrisis, Priority: 1, IsGovt: true, CachedAt: now},
		{ID: "c", Name: "C", Phone: "3", Country: "United Kingdom", State: "National", Category: offline.CategorySupport, Priority: 1, Source: offline.SourceRemote, CachedAt: now},
	}

	t.Run("replace and query ordered by priority", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.ReplaceHelplines(ctx, entries); err != nil {
			t.Fatalf("ReplaceHelplines() error = %v", err)
		}

		india, err := db.FindHelplinesByCountry(ctx, "India")
		if err != nil {
			t.Fatalf("FindHelplinesByCountry() error = %v", err)
		}
		if len(india) != 2 || india[0].ID != "a" || india[1].ID != "b" {
			t.Fatalf("FindHelplinesByCountry(India) wrong order or size: %d", len(india))
		}
		if !india[0].IsGovt {
			t.Error("IsGovt = false, want true")
		}
		if india[0].Languages == nil || len(india[0].Languages) != 0 {
			t.Errorf("Languages = %v, want empty slice", india[0].Languages)
		}
		if india[1].Source != offline.SourceBundled {
			t.Errorf("Source = %q, want bundled default", india[1].Source)
		}

		support, err := db.FindHelplinesByCategory(ctx, offline.CategorySupport)
		if err != nil {
			t.Fatalf("FindHelplinesByCategory() error = %v", err)
		}
		if len(support) != 1 || support[0].Source != offline.SourceRemote {
			t.Errorf("FindHelplinesByCategory(support) = %d entries", len(support))
		}
	})

	t.Run("replace is wholesale", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.ReplaceHelplines(ctx, entries); err != nil {
			t.Fatalf("ReplaceHelplines() error = %v", err)
		}
		if err := db.ReplaceHelplines(ctx, entries[:1]); err != nil {
			t.Fatalf("ReplaceHelplines() error = %v", err)
		}

		all, err := db.FindAllHelplines(ctx)
		if err != nil {
			t.Fatalf("FindAllHelplines() error = %v", err)
		}
		if len(all) != 1 || all[0].ID != "b" {
			t.Errorf("FindAllHelplines() returned %d entries, want only b", len(all))
		}
	})

	t.Run("failed replace keeps previous directory", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.ReplaceHelplines(ctx, entries); err != nil {
			t.Fatalf("ReplaceHelplines() error = %v", err)
		}

		dup := []*offline.HelplineEntry{entries[0], entries[0]}
		if err := db.ReplaceHelplines(ctx, dup); err == nil {
			t.Fatal("ReplaceHelplines() with duplicate ids expected error")
		}

		all, err := db.FindAllHelplines(ctx)
		if err != nil {
			t.Fatalf("FindAllHelplines() error = %v", err)
		}
		if len(all) != 3 {
			t.Errorf("len(FindAllHelplines()) = %d after rollback, want 3", len(all))
		}
	})
}

func TestSQLiteDatabase_SyncQueue(t *testing.T) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	insert := func(t *testing.T, db *SQLiteDatabase, endpoint string, priority int, at time.Time, ref string) *offline.SyncQueueItem {
		t.Helper()
		item := &offline.SyncQueueItem{
			Action:     "POST",
			Endpoint:   endpoint,
			Payload:    json.RawMessage(`{"x":1}`),
			Priority:   priority,
			EnqueuedAt: at,
			MaxRetries: 3,
			Ref:        ref,
		}
		if err := db.InsertQueueItem(ctx, item); err != nil {
			t.Fatalf("InsertQueueItem() error = %v", err)
		}
		return item
	}

	t.Run("assigns ids and orders by priority then time", func(t *testing.T) {
		db := newTestDB(t)
		a := insert(t, db, "/a", 0, base, "")
		b := insert(t, db, "/b", 1, base.Add(time.Second), "")
		c := insert(t, db, "/c", 1, base, "")
		d := insert(t, db, "/d", 0, base, "")

		if a.ID == 0 || a.Status != offline.QueueQueued {
			t.Errorf("InsertQueueItem() ID = %d, Status = %q", a.ID, a.Status)
		}

		items, err := db.FindQueueItems(ctx, offline.QueueQueued)
		if err != nil {
			t.Fatalf("FindQueueItems() error = %v", err)
		}
		want := []int64{c.ID, b.ID, a.ID, d.ID}
		if len(items) != len(want) {
			t.Fatalf("len(FindQueueItems()) = %d, want %d", len(items), len(want))
		}
		for i := range want {
			if items[i].ID != want[i] {
				t.Errorf("items[%d].ID = %d, want %d", i, items[i].ID, want[i])
			}
		}
	})

	t.Run("update, find by ref and delete", func(t *testing.T) {
		db := newTestDB(t)
		item := insert(t, db, "/v1/screening/submit", 1, base, "sub-1")

		byRef, err := db.FindQueueItemByRef(ctx, "sub-1")
		if err != nil {
			t.Fatalf("FindQueueItemByRef() error = %v", err)
		}
		if byRef == nil || byRef.ID != item.ID {
			t.Fatalf("FindQueueItemByRef() = %v, want item %d", byRef, item.ID)
		}

		retry := base.Add(time.Minute)
		item.Retries = 1
		item.LastRetry = &retry
		item.LastError = "boom"
		item.Status = offline.QueueDead
		if err := db.UpdateQueueItem(ctx, item); err != nil {
			t.Fatalf("UpdateQueueItem() error = %v", err)
		}

		got, err := db.FindQueueItem(ctx, item.ID)
		if err != nil {
			t.Fatalf("FindQueueItem() error = %v", err)
		}
		if got.Retries != 1 || got.LastError != "boom" || got.Status != offline.QueueDead {
			t.Errorf("FindQueueItem() = %+v", got)
		}
		if got.LastRetry == nil || !got.LastRetry.Equal(retry) {
			t.Errorf("LastRetry = %v, want %v", got.LastRetry, retry)
		}
		if string(got.Payload) != `{"x":1}` {
			t.Errorf("Payload = %s", got.Payload)
		}

		queued, _ := db.FindQueueItems(ctx, offline.QueueQueued)
		if len(queued) != 0 {
			t.Errorf("dead item listed as queued")
		}

		if err := db.DeleteQueueItem(ctx, item.ID); err != nil {
			t.Fatalf("DeleteQueueItem() error = %v", err)
		}
		if got, _ := db.FindQueueItem(ctx, item.ID); got != nil {
			t.Error("FindQueueItem() after delete returned item")
		}
	})

	t.Run("update of missing item fails", func(t *testing.T) {
		db := newTestDB(t)
		err := db.UpdateQueueItem(ctx, &offline.SyncQueueItem{ID: 42, Status: offline.QueueQueued})
		if !errors.Is(err, offline.ErrQueueItemNotFound) {
			t.Errorf("UpdateQueueItem() error = %v, want ErrQueueItemNotFound", err)
		}
	})
}

func TestSQLiteDatabase_Media(t *testing.T) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	db := newTestDB(t)

	for i, url := range []string{"https://cdn/a.mp4", "https://cdn/b.mp3"} {
		m := &offline.CachedMedia{
			URL:        url,
			Type:       offline.MediaVideo,
			ResourceID: "r1",
			Title:      "Title",
			Duration:   "300",
			Size:       int64(100 * (i + 1)),
			Cached:     true,
			CachedAt:   base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if err := db.PutMedia(ctx, m); err != nil {
			t.Fatalf("PutMedia() error = %v", err)
		}
	}

	got, err := db.FindMedia(ctx, "https://cdn/a.mp4")
	if err != nil {
		t.Fatalf("FindMedia() error = %v", err)
	}
	if got == nil || got.Size != 100 || got.Duration != "300" {
		t.Errorf("FindMedia() = %+v", got)
	}

	old, err := db.FindMediaCachedBefore(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("FindMediaCachedBefore() error = %v", err)
	}
	if len(old) != 1 || old[0].URL != "https://cdn/a.mp4" {
		t.Errorf("FindMediaCachedBefore() returned %d rows", len(old))
	}

	if err := db.DeleteMedia(ctx, "https://cdn/a.mp4"); err != nil {
		t.Fatalf("DeleteMedia() error = %v", err)
	}
	if got, _ := db.FindMedia(ctx, "https://cdn/a.mp4"); got != nil {
		t.Error("FindMedia() after delete returned metadata")
	}
}
