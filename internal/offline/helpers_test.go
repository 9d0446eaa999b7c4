package offline_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mindcare-go/internal/blobstore"
	"mindcare-go/internal/connectivity"
	"mindcare-go/internal/database"
	"mindcare-go/internal/offline"
	"mindcare-go/internal/testutil"
)

type fixture struct {
	db     *database.SQLiteDatabase
	blobs  *blobstore.MemoryStore
	api    *testutil.FakeAPI
	conn   *connectivity.Static
	clock  *testutil.StubClock
	logger *testutil.RecordingLogger
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	return &fixture{
		db:     testutil.NewTestDatabase(t),
		blobs:  testutil.NewTestBlobStore(),
		api:    testutil.NewFakeAPI(),
		conn:   connectivity.NewStatic(online),
		clock:  testutil.FixedClock(),
		logger: &testutil.RecordingLogger{},
	}
}

func (f *fixture) queue() *offline.SyncQueue {
	return offline.NewSyncQueue(f.db, f.clock, f.logger, 0, nil)
}

func (f *fixture) screening(opts offline.ScreeningOptions) *offline.ScreeningManager {
	return offline.NewScreeningManager(f.db, f.blobs, f.queue(), f.api, f.conn, f.clock,
		testutil.NewStubIDGenerator(), f.logger, opts)
}

func (f *fixture) resources(opts offline.ResourceOptions) *offline.ResourceManager {
	return offline.NewResourceManager(f.db, f.blobs, f.api, f.conn, f.clock, f.logger, opts)
}

func (f *fixture) helplines() *offline.HelplineDirectory {
	return offline.NewHelplineDirectory(f.db, f.api, f.conn, f.clock, f.logger)
}

func (f *fixture) seedResource(t *testing.T, id, category string, lastAccessed time.Time, extra map[string]any) *offline.CachedResource {
	t.Helper()
	payload := map[string]any{"id": id, "category": category, "type": "article", "title": "Resource " + id}
	for k, v := range extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	typ, err := offline.ParseResourceType(payload["type"].(string))
	require.NoError(t, err)

	r := &offline.CachedResource{
		ID:           id,
		Category:     category,
		Type:         typ,
		Payload:      raw,
		Cached:       true,
		CachedAt:     lastAccessed,
		LastAccessed: lastAccessed,
	}
	require.NoError(t, f.db.PutResource(context.Background(), r))
	return r
}

func pendingCount(t *testing.T, db offline.Database) int {
	t.Helper()
	pending, err := db.FindSubmissionsByStatus(context.Background(), offline.StatusPending)
	require.NoError(t, err)
	return len(pending)
}

var errStorage = errors.New("storage unavailable")

// failingDatabase fails every call.
type failingDatabase struct{}

func (failingDatabase) InsertSubmission(context.Context, *offline.ScreeningSubmission) error {
	return errStorage
}
func (failingDatabase) UpdateSubmission(context.Context, *offline.ScreeningSubmission) error {
	return errStorage
}
func (failingDatabase) FindSubmission(context.Context, string) (*offline.ScreeningSubmission, error) {
	return nil, errStorage
}
func (failingDatabase) FindSubmissionsByStatus(context.Context, offline.SubmissionStatus) ([]*offline.ScreeningSubmission, error) {
	return nil, errStorage
}
func (failingDatabase) FindSubmissionsByUser(context.Context, string) ([]*offline.ScreeningSubmission, error) {
	return nil, errStorage
}
func (failingDatabase) DeleteSubmissionsByStatus(context.Context, offline.SubmissionStatus) (int64, error) {
	return 0, errStorage
}
func (failingDatabase) PutResource(context.Context, *offline.CachedResource) error { return errStorage }
func (failingDatabase) FindResource(context.Context, string) (*offline.CachedResource, error) {
	return nil, errStorage
}
func (failingDatabase) FindResources(context.Context, string) ([]*offline.CachedResource, error) {
	return nil, errStorage
}
func (failingDatabase) TouchResource(context.Context, string, time.Time) error { return errStorage }
func (failingDatabase) DeleteResourcesAccessedBefore(context.Context, time.Time) (int64, error) {
	return 0, errStorage
}
func (failingDatabase) ReplaceHelplines(context.Context, []*offline.HelplineEntry) error {
	return errStorage
}
func (failingDatabase) FindHelplinesByCountry(context.Context, string) ([]*offline.HelplineEntry, error) {
	return nil, errStorage
}
func (failingDatabase) FindHelplinesByCategory(context.Context, offline.HelplineCategory) ([]*offline.HelplineEntry, error) {
	return nil, errStorage
}
func (failingDatabase) FindAllHelplines(context.Context) ([]*offline.HelplineEntry, error) {
	return nil, errStorage
}
func (failingDatabase) InsertQueueItem(context.Context, *offline.SyncQueueItem) error { return errStorage }
func (failingDatabase) FindQueueItem(context.Context, int64) (*offline.SyncQueueItem, error) {
	return nil, errStorage
}
func (failingDatabase) FindQueueItemByRef(context.Context, string) (*offline.SyncQueueItem, error) {
	return nil, errStorage
}
func (failingDatabase) FindQueueItems(context.Context, offline.QueueStatus) ([]*offline.SyncQueueItem, error) {
	return nil, errStorage
}
func (failingDatabase) UpdateQueueItem(context.Context, *offline.SyncQueueItem) error { return errStorage }
func (failingDatabase) DeleteQueueItem(context.Context, int64) error                 { return errStorage }
func (failingDatabase) PutMedia(context.Context, *offline.CachedMedia) error          { return errStorage }
func (failingDatabase) FindMedia(context.Context, string) (*offline.CachedMedia, error) {
	return nil, errStorage
}
func (failingDatabase) FindMediaCachedBefore(context.Context, time.Time) ([]*offline.CachedMedia, error) {
	return nil, errStorage
}
func (failingDatabase) DeleteMedia(context.Context, string) error { return errStorage }
func (failingDatabase) Close() error                              { return nil }

var _ offline.Database = failingDatabase{}
