package offline

import (
	"context"
	"time"
)

// Database provides the persistent store behind the offline layer.
// Lookups of a single record return (nil, nil) when the record does not exist.
type Database interface {
	// Screening submissions

	// InsertSubmission adds a new submission. It fails if the ID already exists.
	InsertSubmission(ctx context.Context, s *ScreeningSubmission) error

	// UpdateSubmission upserts a submission by ID.
	UpdateSubmission(ctx context.Context, s *ScreeningSubmission) error

	// FindSubmission returns a submission by ID.
	FindSubmission(ctx context.Context, id string) (*ScreeningSubmission, error)

	// FindSubmissionsByStatus returns submissions in the given state, oldest first.
	FindSubmissionsByStatus(ctx context.Context, status SubmissionStatus) ([]*ScreeningSubmission, error)

	// FindSubmissionsByUser returns a user's submissions, oldest first.
	// An empty userID returns every submission.
	FindSubmissionsByUser(ctx context.Context, userID string) ([]*ScreeningSubmission, error)

	// DeleteSubmissionsByStatus removes submissions in the given state.
	DeleteSubmissionsByStatus(ctx context.Context, status SubmissionStatus) (int64, error)

	// Cached resources

	// PutResource upserts a resource by ID.
	PutResource(ctx context.Context, r *CachedResource) error

	// FindResource returns a cached resource by ID.
	FindResource(ctx context.Context, id string) (*CachedResource, error)

	// FindResources returns cached resources in a category. An empty category
	// returns all cached resources.
	FindResources(ctx context.Context, category string) ([]*CachedResource, error)

	// TouchResource sets the last-accessed time of a resource if it exists.
	TouchResource(ctx context.Context, id string, at time.Time) error

	// DeleteResourcesAccessedBefore removes resources not read since cutoff.
	DeleteResourcesAccessedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Helplines

	// ReplaceHelplines clears the directory and inserts entries in one transaction.
	ReplaceHelplines(ctx context.Context, entries []*HelplineEntry) error

	// FindHelplinesByCountry returns a country's helplines ordered by priority.
	FindHelplinesByCountry(ctx context.Context, country string) ([]*HelplineEntry, error)

	// FindHelplinesByCategory returns helplines of a category ordered by priority.
	FindHelplinesByCategory(ctx context.Context, category HelplineCategory) ([]*HelplineEntry, error)

	// FindAllHelplines returns the whole directory ordered by priority.
	FindAllHelplines(ctx context.Context) ([]*HelplineEntry, error)

	// Sync queue

	// InsertQueueItem adds an item and sets its auto-assigned ID.
	InsertQueueItem(ctx context.Context, item *SyncQueueItem) error

	// FindQueueItem returns a queue item by ID.
	FindQueueItem(ctx context.Context, id int64) (*SyncQueueItem, error)

	// FindQueueItemByRef returns the queue item owned by a local record.
	FindQueueItemByRef(ctx context.Context, ref string) (*SyncQueueItem, error)

	// FindQueueItems returns items in a state ordered by priority descending,
	// then enqueue time ascending.
	FindQueueItems(ctx context.Context, status QueueStatus) ([]*SyncQueueItem, error)

	// UpdateQueueItem saves retry bookkeeping and status for an existing item.
	UpdateQueueItem(ctx context.Context, item *SyncQueueItem) error

	// DeleteQueueItem removes an item.
	DeleteQueueItem(ctx context.Context, id int64) error

	// Media metadata

	// PutMedia upserts media metadata by URL.
	PutMedia(ctx context.Context, m *CachedMedia) error

	// FindMedia returns media metadata by URL.
	FindMedia(ctx context.Context, url string) (*CachedMedia, error)

	// FindMediaCachedBefore returns media cached earlier than cutoff.
	FindMediaCachedBefore(ctx context.Context, cutoff time.Time) ([]*CachedMedia, error)

	// DeleteMedia removes media metadata by URL.
	DeleteMedia(ctx context.Context, url string) error

	// Close closes the database connection.
	Close() error
}
