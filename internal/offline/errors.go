package offline

import "errors"

var (
	// ErrNoOfflineData is returned when a read has nothing cached and the
	// network is unreachable. The UI renders this as an offline empty state.
	ErrNoOfflineData = errors.New("no cached data available offline")

	// ErrResourcesUnavailable is returned when neither the network nor the
	// cache could produce a resource list while online.
	ErrResourcesUnavailable = errors.New("unable to load resources online or offline")

	// ErrResourceNotAvailable is returned when a single resource is neither
	// cached nor fetchable.
	ErrResourceNotAvailable = errors.New("resource not available offline")

	// ErrNotPersisted is returned when a screening could be neither submitted
	// nor stored locally.
	ErrNotPersisted = errors.New("screening could not be saved")

	// ErrBlobNotFound is returned by BlobStore implementations for missing keys.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrQueueItemNotFound is returned when a sync queue id does not exist.
	ErrQueueItemNotFound = errors.New("sync queue item not found")
)
