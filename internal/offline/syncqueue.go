package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// SyncQueue is a durable, ordered queue of remote mutations that could not be
// delivered. Items stay queued until MarkSuccess removes them.
type SyncQueue struct {
	database   Database
	clock      Clock
	logger     Logger
	maxRetries int
	limiter    *rate.Limiter
}

// NewSyncQueue creates a queue backed by database. maxRetries <= 0 uses
// DefaultMaxRetries. A nil limiter replays without pacing.
func NewSyncQueue(database Database, clock Clock, logger Logger, maxRetries int, limiter *rate.Limiter) *SyncQueue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &SyncQueue{
		database:   database,
		clock:      clock,
		logger:     logger,
		maxRetries: maxRetries,
		limiter:    limiter,
	}
}

// Enqueue persists a new mutation with zero retries.
func (q *SyncQueue) Enqueue(ctx context.Context, action, endpoint string, payload any, priority int) (*SyncQueueItem, error) {
	return q.enqueue(ctx, action, endpoint, payload, priority, "")
}

func (q *SyncQueue) enqueue(ctx context.Context, action, endpoint string, payload any, priority int, ref string) (*SyncQueueItem, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding queue payload: %w", err)
	}

	item := &SyncQueueItem{
		Action:     action,
		Endpoint:   endpoint,
		Payload:    data,
		Priority:   priority,
		EnqueuedAt: q.clock.Now(),
		MaxRetries: q.maxRetries,
		Status:     QueueQueued,
		Ref:        ref,
	}
	if err := q.database.InsertQueueItem(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueueing %s %s: %w", action, endpoint, err)
	}

	q.logger.Info("added to sync queue", "id", item.ID, "action", action, "endpoint", endpoint, "priority", priority)
	return item, nil
}

// DequeueAllSortedByPriority returns every queued item, highest priority
// first and FIFO within a priority. Items are not removed.
func (q *SyncQueue) DequeueAllSortedByPriority(ctx context.Context) ([]*SyncQueueItem, error) {
	items, err := q.database.FindQueueItems(ctx, QueueQueued)
	if err != nil {
		return nil, fmt.Errorf("listing sync queue: %w", err)
	}
	return items, nil
}

// DeadLetters returns items that exhausted their retries during Replay.
func (q *SyncQueue) DeadLetters(ctx context.Context) ([]*SyncQueueItem, error) {
	items, err := q.database.FindQueueItems(ctx, QueueDead)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	return items, nil
}

// MarkSuccess removes an item whose mutation the server accepted.
func (q *SyncQueue) MarkSuccess(ctx context.Context, id int64) error {
	if err := q.database.DeleteQueueItem(ctx, id); err != nil {
		return fmt.Errorf("removing sync item %d: %w", id, err)
	}
	return nil
}

// MarkFailureAndRetry records a failed delivery attempt and returns the
// updated item. Callers compare Retries with MaxRetries to decide whether to
// try again.
func (q *SyncQueue) MarkFailureAndRetry(ctx context.Context, id int64, cause error) (*SyncQueueItem, error) {
	item, err := q.database.FindQueueItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading sync item %d: %w", id, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %d", ErrQueueItemNotFound, id)
	}

	now := q.clock.Now()
	item.Retries++
	item.LastRetry = &now
	if cause != nil {
		item.LastError = cause.Error()
	}
	if err := q.database.UpdateQueueItem(ctx, item); err != nil {
		return nil, fmt.Errorf("updating sync item %d: %w", id, err)
	}
	return item, nil
}

// Requeue resets a dead-lettered item so the next Replay attempts it again.
func (q *SyncQueue) Requeue(ctx context.Context, id int64) error {
	item, err := q.database.FindQueueItem(ctx, id)
	if err != nil {
		return fmt.Errorf("loading sync item %d: %w", id, err)
	}
	if item == nil {
		return fmt.Errorf("%w: %d", ErrQueueItemNotFound, id)
	}

	item.Retries = 0
	item.Status = QueueQueued
	item.LastError = ""
	if err := q.database.UpdateQueueItem(ctx, item); err != nil {
		return fmt.Errorf("requeueing sync item %d: %w", id, err)
	}
	return nil
}

// ReplayResult summarizes a Replay pass.
type ReplayResult struct {
	Sent         int `json:"sent"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"deadLettered"`
	Total        int `json:"total"`
}

// Replay delivers every queued item that is not owned by a local record.
// Owned items (Ref set) are delivered by the manager that owns the record.
// A failure is counted and retried on the next pass; once an item reaches its
// retry budget it is moved to the dead-letter state.
func (q *SyncQueue) Replay(ctx context.Context, api API) (ReplayResult, error) {
	var res ReplayResult

	items, err := q.DequeueAllSortedByPriority(ctx)
	if err != nil {
		return res, err
	}

	for _, item := range items {
		if item.Ref != "" {
			continue
		}
		res.Total++

		if q.limiter != nil {
			if err := q.limiter.Wait(ctx); err != nil {
				return res, fmt.Errorf("waiting for replay slot: %w", err)
			}
		}

		var body any
		if len(item.Payload) > 0 && string(item.Payload) != "null" {
			body = item.Payload
		}
		sendErr := api.Do(ctx, item.Action, item.Endpoint, body, nil)
		if sendErr == nil {
			if err := q.MarkSuccess(ctx, item.ID); err != nil {
				q.logger.Error("failed to remove delivered sync item", "id", item.ID, "error", err)
			}
			res.Sent++
			continue
		}

		res.Failed++
		q.logger.Warn("sync item delivery failed", "id", item.ID, "endpoint", item.Endpoint, "error", sendErr)

		updated, err := q.MarkFailureAndRetry(ctx, item.ID, sendErr)
		if err != nil {
			q.logger.Error("failed to record sync retry", "id", item.ID, "error", err)
			continue
		}
		if updated.Exhausted() {
			updated.Status = QueueDead
			if err := q.database.UpdateQueueItem(ctx, updated); err != nil {
				q.logger.Error("failed to dead-letter sync item", "id", item.ID, "error", err)
				continue
			}
			res.DeadLettered++
			q.logger.Error("sync item abandoned after retries", "id", item.ID, "endpoint", item.Endpoint, "retries", updated.Retries)
		}

		if errors.Is(sendErr, context.Canceled) {
			return res, sendErr
		}
	}

	return res, nil
}
