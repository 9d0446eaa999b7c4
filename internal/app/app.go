package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"mindcare-go/internal/api"
	"mindcare-go/internal/blobstore"
	"mindcare-go/internal/config"
	"mindcare-go/internal/connectivity"
	"mindcare-go/internal/database"
	"mindcare-go/internal/offline"
)

// Version is reported in the user agent of stored screenings.
const Version = "0.3.0"

// Options adjust how an App is assembled.
type Options struct {
	// Offline skips probing the backend and treats it as unreachable.
	Offline bool
	// Verbose copies log lines to stderr.
	Verbose bool
}

// App is the application layer between the CLI and the offline managers.
// It constructs all dependencies from config and manages their lifecycle on Close.
type App struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	blobs     offline.BlobStore
	client    *api.Client
	conn      offline.Connectivity
	monitor   *connectivity.Monitor
	queue     *offline.SyncQueue
	screening *offline.ScreeningManager
	resources *offline.ResourceManager
	helplines *offline.HelplineDirectory
	session   *Session
	logger    *slog.Logger
	logFile   *os.File

	replaying atomic.Bool
}

// NewApp creates a fully wired App from the given config.
// command identifies the CLI command being run (e.g. "screening submit").
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, command string, opts Options) (*App, error) {
	session := NewSession(command)
	logger, logFile, err := newLogger(cfg.LogDir, cfg.DeviceID, session.ID, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if _, err := db.Open(ctx); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	blobs, err := blobstore.NewBlobStoreFromConfig(ctx, cfg.BlobStore)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	// A remote blob store may be unreachable while offline; cached data in
	// the database must stay usable.
	if err := blobs.ValidateSetup(ctx); err != nil {
		log.Warn("blob store not ready", "type", cfg.BlobStore.Type, "error", err)
	}

	client, err := api.NewClient(cfg.API.BaseURL, api.Options{
		Token:     cfg.API.Token,
		Timeout:   cfg.API.Timeout.Duration,
		RateLimit: cfg.API.RateLimit,
		Burst:     cfg.API.Burst,
	})
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	a := &App{
		cfg:     cfg,
		db:      db,
		blobs:   blobs,
		client:  client,
		session: session,
		logger:  logger,
		logFile: logFile,
	}

	if opts.Offline {
		a.conn = connectivity.NewStatic(false)
	} else {
		a.monitor = connectivity.NewMonitor(client, connectivity.MonitorOptions{
			Interval: cfg.Connectivity.ProbeInterval.Duration,
			Timeout:  cfg.Connectivity.ProbeTimeout.Duration,
			Path:     cfg.Connectivity.ProbePath,
		}, log)
		a.monitor.Check(ctx)
		a.conn = a.monitor
	}

	var limiter *rate.Limiter
	if cfg.Sync.ReplayRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Sync.ReplayRate), 1)
	}

	clock := offline.RealClock{}
	a.queue = offline.NewSyncQueue(db, clock, log, cfg.Sync.MaxRetries, limiter)
	a.screening = offline.NewScreeningManager(db, blobs, a.queue, client, a.conn, clock, offline.UUIDGenerator{}, log, offline.ScreeningOptions{
		SyncInterval:   cfg.Sync.Interval.Duration,
		ReconnectDelay: cfg.Sync.ReconnectDelay.Duration,
		QuestionsTTL:   cfg.Cache.QuestionsTTL.Duration,
		Client:         clientMetadata(),
	})
	a.resources = offline.NewResourceManager(db, blobs, client, a.conn, clock, log, offline.ResourceOptions{
		CacheFirst:         cfg.Cache.CacheFirst,
		NetworkTimeout:     cfg.Cache.NetworkTimeout.Duration,
		ResourceMaxAge:     cfg.Cache.ResourceMaxAge.Duration,
		MediaMaxAge:        cfg.Cache.MediaMaxAge.Duration,
		PreloadConcurrency: cfg.Cache.PreloadConcurrency,
	})
	a.helplines = offline.NewHelplineDirectory(db, client, a.conn, clock, log)

	// Stale cache entries are swept on every start with the configured max ages.
	if res, err := a.resources.ClearCache(ctx, 0); err != nil {
		log.Warn("startup cache sweep failed", "error", err)
	} else if res.Resources > 0 || res.Media > 0 {
		log.Info("startup cache sweep", "resources", res.Resources, "media", res.Media)
	}

	log.Debug("app ready", "command", command, "online", a.conn.IsOnline())
	return a, nil
}

func clientMetadata() offline.ClientMetadata {
	return offline.ClientMetadata{
		UserAgent: fmt.Sprintf("mindcare-go/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH),
		Locale:    os.Getenv("LANG"),
		Timezone:  time.Local.String(),
	}
}

func (a *App) Config() *config.Config { return a.cfg }
func (a *App) Session() *Session { return a.session }
func (a *App) Screening() *offline.ScreeningManager { return a.screening }
func (a *App) Resources() *offline.ResourceManager { return a.resources }
func (a *App) Helplines() *offline.HelplineDirectory { return a.helplines }
func (a *App) Queue() *offline.SyncQueue { return a.queue }
func (a *App) Online() bool { return a.conn.IsOnline() }

// SyncReport summarizes one Sync pass.
type SyncReport struct {
	Screenings offline.DrainResult   `json:"screenings"`
	Queue      offline.ReplayResult  `json:"queue"`
	Helplines  *offline.UpdateResult `json:"helplines,omitempty"`
}

// Sync drains pending screenings and replays the generic queue. When the
// helpline directory is stale it is downloaded again.
func (a *App) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	report.Screenings = a.screening.Drain(ctx)
	if !a.conn.IsOnline() {
		return report, nil
	}

	replay, err := a.queue.Replay(ctx, a.client)
	report.Queue = replay
	if err != nil {
		return report, fmt.Errorf("replaying sync queue: %w", err)
	}

	status, err := a.helplines.CheckForUpdates(ctx)
	if err == nil && status.NeedsUpdate {
		res, err := a.helplines.UpdateDirectory(ctx)
		if err != nil {
			a.logger.Warn("helpline directory update failed", "error", err)
		} else {
			report.Helplines = &res
		}
	}
	return report, nil
}

// Watch keeps the backend monitor and background sync running until ctx is
// done. The generic queue is replayed at start, on every reconnect and on
// each sync interval while online.
func (a *App) Watch(ctx context.Context) error {
	if a.monitor == nil {
		return errors.New("watch requires connectivity monitoring")
	}

	cancel := a.conn.OnOnline(func() { a.replayQueue(ctx) })
	defer cancel()

	a.screening.Start(ctx)
	defer a.screening.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()
	defer wg.Wait()

	interval := a.cfg.Sync.Interval.Duration
	if interval <= 0 {
		interval = offline.DefaultSyncInterval
	}
	a.logger.Info("watching for connectivity changes",
		"probe_interval", a.cfg.Connectivity.ProbeInterval.Duration, "sync_interval", interval)

	a.replayQueue(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.replayQueue(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// replayQueue delivers generic queue items while online. Overlapping calls
// return immediately.
func (a *App) replayQueue(ctx context.Context) {
	if !a.conn.IsOnline() || ctx.Err() != nil {
		return
	}
	if !a.replaying.CompareAndSwap(false, true) {
		return
	}
	defer a.replaying.Store(false)

	res, err := a.queue.Replay(ctx, a.client)
	if err != nil {
		a.logger.Warn("queue replay failed", "error", err)
		return
	}
	if res.Total > 0 {
		a.logger.Info("queue replayed", "sent", res.Sent, "failed", res.Failed, "dead", res.DeadLettered)
	}
}

// Close finalizes the session and closes all resources.
func (a *App) Close() error {
	var firstErr error

	a.screening.Stop()

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	a.logger.Info("command finished",
		"command", a.session.Command,
		"status", a.session.Status,
		"duration", time.Since(a.session.StartedAt).Round(time.Millisecond))

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
