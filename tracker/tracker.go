// Package tracker owns the lifecycle of tracking sessions: one
// background task per session runs the extract-then-sync cycle on a
// fixed cadence until the session is explicitly stopped.
package tracker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/letulabs/livetracker/extractor"
	"github.com/letulabs/livetracker/models"
)

// Extractor produces one snapshot of product records.
type Extractor interface {
	Extract(ctx context.Context) ([]models.ProductRecord, extractor.Strategy)
}

// Syncer pushes a snapshot into the session's spreadsheet.
type Syncer interface {
	Sync(ctx context.Context, records []models.ProductRecord) bool
}

// SessionFactory builds the per-session resources: an extractor bound
// to the session's page, a syncer bound to its spreadsheet, and the
// browser handle to release on teardown. Construction failures (bad
// sheet URL, missing credentials) are configuration errors and surface
// to the caller of Start.
type SessionFactory func(sessionID, sheetURL string) (Extractor, Syncer, io.Closer, error)

// PreviewFactory builds an ephemeral extractor for a one-shot
// extraction that never touches the registry or a spreadsheet.
type PreviewFactory func(sessionID string) (Extractor, io.Closer, error)

// Status is the externally visible state of one session id.
type Status struct {
	Tracking   bool
	Running    bool
	LastUpdate time.Time
}

// Options configures a Controller.
type Options struct {
	Interval          time.Duration
	ErrorCooldown     time.Duration
	MaxSessions       int
	SnapshotCacheSize int
	NewSession        SessionFactory
	NewPreview        PreviewFactory
	Metrics           *Metrics
}

// Controller is the injectable registry of active sessions. All access
// to the registry is serialized through its mutex; per-session work
// runs on its own goroutine and never blocks the boundary layer.
type Controller struct {
	interval   time.Duration
	cooldown   time.Duration
	maxActive  int
	newSession SessionFactory
	newPreview PreviewFactory
	metrics    *Metrics

	snapshots *lru.Cache[string, models.Snapshot]

	mu       sync.Mutex
	sessions map[string]*session

	wg sync.WaitGroup
}

type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	extractor Extractor
	syncer    Syncer
	closer    io.Closer

	mu         sync.Mutex
	running    bool
	lastUpdate time.Time
}

func (s *session) setLastUpdate(t time.Time) {
	s.mu.Lock()
	s.lastUpdate = t
	s.mu.Unlock()
}

func (s *session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Tracking: true, Running: s.running, LastUpdate: s.lastUpdate}
}

func (s *session) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

// New builds a controller from opts.
func New(opts Options) (*Controller, error) {
	if opts.SnapshotCacheSize <= 0 {
		opts.SnapshotCacheSize = 64
	}
	snapshots, err := lru.New[string, models.Snapshot](opts.SnapshotCacheSize)
	if err != nil {
		return nil, err
	}

	return &Controller{
		interval:   opts.Interval,
		cooldown:   opts.ErrorCooldown,
		maxActive:  opts.MaxSessions,
		newSession: opts.NewSession,
		newPreview: opts.NewPreview,
		metrics:    opts.Metrics,
		snapshots:  snapshots,
		sessions:   make(map[string]*session),
	}, nil
}

// Start registers a new tracking session and launches its background
// task. The session resources are constructed outside the registry
// lock so a slow browser launch cannot stall other requests.
func (c *Controller) Start(sessionID, sheetURL string) error {
	c.mu.Lock()
	if _, ok := c.sessions[sessionID]; ok {
		c.mu.Unlock()
		return ErrAlreadyTracking
	}
	if c.maxActive > 0 && len(c.sessions) >= c.maxActive {
		c.mu.Unlock()
		return ErrTooManySessions
	}
	c.mu.Unlock()

	ext, syncer, closer, err := c.newSession(sessionID, sheetURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        sessionID,
		ctx:       ctx,
		cancel:    cancel,
		extractor: ext,
		syncer:    syncer,
		closer:    closer,
		running:   true,
	}

	c.mu.Lock()
	if _, ok := c.sessions[sessionID]; ok {
		// Lost the race to a concurrent Start for the same id.
		c.mu.Unlock()
		cancel()
		closeQuietly(closer, sessionID)
		return ErrAlreadyTracking
	}
	if c.maxActive > 0 && len(c.sessions) >= c.maxActive {
		c.mu.Unlock()
		cancel()
		closeQuietly(closer, sessionID)
		return ErrTooManySessions
	}
	c.sessions[sessionID] = s
	active := len(c.sessions)
	c.mu.Unlock()

	c.metrics.SetActive(active)
	slog.Info("tracking started", slog.String("session_id", sessionID))

	c.wg.Add(1)
	go c.run(s)
	return nil
}

// Stop cancels a session's task, force-releases its browser handle and
// removes it from the active set. The in-flight iteration, if any, is
// not waited for; it observes the cancellation at its next step.
func (c *Controller) Stop(sessionID string) error {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return ErrNotTracking
	}
	delete(c.sessions, sessionID)
	active := len(c.sessions)
	c.mu.Unlock()

	s.setRunning(false)
	s.cancel()
	closeQuietly(s.closer, sessionID)

	c.metrics.SetActive(active)
	slog.Info("tracking stopped", slog.String("session_id", sessionID))
	return nil
}

// Status reports the state of a session id.
func (c *Controller) Status(sessionID string) Status {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return Status{}
	}
	return s.status()
}

// Preview runs one extraction cycle on an ephemeral browser without
// registering anything or writing to any spreadsheet.
func (c *Controller) Preview(ctx context.Context, sessionID string) ([]models.ProductRecord, error) {
	ext, closer, err := c.newPreview(sessionID)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(closer, sessionID)

	records, strategy := ext.Extract(ctx)
	c.metrics.AddRecords(string(strategy), len(records))
	return records, nil
}

// Snapshot returns the most recent extraction result cached for a
// session id, if any. Entries for stopped sessions age out of the
// bounded cache naturally.
func (c *Controller) Snapshot(sessionID string) (models.Snapshot, bool) {
	return c.snapshots.Get(sessionID)
}

// ActiveCount reports how many sessions are currently tracked.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// StopAll stops every active session and waits for their tasks to exit.
// Used at process shutdown.
func (c *Controller) StopAll() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.Stop(id); err != nil {
			slog.Error("stop session", slog.String("session_id", id), slog.Any("error", err))
		}
	}
	c.wg.Wait()
}

// run is the per-session repeating task. A failed cycle schedules the
// shorter cooldown delay and the loop continues; nothing but explicit
// cancellation ends it.
func (c *Controller) run(s *session) {
	defer c.wg.Done()

	for {
		delay := c.interval
		if !c.cycle(s) {
			delay = c.cooldown
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// cycle performs one extract-then-sync pass. It reports false only for
// unexpected faults, which select the cooldown delay; an empty
// extraction or a failed sync is a normal (logged) outcome.
func (c *Controller) cycle(s *session) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cycle panic",
				slog.String("session_id", s.id),
				slog.Any("panic", r),
			)
			ok = false
		}
	}()

	start := time.Now()
	records, strategy := s.extractor.Extract(s.ctx)
	c.metrics.ObserveExtraction(time.Since(start))
	c.metrics.AddRecords(string(strategy), len(records))

	c.snapshots.Add(s.id, models.Snapshot{
		SessionID:  s.id,
		Records:    records,
		Strategy:   string(strategy),
		CapturedAt: time.Now(),
	})

	if len(records) == 0 {
		c.metrics.IncCycle("empty")
		slog.Debug("extraction returned no records", slog.String("session_id", s.id))
		return true
	}

	if s.syncer.Sync(s.ctx, records) {
		s.setLastUpdate(time.Now())
		c.metrics.IncCycle("synced")
		c.metrics.IncSync("success")
	} else {
		c.metrics.IncCycle("sync_failed")
		c.metrics.IncSync("failure")
		slog.Warn("sheet sync failed", slog.String("session_id", s.id))
	}
	return true
}

func closeQuietly(closer io.Closer, sessionID string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Debug("release browser", slog.String("session_id", sessionID), slog.Any("error", err))
	}
}
