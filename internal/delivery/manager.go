package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"rss_relay/internal/model"
	"rss_relay/internal/platform"
)

// WebhookInvalidator clears a webhook reference the platform no longer knows.
type WebhookInvalidator interface {
	ClearWebhook(ctx context.Context, connectionID int64) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithRate paces sends across all channels.
func WithRate(perSecond float64, burst int) Option {
	return func(m *Manager) {
		if perSecond > 0 {
			m.pacer = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithWorkers bounds how many channels drain at the same time.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithWebhookInvalidator sets the store notified about unknown webhooks.
func WithWebhookInvalidator(inv WebhookInvalidator) Option {
	return func(m *Manager) {
		m.invalidator = inv
	}
}

const defaultWorkers = 16

type channelQueue struct {
	immediate []*Task
	deferred  []*Task
	batches   [][]*Task
	draining  bool
}

// Manager keeps one ordered queue per destination channel. A channel is
// drained by at most one goroutine at a time, so its sends never overlap
// and happen in enqueue order. Tasks that need role mentions wait in the
// channel's deferred queue until FlushDeferred runs them as one batch.
type Manager struct {
	messenger   platform.Messenger
	log         *slog.Logger
	pacer       *rate.Limiter
	workers     *semaphore.Weighted
	invalidator WebhookInvalidator

	mu     sync.Mutex
	queues map[string]*channelQueue
	wg     sync.WaitGroup
}

// NewManager creates a Manager sending through messenger.
func NewManager(messenger platform.Messenger, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		messenger: messenger,
		log:       log,
		pacer:     rate.NewLimiter(rate.Inf, 1),
		workers:   semaphore.NewWeighted(defaultWorkers),
		queues:    make(map[string]*channelQueue),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue adds a task to the queue of its channel. Tasks without role
// mentions start draining right away; the others wait for FlushDeferred.
// Cancelling ctx does not stop tasks that are already queued.
func (m *Manager) Enqueue(ctx context.Context, t *Task) {
	key := t.Destination.Key()

	m.mu.Lock()
	q := m.queue(key)
	if t.Deferred() {
		q.deferred = append(q.deferred, t)
		m.mu.Unlock()
		m.log.Debug("task deferred", "channel", key, "task_id", t.ID)
		return
	}
	q.immediate = append(q.immediate, t)
	start := m.claim(q)
	m.mu.Unlock()

	if start {
		go m.drain(context.WithoutCancel(ctx), key)
	}
}

// FlushDeferred turns the deferred queue of every channel into a batch and
// starts draining it. It returns the number of channels flushed.
func (m *Manager) FlushDeferred(ctx context.Context) int {
	var start []string
	flushed := 0

	m.mu.Lock()
	for key, q := range m.queues {
		if len(q.deferred) == 0 {
			continue
		}
		q.batches = append(q.batches, q.deferred)
		q.deferred = nil
		flushed++
		if m.claim(q) {
			start = append(start, key)
		}
	}
	m.mu.Unlock()

	for _, key := range start {
		go m.drain(context.WithoutCancel(ctx), key)
	}
	return flushed
}

// Pending returns the number of tasks waiting in all queues.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, q := range m.queues {
		n += len(q.immediate) + len(q.deferred)
		for _, b := range q.batches {
			n += len(b)
		}
	}
	return n
}

// Wait blocks until every draining channel is idle or ctx is done.
// Deferred tasks that were never flushed do not keep Wait blocked.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) queue(key string) *channelQueue {
	q, ok := m.queues[key]
	if !ok {
		q = &channelQueue{}
		m.queues[key] = q
	}
	return q
}

// claim marks q as draining. It must be called with m.mu held and reports
// whether the caller has to start the drain goroutine.
func (m *Manager) claim(q *channelQueue) bool {
	if q.draining {
		return false
	}
	q.draining = true
	m.wg.Add(1)
	return true
}

// next pops the next unit of work of a channel: a single task, or a whole
// batch once the immediate queue is empty. When there is nothing left the
// channel goes back to idle.
func (m *Manager) next(key string) (*Task, []*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[key]
	if len(q.immediate) > 0 {
		t := q.immediate[0]
		q.immediate[0] = nil
		q.immediate = q.immediate[1:]
		return t, nil, true
	}
	if len(q.batches) > 0 {
		b := q.batches[0]
		q.batches[0] = nil
		q.batches = q.batches[1:]
		return nil, b, true
	}

	q.draining = false
	if len(q.deferred) == 0 {
		delete(m.queues, key)
	}
	return nil, nil, false
}

func (m *Manager) drain(ctx context.Context, key string) {
	defer m.wg.Done()

	if err := m.workers.Acquire(ctx, 1); err != nil {
		m.log.Error("acquire delivery worker", "channel", key, "error", err)
		return
	}
	defer m.workers.Release(1)

	for {
		task, batch, ok := m.next(key)
		if !ok {
			return
		}
		if task != nil {
			_ = m.dispatch(ctx, task)
			continue
		}
		m.sendBatch(ctx, key, batch)
	}
}

// sendBatch makes the roles of the batch mentionable, sends every task in
// order and restores the roles after the last send. A failed toggle does not
// block delivery: each message then carries a warning and the roles are left
// untouched.
func (m *Manager) sendBatch(ctx context.Context, key string, batch []*Task) {
	roleIDs := lo.Uniq(lo.FlatMap(batch, func(t *Task, _ int) []string {
		return t.MentionRoleIDs
	}))
	dest := batch[0].Destination

	toggleErr := m.toggle(ctx, key, dest, roleIDs, true)
	if toggleErr != nil {
		m.log.Warn("toggle role mentions", "channel", key, "roles", len(roleIDs), "error", toggleErr)
	}

	for _, t := range batch {
		if toggleErr != nil {
			t.Content.Notice = "Failed to toggle role mentions: " + toggleErr.Error()
		}
		_ = m.dispatch(ctx, t)
	}

	if toggleErr != nil {
		return
	}
	if err := m.toggle(ctx, key, dest, roleIDs, false); err != nil {
		m.log.Error("restore role mentions", "channel", key, "roles", len(roleIDs), "error", err)
	}
}

func (m *Manager) toggle(ctx context.Context, key string, dest model.Destination, roleIDs []string, mentionable bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("toggle panic", "channel", key, "mentionable", mentionable, "panic", r)
			err = errors.New("toggle panic")
		}
	}()
	return m.messenger.SetRoleMentionable(ctx, dest, roleIDs, mentionable)
}

func (m *Manager) dispatch(ctx context.Context, t *Task) (err error) {
	key := t.Destination.Key()
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("dispatch panic", "channel", key, "task_id", t.ID, "panic", r)
			err = errors.New("dispatch panic")
		}
	}()

	if err := m.pacer.Wait(ctx); err != nil {
		return err
	}
	err = m.messenger.SendMessage(ctx, t.Destination, t.Content)
	if err == nil {
		m.log.Debug("task delivered", "channel", key, "task_id", t.ID, "article", t.ArticleID)
		return nil
	}

	m.log.Error("deliver task",
		"channel", key,
		"task_id", t.ID,
		"connection_id", t.ConnectionID,
		"article", t.ArticleID,
		"error", err,
	)
	if errors.Is(err, platform.ErrUnknownWebhook) && t.Destination.Webhook != nil && m.invalidator != nil {
		if cerr := m.invalidator.ClearWebhook(ctx, t.ConnectionID); cerr != nil {
			m.log.Error("clear webhook", "connection_id", t.ConnectionID, "error", cerr)
		} else {
			m.log.Info("cleared unknown webhook", "connection_id", t.ConnectionID)
		}
	}
	return err
}
