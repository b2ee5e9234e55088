package core

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/schema"
)

// Job is a unit of background work handed from the gesture context to the
// bookkeeping context.
type Job struct {
	Name string
	Run  func(ctx context.Context)
}

// Mailbox is the one-way hand-off from the gesture context. Post never blocks:
// when the queue is full the job is dropped.
type Mailbox struct {
	mu     sync.Mutex
	ch     chan Job
	closed bool
	log    pslog.Logger
	onDrop func(name string)
}

// NewMailbox constructs a mailbox with the given queue depth.
func NewMailbox(depth int, logger pslog.Logger) *Mailbox {
	if depth <= 0 {
		depth = schema.DefaultMailboxDepth
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Mailbox{ch: make(chan Job, depth), log: logger}
}

// Post enqueues job without waiting.
func (m *Mailbox) Post(job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return schema.ErrMailboxClosed
	}
	select {
	case m.ch <- job:
		return nil
	default:
		m.log.Warn("mailbox dropped job", "job", job.Name, "depth", cap(m.ch))
		if m.onDrop != nil {
			m.onDrop(job.Name)
		}
		return schema.ErrMailboxFull
	}
}

// Pending returns the number of queued jobs.
func (m *Mailbox) Pending() int {
	return len(m.ch)
}

// Drain runs every job queued at call time, plus any they enqueue, on the
// calling goroutine and returns how many ran.
func (m *Mailbox) Drain(ctx context.Context) int {
	ran := 0
	for {
		select {
		case job, ok := <-m.ch:
			if !ok {
				return ran
			}
			m.run(ctx, job)
			ran++
		default:
			return ran
		}
	}
}

// Run drains the mailbox until ctx is cancelled or the mailbox is closed.
func (m *Mailbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-m.ch:
			if !ok {
				return
			}
			m.run(ctx, job)
		}
	}
}

// Close stops accepting jobs. Queued jobs can still be drained.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

func (m *Mailbox) run(ctx context.Context, job Job) {
	if job.Run == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("mailbox job panicked", "job", job.Name, "panic", r)
		}
	}()
	m.log.Trace("mailbox job start", "job", job.Name)
	job.Run(ctx)
}
