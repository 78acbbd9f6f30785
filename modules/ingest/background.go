package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("background upload queue is full")
	// ErrPoolStopped is returned by Submit when the pool is not running.
	ErrPoolStopped = errors.New("background upload pool is not running")
	// ErrTicketNotFound is returned for unknown or evicted tickets.
	ErrTicketNotFound = errors.New("upload ticket not found")
)

// TicketStatus is the lifecycle state of a background upload.
type TicketStatus string

// Ticket states.
const (
	TicketQueued    TicketStatus = "queued"
	TicketRunning   TicketStatus = "running"
	TicketCompleted TicketStatus = "completed"
	TicketFailed    TicketStatus = "failed"
)

// Ticket tracks one fire-and-forget upload batch.
type Ticket struct {
	ID          uuid.UUID            `json:"id"`
	Status      TicketStatus         `json:"status"`
	Items       int                  `json:"items"`
	Result      *domain.UploadResult `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
	SubmittedAt time.Time            `json:"submitted_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
}

// Uploader runs an upload batch.
type Uploader interface {
	Upload(ctx context.Context, items []domain.Item) domain.UploadResult
}

// PoolConfig holds background pool configuration.
type PoolConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// Tickets bounds how many tickets are remembered; the oldest are evicted first.
	Tickets int
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:    2,
		QueueSize:  64,
		JobTimeout: 10 * time.Minute,
		Tickets:    1024,
	}
}

type uploadJob struct {
	id    uuid.UUID
	items []domain.Item
}

// Background runs upload batches on a bounded worker pool after the caller has been acknowledged.
type Background struct {
	config   PoolConfig
	uploader Uploader
	logger   types.Logger
	queue    chan uploadJob

	ticketsMu sync.Mutex
	tickets   *lru.Cache[uuid.UUID, Ticket]

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.RWMutex
	running bool
}

// NewBackground creates a pool that hands batches to uploader.
func NewBackground(cfg PoolConfig, uploader Uploader, logger types.Logger) (*Background, error) {
	def := DefaultPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Tickets <= 0 {
		cfg.Tickets = def.Tickets
	}
	tickets, err := lru.New[uuid.UUID, Ticket](cfg.Tickets)
	if err != nil {
		return nil, fmt.Errorf("create ticket store: %w", err)
	}
	return &Background{
		config:   cfg,
		uploader: uploader,
		logger:   logger,
		queue:    make(chan uploadJob, cfg.QueueSize),
		tickets:  tickets,
	}, nil
}

// Start launches the workers.
func (b *Background) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("background pool is already running")
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	for i := 0; i < b.config.Workers; i++ {
		b.wg.Add(1)
		go func(id int) {
			defer b.wg.Done()
			b.work(workerCtx, id)
		}(i + 1)
	}
	b.running = true

	b.logger.Info("Background upload pool started", "workers", b.config.Workers, "queue_size", b.config.QueueSize)
	return nil
}

// Stop cancels in-flight batches and waits for the workers to exit.
// Batches still queued are marked failed.
func (b *Background) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("Timeout waiting for background uploads to stop")
		return ctx.Err()
	}

	for {
		select {
		case job := <-b.queue:
			b.finish(job.id, nil, ErrPoolStopped)
		default:
			b.logger.Info("Background upload pool stopped")
			return nil
		}
	}
}

// IsRunning returns true if the pool accepts submissions.
func (b *Background) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Submit buffers items in memory and queues them for upload.
// The returned ticket is in the queued state.
func (b *Background) Submit(items []domain.Item) (Ticket, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return Ticket{}, ErrPoolStopped
	}

	buffered := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if item.Content != nil {
			data, err := io.ReadAll(item.Content)
			if err != nil {
				return Ticket{}, fmt.Errorf("buffer %s: %w", item.Name, err)
			}
			item.Content = bytes.NewReader(data)
			item.Size = int64(len(data))
		}
		buffered = append(buffered, item)
	}

	ticket := Ticket{
		ID:          uuid.New(),
		Status:      TicketQueued,
		Items:       len(items),
		SubmittedAt: time.Now().UTC(),
	}
	b.store(ticket)

	select {
	case b.queue <- uploadJob{id: ticket.ID, items: buffered}:
	default:
		b.ticketsMu.Lock()
		b.tickets.Remove(ticket.ID)
		b.ticketsMu.Unlock()
		return Ticket{}, ErrQueueFull
	}

	b.logger.Debug("Background upload queued", "ticket", ticket.ID, "items", len(items))
	return ticket, nil
}

// Ticket returns the current state of ticket id.
func (b *Background) Ticket(id uuid.UUID) (Ticket, error) {
	b.ticketsMu.Lock()
	defer b.ticketsMu.Unlock()
	t, ok := b.tickets.Get(id)
	if !ok {
		return Ticket{}, ErrTicketNotFound
	}
	return t, nil
}

func (b *Background) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-b.queue:
			b.run(ctx, worker, job)
		}
	}
}

func (b *Background) run(ctx context.Context, worker int, job uploadJob) {
	b.update(job.id, func(t *Ticket) {
		now := time.Now().UTC()
		t.Status = TicketRunning
		t.StartedAt = &now
	})

	jobCtx, cancel := ctx, context.CancelFunc(func() {})
	if b.config.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, b.config.JobTimeout)
	}
	defer cancel()

	result := b.uploader.Upload(jobCtx, job.items)
	b.finish(job.id, &result, jobCtx.Err())
	b.logger.Info("Background upload finished",
		"ticket", job.id,
		"worker", worker,
		"outcome", result.Outcome,
		"stored", len(result.Stored))
}

func (b *Background) finish(id uuid.UUID, result *domain.UploadResult, err error) {
	b.update(id, func(t *Ticket) {
		now := time.Now().UTC()
		t.FinishedAt = &now
		t.Result = result
		switch {
		case err != nil:
			t.Status = TicketFailed
			t.Error = err.Error()
		case result != nil && len(result.Stored) == 0 && !result.Success:
			t.Status = TicketFailed
		default:
			t.Status = TicketCompleted
		}
	})
}

func (b *Background) store(t Ticket) {
	b.ticketsMu.Lock()
	defer b.ticketsMu.Unlock()
	b.tickets.Add(t.ID, t)
}

func (b *Background) update(id uuid.UUID, fn func(*Ticket)) {
	b.ticketsMu.Lock()
	defer b.ticketsMu.Unlock()
	t, ok := b.tickets.Peek(id)
	if !ok {
		return
	}
	fn(&t)
	b.tickets.Add(id, t)
}
