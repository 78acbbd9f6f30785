package ingest

import (
	"context"
	"testing"
	"time"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingUploader holds every batch until released or cancelled.
type blockingUploader struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingUploader() *blockingUploader {
	return &blockingUploader{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (u *blockingUploader) Upload(ctx context.Context, items []domain.Item) domain.UploadResult {
	u.started <- struct{}{}
	select {
	case <-u.release:
	case <-ctx.Done():
	}
	return domain.UploadResult{BatchResult: domain.Summarize(domain.OpUpload, len(items), nil), Stored: []domain.Record{}}
}

func startBackground(t *testing.T, cfg PoolConfig, uploader Uploader) *Background {
	t.Helper()
	b, err := NewBackground(cfg, uploader, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

func waitForStatus(t *testing.T, b *Background, id uuid.UUID, want TicketStatus) Ticket {
	t.Helper()
	var last Ticket
	require.Eventually(t, func() bool {
		ticket, err := b.Ticket(id)
		if err != nil {
			return false
		}
		last = ticket
		return ticket.Status == want
	}, 5*time.Second, 10*time.Millisecond, "ticket never reached %s", want)
	return last
}

func TestBackground_TicketCompletes(t *testing.T) {
	f := newFixture(t)
	b := startBackground(t, DefaultPoolConfig(), f.svc)

	ticket, err := b.Submit([]domain.Item{
		domain.NewItem("a.txt", "", []byte("alpha")),
		domain.NewItem("b.txt", "", []byte("beta")),
	})
	require.NoError(t, err)
	assert.Equal(t, TicketQueued, ticket.Status)
	assert.Equal(t, 2, ticket.Items)

	done := waitForStatus(t, b, ticket.ID, TicketCompleted)
	require.NotNil(t, done.Result)
	assert.True(t, done.Result.Success)
	assert.Len(t, done.Result.Stored, 2)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)

	listed, err := f.svc.ListFiles(context.Background(), domain.NoFilter())
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestBackground_FailedBatchIsVisibleOnTicket(t *testing.T) {
	f := newFixture(t)
	b := startBackground(t, DefaultPoolConfig(), f.svc)

	ticket, err := b.Submit([]domain.Item{domain.NewItem("empty.txt", "", nil)})
	require.NoError(t, err)

	done := waitForStatus(t, b, ticket.ID, TicketFailed)
	require.NotNil(t, done.Result)
	assert.Equal(t, domain.AllFailed, done.Result.Outcome)
	assert.Equal(t, domain.MsgEmptyFile, done.Result.Errors[0].Message)
}

func TestBackground_QueueFull(t *testing.T) {
	uploader := newBlockingUploader()
	b := startBackground(t, PoolConfig{Workers: 1, QueueSize: 1}, uploader)
	item := domain.NewItem("a.txt", "", []byte("alpha"))

	first, err := b.Submit([]domain.Item{item})
	require.NoError(t, err)
	<-uploader.started
	waitForStatus(t, b, first.ID, TicketRunning)

	_, err = b.Submit([]domain.Item{item})
	require.NoError(t, err)

	_, err = b.Submit([]domain.Item{item})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(uploader.release)
	waitForStatus(t, b, first.ID, TicketCompleted)
}

func TestBackground_StopFailsPendingBatches(t *testing.T) {
	uploader := newBlockingUploader()
	b, err := NewBackground(PoolConfig{Workers: 1, QueueSize: 4}, uploader, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))

	running, err := b.Submit([]domain.Item{domain.NewItem("a.txt", "", []byte("alpha"))})
	require.NoError(t, err)
	<-uploader.started
	queued, err := b.Submit([]domain.Item{domain.NewItem("b.txt", "", []byte("beta"))})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
	assert.False(t, b.IsRunning())

	for _, id := range []uuid.UUID{running.ID, queued.ID} {
		ticket, err := b.Ticket(id)
		require.NoError(t, err)
		assert.Equal(t, TicketFailed, ticket.Status)
		assert.NotEmpty(t, ticket.Error)
	}

	_, err = b.Submit(nil)
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestBackground_StartTwice(t *testing.T) {
	b := startBackground(t, DefaultPoolConfig(), newBlockingUploader())
	assert.Error(t, b.Start(context.Background()))
}

func TestBackground_UnknownTicket(t *testing.T) {
	b := startBackground(t, DefaultPoolConfig(), newBlockingUploader())
	_, err := b.Ticket(uuid.New())
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestBackground_TicketsAreBounded(t *testing.T) {
	uploader := newBlockingUploader()
	b := startBackground(t, PoolConfig{Workers: 1, QueueSize: 8, Tickets: 2}, uploader)
	item := domain.NewItem("a.txt", "", []byte("alpha"))

	first, err := b.Submit([]domain.Item{item})
	require.NoError(t, err)
	<-uploader.started
	waitForStatus(t, b, first.ID, TicketRunning)

	_, err = b.Submit([]domain.Item{item})
	require.NoError(t, err)
	last, err := b.Submit([]domain.Item{item})
	require.NoError(t, err)

	_, err = b.Ticket(first.ID)
	assert.ErrorIs(t, err, ErrTicketNotFound)

	close(uploader.release)
	waitForStatus(t, b, last.ID, TicketCompleted)
}
