package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestIngestQueue_ProcessesJobs(t *testing.T) {
	// Given: a running queue whose work stores 4 fragments per job
	var calls atomic.Int32
	q := NewIngestQueue(QueueConfig{Workers: 2}, func(ctx context.Context, job Job) (int, error) {
		calls.Add(1)
		return 4, nil
	})
	q.Start(context.Background())
	defer q.Stop()

	// When: submitting two jobs
	require.NoError(t, q.Submit(Job{DocumentID: "a", Filename: "a.txt"}))
	require.NoError(t, q.Submit(Job{DocumentID: "b", Filename: "b.txt"}))
	require.NoError(t, q.Wait(waitCtx(t)))

	// Then: both are ready
	assert.Equal(t, int32(2), calls.Load())
	for _, id := range []string{"a", "b"} {
		snap, ok := q.Status(id)
		require.True(t, ok)
		assert.Equal(t, string(StatusReady), snap.Status)
		assert.Equal(t, 4, snap.Fragments)
	}
}

func TestIngestQueue_RecordsFailure(t *testing.T) {
	q := NewIngestQueue(QueueConfig{Workers: 1}, func(ctx context.Context, job Job) (int, error) {
		return 2, errors.New("embedding backend down")
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Submit(Job{DocumentID: "bad"}))
	require.NoError(t, q.Wait(waitCtx(t)))

	snap, ok := q.Status("bad")
	require.True(t, ok)
	assert.Equal(t, string(StatusError), snap.Status)
	assert.Equal(t, 2, snap.Fragments)
	assert.Equal(t, "embedding backend down", snap.ErrorMessage)
}

func TestIngestQueue_SubmitBeforeStart(t *testing.T) {
	q := NewIngestQueue(QueueConfig{}, func(context.Context, Job) (int, error) { return 0, nil })

	err := q.Submit(Job{DocumentID: "x"})

	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestIngestQueue_SubmitAfterStop(t *testing.T) {
	q := NewIngestQueue(QueueConfig{}, func(context.Context, Job) (int, error) { return 0, nil })
	q.Start(context.Background())
	q.Stop()
	q.Stop()

	assert.ErrorIs(t, q.Submit(Job{DocumentID: "x"}), ErrQueueClosed)
}

func TestIngestQueue_Full(t *testing.T) {
	// Given: one worker blocked on its first job and a buffer of one
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewIngestQueue(QueueConfig{Workers: 1, BufferSize: 1}, func(ctx context.Context, job Job) (int, error) {
		started <- struct{}{}
		<-release
		return 1, nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Submit(Job{DocumentID: "running"}))
	<-started
	require.NoError(t, q.Submit(Job{DocumentID: "buffered"}))

	// When: submitting a third job
	err := q.Submit(Job{DocumentID: "rejected"})

	// Then: it is rejected and not tracked
	assert.ErrorIs(t, err, ErrQueueFull)
	_, ok := q.Status("rejected")
	assert.False(t, ok)

	close(release)
	require.NoError(t, q.Wait(waitCtx(t)))
}

func TestIngestQueue_StopDrainsBuffer(t *testing.T) {
	var done atomic.Int32
	q := NewIngestQueue(QueueConfig{Workers: 1, BufferSize: 8}, func(ctx context.Context, job Job) (int, error) {
		time.Sleep(time.Millisecond)
		done.Add(1)
		return 1, nil
	})
	q.Start(context.Background())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Submit(Job{DocumentID: id}))
	}

	q.Stop()

	assert.Equal(t, int32(3), done.Load())
}

func TestIngestQueue_SnapshotForgetReset(t *testing.T) {
	q := NewIngestQueue(QueueConfig{Workers: 1}, func(context.Context, Job) (int, error) { return 1, nil })
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Submit(Job{DocumentID: "a"}))
	require.NoError(t, q.Submit(Job{DocumentID: "b"}))
	require.NoError(t, q.Wait(waitCtx(t)))

	snaps := q.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].DocumentID)

	q.Forget("a")
	_, ok := q.Status("a")
	assert.False(t, ok)

	q.Reset()
	assert.Empty(t, q.Snapshot())
}

func TestIngestQueue_WaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	q := NewIngestQueue(QueueConfig{Workers: 1}, func(ctx context.Context, job Job) (int, error) {
		<-block
		return 0, nil
	})
	q.Start(context.Background())
	require.NoError(t, q.Submit(Job{DocumentID: "slow"}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}
