package tasksync_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erennakbas/tasksync"
	"github.com/erennakbas/tasksync/broker"
	"github.com/erennakbas/tasksync/store/memory"
	"github.com/erennakbas/tasksync/types"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T, opts ...tasksync.ServerOption) (*tasksync.Server, *tasksync.Client) {
	t.Helper()

	logger := quietLogger()
	opts = append([]tasksync.ServerOption{tasksync.WithServerLogger(logger)}, opts...)
	srv, err := tasksync.NewServer(memory.New(), opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := tasksync.NewClient(ts.URL+"/",
		tasksync.WithHTTPClient(ts.Client()),
		tasksync.WithClientLogger(logger),
	)
	require.NoError(t, err)

	return srv, client
}

func next(t *testing.T, ch <-chan tasksync.Notification) tasksync.Notification {
	t.Helper()

	select {
	case n, ok := <-ch:
		require.True(t, ok, "notification channel closed")
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return tasksync.Notification{}
	}
}

func TestClientRoundTrip(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	tasks, err := client.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	created, err := client.CreateTask(ctx, "buy milk")
	require.NoError(t, err)
	assert.Equal(t, &types.Task{ID: "1", Text: "buy milk"}, created)

	updated, err := client.UpdateTask(ctx, created.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Completed)

	missing, err := client.UpdateTask(ctx, "missing", true)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, client.DeleteTask(ctx, created.ID))
	require.NoError(t, client.DeleteTask(ctx, created.ID))

	tasks, err = client.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestClientWatchReceivesEveryMutation(t *testing.T) {
	srv, client := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := client.Watch(ctx)
	require.NoError(t, err)
	b, err := client.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Observers())

	created, err := client.CreateTask(ctx, "a")
	require.NoError(t, err)
	updated, err := client.UpdateTask(ctx, created.ID, true)
	require.NoError(t, err)
	require.NoError(t, client.DeleteTask(ctx, created.ID))

	for _, ch := range []<-chan tasksync.Notification{a, b} {
		n := next(t, ch)
		assert.Equal(t, types.EventTaskAdded, n.Kind)
		task, err := n.Task()
		require.NoError(t, err)
		assert.Equal(t, created, task)

		n = next(t, ch)
		assert.Equal(t, types.EventTaskUpdated, n.Kind)
		task, err = n.Task()
		require.NoError(t, err)
		assert.Equal(t, updated, task)

		n = next(t, ch)
		assert.Equal(t, types.EventTaskDeleted, n.Kind)
		id, err := n.TaskID()
		require.NoError(t, err)
		assert.Equal(t, created.ID, id)
	}

	cancel()
	assert.Eventually(t, func() bool { return srv.Observers() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestClientWatchNullUpdate(t *testing.T) {
	_, client := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := client.Watch(ctx)
	require.NoError(t, err)

	_, err = client.UpdateTask(ctx, "nope", true)
	require.NoError(t, err)

	n := next(t, ch)
	assert.Equal(t, types.EventTaskUpdated, n.Kind)
	task, err := n.Task()
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestClientWatchLargePayload(t *testing.T) {
	_, client := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := client.Watch(ctx)
	require.NoError(t, err)

	// larger than bufio.Scanner's default token size
	long := strings.Repeat("x", 200*1024)
	big, err := client.CreateTask(ctx, long)
	require.NoError(t, err)
	small, err := client.CreateTask(ctx, "small")
	require.NoError(t, err)

	n := next(t, ch)
	task, err := n.Task()
	require.NoError(t, err)
	assert.Equal(t, big, task)
	assert.Len(t, task.Text, len(long))

	n = next(t, ch)
	task, err = n.Task()
	require.NoError(t, err)
	assert.Equal(t, small, task)
}

func TestClientStrictNotFound(t *testing.T) {
	_, client := newTestServer(t, tasksync.WithServerStrictNotFound())

	_, err := client.UpdateTask(context.Background(), "nope", true)
	assert.ErrorIs(t, err, tasksync.ErrUnexpectedStatus)
}

func TestClientCreateEmptyTextIsRejected(t *testing.T) {
	_, client := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := client.Watch(ctx)
	require.NoError(t, err)

	task, err := client.CreateTask(ctx, "")
	assert.ErrorIs(t, err, tasksync.ErrUnexpectedStatus)
	assert.Nil(t, task)

	// the next notification is for the valid task, so nothing was announced for the empty one
	created, err := client.CreateTask(ctx, "a")
	require.NoError(t, err)

	n := next(t, ch)
	assert.Equal(t, types.EventTaskAdded, n.Kind)
	got, err := n.Task()
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, "1", got.ID)
}

func TestServerAnnouncer(t *testing.T) {
	var mu sync.Mutex
	var kinds []types.EventKind
	announcer := broker.BrokerFunc(func(ctx context.Context, event types.Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, event.Kind)
	})

	_, client := newTestServer(t, tasksync.WithAnnouncer(announcer))

	_, err := client.CreateTask(context.Background(), "a")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []types.EventKind{types.EventTaskAdded}, kinds)
}

func waitStart(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
		return nil
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	srv, err := tasksync.NewServer(memory.New(),
		tasksync.WithServerLogger(quietLogger()),
		tasksync.WithAddr("127.0.0.1:0"),
		tasksync.WithShutdownTimeout(time.Second),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- srv.Start()
	}()

	// Shutdown may run before Start has marked the server running
	srv.Shutdown()
	assert.NoError(t, waitStart(t, done))

	srv.Shutdown()
}

func TestServerShutdownBeforeStart(t *testing.T) {
	srv, err := tasksync.NewServer(memory.New(),
		tasksync.WithServerLogger(quietLogger()),
		tasksync.WithAddr("127.0.0.1:0"),
		tasksync.WithShutdownTimeout(time.Second),
	)
	require.NoError(t, err)

	srv.Shutdown()

	done := make(chan error, 1)
	go func() {
		done <- srv.Start()
	}()
	assert.NoError(t, waitStart(t, done))
}

func TestServerStartListenError(t *testing.T) {
	srv, err := tasksync.NewServer(memory.New(),
		tasksync.WithServerLogger(quietLogger()),
		tasksync.WithAddr("127.0.0.1:-1"),
	)
	require.NoError(t, err)

	assert.Error(t, srv.Start())
}

func TestNewServerRequiresStore(t *testing.T) {
	_, err := tasksync.NewServer(nil)
	assert.Error(t, err)
}

type failingStore struct{}

var errDown = errors.New("dial tcp: connection refused")

func (failingStore) ListTasks(ctx context.Context) ([]*types.Task, error) { return nil, errDown }
func (failingStore) CreateTask(ctx context.Context, text string) (*types.Task, error) {
	return nil, errDown
}
func (failingStore) UpdateTaskCompleted(ctx context.Context, taskID string, completed bool) (*types.Task, error) {
	return nil, errDown
}
func (failingStore) DeleteTask(ctx context.Context, taskID string) error { return errDown }
func (failingStore) Ping(ctx context.Context) error                      { return errDown }
func (failingStore) Close() error                                        { return nil }

func TestClientUnexpectedStatus(t *testing.T) {
	srv, err := tasksync.NewServer(failingStore{}, tasksync.WithServerLogger(quietLogger()))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := tasksync.NewClient(ts.URL, tasksync.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = client.CreateTask(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tasksync.ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), "500")

	_, err = client.ListTasks(context.Background())
	assert.ErrorIs(t, err, tasksync.ErrUnexpectedStatus)
}
