package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erennakbas/tasksync/store"
)

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, err := s.CreateTask(ctx, "buy milk")
	require.NoError(t, err)
	b, err := s.CreateTask(ctx, "walk dog")
	require.NoError(t, err)

	assert.Equal(t, "1", a.ID)
	assert.Equal(t, "2", b.ID)
	assert.False(t, a.Completed)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "buy milk", tasks[0].Text)
	assert.Equal(t, "walk dog", tasks[1].Text)
}

func TestCreateTaskRejectsEmptyText(t *testing.T) {
	ctx := context.Background()
	s := New()

	task, err := s.CreateTask(ctx, "")
	assert.ErrorIs(t, err, store.ErrPersistence)
	assert.Nil(t, task)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// the rejected create does not consume an ID
	created, err := s.CreateTask(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", created.ID)
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateTask(ctx, "a")
	require.NoError(t, err)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	tasks[0].Completed = true

	tasks, err = s.ListTasks(ctx)
	require.NoError(t, err)
	assert.False(t, tasks[0].Completed)
}

func TestUpdateTaskCompleted(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.CreateTask(ctx, "a")
	require.NoError(t, err)

	updated, err := s.UpdateTaskCompleted(ctx, created.ID, true)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "a", updated.Text)
	assert.True(t, updated.Completed)

	missing, err := s.UpdateTaskCompleted(ctx, "42", true)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, _ := s.CreateTask(ctx, "a")
	b, _ := s.CreateTask(ctx, "b")
	c, _ := s.CreateTask(ctx, "c")

	require.NoError(t, s.DeleteTask(ctx, b.ID))
	require.NoError(t, s.DeleteTask(ctx, b.ID))
	require.NoError(t, s.DeleteTask(ctx, "does-not-exist"))

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, a.ID, tasks[0].ID)
	assert.Equal(t, c.ID, tasks[1].ID)

	// index must still resolve the shifted task
	updated, err := s.UpdateTaskCompleted(ctx, c.ID, true)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "c", updated.Text)

	// IDs are not reused after a delete
	d, _ := s.CreateTask(ctx, "d")
	assert.Equal(t, "4", d.ID)
}

func TestConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateTask(ctx, "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 50)

	seen := make(map[string]bool)
	for _, task := range tasks {
		assert.False(t, seen[task.ID], "duplicate id %s", task.ID)
		seen[task.ID] = true
	}
}
