//go:build integration
// +build integration

package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toddbot/todd/internal/agent"
	"github.com/toddbot/todd/internal/testutil"
)

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dbContainer, cleanup := testutil.SetupTestDB(t)

	store, err := New(dbContainer.Pool, testutil.DiscardLogger())
	require.NoError(t, err, "New should not return error")
	return store, cleanup
}

func TestStore_CreateAndGet_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	sess, err := store.Create(ctx, "ada", "Groceries planning")
	require.NoError(t, err, "Create should not return error")
	require.NotNil(t, sess)
	assert.NotEqual(t, uuid.Nil, sess.ID)
	assert.Equal(t, "ada", sess.Username)
	assert.Equal(t, "Groceries planning", sess.Title)
	assert.Zero(t, sess.MessageCount)
	assert.NotZero(t, sess.CreatedAt)
	assert.NotZero(t, sess.UpdatedAt)

	retrieved, err := store.Get(ctx, sess.ID)
	require.NoError(t, err, "Get should not return error")
	assert.Equal(t, sess.ID, retrieved.ID)
	assert.Equal(t, sess.Username, retrieved.Username)
	assert.Equal(t, sess.Title, retrieved.Title)
}

func TestStore_CreateValidation_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Create(ctx, "", "title")
	assert.Error(t, err, "Create without username should fail")

	// Empty title is allowed and round-trips as empty.
	sess, err := store.Create(ctx, "ada", "")
	require.NoError(t, err)
	retrieved, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, retrieved.Title)

	// Long titles are truncated to the stored limit.
	long := strings.Repeat("x", TitleMaxLength*2)
	sess, err = store.Create(ctx, "ada", long)
	require.NoError(t, err)
	assert.Len(t, []rune(sess.Title), TitleMaxLength)
	assert.True(t, strings.HasSuffix(sess.Title, "..."))
}

func TestStore_Get_NotFound_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	var created []*Session
	for i := range 3 {
		sess, err := store.Create(ctx, "ada", fmt.Sprintf("Session %d", i))
		require.NoError(t, err)
		created = append(created, sess)
	}
	_, err := store.Create(ctx, "grace", "Someone else's session")
	require.NoError(t, err)

	// Touch the oldest session so it becomes the most recently updated.
	require.NoError(t, store.AppendTurns(ctx, created[0].ID, []agent.Turn{
		{Role: agent.RoleUser, Content: "hello"},
	}))

	sessions, err := store.List(ctx, "ada", 10, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 3, "List should only return ada's sessions")
	assert.Equal(t, created[0].ID, sessions[0].ID, "most recently updated first")
	for _, sess := range sessions {
		assert.Equal(t, "ada", sess.Username)
	}

	// Pagination.
	page, err := store.List(ctx, "ada", 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	rest, err := store.List(ctx, "ada", 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestStore_Delete_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	sess, err := store.Create(ctx, "ada", "Doomed")
	require.NoError(t, err)
	require.NoError(t, store.AppendTurns(ctx, sess.ID, []agent.Turn{
		{Role: agent.RoleUser, Content: "hi"},
		{Role: agent.RoleAssistant, Content: "hello"},
	}))

	require.NoError(t, store.Delete(ctx, sess.ID))

	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Turns are gone too (CASCADE).
	turns, err := store.History(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)

	assert.ErrorIs(t, store.Delete(ctx, sess.ID), ErrNotFound)
}

func TestStore_Rename_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	sess, err := store.Create(ctx, "ada", "Old title")
	require.NoError(t, err)

	require.NoError(t, store.Rename(ctx, sess.ID, "New title"))

	retrieved, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "New title", retrieved.Title)

	assert.ErrorIs(t, store.Rename(ctx, uuid.New(), "whatever"), ErrNotFound)
}

func TestStore_AppendTurnsAndHistory_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	sess, err := store.Create(ctx, "ada", "Shopping")
	require.NoError(t, err)

	first := []agent.Turn{
		{Role: agent.RoleUser, Content: "add milk to my list"},
		{Role: agent.RoleTool, Content: "Tool task_create result:\ncreated"},
		{Role: agent.RoleAssistant, Content: "Added milk."},
	}
	require.NoError(t, store.AppendTurns(ctx, sess.ID, first))

	second := []agent.Turn{
		{Role: agent.RoleUser, Content: "what's on it?"},
		{Role: agent.RoleAssistant, Content: "Just milk."},
	}
	require.NoError(t, store.AppendTurns(ctx, sess.ID, second))

	turns, err := store.History(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, turns, 5)

	want := append(append([]agent.Turn{}, first...), second...)
	for i, turn := range turns {
		assert.Equal(t, want[i].Role, turn.Role, "turn %d role", i)
		assert.Equal(t, want[i].Content, turn.Content, "turn %d content", i)
		assert.NotZero(t, turn.Timestamp, "turn %d timestamp", i)
	}

	retrieved, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, retrieved.MessageCount)
	assert.True(t, retrieved.UpdatedAt.After(sess.UpdatedAt) || retrieved.UpdatedAt.Equal(sess.UpdatedAt))
}

func TestStore_AppendTurns_EmptyAndMissing_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	// Appending nothing is a no-op, even for a missing session.
	require.NoError(t, store.AppendTurns(ctx, uuid.New(), nil))

	err := store.AppendTurns(ctx, uuid.New(), []agent.Turn{
		{Role: agent.RoleUser, Content: "hello?"},
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AppendTurns_Concurrent_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	sess, err := store.Create(ctx, "ada", "Contended")
	require.NoError(t, err)

	const (
		writers       = 8
		turnsPerBatch = 3
	)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turns := make([]agent.Turn, turnsPerBatch)
			for i := range turns {
				turns[i] = agent.Turn{
					Role:    agent.RoleUser,
					Content: fmt.Sprintf("writer %d turn %d", w, i),
				}
			}
			errs <- store.AppendTurns(ctx, sess.ID, turns)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err, "concurrent append should not fail")
	}

	// The row lock serializes appends, so sequence numbers are dense
	// and every turn survives.
	turns, err := store.History(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, turns, writers*turnsPerBatch)

	retrieved, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, writers*turnsPerBatch, retrieved.MessageCount)

	var seqCount int
	err = store.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT sequence_number) FROM session_messages WHERE session_id = $1`,
		sess.ID).Scan(&seqCount)
	require.NoError(t, err)
	assert.Equal(t, writers*turnsPerBatch, seqCount, "sequence numbers must be unique")
}

func TestStore_History_Empty_Integration(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	sess, err := store.Create(ctx, "ada", "Fresh")
	require.NoError(t, err)

	turns, err := store.History(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}
