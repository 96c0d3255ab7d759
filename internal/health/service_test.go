package health

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesearch/cinesearch/internal/testutil"
)

type recordingNotifier struct {
	mu       sync.Mutex
	issues   []string
	restored []string
}

func (n *recordingNotifier) DispatchHealthIssue(_ context.Context, source, level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.issues = append(n.issues, source+"|"+level+"|"+message)
}

func (n *recordingNotifier) DispatchHealthRestored(_ context.Context, source string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.restored = append(n.restored, source)
}

func TestService_StatusTransitions(t *testing.T) {
	s := NewService(testutil.NopLogger())
	n := &recordingNotifier{}
	s.SetNotifier(n)
	s.RegisterItem(CategoryDatabase, "database", "Database")

	assert.True(t, s.IsHealthy(CategoryDatabase, "database"))

	s.SetError(CategoryDatabase, "database", "connection refused")
	s.SetError(CategoryDatabase, "database", "connection refused")
	assert.False(t, s.IsHealthy(CategoryDatabase, "database"))

	item := s.GetItem(CategoryDatabase, "database")
	require.NotNil(t, item)
	assert.Equal(t, StatusError, item.Status)
	assert.NotNil(t, item.Timestamp)

	s.ClearStatus(CategoryDatabase, "database")
	assert.True(t, s.IsHealthy(CategoryDatabase, "database"))
	assert.Nil(t, s.GetItem(CategoryDatabase, "database").Timestamp)

	assert.Equal(t, []string{"database: Database|error|connection refused"}, n.issues)
	assert.Equal(t, []string{"database: Database"}, n.restored)
}

func TestService_WarningToErrorNotifiesOnce(t *testing.T) {
	s := NewService(testutil.NopLogger())
	n := &recordingNotifier{}
	s.SetNotifier(n)
	s.RegisterItem(CategoryCache, "redis", "Redis")

	s.SetWarning(CategoryCache, "redis", "slow")
	s.SetError(CategoryCache, "redis", "down")

	assert.Len(t, n.issues, 1)
	assert.Empty(t, n.restored)
}

func TestService_UnregisteredItemIgnored(t *testing.T) {
	s := NewService(testutil.NopLogger())
	s.SetError(CategoryTelegram, "missing", "boom")
	assert.Nil(t, s.GetItem(CategoryTelegram, "missing"))
	assert.False(t, s.IsHealthy(CategoryTelegram, "missing"))
}

func TestService_RunChecks(t *testing.T) {
	s := NewService(testutil.NopLogger())

	dbErr := errors.New("database is locked")
	var failing bool
	s.AddCheck(CategoryDatabase, "database", "Database", func(context.Context) error {
		if failing {
			return dbErr
		}
		return nil
	})
	s.AddCheck(CategoryTelegram, "telegram", "Telegram API", func(context.Context) error { return nil })

	require.NoError(t, s.RunChecks(context.Background()))
	assert.False(t, s.GetSummary().HasIssues)

	failing = true
	require.NoError(t, s.RunChecks(context.Background()))

	summary := s.GetSummary()
	assert.True(t, summary.HasIssues)
	require.Len(t, summary.Items, 2)
	assert.Equal(t, "database", summary.Items[0].ID)
	assert.Equal(t, StatusError, summary.Items[0].Status)
	assert.Equal(t, "database is locked", summary.Items[0].Message)
	assert.Equal(t, StatusOK, summary.Items[1].Status)
}

func TestService_RunChecksStopsOnCancel(t *testing.T) {
	s := NewService(testutil.NopLogger())
	called := false
	s.AddCheck(CategoryDatabase, "database", "Database", func(context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RunChecks(ctx), context.Canceled)
	assert.False(t, called)
}

func TestItem_MarshalJSONHidesDetailsWhenOK(t *testing.T) {
	raw, err := json.Marshal(Item{ID: "redis", Category: CategoryCache, Name: "Redis", Status: StatusOK, Message: "stale"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "stale")

	raw, err = json.Marshal(Item{ID: "redis", Category: CategoryCache, Name: "Redis", Status: StatusError, Message: "down"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"message":"down"`)
}
