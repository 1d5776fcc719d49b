package conversation

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"agribot-workers/internal/common/logger"
	"agribot-workers/internal/knowledge"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test:conv:"), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	id := int64(12)
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	state := &State{
		UserID:         "farmer-1",
		ConversationID: &id,
		SessionID:      "session-1",
		CurrentTopic:   "pest_control",
		MentionedCrops: []string{"maize"},
		SessionStart:   start,
		LastActivity:   start.Add(time.Minute),
		TurnCount:      2,
		History: []Turn{{
			Timestamp: start.Add(time.Minute),
			UserText:  "armyworms in my maize",
			Intent:    "pest_control",
			Entities:  map[string][]string{"pests": {"armyworm"}},
		}},
	}

	require.NoError(t, store.Put(ctx, state))
	assert.True(t, mr.Exists("test:conv:farmer-1"))

	got, err := store.Get(ctx, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), *got.ConversationID)
	assert.Equal(t, "pest_control", got.CurrentTopic)
	assert.True(t, start.Add(time.Minute).Equal(got.LastActivity))
	require.Len(t, got.History, 1)
	assert.Equal(t, []string{"armyworm"}, got.History[0].Entities["pests"])

	require.NoError(t, store.Delete(ctx, "farmer-1"))
	_, err = store.Get(ctx, "farmer-1")
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestRedisStore_List(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	for _, user := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, &State{UserID: user}))
	}
	require.NoError(t, mr.Set("other:key", "ignored"))

	states, err := store.List(ctx)
	require.NoError(t, err)

	var users []string
	for _, s := range states {
		users = append(users, s.UserID)
	}
	sort.Strings(users)
	assert.Equal(t, []string{"a", "b", "c"}, users)
}

func TestRedisStore_ListEmpty(t *testing.T) {
	store, _ := newMiniredisStore(t)

	states, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestRedisStore_CorruptSnapshot(t *testing.T) {
	store, mr := newMiniredisStore(t)
	require.NoError(t, mr.Set("test:conv:broken", "{not json"))

	_, err := store.Get(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode state")
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client, "")
		mock.ExpectGet(DefaultKeyPrefix + "farmer-1").SetErr(errors.New("connection refused"))

		_, err := store.Get(ctx, "farmer-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrStateNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing key", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client, "")
		mock.ExpectGet(DefaultKeyPrefix + "farmer-1").RedisNil()

		_, err := store.Get(ctx, "farmer-1")
		assert.ErrorIs(t, err, ErrStateNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client, "")
		mock.ExpectDel(DefaultKeyPrefix + "farmer-1").SetErr(errors.New("READONLY"))

		assert.Error(t, store.Delete(ctx, "farmer-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scan", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client, "")
		mock.ExpectScan(0, DefaultKeyPrefix+"*", scanBatch).SetErr(errors.New("timeout"))

		_, err := store.List(ctx)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTracker_StoreFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	tracker := NewTracker(NewRedisStore(client, ""), nil, nil, knowledge.Default().Conversation, Options{}, logger.NewTestLogger(t))
	ctx := context.Background()

	mock.ExpectGet(DefaultKeyPrefix + "farmer-1").SetErr(errors.New("connection refused"))
	_, err := tracker.GetOrCreate(ctx, "farmer-1", "", "")
	assert.ErrorIs(t, err, ErrStateStoreFailed)

	mock.ExpectGet(DefaultKeyPrefix + "farmer-1").SetErr(errors.New("connection refused"))
	_, err = tracker.Update(ctx, "farmer-1", "hi", labelled("greeting", 1), "hello")
	assert.ErrorIs(t, err, ErrStateStoreFailed)
	assert.NotErrorIs(t, err, ErrNoActiveConversation)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTracker_SharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newTracker := func() *Tracker {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewTracker(NewRedisStore(client, ""), nil, nil, knowledge.Default().Conversation, Options{}, logger.NewNoOpLogger())
	}
	first, second := newTracker(), newTracker()

	_, err := first.GetOrCreate(ctx, "farmer-1", "", "")
	require.NoError(t, err)

	state, err := second.Update(ctx, "farmer-1", "my maize", labelled("planting_guidance", 0.8, "maize"), "plant in march")
	require.NoError(t, err)
	assert.Equal(t, 1, state.TurnCount)

	summary, err := first.Summary(ctx, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TurnCount)
	assert.Equal(t, []string{"maize"}, summary.Entities["crops"])
}
