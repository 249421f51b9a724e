package documentRepo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"unmute/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetMergesFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	msgs := []models.Message{{ID: "m1", Text: "hi", Sender: models.SenderUser, Seq: 4, Pending: true}}
	require.NoError(t, s.Set(ctx, "u1", MessagesPatch(msgs)))
	require.NoError(t, s.Set(ctx, "u1", BookingsPatch([]models.Booking{{ID: "b1"}})))

	doc, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, doc.Messages, 1)
	assert.Equal(t, "hi", doc.Messages[0].Text)
	assert.False(t, doc.Messages[0].Pending, "local bookkeeping must not be persisted")
	assert.Zero(t, doc.Messages[0].Seq)
	require.Len(t, doc.Bookings, 1)
	assert.Equal(t, int64(2), doc.Version)
}

func TestMemoryStore_RejectsUnknownPatchField(t *testing.T) {
	s := NewMemoryStore()
	err := s.Set(context.Background(), "u1", Patch{"profile": "x"})
	assert.Error(t, err)
}

func TestMemoryStore_SetIfVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("CreateWhenAbsent", func(t *testing.T) {
		require.NoError(t, s.SetIfVersion(ctx, "u1", BookingsPatch([]models.Booking{{ID: "b1"}}), 0))
	})

	t.Run("CreateWhenPresentConflicts", func(t *testing.T) {
		err := s.SetIfVersion(ctx, "u1", BookingsPatch(nil), 0)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("StaleVersionConflicts", func(t *testing.T) {
		doc, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		require.NoError(t, s.Set(ctx, "u1", MessagesPatch(nil)))

		err = s.SetIfVersion(ctx, "u1", BookingsPatch(nil), doc.Version)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("CurrentVersionWins", func(t *testing.T) {
		doc, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		require.NoError(t, s.SetIfVersion(ctx, "u1", BookingsPatch(append(doc.Bookings, models.Booking{ID: "b2"})), doc.Version))

		doc, err = s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, doc.Bookings, 2)
	})
}

func TestMemoryStore_AppendBookingsIsUnion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendBookings(ctx, "u1", models.Booking{ID: string(rune('a' + i))})
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.AppendBookings(ctx, "u1", models.Booking{ID: "a"}))

	doc, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, doc.Bookings, 20)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed("u1", &models.SessionDocument{Messages: []models.Message{{ID: "m0", Text: "seed"}}})

	var mu sync.Mutex
	var seen []*models.SessionDocument
	unsubscribe, err := s.Subscribe(ctx, "u1", func(doc *models.SessionDocument) {
		mu.Lock()
		seen = append(seen, doc)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Subscribers("u1"))

	require.NoError(t, s.Set(ctx, "u1", MessagesPatch([]models.Message{{ID: "m1", Text: "next"}})))
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.Set(ctx, "u1", MessagesPatch(nil)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2, "initial snapshot plus one change, nothing after unsubscribe")
	assert.Equal(t, "seed", seen[0].Messages[0].Text)
	assert.Equal(t, "next", seen[1].Messages[0].Text)
	assert.Equal(t, 0, s.Subscribers("u1"))
}

func TestMemoryStore_SubscribeDelay(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed("u1", &models.SessionDocument{Messages: []models.Message{{ID: "m0", Text: "seed"}}})
	s.SetHooks(Hooks{SubscribeDelay: 30 * time.Millisecond})

	delivered := make(chan *models.SessionDocument, 4)
	unsubscribe, err := s.Subscribe(ctx, "u1", func(doc *models.SessionDocument) {
		delivered <- doc
	})
	require.NoError(t, err)
	defer unsubscribe()
	assert.Empty(t, delivered, "nothing is delivered inside Subscribe")

	select {
	case doc := <-delivered:
		require.Len(t, doc.Messages, 1)
		assert.Equal(t, "seed", doc.Messages[0].Text)
	case <-time.After(time.Second):
		t.Fatal("initial snapshot never arrived")
	}

	cancelled := NewMemoryStore()
	cancelled.Seed("u1", &models.SessionDocument{})
	cancelled.SetHooks(Hooks{SubscribeDelay: 30 * time.Millisecond})
	stop, err := cancelled.Subscribe(ctx, "u1", func(doc *models.SessionDocument) {
		delivered <- doc
	})
	require.NoError(t, err)
	stop()
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, delivered, "unsubscribed before delivery")
}

func TestMemoryStore_Hooks(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("permission denied")
	s.SetHooks(Hooks{SetErr: boom, GetDelay: 50 * time.Millisecond})

	assert.ErrorIs(t, s.Set(context.Background(), "u1", MessagesPatch(nil)), boom)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := s.Get(ctx, "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	gets, sets := s.Calls()
	assert.Equal(t, 1, gets)
	assert.Equal(t, 1, sets)
}

func TestApplyPatch_LeavesOtherFields(t *testing.T) {
	doc := &models.SessionDocument{
		Messages: []models.Message{{ID: "m1"}},
		Bookings: []models.Booking{{ID: "b1"}},
	}
	require.NoError(t, ApplyPatch(doc, BookingsPatch([]models.Booking{{ID: "b1"}, {ID: "b2"}})))
	assert.Len(t, doc.Messages, 1)
	assert.Len(t, doc.Bookings, 2)
}
