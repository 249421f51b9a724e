package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	documentRepo "unmute/database/repository/document"
	"unmute/models"
	"unmute/services/booking"
	"unmute/services/health"
	ai "unmute/services/intelligence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(store documentRepo.Store, gw ai.Gateway) *Manager {
	return NewManager(store, gw, health.Static(true), ManagerConfig{
		Sync: Options{NewID: sequentialIDs()},
		Booking: booking.Config{
			Timeout:    time.Second,
			AppendMode: booking.AppendVersioned,
			MaxRetries: 3,
			NoticeTTL:  time.Minute,
		},
	}, zap.NewNop())
}

func TestOpen_CreatesMissingDocument(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	m := newTestManager(store, ai.NewStubGateway())
	defer m.Close()

	sess, err := m.Open(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, testUser, sess.UserID)

	doc, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, doc.Messages)
	assert.Empty(t, doc.Bookings)
	assert.Equal(t, 1, store.Subscribers(testUser))
	assert.Empty(t, sess.Chat.Transcript())
}

func TestOpen_SeedsFromExistingDocument(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	store.Seed(testUser, &models.SessionDocument{
		Messages: []models.Message{
			{ID: "a", Text: "hi", Sender: models.SenderUser},
			{ID: "b", Text: "hello there", Sender: models.SenderAssistant},
		},
		Bookings: []models.Booking{{ID: "bk_1", ServiceType: models.ServiceHelpline}},
	})
	m := newTestManager(store, ai.NewStubGateway())
	defer m.Close()

	sess, err := m.Open(context.Background(), testUser)
	require.NoError(t, err)
	assert.Len(t, sess.Chat.Transcript(), 2)
	assert.Len(t, sess.Bookings(), 1)
}

func TestOpen_SeedsBeforeFirstSnapshot(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	store.Seed(testUser, &models.SessionDocument{
		Messages: []models.Message{
			{ID: "a", Text: "I can't sleep", Sender: models.SenderUser},
			{ID: "b", Text: "That sounds exhausting.", Sender: models.SenderAssistant},
		},
		Bookings: []models.Booking{{ID: "bk_1", ServiceType: models.ServiceCounselor}},
	})
	store.SetHooks(documentRepo.Hooks{SubscribeDelay: 50 * time.Millisecond})
	gw := ai.NewStubGateway(ai.StubReply{Text: "What keeps you up?"})
	m := newTestManager(store, gw)
	defer m.Close()

	sess, err := m.Open(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, sess.Chat.Transcript(), 2, "history is loaded before Open returns")
	assert.Len(t, sess.Bookings(), 1)

	_, err = sess.Chat.AppendUserMessage("hello again")
	require.NoError(t, err)
	sess.Chat.Wait()

	texts := make([]string, 0, 4)
	for _, msg := range remoteMessages(t, store) {
		texts = append(texts, msg.Text)
	}
	assert.Equal(t, []string{"I can't sleep", "That sounds exhausting.", "hello again", "What keeps you up?"}, texts)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 3, "reply is generated with the stored history")
}

func TestOpen_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	store.SetHooks(documentRepo.Hooks{GetDelay: 50 * time.Millisecond})
	m := newTestManager(store, ai.NewStubGateway())
	defer m.Close()

	first, cancelFirst := context.WithCancel(context.Background())
	var (
		wg       sync.WaitGroup
		sessions [2]*Session
		errs     [2]error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions[0], errs[0] = m.Open(first, testUser)
	}()
	time.Sleep(10 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions[1], errs[1] = m.Open(context.Background(), testUser)
	}()
	time.Sleep(10 * time.Millisecond)
	cancelFirst()
	wg.Wait()

	require.NoError(t, errs[1])
	require.NoError(t, errs[0])
	assert.Same(t, sessions[0], sessions[1])
	assert.Equal(t, 1, store.Subscribers(testUser))
}

func TestOpen_ReusesSession(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	m := newTestManager(store, ai.NewStubGateway())
	defer m.Close()

	var wg sync.WaitGroup
	opened := make([]*Session, 8)
	for i := range opened {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := m.Open(context.Background(), testUser)
			assert.NoError(t, err)
			opened[i] = sess
		}(i)
	}
	wg.Wait()

	for _, sess := range opened {
		assert.Same(t, opened[0], sess)
	}
	assert.Equal(t, 1, store.Subscribers(testUser))
}

func TestOpen_StoreFailure(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	store.SetHooks(documentRepo.Hooks{GetErr: errors.New("permission denied")})
	m := newTestManager(store, ai.NewStubGateway())
	defer m.Close()

	_, err := m.Open(context.Background(), testUser)
	require.Error(t, err)
	_, ok := m.Get(testUser)
	assert.False(t, ok)
}

func TestSession_BookingReachesLedgerCache(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	m := newTestManager(store, ai.NewStubGateway())
	defer m.Close()

	sess, err := m.Open(context.Background(), testUser)
	require.NoError(t, err)

	out, err := sess.Booker.Submit(context.Background(), models.BookingForm{
		ServiceType: models.ServiceCounselor, Date: "2025-10-01", Time: "9:00 AM",
	})
	require.NoError(t, err)
	require.Equal(t, booking.StateSucceeded, out.State)

	bookings := sess.Bookings()
	require.Len(t, bookings, 1)
	assert.Equal(t, out.Booking.ID, bookings[0].ID)
}

func TestSession_ChatAndBookingShareDocument(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	m := newTestManager(store, ai.NewStubGateway(ai.StubReply{Text: "glad you reached out"}))
	defer m.Close()

	sess, err := m.Open(context.Background(), testUser)
	require.NoError(t, err)

	_, err = sess.Chat.AppendUserMessage("I booked a session")
	require.NoError(t, err)
	_, err = sess.Booker.Submit(context.Background(), models.BookingForm{
		ServiceType: models.ServiceHelpline, Date: "2025-10-02", Time: "1:00 PM",
	})
	require.NoError(t, err)
	sess.Chat.Wait()

	doc, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Len(t, doc.Messages, 2)
	assert.Len(t, doc.Bookings, 1)

	for _, msg := range sess.Chat.Transcript() {
		assert.False(t, msg.Pending, "subscription confirms persisted messages")
	}
}

func TestSignOut(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	m := newTestManager(store, ai.NewStubGateway(ai.StubReply{Text: "hello"}))
	defer m.Close()

	sess, err := m.Open(context.Background(), testUser)
	require.NoError(t, err)
	_, err = sess.Chat.AppendUserMessage("hi")
	require.NoError(t, err)
	sess.Chat.Wait()

	assert.True(t, m.SignOut(testUser))
	assert.False(t, m.SignOut(testUser))
	assert.Empty(t, sess.Chat.Transcript())
	assert.Zero(t, store.Subscribers(testUser))
	_, ok := m.Get(testUser)
	assert.False(t, ok)

	assert.Len(t, remoteMessages(t, store), 2, "sign-out leaves the stored transcript alone")

	reopened, err := m.Open(context.Background(), testUser)
	require.NoError(t, err)
	assert.NotSame(t, sess, reopened)
	assert.Len(t, reopened.Chat.Transcript(), 2)
}
