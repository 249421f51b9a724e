package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	documentRepo "unmute/database/repository/document"
	"unmute/models"
	ai "unmute/services/intelligence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUser = "user-1"

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("m%d", n.Add(1)) }
}

func newTestSynchronizer(store documentRepo.Store, gw ai.Gateway) *Synchronizer {
	return NewSynchronizer(testUser, store, gw, zap.NewNop(), Options{NewID: sequentialIDs()})
}

func remoteMessages(t *testing.T, store documentRepo.Store) []models.Message {
	t.Helper()
	doc, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	return doc.Messages
}

func TestAppendUserMessage_RejectsBlank(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	gw := ai.NewStubGateway()
	s := newTestSynchronizer(store, gw)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := s.AppendUserMessage(text)
		assert.ErrorIs(t, err, ErrBlankMessage)
	}
	s.Wait()
	assert.Empty(t, s.Transcript())
	assert.Empty(t, gw.Calls())
	_, sets := store.Calls()
	assert.Zero(t, sets)
}

func TestAppendUserMessage_VisibleImmediately(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	gw := ai.NewStubGateway(ai.StubReply{Text: "I hear you.", Delay: 50 * time.Millisecond})
	s := newTestSynchronizer(store, gw)

	msg, err := s.AppendUserMessage("I feel overwhelmed")
	require.NoError(t, err)

	transcript := s.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, msg.ID, transcript[0].ID)
	assert.Equal(t, models.SenderUser, transcript[0].Sender)
	assert.Equal(t, "I feel overwhelmed", transcript[0].Text)
	assert.True(t, transcript[0].Pending)

	s.Wait()
	transcript = s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, models.SenderAssistant, transcript[1].Sender)
	assert.Equal(t, "I hear you.", transcript[1].Text)
}

func TestAppendUserMessage_KeepsCallOrder(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	texts := []string{"first", "second", "third", "fourth"}
	replies := make([]ai.StubReply, len(texts))
	for i := range replies {
		replies[i] = ai.StubReply{Text: "ok", Delay: 200 * time.Millisecond}
	}
	s := newTestSynchronizer(store, ai.NewStubGateway(replies...))

	for i, text := range texts {
		before := len(s.Transcript())
		_, err := s.AppendUserMessage(text)
		require.NoError(t, err)
		require.Len(t, s.Transcript(), before+1, "append %d", i)
	}
	s.Wait()

	var users []string
	for _, m := range s.Transcript() {
		if m.Sender == models.SenderUser {
			users = append(users, m.Text)
		}
	}
	assert.Equal(t, texts, users)
	assert.Len(t, s.Transcript(), 2*len(texts))
}

func TestAppendUserMessage_SendsFullHistory(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	gw := ai.NewStubGateway(ai.StubReply{Text: "hello"}, ai.StubReply{Text: "tell me more"})
	s := newTestSynchronizer(store, gw)

	_, err := s.AppendUserMessage("hi")
	require.NoError(t, err)
	s.Wait()
	_, err = s.AppendUserMessage("rough week")
	require.NoError(t, err)
	s.Wait()

	calls := gw.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []models.Turn{
		{Role: models.SenderUser, Text: "hi"},
		{Role: models.SenderAssistant, Text: "hello"},
		{Role: models.SenderUser, Text: "rough week"},
	}, calls[1])
}

func TestAppendUserMessage_PersistsTranscript(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	store.Seed(testUser, &models.SessionDocument{Bookings: []models.Booking{{ID: "bk_1"}}})
	gw := ai.NewStubGateway(ai.StubReply{Text: "welcome"})
	s := newTestSynchronizer(store, gw)

	_, err := s.AppendUserMessage("hello")
	require.NoError(t, err)
	s.Wait()

	remote := remoteMessages(t, store)
	require.Len(t, remote, 2)
	assert.Equal(t, "hello", remote[0].Text)
	assert.Equal(t, "welcome", remote[1].Text)
	for _, m := range remote {
		assert.False(t, m.Pending)
		assert.Zero(t, m.Seq)
	}

	doc, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Len(t, doc.Bookings, 1, "ledger must survive a transcript write")
}

func TestGatewayFailure_BecomesAssistantMessage(t *testing.T) {
	cases := map[string]struct {
		err  error
		want ai.Reason
	}{
		"Quota":   {err: errors.New("googleapi: Error 429: Quota exceeded for model"), want: ai.ReasonQuotaExceeded},
		"APIKey":  {err: errors.New("API key not valid. Please pass a valid API key."), want: ai.ReasonAPIKeyInvalid},
		"Network": {err: errors.New("dial tcp: network is unreachable"), want: ai.ReasonNetworkUnavailable},
		"Other":   {err: errors.New("model overloaded"), want: ai.ReasonUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := documentRepo.NewMemoryStore()
			gw := ai.NewStubGateway(ai.StubReply{Err: tc.err})
			s := newTestSynchronizer(store, gw)

			_, err := s.AppendUserMessage("are you there?")
			require.NoError(t, err)
			s.Wait()

			transcript := s.Transcript()
			require.Len(t, transcript, 2)
			assert.Equal(t, models.SenderUser, transcript[0].Sender)
			assert.Equal(t, "are you there?", transcript[0].Text)
			assert.Equal(t, models.SenderAssistant, transcript[1].Sender)
			assert.Equal(t, ai.UserMessage(tc.want), transcript[1].Text)

			assert.Len(t, remoteMessages(t, store), 2)
		})
	}
}

func TestReceiveGeneratedReply_EmptyReplyIsAFailure(t *testing.T) {
	s := newTestSynchronizer(documentRepo.NewMemoryStore(), ai.NewStubGateway())

	s.ReceiveGeneratedReply("  ", nil)
	s.Wait()

	transcript := s.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, ai.UserMessage(ai.ReasonUnknown), transcript[0].Text)
}

func TestStoreFailure_KeepsLocalState(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	store.SetHooks(documentRepo.Hooks{SetErr: errors.New("unavailable")})
	s := newTestSynchronizer(store, ai.NewStubGateway(ai.StubReply{Text: "still here"}))

	_, err := s.AppendUserMessage("hello")
	require.NoError(t, err)
	s.Wait()

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.True(t, transcript[0].Pending)
	assert.True(t, transcript[1].Pending)

	_, sets := store.Calls()
	assert.Equal(t, 2, sets, "each failed write is attempted once")
}

func TestOnRemoteSnapshot_IsIdempotent(t *testing.T) {
	s := newTestSynchronizer(documentRepo.NewMemoryStore(), ai.NewStubGateway())

	var notified atomic.Int32
	stop := s.Listen(func([]models.Message) { notified.Add(1) })
	defer stop()

	snapshot := []models.Message{
		{ID: "a", Text: "hi", Sender: models.SenderUser},
		{ID: "b", Text: "hello", Sender: models.SenderAssistant},
	}
	s.OnRemoteSnapshot(snapshot)
	first := s.Transcript()
	s.OnRemoteSnapshot(snapshot)

	assert.Equal(t, first, s.Transcript())
	assert.Equal(t, int32(1), notified.Load())
}

func TestOnRemoteSnapshot_PendingSurvivesStaleSnapshot(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	gw := ai.NewStubGateway(ai.StubReply{Text: "reply", Delay: 100 * time.Millisecond})
	s := newTestSynchronizer(store, gw)

	s.OnRemoteSnapshot([]models.Message{{ID: "old", Text: "earlier", Sender: models.SenderUser}})
	msg, err := s.AppendUserMessage("new thought")
	require.NoError(t, err)

	// A snapshot from before the local write landed.
	s.OnRemoteSnapshot([]models.Message{{ID: "old", Text: "earlier", Sender: models.SenderUser}})

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "old", transcript[0].ID)
	assert.Equal(t, msg.ID, transcript[1].ID)
	assert.True(t, transcript[1].Pending)

	s.Wait()
}

func TestOnRemoteSnapshot_ConfirmsPending(t *testing.T) {
	s := newTestSynchronizer(documentRepo.NewMemoryStore(), ai.NewStubGateway())
	s.ReceiveGeneratedReply("one", nil)
	s.ReceiveGeneratedReply("two", nil)
	s.Wait()

	local := s.Transcript()
	require.Len(t, local, 2)

	confirmed := local[0]
	confirmed.Pending, confirmed.Seq = false, 0
	s.OnRemoteSnapshot([]models.Message{confirmed})

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.False(t, transcript[0].Pending)
	assert.Equal(t, "two", transcript[1].Text)
	assert.True(t, transcript[1].Pending)
}

func TestOnRemoteSnapshot_RemoteWinsForConfirmed(t *testing.T) {
	s := newTestSynchronizer(documentRepo.NewMemoryStore(), ai.NewStubGateway())
	s.OnRemoteSnapshot([]models.Message{
		{ID: "a", Text: "one", Sender: models.SenderUser},
		{Text: "legacy entry", Sender: models.SenderAssistant},
	})

	s.OnRemoteSnapshot([]models.Message{{Text: "legacy entry", Sender: models.SenderAssistant}})

	transcript := s.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, "legacy entry", transcript[0].Text)
}

func TestReset_DropsLateReplies(t *testing.T) {
	store := documentRepo.NewMemoryStore()
	gw := ai.NewStubGateway(ai.StubReply{Text: "too late", Delay: 50 * time.Millisecond})
	s := newTestSynchronizer(store, gw)

	_, err := s.AppendUserMessage("hello")
	require.NoError(t, err)
	s.Reset()
	s.Wait()

	assert.Empty(t, s.Transcript())
}

func TestListen_ReceivesEveryChange(t *testing.T) {
	s := newTestSynchronizer(documentRepo.NewMemoryStore(), ai.NewStubGateway(ai.StubReply{Text: "hey"}))

	var (
		mu   sync.Mutex
		last []models.Message
	)
	stop := s.Listen(func(m []models.Message) {
		mu.Lock()
		last = m
		mu.Unlock()
	})

	_, err := s.AppendUserMessage("hi")
	require.NoError(t, err)
	s.Wait()

	mu.Lock()
	assert.Len(t, last, 2)
	mu.Unlock()

	stop()
	s.OnRemoteSnapshot(nil)
	mu.Lock()
	assert.Len(t, last, 2, "no delivery after unregistering")
	mu.Unlock()
}
