package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	documentRepo "unmute/database/repository/document"
	"unmute/models"
	ai "unmute/services/intelligence"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBlankMessage rejects an empty or whitespace-only chat message.
var ErrBlankMessage = errors.New("message text is blank")

var errEmptyReply = errors.New("gateway returned an empty reply")

// Options tunes a Synchronizer. Zero values fall back to defaults.
type Options struct {
	// WriteTimeout bounds each transcript merge-write.
	WriteTimeout time.Duration
	// ReplyTimeout bounds a detached gateway call.
	ReplyTimeout time.Duration
	NewID        func() string
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = time.Minute
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Synchronizer keeps one user's in-memory transcript consistent with the
// remote document and with generated replies.
//
// Local appends are visible immediately and marked pending. A remote snapshot
// becomes the new base, and pending messages it does not yet contain are
// re-appended in local order, so a stale snapshot never hides local input.
type Synchronizer struct {
	userID  string
	store   documentRepo.Store
	gateway ai.Gateway
	opts    Options
	logger  *zap.Logger

	mu        sync.Mutex
	messages  []models.Message
	seq       uint64
	epoch     uint64
	listeners map[uint64]func([]models.Message)
	nextID    uint64

	// writeMu serializes persists; each one writes the transcript as of when
	// it acquires the lock.
	writeMu  sync.Mutex
	notifyMu sync.Mutex
	inflight sync.WaitGroup
}

func NewSynchronizer(userID string, store documentRepo.Store, gateway ai.Gateway, logger *zap.Logger, opts Options) *Synchronizer {
	return &Synchronizer{
		userID:    userID,
		store:     store,
		gateway:   gateway,
		opts:      opts.withDefaults(),
		logger:    logger.With(zap.String("userID", userID)),
		messages:  []models.Message{},
		listeners: make(map[uint64]func([]models.Message)),
	}
}

// AppendUserMessage adds a user message to the transcript and returns at once.
// The merge-write and the gateway call run concurrently in the background.
func (s *Synchronizer) AppendUserMessage(text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrBlankMessage
	}

	s.mu.Lock()
	msg := s.appendLocked(models.SenderUser, text)
	history := turns(s.messages)
	epoch := s.epoch
	s.mu.Unlock()

	s.broadcast()

	s.inflight.Add(2)
	go func() {
		defer s.inflight.Done()
		s.persist(epoch)
	}()
	go func() {
		defer s.inflight.Done()
		s.generate(history, epoch)
	}()
	return msg, nil
}

// ReceiveGeneratedReply records the outcome of a gateway call. A failure is
// turned into an assistant message explaining it, so every call ends in
// exactly one assistant message.
func (s *Synchronizer) ReceiveGeneratedReply(text string, err error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	s.receive(text, err, epoch)
}

func (s *Synchronizer) generate(history []models.Turn, epoch uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ReplyTimeout)
	defer cancel()

	reply, err := s.gateway.Send(ctx, history)
	s.receive(reply, err, epoch)
}

func (s *Synchronizer) receive(text string, err error, epoch uint64) {
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyReply
	}
	if err != nil {
		reason := ai.Classify(err)
		s.logger.Warn("response gateway failed", zap.String("reason", string(reason)), zap.Error(err))
		text = ai.UserMessage(reason)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.logger.Debug("dropping reply for a reset transcript")
		return
	}
	s.appendLocked(models.SenderAssistant, text)
	s.mu.Unlock()

	s.broadcast()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.persist(epoch)
	}()
}

// OnRemoteSnapshot applies a transcript delivered by the store subscription.
// Applying the same snapshot twice is a no-op.
func (s *Synchronizer) OnRemoteSnapshot(remote []models.Message) {
	s.mu.Lock()
	merged := reconcile(s.messages, remote)
	if sameMessages(merged, s.messages) {
		s.mu.Unlock()
		return
	}
	s.messages = merged
	s.mu.Unlock()

	s.broadcast()
}

// Transcript returns a copy of the current transcript.
func (s *Synchronizer) Transcript() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

// Listen registers fn to receive the full transcript after every change.
// fn must not block. The returned func unregisters it.
func (s *Synchronizer) Listen(fn func([]models.Message)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Reset empties the local transcript. Replies and writes scheduled before the
// reset are discarded; the remote document is left untouched.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.epoch++
	s.messages = []models.Message{}
	s.mu.Unlock()

	s.broadcast()
}

// Wait blocks until background writes and gateway calls have finished.
func (s *Synchronizer) Wait() {
	s.inflight.Wait()
}

// appendLocked must be called with s.mu held.
func (s *Synchronizer) appendLocked(sender models.Sender, text string) models.Message {
	s.seq++
	msg := models.Message{
		ID:        s.opts.NewID(),
		Text:      text,
		Sender:    sender,
		CreatedAt: s.opts.Now().UTC(),
		Seq:       s.seq,
		Pending:   true,
	}
	s.messages = append(s.messages, msg)
	return msg
}

func (s *Synchronizer) persist(epoch uint64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	latest := cloneMessages(s.messages)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()

	if err := s.store.Set(ctx, s.userID, documentRepo.MessagesPatch(latest)); err != nil {
		s.logger.Error("failed to persist transcript", zap.Int("messages", len(latest)), zap.Error(err))
	}
}

// broadcast sends the current transcript to every listener. Holding notifyMu
// while reading the state keeps the last delivery the most recent one.
func (s *Synchronizer) broadcast() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	snapshot := cloneMessages(s.messages)
	fns := make([]func([]models.Message), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(cloneMessages(snapshot))
	}
}

// reconcile takes remote as the base and re-appends, in Seq order, every
// pending local message remote does not contain yet. Entries without an ID
// are kept where the remote places them.
func reconcile(local, remote []models.Message) []models.Message {
	seen := make(map[string]struct{}, len(remote))
	out := make([]models.Message, 0, len(remote)+1)
	for _, m := range remote {
		m.Pending = false
		m.Seq = 0
		if m.ID != "" {
			seen[m.ID] = struct{}{}
		}
		out = append(out, m)
	}

	var pending []models.Message
	for _, m := range local {
		if !m.Pending || m.ID == "" {
			continue
		}
		if _, ok := seen[m.ID]; !ok {
			pending = append(pending, m)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
	return append(out, pending...)
}

func sameMessages(a, b []models.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Text != y.Text || x.Sender != y.Sender ||
			x.Seq != y.Seq || x.Pending != y.Pending || !x.CreatedAt.Equal(y.CreatedAt) {
			return false
		}
	}
	return true
}

func cloneMessages(in []models.Message) []models.Message {
	out := make([]models.Message, len(in))
	copy(out, in)
	return out
}

// turns converts the transcript into gateway history, oldest first.
func turns(messages []models.Message) []models.Turn {
	out := make([]models.Turn, 0, len(messages))
	for _, m := range messages {
		out = append(out, models.Turn{Role: m.Sender, Text: m.Text})
	}
	return out
}
