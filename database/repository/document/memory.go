package documentRepo

import (
	"context"
	"sync"
	"time"

	"unmute/models"
)

// Hooks inject latency and failures into a MemoryStore.
type Hooks struct {
	GetDelay time.Duration
	SetDelay time.Duration
	GetErr   error
	SetErr   error
	PingErr  error
	// SubscribeDelay delivers the initial snapshot from a goroutine after
	// the delay, the way the networked backends do.
	SubscribeDelay time.Duration
}

// MemoryStore is an in-process Store used for local development and tests.
// Subscribers are notified synchronously after each successful write, in
// write order. The initial snapshot is delivered inside Subscribe unless
// Hooks.SubscribeDelay is set.
type MemoryStore struct {
	mu       sync.Mutex
	notifyMu sync.Mutex
	docs     map[string]*models.SessionDocument
	subs     map[string]map[uint64]func(*models.SessionDocument)
	nextSub  uint64
	hooks    Hooks
	gets     int
	sets     int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*models.SessionDocument),
		subs: make(map[string]map[uint64]func(*models.SessionDocument)),
	}
}

// SetHooks replaces the latency/failure hooks.
func (s *MemoryStore) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Seed stores doc for userID without notifying subscribers.
func (s *MemoryStore) Seed(userID string, doc *models.SessionDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := CloneDocument(doc)
	if cp.Version == 0 {
		cp.Version = 1
	}
	s.docs[userID] = cp
}

// Calls reports how many Get and Set-style calls reached the store.
func (s *MemoryStore) Calls() (gets, sets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.sets
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*models.SessionDocument, error) {
	s.mu.Lock()
	s.gets++
	h := s.hooks
	s.mu.Unlock()

	if err := sleep(ctx, h.GetDelay); err != nil {
		return nil, err
	}
	if h.GetErr != nil {
		return nil, h.GetErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return CloneDocument(doc), nil
}

func (s *MemoryStore) Set(ctx context.Context, userID string, patch Patch) error {
	return s.write(ctx, userID, patch, -1)
}

func (s *MemoryStore) SetIfVersion(ctx context.Context, userID string, patch Patch, version int64) error {
	return s.write(ctx, userID, patch, version)
}

func (s *MemoryStore) AppendBookings(ctx context.Context, userID string, bookings ...models.Booking) error {
	s.mu.Lock()
	s.sets++
	h := s.hooks
	s.mu.Unlock()

	if err := sleep(ctx, h.SetDelay); err != nil {
		return err
	}
	if h.SetErr != nil {
		return h.SetErr
	}

	s.mu.Lock()
	doc := s.docOrEmpty(userID)
	for _, b := range bookings {
		if !containsBooking(doc.Bookings, b.ID) {
			doc.Bookings = append(doc.Bookings, b)
		}
	}
	doc.Version++
	snap, listeners := CloneDocument(doc), s.listeners(userID)
	s.notifyMu.Lock()
	s.mu.Unlock()

	notify(listeners, snap)
	s.notifyMu.Unlock()
	return nil
}

// write applies patch; version < 0 means unconditional.
func (s *MemoryStore) write(ctx context.Context, userID string, patch Patch, version int64) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.sets++
	h := s.hooks
	s.mu.Unlock()

	if err := sleep(ctx, h.SetDelay); err != nil {
		return err
	}
	if h.SetErr != nil {
		return h.SetErr
	}

	s.mu.Lock()
	if version >= 0 {
		var current int64
		if existing, ok := s.docs[userID]; ok {
			current = existing.Version
		}
		if current != version {
			s.mu.Unlock()
			return ErrVersionConflict
		}
	}
	doc := s.docOrEmpty(userID)
	if err := ApplyPatch(doc, patch); err != nil {
		s.mu.Unlock()
		return err
	}
	doc.Version++
	snap, listeners := CloneDocument(doc), s.listeners(userID)
	s.notifyMu.Lock()
	s.mu.Unlock()

	notify(listeners, snap)
	s.notifyMu.Unlock()
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, userID string, onChange func(*models.SessionDocument)) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[uint64]func(*models.SessionDocument))
	}
	s.subs[userID][id] = onChange
	delay := s.hooks.SubscribeDelay
	var initial *models.SessionDocument
	if doc, ok := s.docs[userID]; ok && delay <= 0 {
		initial = CloneDocument(doc)
	}
	s.mu.Unlock()

	if initial != nil {
		onChange(initial)
	}
	if delay > 0 {
		go s.deliverLater(ctx, userID, id, delay)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[userID], id)
			s.mu.Unlock()
		})
	}, nil
}

// deliverLater sends the current document to subscription id once the delay
// has passed, unless it was cancelled in the meantime.
func (s *MemoryStore) deliverLater(ctx context.Context, userID string, id uint64, delay time.Duration) {
	if err := sleep(ctx, delay); err != nil {
		return
	}

	s.mu.Lock()
	onChange, live := s.subs[userID][id]
	doc, ok := s.docs[userID]
	if !live || !ok {
		s.mu.Unlock()
		return
	}
	snap := CloneDocument(doc)
	s.notifyMu.Lock()
	s.mu.Unlock()

	onChange(snap)
	s.notifyMu.Unlock()
}

// Subscribers reports the number of live subscriptions for userID.
func (s *MemoryStore) Subscribers(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[userID])
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks.PingErr
}

// docOrEmpty must be called with s.mu held.
func (s *MemoryStore) docOrEmpty(userID string) *models.SessionDocument {
	doc, ok := s.docs[userID]
	if !ok {
		doc = &models.SessionDocument{Messages: []models.Message{}, Bookings: []models.Booking{}}
		s.docs[userID] = doc
	}
	return doc
}

// listeners must be called with s.mu held.
func (s *MemoryStore) listeners(userID string) []func(*models.SessionDocument) {
	out := make([]func(*models.SessionDocument), 0, len(s.subs[userID]))
	for _, fn := range s.subs[userID] {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(*models.SessionDocument), snap *models.SessionDocument) {
	for _, fn := range listeners {
		fn(CloneDocument(snap))
	}
}

func containsBooking(bookings []models.Booking, id string) bool {
	for _, b := range bookings {
		if b.ID == id {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
