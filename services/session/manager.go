package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	documentRepo "unmute/database/repository/document"
	"unmute/models"
	"unmute/services/booking"
	ai "unmute/services/intelligence"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Session is the live state of one authenticated user.
type Session struct {
	UserID string
	Chat   *Synchronizer
	Booker *booking.Writer

	unsubscribe func()

	mu       sync.RWMutex
	bookings []models.Booking
}

// Bookings returns the booking ledger as last delivered by the subscription.
func (s *Session) Bookings() []models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Booking, len(s.bookings))
	copy(out, s.bookings)
	return out
}

func (s *Session) apply(doc *models.SessionDocument) {
	if doc == nil {
		return
	}
	s.Chat.OnRemoteSnapshot(doc.Messages)

	bookings := doc.Bookings
	if bookings == nil {
		bookings = []models.Booking{}
	}
	s.mu.Lock()
	s.bookings = bookings
	s.mu.Unlock()
}

// ManagerConfig groups the per-session component settings.
type ManagerConfig struct {
	Sync    Options
	Booking booking.Config
}

// Manager owns the sessions of every signed-in user.
type Manager struct {
	store   documentRepo.Store
	gateway ai.Gateway
	online  booking.OnlineChecker
	cfg     ManagerConfig
	logger  *zap.Logger

	// base outlives individual requests; subscriptions are bound to it.
	base   context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(store documentRepo.Store, gateway ai.Gateway, online booking.OnlineChecker, cfg ManagerConfig, logger *zap.Logger) *Manager {
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    store,
		gateway:  gateway,
		online:   online,
		cfg:      cfg,
		logger:   logger,
		base:     base,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Open returns the user's session, creating it on first access. A missing
// document is created empty, and the transcript and booking cache are seeded
// from the stored document before the subscription is attached.
func (m *Manager) Open(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("open session: empty user id")
	}
	if sess, ok := m.Get(userID); ok {
		return sess, nil
	}

	v, err, _ := m.group.Do(userID, func() (interface{}, error) {
		if sess, ok := m.Get(userID); ok {
			return sess, nil
		}
		// Shared by every concurrent caller, so one cancelled request must
		// not fail the others.
		createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Sync.withDefaults().WriteTimeout)
		defer cancel()
		return m.create(createCtx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) create(ctx context.Context, userID string) (*Session, error) {
	doc, err := m.ensureDocument(ctx, userID)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		UserID:   userID,
		Chat:     NewSynchronizer(userID, m.store, m.gateway, m.logger, m.cfg.Sync),
		Booker:   booking.NewWriter(userID, m.store, m.online, m.cfg.Booking, m.logger),
		bookings: []models.Booking{},
	}
	sess.apply(doc)

	unsubscribe, err := m.store.Subscribe(m.base, userID, sess.apply)
	if err != nil {
		return nil, fmt.Errorf("subscribe to session document: %w", err)
	}
	sess.unsubscribe = unsubscribe

	m.mu.Lock()
	m.sessions[userID] = sess
	m.mu.Unlock()

	m.logger.Info("session opened", zap.String("userID", userID))
	return sess, nil
}

// ensureDocument loads the user's document, creating {messages: [],
// bookings: []} when there is none yet. Losing the creation race to another
// tab means reading what that tab wrote.
func (m *Manager) ensureDocument(ctx context.Context, userID string) (*models.SessionDocument, error) {
	doc, err := m.store.Get(ctx, userID)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, documentRepo.ErrNotFound) {
		return nil, fmt.Errorf("load session document: %w", err)
	}

	empty := documentRepo.MessagesPatch(nil)
	for k, v := range documentRepo.BookingsPatch(nil) {
		empty[k] = v
	}

	if vs, ok := m.store.(documentRepo.VersionedStore); ok {
		err = vs.SetIfVersion(ctx, userID, empty, 0)
		if errors.Is(err, documentRepo.ErrVersionConflict) {
			doc, err = m.store.Get(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("load session document: %w", err)
			}
			return doc, nil
		}
	} else {
		err = m.store.Set(ctx, userID, empty)
	}
	if err != nil {
		return nil, fmt.Errorf("create session document: %w", err)
	}
	return &models.SessionDocument{Messages: []models.Message{}, Bookings: []models.Booking{}}, nil
}

// Get returns an already-open session.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[userID]
	return sess, ok
}

// SignOut detaches the subscription and clears the local transcript. It
// reports whether a session was open.
func (m *Manager) SignOut(userID string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if !ok {
		return false
	}

	sess.unsubscribe()
	sess.Chat.Reset()
	m.logger.Info("session closed", zap.String("userID", userID))
	return true
}

// Close signs out every session and waits for their background work.
func (m *Manager) Close() {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		open = append(open, sess)
	}
	m.mu.RUnlock()

	for _, sess := range open {
		sess.Chat.Wait()
		sess.Booker.Wait()
		m.SignOut(sess.UserID)
	}
	m.cancel()
}
