package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	documentRepo "unmute/database/repository/document"
	"unmute/models"

	"go.uber.org/zap"
)

// Writer appends bookings to one user's ledger and owns the submit-control
// state the presentation layer renders.
type Writer struct {
	userID string
	store  documentRepo.Store
	online OnlineChecker
	cfg    Config
	mode   AppendMode
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	notice      string
	noticeSeq   uint64
	noticeTimer *time.Timer

	inflight sync.WaitGroup
}

// NewWriter builds a Writer. An append mode the store cannot serve falls back
// to AppendMerge.
func NewWriter(userID string, store documentRepo.Store, online OnlineChecker, cfg Config, logger *zap.Logger) *Writer {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 6 * cfg.Timeout
	}
	if cfg.AppendMode == "" {
		cfg.AppendMode = AppendVersioned
	}

	mode := cfg.AppendMode
	switch mode {
	case AppendAtomic:
		if _, ok := store.(documentRepo.ArrayAppender); !ok {
			logger.Warn("store has no atomic append, falling back to merge", zap.String("userID", userID))
			mode = AppendMerge
		}
	case AppendVersioned:
		if _, ok := store.(documentRepo.VersionedStore); !ok {
			logger.Warn("store has no versioned writes, falling back to merge", zap.String("userID", userID))
			mode = AppendMerge
		}
	}

	return &Writer{
		userID: userID,
		store:  store,
		online: online,
		cfg:    cfg,
		mode:   mode,
		logger: logger.With(zap.String("userID", userID)),
		now:    time.Now,
		state:  StateIdle,
	}
}

// Submit runs one submission attempt. The returned error is non-nil only when
// the attempt is rejected before entering Submitting (invalid form, or a
// submission already pending). Every accepted attempt returns an Outcome in
// one of the terminal states within the configured timeout, and leaves the
// writer Idle.
func (w *Writer) Submit(ctx context.Context, form models.BookingForm) (*Outcome, error) {
	if err := validateForm(form); err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.state == StateSubmitting {
		w.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	w.state = StateSubmitting
	w.clearNoticeLocked()
	w.mu.Unlock()

	var once sync.Once
	release := func(terminal State, notice string) {
		once.Do(func() {
			w.mu.Lock()
			w.state = StateIdle
			w.setNoticeLocked(notice)
			w.mu.Unlock()
			w.logger.Debug("booking submission finished", zap.String("state", string(terminal)))
		})
	}

	if !w.online.Online(ctx) {
		release(StateFailed, NoticeOffline)
		return &Outcome{State: StateFailed, Notice: NoticeOffline, Form: form, Err: ErrOffline}, nil
	}

	now := w.now()
	b := models.Booking{
		ID:          newBookingID(now),
		ServiceType: form.ServiceType,
		Date:        form.Date,
		Time:        form.Time,
		Note:        form.Note,
		CreatedAt:   now.UTC(),
	}

	guard := time.NewTimer(w.cfg.Timeout)
	defer guard.Stop()

	done := make(chan error, 1)
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.OperationTimeout)
		defer cancel()
		done <- w.appendBooking(opCtx, b)
	}()

	select {
	case err := <-done:
		if err != nil {
			w.logger.Error("booking append failed", zap.String("bookingID", b.ID), zap.Error(err))
			release(StateFailed, NoticeError)
			return &Outcome{State: StateFailed, Booking: &b, Notice: NoticeError, Form: form, Err: err}, nil
		}
		release(StateSucceeded, NoticeBooked)
		return &Outcome{
			State:        StateSucceeded,
			Booking:      &b,
			Confirmation: confirm(b),
			Notice:       NoticeBooked,
			Form:         models.BookingForm{},
		}, nil

	case <-guard.C:
		release(StateTimedOut, NoticeTimedOut)
		w.inflight.Add(1)
		go func() {
			defer w.inflight.Done()
			err := <-done
			w.logger.Info("booking append completed after timeout",
				zap.String("bookingID", b.ID), zap.Bool("persisted", err == nil), zap.Error(err))
		}()
		return &Outcome{
			State:   StateTimedOut,
			Booking: &b,
			Notice:  NoticeTimedOut,
			Form:    form,
			Err:     fmt.Errorf("booking %s: no result within %s", b.ID, w.cfg.Timeout),
		}, nil
	}
}

// appendBooking adds b to the ledger using the configured strategy.
func (w *Writer) appendBooking(ctx context.Context, b models.Booking) error {
	switch w.mode {
	case AppendAtomic:
		return w.store.(documentRepo.ArrayAppender).AppendBookings(ctx, w.userID, b)
	case AppendVersioned:
		return w.appendVersioned(ctx, w.store.(documentRepo.VersionedStore), b)
	default:
		return w.appendMerge(ctx, b)
	}
}

// appendMerge is a non-transactional read-modify-write: two writers racing
// on the same document can each drop the other's booking.
func (w *Writer) appendMerge(ctx context.Context, b models.Booking) error {
	doc, err := w.read(ctx)
	if err != nil {
		return err
	}
	bookings := append(doc.Bookings, b)
	if err := w.store.Set(ctx, w.userID, documentRepo.BookingsPatch(bookings)); err != nil {
		return fmt.Errorf("write booking ledger: %w", err)
	}
	return nil
}

func (w *Writer) appendVersioned(ctx context.Context, store documentRepo.VersionedStore, b models.Booking) error {
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		doc, err := w.read(ctx)
		if err != nil {
			return err
		}
		if containsBooking(doc.Bookings, b.ID) {
			return nil
		}

		bookings := append(doc.Bookings, b)
		err = store.SetIfVersion(ctx, w.userID, documentRepo.BookingsPatch(bookings), doc.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, documentRepo.ErrVersionConflict) {
			return fmt.Errorf("write booking ledger: %w", err)
		}
		w.logger.Debug("booking ledger version conflict, retrying",
			zap.Int("attempt", attempt), zap.Int64("version", doc.Version))
	}
	return ErrConflict
}

// read loads the current document; a missing document is an empty ledger.
func (w *Writer) read(ctx context.Context) (*models.SessionDocument, error) {
	doc, err := w.store.Get(ctx, w.userID)
	if errors.Is(err, documentRepo.ErrNotFound) {
		return &models.SessionDocument{Bookings: []models.Booking{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read booking ledger: %w", err)
	}
	if doc.Bookings == nil {
		doc.Bookings = []models.Booking{}
	}
	return doc, nil
}

// Submitting reports whether an attempt currently holds the submit control.
func (w *Writer) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateSubmitting
}

// State returns StateIdle or StateSubmitting.
func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Notice returns the current status banner, empty once it has expired.
func (w *Writer) Notice() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notice
}

// Mode reports the append strategy actually in use.
func (w *Writer) Mode() AppendMode {
	return w.mode
}

// Wait blocks until detached appends, including late ones, have finished.
func (w *Writer) Wait() {
	w.inflight.Wait()
}

func (w *Writer) setNoticeLocked(text string) {
	w.clearNoticeLocked()
	w.notice = text
	if text == "" || w.cfg.NoticeTTL <= 0 {
		return
	}
	seq := w.noticeSeq
	w.noticeTimer = time.AfterFunc(w.cfg.NoticeTTL, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.noticeSeq == seq {
			w.notice = ""
		}
	})
}

func (w *Writer) clearNoticeLocked() {
	w.noticeSeq++
	w.notice = ""
	if w.noticeTimer != nil {
		w.noticeTimer.Stop()
		w.noticeTimer = nil
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
