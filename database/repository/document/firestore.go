package documentRepo

import (
	"context"
	"fmt"
	"time"

	"unmute/models"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps each user's session document at <collection>/<userID>.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     *zap.Logger
}

// NewFirestoreStore wraps an initialized Firestore client.
func NewFirestoreStore(client *firestore.Client, collection string, logger *zap.Logger) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection, logger: logger}
}

func (s *FirestoreStore) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(userID)
}

func (s *FirestoreStore) Get(ctx context.Context, userID string) (*models.SessionDocument, error) {
	snap, err := s.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch document for user %s: %w", userID, err)
	}
	return decodeSnapshot(snap)
}

func (s *FirestoreStore) Set(ctx context.Context, userID string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if _, err := s.doc(userID).Set(ctx, map[string]interface{}(patch), firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to merge document for user %s: %w", userID, err)
	}
	return nil
}

// SetIfVersion uses the document's update time as the version token.
func (s *FirestoreStore) SetIfVersion(ctx context.Context, userID string, patch Patch, version int64) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	ref := s.doc(userID)

	if version == 0 {
		full := &models.SessionDocument{Messages: []models.Message{}, Bookings: []models.Booking{}}
		if err := ApplyPatch(full, patch); err != nil {
			return err
		}
		if _, err := ref.Create(ctx, full); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to create document for user %s: %w", userID, err)
		}
		return nil
	}

	updates := make([]firestore.Update, 0, len(patch))
	for field, value := range patch {
		updates = append(updates, firestore.Update{Path: field, Value: value})
	}
	_, err := ref.Update(ctx, updates, firestore.LastUpdateTime(time.Unix(0, version)))
	if err != nil {
		switch status.Code(err) {
		case codes.FailedPrecondition, codes.NotFound:
			return ErrVersionConflict
		}
		return fmt.Errorf("failed to update document for user %s: %w", userID, err)
	}
	return nil
}

func (s *FirestoreStore) AppendBookings(ctx context.Context, userID string, bookings ...models.Booking) error {
	elems := make([]interface{}, len(bookings))
	for i, b := range bookings {
		elems[i] = b
	}
	data := map[string]interface{}{models.FieldBookings: firestore.ArrayUnion(elems...)}
	if _, err := s.doc(userID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to append bookings for user %s: %w", userID, err)
	}
	return nil
}

// Subscribe listens to document snapshots on a background goroutine.
func (s *FirestoreStore) Subscribe(ctx context.Context, userID string, onChange func(*models.SessionDocument)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.doc(userID).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				s.logger.Warn("firestore snapshot listener stopped",
					zap.String("userID", userID), zap.Error(err))
				return
			}
			if !snap.Exists() {
				continue
			}
			doc, err := decodeSnapshot(snap)
			if err != nil {
				s.logger.Warn("skipping malformed snapshot", zap.String("userID", userID), zap.Error(err))
				continue
			}
			onChange(doc)
		}
	}()

	return cancel, nil
}

// Ping reads a sentinel document; a missing document still proves reachability.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.collection).Doc("_health").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (*models.SessionDocument, error) {
	var doc models.SessionDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("malformed session document %s: %w", snap.Ref.ID, err)
	}
	normalize(&doc)
	doc.Version = snap.UpdateTime.UnixNano()
	return &doc, nil
}

var _ VersionedStore = (*FirestoreStore)(nil)
var _ ArrayAppender = (*FirestoreStore)(nil)
