package documentRepo

import (
	"context"
	"errors"
	"fmt"

	"unmute/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoStore keeps session documents in a collection keyed by _id = userID.
// Subscriptions use change streams and therefore need a replica set.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore creates a MongoStore on database/collection.
func NewMongoStore(client *mongo.Client, database, collection string, logger *zap.Logger) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
		logger: logger,
	}
}

func (s *MongoStore) Get(ctx context.Context, userID string) (*models.SessionDocument, error) {
	var doc models.SessionDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch document for user %s: %w", userID, err)
	}
	normalize(&doc)
	return &doc, nil
}

func (s *MongoStore) Set(ctx context.Context, userID string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	update := bson.M{
		"$set": bson.M(patch),
		"$inc": bson.M{"version": 1},
	}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to merge document for user %s: %w", userID, err)
	}
	return nil
}

func (s *MongoStore) SetIfVersion(ctx context.Context, userID string, patch Patch, version int64) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	if version == 0 {
		full := models.SessionDocument{Messages: []models.Message{}, Bookings: []models.Booking{}}
		if err := ApplyPatch(&full, patch); err != nil {
			return err
		}
		insert := bson.M{
			"_id":                userID,
			models.FieldMessages: full.Messages,
			models.FieldBookings: full.Bookings,
			"version":            int64(1),
		}
		if _, err := s.coll.InsertOne(ctx, insert); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to create document for user %s: %w", userID, err)
		}
		return nil
	}

	filter := bson.M{"_id": userID, "version": version}
	update := bson.M{
		"$set": bson.M(patch),
		"$inc": bson.M{"version": 1},
	}
	result, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update document for user %s: %w", userID, err)
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *MongoStore) AppendBookings(ctx context.Context, userID string, bookings ...models.Booking) error {
	update := bson.M{
		"$push": bson.M{models.FieldBookings: bson.M{"$each": bookings}},
		"$inc":  bson.M{"version": 1},
	}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to append bookings for user %s: %w", userID, err)
	}
	return nil
}

type changeEvent struct {
	FullDocument *models.SessionDocument `bson:"fullDocument"`
}

// Subscribe delivers the current document, then every change from a change stream.
func (s *MongoStore) Subscribe(ctx context.Context, userID string, onChange func(*models.SessionDocument)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: userID}}}},
	}
	stream, err := s.coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch document for user %s: %w", userID, err)
	}

	go func() {
		defer stream.Close(context.Background())

		if doc, err := s.Get(ctx, userID); err == nil {
			onChange(doc)
		}
		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				s.logger.Warn("skipping malformed change event", zap.String("userID", userID), zap.Error(err))
				continue
			}
			if ev.FullDocument == nil {
				continue
			}
			normalize(ev.FullDocument)
			onChange(ev.FullDocument)
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.logger.Warn("mongo change stream stopped", zap.String("userID", userID), zap.Error(err))
		}
	}()

	return cancel, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func normalize(doc *models.SessionDocument) {
	if doc.Messages == nil {
		doc.Messages = []models.Message{}
	}
	if doc.Bookings == nil {
		doc.Bookings = []models.Booking{}
	}
}

var _ VersionedStore = (*MongoStore)(nil)
var _ ArrayAppender = (*MongoStore)(nil)
