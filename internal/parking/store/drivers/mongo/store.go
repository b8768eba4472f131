package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	nodesCollection = "nodes"
	usersCollection = "users"
)

// Store keeps nodes and users as documents, one collection per kind. Field
// names match the documents written by the original parking platform so an
// existing database can be pointed at this service.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

// NewStore connects to uri and pings the server before returning.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(uri)
	opts.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(database),
		// Mongo stores milliseconds, truncate so reads compare equal to writes.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}, nil
}

// ApplyMigrations creates the secondary indexes used by the list filters.
func (s *Store) ApplyMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.Collection(nodesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "data.status", Value: 1}}},
		{Keys: bson.D{{Key: "used_by", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create node indexes: %w", err)
	}

	_, err = s.db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "profile.is_admin", Value: 1}}},
		{Keys: bson.D{{Key: "is_parked", Value: 1}}},
		{Keys: bson.D{{Key: "violation_detected", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Nodes() store.Nodes {
	return &nodesRepo{coll: s.db.Collection(nodesCollection), now: s.now}
}

func (s *Store) Users() store.Users {
	return &usersRepo{coll: s.db.Collection(usersCollection), now: s.now}
}

type metadataDoc struct {
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func mapNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

func mapDuplicate(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// updateIf runs a guarded $set and tells a missing document apart from a
// guard miss.
func updateIf(ctx context.Context, coll *mongo.Collection, id string, guard bson.M, set bson.M) error {
	filter := bson.M{"_id": id}
	for k, v := range guard {
		filter[k] = v
	}

	res, err := coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
