package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clipsync/internal/account"
)

const accountsCollection = "accounts"

// MongoStore implements Store on a MongoDB collection keyed by account ID.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// ConnectMongo dials MongoDB, pings it and returns a store on the database.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	var result bson.M
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Decode(&result); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return NewMongoStore(client, client.Database(database)), nil
}

// NewMongoStore wraps an existing client and database.
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{client: client, coll: db.Collection(accountsCollection), now: time.Now}
}

// Load implements Store.
func (s *MongoStore) Load(ctx context.Context, id string) (*account.Account, error) {
	if err := checkID("read", id); err != nil {
		return nil, err
	}

	var acct account.Account
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&acct)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &StorageError{Op: "read", Entity: "account", ID: id, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "read", Entity: "account", ID: id, Err: err}
	}
	return &acct, nil
}

// Save implements Store as an upsert.
func (s *MongoStore) Save(ctx context.Context, acct *account.Account) error {
	if acct == nil {
		return &StorageError{Op: "write", Entity: "account", Err: ErrInvalidInput}
	}
	if err := checkID("write", acct.ID); err != nil {
		return err
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": acct.ID}, acct, opts); err != nil {
		return &StorageError{Op: "write", Entity: "account", ID: acct.ID, Err: err}
	}
	return nil
}

// Create implements Store.
func (s *MongoStore) Create(ctx context.Context, acct *account.Account) error {
	if acct == nil {
		return &StorageError{Op: "create", Entity: "account", Err: ErrInvalidInput}
	}
	if err := checkID("create", acct.ID); err != nil {
		return err
	}

	now := s.now()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, acct); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &StorageError{Op: "create", Entity: "account", ID: acct.ID, Err: ErrAlreadyExists}
		}
		return &StorageError{Op: "create", Entity: "account", ID: acct.ID, Err: err}
	}
	return nil
}

// Delete implements Store.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if err := checkID("delete", id); err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return &StorageError{Op: "delete", Entity: "account", ID: id, Err: err}
	}
	if res.DeletedCount == 0 {
		return &StorageError{Op: "delete", Entity: "account", ID: id, Err: ErrNotFound}
	}
	return nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "store", Err: err}
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, &StorageError{Op: "read", Entity: "store", Err: ErrStorageCorrupt}
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, &StorageError{Op: "read", Entity: "store", Err: err}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
