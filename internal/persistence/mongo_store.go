package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/msbolton/conduit/pkg/api"
)

// MongoStore is a Persister backed by MongoDB. A unique compound index on
// (saga_type, correlation_id) enforces the at-most-one-record invariant even
// when the store is shared by several processes.
type MongoStore struct {
	coll *mongo.Collection
}

var _ api.Persister = (*MongoStore)(nil)

type mongoSagaDoc struct {
	SagaType      string `bson:"saga_type"`
	CorrelationID string `bson:"correlation_id"`
	Record        []byte `bson:"record"`
	State         string `bson:"state"`
	LastUpdated   int64  `bson:"last_updated"`
}

// NewMongoStore creates a Mongo-backed persister and ensures the compound
// index. dbName defaults to "conduit" if empty, collName to "sagas".
func NewMongoStore(ctx context.Context, client *mongo.Client, dbName, collName string) (*MongoStore, error) {
	if dbName == "" {
		dbName = "conduit"
	}
	if collName == "" {
		collName = "sagas"
	}

	s := &MongoStore{coll: client.Database(dbName).Collection(collName)}

	index := mongo.IndexModel{
		Keys: bson.D{{Key: "saga_type", Value: 1}, {Key: "correlation_id", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetName("SagaType_CorrelationId_Compound"),
	}
	if _, err := s.coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("ensure saga index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) filter(sagaType, correlationID string) bson.M {
	return bson.M{"saga_type": sagaType, "correlation_id": correlationID}
}

func (s *MongoStore) Save(ctx context.Context, sagaType string, entity api.Entity) error {
	data, err := EncodeEntity(entity)
	if err != nil {
		return err
	}
	meta := entity.Meta()

	doc := mongoSagaDoc{
		SagaType:      sagaType,
		CorrelationID: meta.CorrelationID,
		Record:        data,
		State:         meta.State,
		LastUpdated:   meta.LastUpdated.UnixNano(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, s.filter(sagaType, meta.CorrelationID), doc, opts); err != nil {
		return fmt.Errorf("save saga %s/%s: %w", sagaType, meta.CorrelationID, err)
	}
	return nil
}

func (s *MongoStore) Find(ctx context.Context, sagaType, correlationID string, newRecord api.EntityFactory) (api.Entity, error) {
	var doc mongoSagaDoc
	err := s.coll.FindOne(ctx, s.filter(sagaType, correlationID)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, api.ErrSagaNotFound
		}
		return nil, fmt.Errorf("find saga %s/%s: %w", sagaType, correlationID, err)
	}
	return DecodeEntity(doc.Record, newRecord)
}

func (s *MongoStore) Remove(ctx context.Context, sagaType, correlationID string) error {
	if _, err := s.coll.DeleteOne(ctx, s.filter(sagaType, correlationID)); err != nil {
		return fmt.Errorf("remove saga %s/%s: %w", sagaType, correlationID, err)
	}
	return nil
}
