package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"learning-progress-service/internal/domain"
	"learning-progress-service/internal/infra/docstore"
)

type record struct {
	ID        string            `bson:"_id"`
	Type      string            `bson:"type"`
	Rev       int64             `bson:"rev"`
	Body      string            `bson:"body"`
	Fields    map[string]string `bson:"fields"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// DocumentStore keeps documents in one collection; rev is matched in the update
// filter and incremented by the same operation.
type DocumentStore struct {
	col *mongo.Collection
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func NewDocumentStore(db *mongo.Database) *DocumentStore {
	return &DocumentStore{col: db.Collection("documents")}
}

// EnsureIndexes creates the selector indexes; it is safe to call on every start.
func (s *DocumentStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "fields.userId", Value: 1}, {Key: "fields.quizId", Value: 1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "fields.status", Value: 1}}},
	})
	if err != nil {
		return unavailable("create indexes", err)
	}
	log.Printf("mongo document indexes ensured")
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (docstore.Document, error) {
	var rec record
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, domain.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, unavailable("get", err)
	}
	return rec.document(), nil
}

func (s *DocumentStore) Put(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	now := time.Now().UTC()
	if doc.Rev == "" {
		rec := record{ID: doc.ID, Type: doc.Type, Rev: 1, Body: string(doc.Body), Fields: doc.Fields, UpdatedAt: now}
		if _, err := s.col.InsertOne(ctx, rec); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return docstore.Document{}, domain.ErrRevisionConflict
			}
			return docstore.Document{}, unavailable("insert", err)
		}
		doc.Rev = docstore.FormatRev(1)
		return doc, nil
	}

	want := docstore.ParseRev(doc.Rev)
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": doc.ID, "rev": want},
		bson.M{
			"$set": bson.M{"type": doc.Type, "body": string(doc.Body), "fields": doc.Fields, "updated_at": now},
			"$inc": bson.M{"rev": 1},
		},
	)
	if err != nil {
		return docstore.Document{}, unavailable("update", err)
	}
	if res.MatchedCount == 0 {
		return docstore.Document{}, domain.ErrRevisionConflict
	}
	doc.Rev = docstore.FormatRev(want + 1)
	return doc, nil
}

func (s *DocumentStore) Destroy(ctx context.Context, id, rev string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id, "rev": docstore.ParseRev(rev)})
	if err != nil {
		return unavailable("delete", err)
	}
	if res.DeletedCount > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrRevisionConflict
}

func (s *DocumentStore) Find(ctx context.Context, sel docstore.Selector) ([]docstore.Document, error) {
	filter := bson.D{{Key: "type", Value: sel.Type}}
	for k, v := range sel.Match {
		filter = append(filter, bson.E{Key: "fields." + k, Value: v})
	}
	cursor, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, unavailable("find", err)
	}
	var recs []record
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, unavailable("find", err)
	}
	out := make([]docstore.Document, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.document())
	}
	return out, nil
}

func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.col.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r record) document() docstore.Document {
	return docstore.Document{
		ID:     r.ID,
		Type:   r.Type,
		Rev:    docstore.FormatRev(r.Rev),
		Body:   json.RawMessage(r.Body),
		Fields: r.Fields,
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("mongo %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
