package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"learning-progress-service/internal/domain"
	"learning-progress-service/internal/infra/docstore"
)

// DocumentStore keeps each document in a hash and maintains set indexes per selector field.
// Layout:
//
//	HSET doc:{id}                      type rev body fields
//	SADD idx:{type}                    {id}
//	SADD idx:{type}:{field}:{value}    {id}
//
// Writes run under WATCH doc:{id}, so a concurrent writer aborts the transaction
// and the loser sees domain.ErrRevisionConflict.
type DocumentStore struct {
	client *redis.Client
}

func NewDocumentStore(client *redis.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) Get(ctx context.Context, id string) (docstore.Document, error) {
	vals, err := s.client.HGetAll(ctx, docKey(id)).Result()
	if err != nil {
		return docstore.Document{}, unavailable("get", err)
	}
	if len(vals) == 0 {
		return docstore.Document{}, domain.ErrNotFound
	}
	return fromHash(id, vals)
}

func (s *DocumentStore) Put(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	key := docKey(doc.ID)
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode fields: %w", err)
	}

	var saved docstore.Document
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return unavailable("read revision", err)
		}
		var old docstore.Document
		gen := int64(0)
		if len(current) > 0 {
			old, err = fromHash(doc.ID, current)
			if err != nil {
				return err
			}
			gen = docstore.ParseRev(old.Rev)
		}
		if len(current) == 0 && doc.Rev != "" {
			return domain.ErrRevisionConflict
		}
		if len(current) > 0 && docstore.ParseRev(doc.Rev) != gen {
			return domain.ErrRevisionConflict
		}

		saved = doc
		saved.Rev = docstore.FormatRev(gen + 1)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "type", doc.Type, "rev", saved.Rev, "body", string(doc.Body), "fields", string(fields))
			for k, v := range old.Fields {
				pipe.SRem(ctx, indexKey(old.Type, k, v), doc.ID)
			}
			if old.Type != "" && old.Type != doc.Type {
				pipe.SRem(ctx, typeKey(old.Type), doc.ID)
			}
			pipe.SAdd(ctx, typeKey(doc.Type), doc.ID)
			for k, v := range doc.Fields {
				pipe.SAdd(ctx, indexKey(doc.Type, k, v), doc.ID)
			}
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		return docstore.Document{}, classify("put", err)
	}
	return saved, nil
}

func (s *DocumentStore) Destroy(ctx context.Context, id, rev string) error {
	key := docKey(id)
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return unavailable("read revision", err)
		}
		if len(current) == 0 {
			return domain.ErrNotFound
		}
		old, err := fromHash(id, current)
		if err != nil {
			return err
		}
		if old.Rev != rev {
			return domain.ErrRevisionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, typeKey(old.Type), id)
			for k, v := range old.Fields {
				pipe.SRem(ctx, indexKey(old.Type, k, v), id)
			}
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, key); err != nil {
		return classify("destroy", err)
	}
	return nil
}

func (s *DocumentStore) Find(ctx context.Context, sel docstore.Selector) ([]docstore.Document, error) {
	keys := []string{typeKey(sel.Type)}
	for k, v := range sel.Match {
		keys = append(keys, indexKey(sel.Type, k, v))
	}
	ids, err := s.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("find", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	pipe := s.client.Pipeline()
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, docKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("find", err)
	}

	out := make([]docstore.Document, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			// destroyed between SINTER and HGETALL
			continue
		}
		doc, err := fromHash(ids[i], vals)
		if err != nil {
			return nil, err
		}
		if sel.Matches(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func fromHash(id string, vals map[string]string) (docstore.Document, error) {
	doc := docstore.Document{
		ID:   id,
		Type: vals["type"],
		Rev:  vals["rev"],
		Body: json.RawMessage(vals["body"]),
	}
	if raw := vals["fields"]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &doc.Fields); err != nil {
			return docstore.Document{}, fmt.Errorf("decode fields of %s: %w", id, err)
		}
	}
	return doc, nil
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return domain.ErrRevisionConflict
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrStoreUnavailable):
		return err
	default:
		return unavailable(op, err)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func docKey(id string) string {
	return "doc:" + id
}

func typeKey(typ string) string {
	return "idx:" + typ
}

func indexKey(typ, field, value string) string {
	return "idx:" + typ + ":" + field + ":" + value
}
