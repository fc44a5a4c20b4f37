package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"learning-progress-service/internal/domain"
	"learning-progress-service/internal/infra/docstore"
)

// DocumentStore keeps documents in a single jsonb table. The integer rev column
// is compared and bumped in the same statement, so concurrent writers serialize
// on the row and the stale one matches zero rows.
type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

func (s *DocumentStore) Get(ctx context.Context, id string) (docstore.Document, error) {
	var (
		doc    = docstore.Document{ID: id}
		rev    int64
		body   []byte
		fields []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT doc_type, rev, body, fields FROM documents WHERE id=$1`, id,
	).Scan(&doc.Type, &rev, &body, &fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, domain.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, unavailable("get", err)
	}
	return assemble(doc, rev, body, fields)
}

func (s *DocumentStore) Put(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	fields, err := encodeFields(doc.Fields)
	if err != nil {
		return docstore.Document{}, err
	}

	if doc.Rev == "" {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO documents (id, doc_type, rev, body, fields, updated_at)
			 VALUES ($1, $2, 1, $3::jsonb, $4::jsonb, now())
			 ON CONFLICT (id) DO NOTHING`,
			doc.ID, doc.Type, string(doc.Body), fields)
		if err != nil {
			return docstore.Document{}, unavailable("insert", err)
		}
		if tag.RowsAffected() == 0 {
			return docstore.Document{}, domain.ErrRevisionConflict
		}
		doc.Rev = docstore.FormatRev(1)
		return doc, nil
	}

	var rev int64
	err = s.pool.QueryRow(ctx,
		`UPDATE documents
		 SET doc_type=$2, rev=rev+1, body=$3::jsonb, fields=$4::jsonb, updated_at=now()
		 WHERE id=$1 AND rev=$5
		 RETURNING rev`,
		doc.ID, doc.Type, string(doc.Body), fields, docstore.ParseRev(doc.Rev),
	).Scan(&rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, domain.ErrRevisionConflict
	}
	if err != nil {
		return docstore.Document{}, unavailable("update", err)
	}
	doc.Rev = docstore.FormatRev(rev)
	return doc, nil
}

func (s *DocumentStore) Destroy(ctx context.Context, id, rev string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1 AND rev=$2`, id, docstore.ParseRev(rev))
	if err != nil {
		return unavailable("delete", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrRevisionConflict
}

func (s *DocumentStore) Find(ctx context.Context, sel docstore.Selector) ([]docstore.Document, error) {
	match, err := encodeFields(sel.Match)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_type, rev, body, fields FROM documents
		 WHERE doc_type=$1 AND fields @> $2::jsonb
		 ORDER BY id`,
		sel.Type, match)
	if err != nil {
		return nil, unavailable("find", err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var (
			doc    docstore.Document
			rev    int64
			body   []byte
			fields []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Type, &rev, &body, &fields); err != nil {
			return nil, unavailable("scan", err)
		}
		doc, err = assemble(doc, rev, body, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("find", err)
	}
	return out, nil
}

func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func assemble(doc docstore.Document, rev int64, body, fields []byte) (docstore.Document, error) {
	doc.Rev = docstore.FormatRev(rev)
	doc.Body = json.RawMessage(body)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &doc.Fields); err != nil {
			return docstore.Document{}, fmt.Errorf("decode fields of %s: %w", doc.ID, err)
		}
	}
	return doc, nil
}

func encodeFields(fields map[string]string) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(raw), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("postgres %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
