package memory

import (
	"context"
	"sort"
	"sync"

	"learning-progress-service/internal/domain"
	"learning-progress-service/internal/infra/docstore"
)

// DocumentStore is an in-memory implementation of docstore.Store.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]entry
}

type entry struct {
	gen int64
	doc docstore.Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]entry),
	}
}

func (s *DocumentStore) Get(_ context.Context, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return docstore.Document{}, domain.ErrNotFound
	}
	return clone(e.doc), nil
}

func (s *DocumentStore) Put(_ context.Context, doc docstore.Document) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.docs[doc.ID]
	want := docstore.ParseRev(doc.Rev)
	switch {
	case !exists && doc.Rev != "":
		return docstore.Document{}, domain.ErrRevisionConflict
	case exists && current.gen != want:
		return docstore.Document{}, domain.ErrRevisionConflict
	}

	gen := current.gen + 1
	stored := clone(doc)
	stored.Rev = docstore.FormatRev(gen)
	s.docs[doc.ID] = entry{gen: gen, doc: stored}
	return clone(stored), nil
}

func (s *DocumentStore) Destroy(_ context.Context, id, rev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if current.gen != docstore.ParseRev(rev) {
		return domain.ErrRevisionConflict
	}
	delete(s.docs, id)
	return nil
}

func (s *DocumentStore) Find(_ context.Context, sel docstore.Selector) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]docstore.Document, 0)
	for _, e := range s.docs {
		if sel.Matches(e.doc) {
			out = append(out, clone(e.doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *DocumentStore) Ping(context.Context) error {
	return nil
}

func clone(doc docstore.Document) docstore.Document {
	out := doc
	out.Body = append([]byte(nil), doc.Body...)
	if doc.Fields != nil {
		out.Fields = make(map[string]string, len(doc.Fields))
		for k, v := range doc.Fields {
			out.Fields[k] = v
		}
	}
	return out
}
