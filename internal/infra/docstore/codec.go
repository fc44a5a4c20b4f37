package docstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"learning-progress-service/internal/domain"
)

func encode(id, typ, rev string, v any, fields map[string]string) (Document, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s %s: %w", typ, id, err)
	}
	return Document{ID: id, Type: typ, Rev: rev, Body: body, Fields: fields}, nil
}

// decode fails fast with notFound when the stored document is of another type.
func decode(doc Document, typ string, v any, notFound error) error {
	if doc.Type != typ {
		return notFound
	}
	if err := json.Unmarshal(doc.Body, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", typ, doc.ID, err)
	}
	return nil
}

// translate swaps the generic not-found for the entity-specific one.
func translate(err, notFound error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return notFound
	}
	return err
}
