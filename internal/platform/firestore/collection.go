package firestore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot together with its id and update time.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// Collection binds a collection name to the struct its documents decode into. All reads go through a
// transaction so callers see a consistent snapshot.
type Collection[T any] struct {
	name string
}

// NewCollection returns a typed handle for the named collection.
func NewCollection[T any](name string) Collection[T] {
	return Collection[T]{name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c Collection[T]) Name() string { return c.name }

// Doc returns the reference for id.
func (c Collection[T]) Doc(client *firestore.Client, id string) *firestore.DocumentRef {
	return client.Collection(c.name).Doc(id)
}

// Get reads and decodes one document. A missing document reports ok=false with a nil error.
func (c Collection[T]) Get(tx *firestore.Transaction, ref *firestore.DocumentRef) (Document[T], bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if IsNotFound(err) {
			return Document[T]{}, false, nil
		}
		return Document[T]{}, false, WrapError(c.op("get"), err)
	}
	doc, err := c.decode(snap)
	if err != nil {
		return Document[T]{}, false, err
	}
	return doc, true, nil
}

// GetAll reads refs in one round trip. Missing documents are absent from the returned map.
func (c Collection[T]) GetAll(tx *firestore.Transaction, refs []*firestore.DocumentRef) (map[string]Document[T], error) {
	if len(refs) == 0 {
		return map[string]Document[T]{}, nil
	}
	snaps, err := tx.GetAll(refs)
	if err != nil {
		return nil, WrapError(c.op("getAll"), err)
	}
	docs := make(map[string]Document[T], len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		doc, err := c.decode(snap)
		if err != nil {
			return nil, err
		}
		docs[doc.ID] = doc
	}
	return docs, nil
}

// Query runs q inside tx and decodes every result.
func (c Collection[T]) Query(tx *firestore.Transaction, q firestore.Query) ([]Document[T], error) {
	iter := tx.Documents(q)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		doc, err := c.decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c Collection[T]) decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime}, nil
}

func (c Collection[T]) op(action string) string {
	name := c.name
	if name == "" {
		name = "firestore"
	}
	return name + "." + action
}
