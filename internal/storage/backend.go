// Package storage implements the persistent store shared by the download gate
// and the favorites engine: an in-memory cache of record tables mirrored to a
// pluggable Backend.
package storage

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrCorrupt marks a table whose stored form cannot be parsed. The store
// starts such a table empty instead of failing.
var ErrCorrupt = errors.New("corrupt table")

// Logical tables mirrored by a Backend.
const (
	TableCollections      = "collections"
	TablePhotos           = "photos"
	TableShares           = "shares"
	TableFavoriteSessions = "favorite_sessions"
	TableDownloadPins     = "download_pins"
	TableActivity         = "activity"
)

// Tables lists every table in load order.
var Tables = []string{
	TableCollections,
	TablePhotos,
	TableShares,
	TableFavoriteSessions,
	TableDownloadPins,
	TableActivity,
}

// Mutation is one record-level change. A nil Data deletes the record.
type Mutation struct {
	Table string
	ID    string
	Data  []byte
}

// Deleted reports whether the mutation removes its record.
func (m Mutation) Deleted() bool {
	return m.Data == nil
}

// Backend persists table records.
type Backend interface {
	// Load returns every record of a table keyed by id. A missing table is
	// returned as an empty map, an unparsable one as an error wrapping
	// ErrCorrupt. Other errors are treated as transient.
	Load(ctx context.Context, table string) (map[string][]byte, error)
	// Apply persists a batch of mutations atomically: either all of them are
	// durable when it returns nil, or none is.
	Apply(ctx context.Context, muts []Mutation) error
}

func upsert(table, id string, v any) (Mutation, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{Table: table, ID: id, Data: data}, nil
}

func remove(table, id string) Mutation {
	return Mutation{Table: table, ID: id}
}
