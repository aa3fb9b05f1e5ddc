package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/storage"
)

// Document file names under the storage directory.
var documentFiles = map[string]string{
	storage.TableCollections:      "collections.json",
	storage.TablePhotos:           "photos.json",
	storage.TableShares:           "shares.json",
	storage.TableFavoriteSessions: "favorites.json",
	storage.TableDownloadPins:     "download_pins.json",
	storage.TableActivity:         "activity.json",
}

// favoritesDocument is the on-disk shape of favorites.json. Analytics are
// derived from sessions on every write and ignored on read.
type favoritesDocument struct {
	Sessions  []json.RawMessage          `json:"sessions"`
	Analytics []models.FavoriteAnalytics `json:"analytics"`
}

// JSONFileRepository keeps each table as one JSON document in a directory.
// Every mutation rewrites the affected documents through a temporary file
// and a rename, so a document is never observed half written.
type JSONFileRepository struct {
	dir string

	mu sync.Mutex
	// tables caches the records last read or written per table.
	tables map[string]map[string][]byte
}

var _ storage.Backend = (*JSONFileRepository)(nil)

// NewJSONFileRepository creates a JSONFileRepository rooted at dir. The
// directory is created on first write.
func NewJSONFileRepository(dir string) *JSONFileRepository {
	return &JSONFileRepository{dir: dir, tables: make(map[string]map[string][]byte)}
}

// Load reads one table document. A missing document is an empty table; a
// document that cannot be parsed is an error.
func (r *JSONFileRepository) Load(_ context.Context, table string) (map[string][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read(table)
	if err != nil {
		return nil, err
	}
	r.tables[table] = records
	return copyRecords(records), nil
}

// Apply rewrites every document touched by muts. All documents are staged
// before any is renamed into place.
func (r *JSONFileRepository) Apply(_ context.Context, muts []storage.Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]map[string][]byte)
	for _, m := range muts {
		records, ok := next[m.Table]
		if !ok {
			current, err := r.current(m.Table)
			if err != nil {
				return err
			}
			records = copyRecords(current)
			next[m.Table] = records
		}
		if m.Deleted() {
			delete(records, m.ID)
		} else {
			records[m.ID] = m.Data
		}
	}

	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	staged := make(map[string]string, len(next))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}
	for table, records := range next {
		data, err := encodeDocument(table, records)
		if err != nil {
			cleanup()
			return err
		}
		tmp, err := r.stage(table, data)
		if err != nil {
			cleanup()
			return err
		}
		staged[table] = tmp
	}
	for table, tmp := range staged {
		if err := os.Rename(tmp, r.path(table)); err != nil {
			cleanup()
			return fmt.Errorf("replace %s: %w", documentFiles[table], err)
		}
		delete(staged, table)
		r.tables[table] = next[table]
	}
	return nil
}

// current returns the cached records of a table, reading the document if it
// was never loaded. A corrupt document counts as empty, matching what the
// store fell back to; it is replaced by the next write.
func (r *JSONFileRepository) current(table string) (map[string][]byte, error) {
	if records, ok := r.tables[table]; ok {
		return records, nil
	}
	if _, ok := documentFiles[table]; !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	records, err := r.read(table)
	switch {
	case errors.Is(err, storage.ErrCorrupt):
		records = make(map[string][]byte)
	case err != nil:
		return nil, err
	}
	r.tables[table] = records
	return records, nil
}

func (r *JSONFileRepository) path(table string) string {
	return filepath.Join(r.dir, documentFiles[table])
}

func (r *JSONFileRepository) read(table string) (map[string][]byte, error) {
	if _, ok := documentFiles[table]; !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	data, err := os.ReadFile(r.path(table))
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string][]byte), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", documentFiles[table], err)
	}
	records, err := decodeDocument(table, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", documentFiles[table], storage.ErrCorrupt, err)
	}
	return records, nil
}

func (r *JSONFileRepository) stage(table string, data []byte) (string, error) {
	f, err := os.CreateTemp(r.dir, documentFiles[table]+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", documentFiles[table], err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write %s: %w", documentFiles[table], err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("sync %s: %w", documentFiles[table], err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close %s: %w", documentFiles[table], err)
	}
	return f.Name(), nil
}

// decodeDocument splits a document into raw records keyed by their id field.
func decodeDocument(table string, data []byte) (map[string][]byte, error) {
	var list []json.RawMessage
	if table == storage.TableFavoriteSessions {
		var doc favoritesDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		list = doc.Sessions
	} else if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}

	records := make(map[string][]byte, len(list))
	for _, raw := range list {
		var key struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &key); err != nil {
			return nil, err
		}
		if key.ID == "" {
			return nil, fmt.Errorf("record without id")
		}
		records[key.ID] = raw
	}
	return records, nil
}

// encodeDocument renders records as a list ordered by id. The favorites
// document also carries the analytics derived from its sessions.
func encodeDocument(table string, records map[string][]byte) ([]byte, error) {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		list = append(list, records[id])
	}
	if table != storage.TableFavoriteSessions {
		return json.MarshalIndent(list, "", "  ")
	}

	sessions := make([]models.FavoriteSession, 0, len(list))
	for _, raw := range list {
		var s models.FavoriteSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("encode favorites: %w", err)
		}
		sessions = append(sessions, s)
	}
	index := storage.BuildFavoriteAnalytics(sessions)
	analytics := make([]models.FavoriteAnalytics, 0, len(index))
	for _, a := range index {
		analytics = append(analytics, a)
	}
	sort.Slice(analytics, func(i, j int) bool { return analytics[i].PhotoID < analytics[j].PhotoID })

	return json.MarshalIndent(favoritesDocument{Sessions: list, Analytics: analytics}, "", "  ")
}

func copyRecords(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for id, data := range in {
		out[id] = data
	}
	return out
}
