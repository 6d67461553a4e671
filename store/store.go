// Package store persists captured items: an ordered JSON metadata
// index plus one content file per item. The dispatcher is the only
// writer; readers may run on other goroutines, so the index is
// guarded internally.
package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"

	"github.com/snipvault/snipvault/classify"
	snverrors "github.com/snipvault/snipvault/internal/errors"
	"github.com/snipvault/snipvault/internal/types"
)

const (
	indexFileName  = "index.json"
	itemsDirName   = "items"
	exportsDirName = "exports"

	// IndexCap is the maximum number of index entries kept on save.
	// Entries beyond the cap fall off the oldest end; their content
	// files become orphans and are not purged automatically.
	IndexCap = 1000

	// SearchLoadCap bounds the number of full-content loads performed
	// per search to keep interactive latency bounded.
	SearchLoadCap = 100
)

// Store owns the item index and content directory.
type Store struct {
	baseDir  string
	itemsDir string

	mu    sync.RWMutex
	index []types.Item

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New opens the store rooted at baseDir, creating the directory
// layout if needed. An unreadable index degrades to empty with a
// warning; only directory creation is fatal.
func New(baseDir string) (*Store, error) {
	itemsDir := filepath.Join(baseDir, itemsDirName)
	if err := os.MkdirAll(itemsDir, 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	s := &Store{
		baseDir:  baseDir,
		itemsDir: itemsDir,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}

	if err := s.loadIndex(); err != nil {
		slog.Warn("load index, starting empty", "error", err)
		s.index = nil
	}

	return s, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Create classifies content, writes its file, and prepends the
// metadata entry to the index. On an index-save failure the in-memory
// insert is rolled back: the content file remains as an orphan and
// previously stored items are untouched.
func (s *Store) Create(content string) (types.Item, error) {
	id, err := s.generateID()
	if err != nil {
		return types.Item{}, snverrors.NewStoreIO("generate id", err)
	}

	item := types.Item{
		ID:        id,
		CreatedAt: time.Now(),
		Kind:      classify.Detect(content),
		Preview:   preview(content),
		Length:    utf8.RuneCountInString(content),
	}

	if err := os.WriteFile(s.contentPath(id), []byte(content), 0600); err != nil {
		return types.Item{}, snverrors.NewStoreIO("write content", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = append([]types.Item{item}, s.index...)
	if err := s.saveIndexLocked(); err != nil {
		s.index = s.index[1:]
		return types.Item{}, snverrors.NewStoreIO("save index", err)
	}

	return item, nil
}

// Delete removes the content file, then the index entry. A missing
// file is tolerated so index/file drift can always be cleaned up.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.index, func(it types.Item) bool {
		return it.ID == id
	})
	if idx == -1 {
		return snverrors.NewNotFound(id)
	}

	if err := os.Remove(s.contentPath(id)); err != nil && !os.IsNotExist(err) {
		return snverrors.NewStoreIO("remove content", err)
	}

	s.index = slices.Delete(s.index, idx, idx+1)
	if err := s.saveIndexLocked(); err != nil {
		return snverrors.NewStoreIO("save index", err)
	}

	return nil
}

// Load returns the full content of an indexed item. Ids the index
// does not know read as not-found; so does an indexed item whose
// content file is gone, with the inconsistency wrapped for callers
// that need to tell the cases apart.
func (s *Store) Load(id string) (string, error) {
	s.mu.RLock()
	known := slices.ContainsFunc(s.index, func(it types.Item) bool {
		return it.ID == id
	})
	s.mu.RUnlock()
	if !known {
		return "", snverrors.NewNotFound(id)
	}

	content, err := s.readContent(id)
	if snverrors.Is(err, snverrors.ErrNotFound) {
		slog.Warn("content file missing for indexed item", "id", id)
		return "", &snverrors.PipelineError{
			Code:    snverrors.ErrNotFound,
			Message: fmt.Sprintf("item not found: %s", id),
			Err:     snverrors.NewStoreInconsistent(id),
		}
	}
	return content, err
}

// readContent reads one content file without consulting the index.
func (s *Store) readContent(id string) (string, error) {
	data, err := os.ReadFile(s.contentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", snverrors.NewNotFound(id)
		}
		return "", snverrors.NewStoreIO("read content", err)
	}
	return string(data), nil
}

// Search returns items matching the query case-insensitively. The
// empty query returns every item in index order (most recent first).
// Matching checks previews first; items not decided by preview get
// their full content loaded, capped at SearchLoadCap loads per call.
// Search never mutates the index.
func (s *Store) Search(query string) ([]types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if query == "" {
		return slices.Clone(s.index), nil
	}

	fold := cases.Fold()
	needle := fold.String(query)

	var hits []types.Item
	var rest []types.Item
	for _, it := range s.index {
		if strings.Contains(fold.String(it.Preview), needle) {
			hits = append(hits, it)
			continue
		}
		// A preview shorter than the content may still hide a match.
		if it.Length > utf8.RuneCountInString(it.Preview) {
			rest = append(rest, it)
		}
	}

	loads := 0
	for _, it := range rest {
		if loads >= SearchLoadCap {
			break
		}
		loads++
		content, err := s.readContent(it.ID)
		if err != nil {
			if snverrors.Is(err, snverrors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if strings.Contains(fold.String(content), needle) {
			hits = append(hits, it)
		}
	}

	return hits, nil
}

// List returns a copy of the index in its current order.
func (s *Store) List() []types.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.index)
}

// Len reports the number of indexed items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Get returns the metadata entry for an id.
func (s *Store) Get(id string) (types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, it := range s.index {
		if it.ID == id {
			return it, nil
		}
	}
	return types.Item{}, snverrors.NewNotFound(id)
}

// Clear removes every item and persists the empty index. Confirmation
// is the caller's responsibility.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.index {
		if err := os.Remove(s.contentPath(it.ID)); err != nil && !os.IsNotExist(err) {
			return snverrors.NewStoreIO("remove content", err)
		}
	}

	s.index = nil
	if err := s.saveIndexLocked(); err != nil {
		return snverrors.NewStoreIO("save index", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

// generateID returns a ULID. Shared monotonic entropy keeps ids
// created within the same millisecond in creation order.
func (s *Store) generateID() (string, error) {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *Store) contentPath(id string) string {
	return filepath.Join(s.itemsDir, id+".txt")
}

func (s *Store) indexPath() string {
	return filepath.Join(s.baseDir, indexFileName)
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}

	var index []types.Item
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("unmarshal index: %w", err)
	}
	s.index = index
	return nil
}

// saveIndexLocked persists the index atomically via temp file and
// rename. The cap is enforced on every save. Caller holds mu.
func (s *Store) saveIndexLocked() error {
	if len(s.index) > IndexCap {
		s.index = s.index[:IndexCap]
	}

	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	return writeFileAtomic(s.indexPath(), data)
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it, and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("finalize write: %w", err)
	}

	success = true
	return nil
}

// preview returns the first PreviewRunes runes of content.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= types.PreviewRunes {
		return content
	}
	return string(runes[:types.PreviewRunes])
}
