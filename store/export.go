package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	snverrors "github.com/snipvault/snipvault/internal/errors"
	"github.com/snipvault/snipvault/internal/types"
)

const exportStampLayout = "20060102_150405"

// Export serializes every indexed item, newest first, into one
// timestamped plain-text report under dir. An empty dir selects the
// store's exports directory. Returns the path of the written file.
func (s *Store) Export(dir string) (string, error) {
	if dir == "" {
		dir = filepath.Join(s.baseDir, exportsDirName)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", snverrors.NewStoreIO("create export directory", err)
	}

	s.mu.RLock()
	items := make([]itemWithContent, 0, len(s.index))
	for _, it := range s.index {
		content, err := s.readContent(it.ID)
		if err != nil {
			// Drifted entries export with empty content.
			slog.Warn("export: content missing", "id", it.ID)
			content = ""
		}
		items = append(items, itemWithContent{item: it, content: content})
	}
	s.mu.RUnlock()

	var b strings.Builder
	now := time.Now()
	b.WriteString("SnipVault Export\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Items: %d\n", len(items))
	b.WriteString(strings.Repeat("=", 80) + "\n\n")

	for _, ic := range items {
		fmt.Fprintf(&b, "Timestamp: %s\n", ic.item.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "Type: %s\n", ic.item.Kind)
		fmt.Fprintf(&b, "Length: %d chars\n", ic.item.Length)
		b.WriteString(strings.Repeat("-", 40) + "\n")
		b.WriteString(ic.content)
		b.WriteString("\n\n")
	}

	path := filepath.Join(dir, fmt.Sprintf("export_%s.txt", now.Format(exportStampLayout)))
	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		return "", snverrors.NewStoreIO("write export", err)
	}

	return path, nil
}

type itemWithContent struct {
	item    types.Item
	content string
}
