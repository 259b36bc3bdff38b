package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/light-rec/lr-ibcf/internal/logging"
)

// Loader handles loading item files from a catalog directory
type Loader struct {
	parser *Parser
	logger *zap.Logger
}

// NewLoader creates a new loader. A nil logger discards output.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{
		parser: NewParser(),
		logger: logging.OrNop(logger),
	}
}

// LoadAll loads every item file in dir. A missing directory yields no items.
// Files that fail to parse are logged and skipped. When two files declare the
// same ID the one sorting last wins.
func (l *Loader) LoadAll(dir string) ([]Item, error) {
	files, err := itemFiles(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("loader: found item files", zap.String("dir", dir), zap.Int("files", len(files)))
	if len(files) == 0 {
		return []Item{}, nil
	}

	parsed, err := l.parser.ParseAll(files)
	if err != nil {
		// keep whatever parsed
		l.logger.Warn("loader: some item files failed to parse", zap.Error(err))
	}

	byID := make(map[string]int, len(parsed))
	items := make([]Item, 0, len(parsed))
	for _, item := range parsed {
		if i, ok := byID[item.ID]; ok {
			l.logger.Warn("loader: duplicate item id, later file wins",
				zap.String("id", item.ID),
				zap.String("replaced", items[i].Filename),
				zap.String("file", item.Filename))
			items[i] = item
			continue
		}
		byID[item.ID] = len(items)
		items = append(items, item)
	}

	l.logger.Debug("loader: loaded items", zap.Int("items", len(items)))
	return items, nil
}

// LoadSingle loads a single item file
func (l *Loader) LoadSingle(path string) (*Item, error) {
	return l.parser.Parse(path)
}

// HasItems checks if dir exists and holds any item files
func HasItems(dir string) (bool, error) {
	files, err := itemFiles(dir)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// IsItemFile reports whether path names a catalog item file.
// README.md and files starting with _ are meta files.
func IsItemFile(path string) bool {
	base := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(base), ".md") {
		return false
	}
	return !strings.EqualFold(base, "README.md") && !strings.HasPrefix(base, "_")
}

func itemFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob files: %w", err)
	}

	var files []string
	for _, f := range matches {
		if IsItemFile(f) {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files, nil
}
