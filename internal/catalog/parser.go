// Package catalog loads item definitions (markdown files with YAML frontmatter).
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/light-rec/lr-ibcf/internal/similarity"
)

var (
	// ErrNoFrontmatter is returned for files that do not start with a --- block
	ErrNoFrontmatter = errors.New("missing frontmatter")

	// ErrInvalidItem is returned for frontmatter that cannot describe an item
	ErrInvalidItem = errors.New("invalid item")
)

// Item is one catalog entry and its sparse feature vector.
// For item-based collaborative filtering the features are user IDs and the
// weights are ratings.
type Item struct {
	ID          string
	Title       string
	Categories  []string
	Features    similarity.Vector
	Description string    // markdown body after the frontmatter
	Filename    string    // source file
	UpdatedAt   time.Time // source file modification time
}

// Parser handles parsing markdown files with YAML frontmatter
type Parser struct{}

// NewParser creates a new parser
func NewParser() *Parser {
	return &Parser{}
}

// Frontmatter represents the YAML frontmatter of an item file
type Frontmatter struct {
	ID         string             `yaml:"id"`
	Title      string             `yaml:"title"`
	Categories []string           `yaml:"categories"`
	Features   map[string]float64 `yaml:"features"`
}

// Parse parses one item file. The ID defaults to the file name without extension.
func (p *Parser) Parse(path string) (*Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	// flow-style feature maps put every rating on one line, so no line limit
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}

	fm, body, err := p.parseFrontmatter(lines)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(fm.ID)
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	features := similarity.Vector(fm.Features)
	if features == nil {
		features = similarity.Vector{}
	}
	if err := features.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidItem, id, err)
	}

	return &Item{
		ID:          id,
		Title:       fm.Title,
		Categories:  fm.Categories,
		Features:    features,
		Description: strings.TrimSpace(body),
		Filename:    path,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// parseFrontmatter extracts YAML frontmatter and returns it with the remaining content
func (p *Parser) parseFrontmatter(lines []string) (*Frontmatter, string, error) {
	if len(lines) == 0 {
		return nil, "", fmt.Errorf("%w: empty file", ErrNoFrontmatter)
	}

	if strings.TrimSpace(lines[0]) != "---" {
		return nil, "", ErrNoFrontmatter
	}

	endIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			endIdx = i
			break
		}
	}
	if endIdx == -1 {
		return nil, "", fmt.Errorf("%w: unclosed frontmatter", ErrNoFrontmatter)
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:endIdx], "\n")), &fm); err != nil {
		return nil, "", fmt.Errorf("%w: failed to parse YAML: %w", ErrInvalidItem, err)
	}

	return &fm, strings.Join(lines[endIdx+1:], "\n"), nil
}

// ParseAll parses multiple files. Files that fail are reported in the
// returned error; the items that did parse are still returned.
func (p *Parser) ParseAll(paths []string) ([]Item, error) {
	var items []Item
	var errs []error

	for _, path := range paths {
		item, err := p.Parse(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		items = append(items, *item)
	}

	if len(errs) > 0 {
		return items, fmt.Errorf("failed to parse some files: %w", errors.Join(errs...))
	}

	return items, nil
}
