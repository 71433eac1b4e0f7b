// Package loader reads knowledge entries from JSON files.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/erkebulan/ustazai/internal/domain/entities"
)

// flexString accepts a JSON string or number; source files are hand-edited
// and use both for ids and page numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("expected string or number, got %s", string(data))
}

// fileEntry is the on-disk shape of one knowledge record.
type fileEntry struct {
	ID           flexString `json:"id"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer"`
	Category     string     `json:"category"`
	Tags         []string   `json:"tags"`
	AltQuestions []string   `json:"alt_questions"`
	Source       string     `json:"source"`
	Author       string     `json:"author"`
	BookTitle    string     `json:"book_title"`
	Page         flexString `json:"page"`
	SourceURL    string     `json:"source_url"`
}

// wrapped is the alternative file format: entries under a single known key.
type wrapped struct {
	KnowledgeBase []fileEntry `json:"knowledge_base"`
}

// JSONLoader reads knowledge files from a directory.
type JSONLoader struct {
	log *zap.Logger
}

// NewJSONLoader creates a loader.
func NewJSONLoader(log *zap.Logger) *JSONLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONLoader{log: log}
}

// LoadDir reads every *.json file in dir and returns the entries in file
// order. Schedule files are not knowledge and are skipped by name. A missing
// directory yields no entries, not an error.
func (l *JSONLoader) LoadDir(dir string) ([]entities.KnowledgeEntry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", dir, err)
	}
	if len(paths) == 0 {
		l.log.Warn("no knowledge files found", zap.String("dir", dir))
		return nil, nil
	}

	var entries []entities.KnowledgeEntry
	for _, path := range paths {
		if strings.Contains(filepath.Base(path), "ramadan_schedule") {
			continue
		}
		fileEntries, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		l.log.Info("knowledge file loaded", zap.String("file", filepath.Base(path)), zap.Int("entries", len(fileEntries)))
		entries = append(entries, fileEntries...)
	}
	return entries, nil
}

// LoadFile reads one knowledge file. The file is either a bare entry list or
// an object holding the list under the "knowledge_base" key. The file's base
// name becomes the default source for entries that name none.
func (l *JSONLoader) LoadFile(path string) ([]entities.KnowledgeEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw []fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		var w wrapped
		if err := json.Unmarshal(data, &w); err != nil || w.KnowledgeBase == nil {
			return nil, fmt.Errorf("unknown format in %s", path)
		}
		raw = w.KnowledgeBase
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	entries := make([]entities.KnowledgeEntry, 0, len(raw))
	for _, e := range raw {
		source := e.Source
		if source == "" {
			source = stem
		}
		entries = append(entries, entities.KnowledgeEntry{
			ID:           string(e.ID),
			Question:     e.Question,
			Answer:       e.Answer,
			Category:     e.Category,
			Tags:         e.Tags,
			AltQuestions: e.AltQuestions,
			Source:       source,
			Author:       e.Author,
			BookTitle:    e.BookTitle,
			Page:         string(e.Page),
			SourceURL:    e.SourceURL,
		})
	}
	return entries, nil
}
