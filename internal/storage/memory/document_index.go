package memory

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// DocumentIndex keeps document metadata keyed by blob path. Re-adding a path replaces it.
type DocumentIndex struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]crawler.Document
}

// NewDocumentIndex builds an empty index.
func NewDocumentIndex() *DocumentIndex {
	return &DocumentIndex{docs: make(map[string]crawler.Document)}
}

// AddDocument upserts doc by path.
func (s *DocumentIndex) AddDocument(_ context.Context, doc crawler.Document) error {
	if doc.Path == "" {
		return fmt.Errorf("add document: empty path")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.Path]; !exists {
		s.order = append(s.order, doc.Path)
	}
	s.docs[doc.Path] = doc
	return nil
}

// FindByPath returns documents whose path matches pattern, ignoring case.
func (s *DocumentIndex) FindByPath(_ context.Context, pattern string) ([]crawler.Document, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile path pattern: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.Document
	for _, path := range s.order {
		if re.MatchString(path) {
			out = append(out, s.docs[path])
		}
	}
	return out, nil
}
