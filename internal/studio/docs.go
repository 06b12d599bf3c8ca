package studio

import (
	"sync"

	"github.com/standardbeagle/clangfmt-studio/internal/host"
)

// PreviewScheme is the URI scheme of preview documents
const PreviewScheme = "clangfmt-preview"

// DocumentStore holds the text of virtual documents. It is the document
// provider registered with the host for PreviewScheme.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[host.URI]string
}

// NewDocumentStore creates an empty store
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[host.URI]string)}
}

var _ host.DocumentProvider = (*DocumentStore)(nil)

// Content implements host.DocumentProvider
func (s *DocumentStore) Content(uri host.URI) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.docs[uri]
	return text, ok
}

func (s *DocumentStore) Set(uri host.URI, text string) {
	s.mu.Lock()
	s.docs[uri] = text
	s.mu.Unlock()
}

func (s *DocumentStore) Delete(uri host.URI) {
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()
}

func (s *DocumentStore) Has(uri host.URI) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[uri]
	return ok
}

func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
