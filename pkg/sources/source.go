// Package sources defines the contract for record sources and the paging
// and aggregation the sync engine applies to them.
//
// A source returns records one page at a time. Paginate drives a source to
// exhaustion with retry around every page, and Merge combines several
// sources by identity with earlier sources taking precedence.
//
// Example usage:
//
//	records, err := sources.Paginate(ctx, src, sources.PaginateOptions{
//	    PageSize: 100,
//	    Retry:    retry.DefaultPolicy(),
//	})
//	if err != nil {
//	    return err
//	}
package sources

import (
	"context"
	"slices"
	"sync"

	"github.com/agentstation/rowsync/pkg/record"
)

// ID identifies a source instance.
type ID string

// String returns the string representation of a source ID.
func (id ID) String() string {
	return string(id)
}

// Page is one page of records. HasMore is a hint; an empty or short page
// also ends pagination.
type Page struct {
	Items   []record.Record
	HasMore bool
}

// Source produces records page by page. cursor is the number of records
// already consumed. filters are source-specific query parameters.
type Source interface {
	ID() ID
	FetchPage(ctx context.Context, cursor, pageSize int, filters map[string]string) (Page, error)
}

// Sources is a thread-safe container for named sources.
type Sources struct {
	mu      sync.RWMutex
	sources map[ID]Source
}

// NewSources creates a new Sources instance.
func NewSources() *Sources {
	return &Sources{
		sources: make(map[ID]Source),
	}
}

// Get returns a source by ID.
func (s *Sources) Get(id ID) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, found := s.sources[id]
	return src, found
}

// Set registers a source under its ID.
func (s *Sources) Set(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID()] = src
}

// Len returns the number of sources.
func (s *Sources) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

// IDs returns the registered source IDs in sorted order.
func (s *Sources) IDs() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]ID, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
