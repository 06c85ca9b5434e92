package remote

import (
	"context"
	"fmt"

	"github.com/notesync/notesync/internal/note"
)

// Service performs list-level note operations against the store and keeps a
// List in step with the results.
type Service struct {
	store Store
	list  *List
}

// NewService creates a service. If list is nil a new one is allocated.
func NewService(store Store, list *List) *Service {
	if list == nil {
		list = NewList()
	}
	return &Service{store: store, list: list}
}

// List returns the list the service maintains.
func (s *Service) List() *List {
	return s.list
}

// LoadNotes fetches every note and replaces the list.
func (s *Service) LoadNotes(ctx context.Context) ([]note.Note, error) {
	notes, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load notes: %w", err)
	}
	s.list.Set(notes)
	return notes, nil
}

// CreateNote creates an empty note and appends it to the list.
func (s *Service) CreateNote(ctx context.Context, title string) (note.Note, error) {
	n := note.Note{Title: title, Content: ""}

	id, err := s.store.Create(ctx, n)
	if err != nil {
		return note.Note{}, fmt.Errorf("failed to create note: %w", err)
	}

	n.ID = id
	s.list.Add(n)
	return n, nil
}

// UpdateNote writes title and content of the note with the given id.
func (s *Service) UpdateNote(ctx context.Context, id note.ID, title, content string) (note.Note, error) {
	n := note.Note{ID: id, Title: title, Content: content}

	if _, err := s.store.Update(ctx, n); err != nil {
		return note.Note{}, fmt.Errorf("failed to update note: %w", err)
	}

	s.list.Update(n)
	return n, nil
}

// DeleteNote removes the note from the store and the list.
func (s *Service) DeleteNote(ctx context.Context, n note.Note) error {
	if _, err := s.store.Delete(ctx, n); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	s.list.Delete(n.ID)
	return nil
}

// Search runs a full-text query.
func (s *Service) Search(ctx context.Context, query string) (*note.SearchResult, error) {
	return s.store.Search(ctx, query)
}

// Confirmed is suitable as the sync engine's confirmation callback: it folds
// the store's authoritative copy back into the list.
func (s *Service) Confirmed(n note.Note) {
	if _, ok := s.list.Get(n.ID); ok {
		s.list.Update(n)
		return
	}
	s.list.Add(n)
}
