package bookimport

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store is the host storage an import writes into. Files are scoped to a
// chapter: the same path may be stored once per chapter.
type Store interface {
	// CreateBook creates an empty book and returns its id.
	CreateBook(ctx context.Context, title string) (int64, error)

	// MaxPageNumber returns the highest page number used in the book, or 0.
	MaxPageNumber(ctx context.Context, bookID int64) (int, error)

	// InsertChapter stores ch and returns the new chapter id.
	InsertChapter(ctx context.Context, ch *StoredChapter) (int64, error)

	// UpdateChapterContent replaces the content of an existing chapter.
	UpdateChapterContent(ctx context.Context, chapterID int64, content string) error

	// HasFile reports whether path is already stored for the chapter.
	HasFile(ctx context.Context, chapterID int64, path string) (bool, error)

	// PutFile stores data at path in the chapter's file area.
	PutFile(ctx context.Context, chapterID int64, path string, data []byte) error
}

// RevisionBumper is implemented by stores that track a book revision to be
// bumped after every successful import.
type RevisionBumper interface {
	BumpRevision(ctx context.Context, bookID int64) error
}

// MemoryStore is an in-memory Store, safe for concurrent use.
type MemoryStore struct {
	mu        sync.Mutex
	nextBook  int64
	nextChap  int64
	books     map[int64]*memoryBook
	chapters  map[int64]*StoredChapter
	files     map[int64]map[string][]byte
	revisions map[int64]int
}

type memoryBook struct {
	id    int64
	title string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:     make(map[int64]*memoryBook),
		chapters:  make(map[int64]*StoredChapter),
		files:     make(map[int64]map[string][]byte),
		revisions: make(map[int64]int),
	}
}

func (s *MemoryStore) CreateBook(_ context.Context, title string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBook++
	s.books[s.nextBook] = &memoryBook{id: s.nextBook, title: title}
	return s.nextBook, nil
}

func (s *MemoryStore) MaxPageNumber(_ context.Context, bookID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, ch := range s.chapters {
		if ch.BookID == bookID && ch.PageNum > max {
			max = ch.PageNum
		}
	}
	return max, nil
}

func (s *MemoryStore) InsertChapter(_ context.Context, ch *StoredChapter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextChap++
	c := *ch
	c.ID = s.nextChap
	s.chapters[c.ID] = &c
	return c.ID, nil
}

func (s *MemoryStore) UpdateChapterContent(_ context.Context, chapterID int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chapters[chapterID]
	if !ok {
		return fmt.Errorf("memory store: chapter %d not found", chapterID)
	}
	ch.Content = content
	return nil
}

func (s *MemoryStore) HasFile(_ context.Context, chapterID int64, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[chapterID][path]
	return ok, nil
}

func (s *MemoryStore) PutFile(_ context.Context, chapterID int64, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chapters[chapterID]; !ok {
		return fmt.Errorf("memory store: chapter %d not found", chapterID)
	}
	if s.files[chapterID] == nil {
		s.files[chapterID] = make(map[string][]byte)
	}
	s.files[chapterID][path] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) BumpRevision(_ context.Context, bookID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revisions[bookID]++
	return nil
}

// Chapters returns the chapters of a book ordered by page number.
func (s *MemoryStore) Chapters(bookID int64) []StoredChapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StoredChapter
	for _, ch := range s.chapters {
		if ch.BookID == bookID {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNum < out[j].PageNum })
	return out
}

// File returns a stored file and whether it exists.
func (s *MemoryStore) File(chapterID int64, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[chapterID][path]
	return data, ok
}

// BookTitle returns the title a book was created with.
func (s *MemoryStore) BookTitle(bookID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[bookID]; ok {
		return b.title
	}
	return ""
}

// Revision returns how many times the book's revision was bumped.
func (s *MemoryStore) Revision(bookID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revisions[bookID]
}
