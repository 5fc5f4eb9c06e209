// Package sqlitestore is a bookimport.Store backed by SQLite.
//
// Chapter files are content addressed: every file row points at a blob
// keyed by the BLAKE3 hash of its bytes, so the copies an import makes of
// the same image or stylesheet for each chapter share one blob.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/simp-lee/bookimport"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite" // pure Go driver, registered as "sqlite"
)

// ErrNotFound is returned by the readers for missing rows.
var ErrNotFound = errors.New("sqlitestore: not found")

const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE books (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		title     TEXT    NOT NULL,
		revision  INTEGER NOT NULL DEFAULT 0,
		created   INTEGER NOT NULL
	)`,
	`CREATE TABLE chapters (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id     INTEGER NOT NULL REFERENCES books(id),
		page_num    INTEGER NOT NULL,
		title       TEXT    NOT NULL,
		content     TEXT    NOT NULL,
		subchapter  INTEGER NOT NULL DEFAULT 0,
		hidden      INTEGER NOT NULL DEFAULT 0,
		source_path TEXT    NOT NULL DEFAULT '',
		created     INTEGER NOT NULL,
		modified    INTEGER NOT NULL
	)`,
	`CREATE INDEX chapters_book ON chapters(book_id, page_num)`,
	`CREATE TABLE blobs (
		hash TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`,
	`CREATE TABLE chapter_files (
		chapter_id INTEGER NOT NULL REFERENCES chapters(id),
		path       TEXT    NOT NULL,
		hash       TEXT    NOT NULL REFERENCES blobs(hash),
		size       INTEGER NOT NULL,
		PRIMARY KEY (chapter_id, path)
	)`,
}

// Book is a stored book row.
type Book struct {
	ID       int64
	Title    string
	Revision int
	Created  time.Time
}

// Store implements bookimport.Store and bookimport.RevisionBumper.
type Store struct {
	db *sql.DB
}

var (
	_ bookimport.Store          = (*Store)(nil)
	_ bookimport.RevisionBumper = (*Store)(nil)
)

// Open opens or creates the database at dsn and brings its schema up to
// date. dsn is passed to the modernc.org/sqlite driver, e.g. "books.db" or
// "file::memory:".
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", dsn, err)
	}
	// One connection keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("sqlitestore: enable foreign keys: %w", err)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("sqlitestore: read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore: migrate: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return tx.Commit()
}

func (s *Store) CreateBook(ctx context.Context, title string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO books (title, created) VALUES (?, ?)`, title, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: create book: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) MaxPageNumber(ctx context.Context, bookID int64) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(page_num) FROM chapters WHERE book_id = ?`, bookID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: max page of book %d: %w", bookID, err)
	}
	return int(max.Int64), nil
}

func (s *Store) InsertChapter(ctx context.Context, ch *bookimport.StoredChapter) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chapters (book_id, page_num, title, content, subchapter, hidden, source_path, created, modified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.BookID, ch.PageNum, ch.Title, ch.Content, ch.Subchapter, ch.Hidden, ch.SourcePath,
		ch.TimeCreated.Unix(), ch.TimeModified.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: insert chapter: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateChapterContent(ctx context.Context, chapterID int64, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chapters SET content = ?, modified = ? WHERE id = ?`,
		content, time.Now().Unix(), chapterID)
	if err != nil {
		return fmt.Errorf("sqlitestore: update chapter %d: %w", chapterID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlitestore: update chapter %d: %w", chapterID, ErrNotFound)
	}
	return nil
}

func (s *Store) HasFile(ctx context.Context, chapterID int64, path string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chapter_files WHERE chapter_id = ? AND path = ?`, chapterID, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlitestore: look up file %s: %w", path, err)
	}
	return true, nil
}

// PutFile stores data as a blob, once per distinct content, and points the
// chapter's path at it.
func (s *Store) PutFile(ctx context.Context, chapterID int64, path string, data []byte) error {
	sum := blake3.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: put file %s: %w", path, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO blobs (hash, data) VALUES (?, ?)`, hash, data); err != nil {
		return fmt.Errorf("sqlitestore: put blob for %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO chapter_files (chapter_id, path, hash, size) VALUES (?, ?, ?, ?)`,
		chapterID, path, hash, len(data)); err != nil {
		return fmt.Errorf("sqlitestore: put file %s: %w", path, err)
	}
	return tx.Commit()
}

func (s *Store) BumpRevision(ctx context.Context, bookID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE books SET revision = revision + 1 WHERE id = ?`, bookID)
	if err != nil {
		return fmt.Errorf("sqlitestore: bump revision of book %d: %w", bookID, err)
	}
	return nil
}

// Book returns a book by id.
func (s *Store) Book(ctx context.Context, id int64) (*Book, error) {
	var (
		b       Book
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, revision, created FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.Title, &b.Revision, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlitestore: book %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: book %d: %w", id, err)
	}
	b.Created = time.Unix(created, 0)
	return &b, nil
}

// Chapters returns the chapters of a book ordered by page number.
func (s *Store) Chapters(ctx context.Context, bookID int64) ([]bookimport.StoredChapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, page_num, title, content, subchapter, hidden, source_path, created, modified
		 FROM chapters WHERE book_id = ? ORDER BY page_num, id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: chapters of book %d: %w", bookID, err)
	}
	defer rows.Close()

	var out []bookimport.StoredChapter
	for rows.Next() {
		var (
			ch                bookimport.StoredChapter
			created, modified int64
		)
		if err := rows.Scan(&ch.ID, &ch.BookID, &ch.PageNum, &ch.Title, &ch.Content,
			&ch.Subchapter, &ch.Hidden, &ch.SourcePath, &created, &modified); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan chapter: %w", err)
		}
		ch.TimeCreated = time.Unix(created, 0)
		ch.TimeModified = time.Unix(modified, 0)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// File returns the content stored at path for a chapter.
func (s *Store) File(ctx context.Context, chapterID int64, path string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT b.data FROM chapter_files f JOIN blobs b ON b.hash = f.hash
		 WHERE f.chapter_id = ? AND f.path = ?`, chapterID, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlitestore: file %s of chapter %d: %w", path, chapterID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: file %s of chapter %d: %w", path, chapterID, err)
	}
	return data, nil
}

// BlobCount returns the number of distinct file contents stored.
func (s *Store) BlobCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitestore: count blobs: %w", err)
	}
	return n, nil
}
