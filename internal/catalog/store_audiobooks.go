package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateAudiobook inserts a draft audiobook.
func (s *Store) CreateAudiobook(ctx context.Context, title, author string) (*Audiobook, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("audiobook title is required")
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO audiobooks (title, author, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		title, strings.TrimSpace(author), AudiobookDraft, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audiobook: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("audiobook id: %w", err)
	}
	return s.GetAudiobook(ctx, id)
}

// GetAudiobook fetches an audiobook by id.
func (s *Store) GetAudiobook(ctx context.Context, id int64) (*Audiobook, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+audiobookColumns+` FROM audiobooks WHERE id = ?`, id)
	book, err := scanAudiobook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrAudiobookNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get audiobook: %w", err)
	}
	return book, nil
}

// ListAudiobooks returns audiobooks newest first.
func (s *Store) ListAudiobooks(ctx context.Context, limit int) ([]*Audiobook, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+audiobookColumns+` FROM audiobooks ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audiobooks: %w", err)
	}
	defer rows.Close()

	var books []*Audiobook
	for rows.Next() {
		book, err := scanAudiobook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// SetAudiobookFile records the uploaded object location and moves the audiobook into processing.
func (s *Store) SetAudiobookFile(ctx context.Context, id int64, bucket, key, url string, size int64) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE audiobooks SET file_bucket = ?, file_key = ?, file_url = ?, file_size_bytes = ?, status = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(bucket), nullableString(key), nullableString(url), size, AudiobookProcessing, s.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("set audiobook file: %w", err)
	}
	return requireRow(res, fmt.Errorf("%w: id %d", ErrAudiobookNotFound, id))
}

// SetAudiobookStatus changes an audiobook's catalog status.
func (s *Store) SetAudiobookStatus(ctx context.Context, id int64, status AudiobookStatus) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE audiobooks SET status = ?, updated_at = ? WHERE id = ?`,
		status, s.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("set audiobook status: %w", err)
	}
	return requireRow(res, fmt.Errorf("%w: id %d", ErrAudiobookNotFound, id))
}

// GetTranscription returns the transcript stored for an audiobook.
func (s *Store) GetTranscription(ctx context.Context, audiobookID int64) (*Transcription, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+transcriptionColumns+` FROM transcriptions WHERE audiobook_id = ?`, audiobookID)
	tr, err := scanTranscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: audiobook %d", ErrTranscriptionNotFound, audiobookID)
	}
	if err != nil {
		return nil, fmt.Errorf("get transcription: %w", err)
	}
	return tr, nil
}

func requireRow(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
