// Package filecontext stores the file set a conversation is currently
// grounded on, so follow-up queries can reuse files without re-upload.
package filecontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	dbpkg "github.com/lumenlabs/lumen/internal/db"
)

const keyPrefix = "conversation_files_"

// Service is the conversation file context store. Write replaces the stored
// set; the most recent file-analysis submission defines the context.
type Service struct {
	db     dbpkg.DBTX
	logger *slog.Logger
}

func NewService(log *slog.Logger, db dbpkg.DBTX) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     db,
		logger: log.With(slog.String("service", "file_context")),
	}
}

// Key renders the storage key for a conversation id.
func Key(conversationID string) string {
	return keyPrefix + conversationID
}

// Write replaces the stored file set for the conversation.
func (s *Service) Write(ctx context.Context, conversationID string, refs []UploadedFileRef) error {
	if refs == nil {
		refs = []UploadedFileRef{}
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("marshal file refs: %w", err)
	}
	const upsert = `
		INSERT INTO conversation_files (key, files, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET files = EXCLUDED.files, updated_at = now()
	`
	if _, err := s.db.Exec(ctx, upsert, Key(conversationID), data); err != nil {
		return fmt.Errorf("write file context: %w", err)
	}
	s.logger.Debug("file context written",
		slog.String("conversation_id", conversationID),
		slog.Int("files", len(refs)))
	return nil
}

// Read returns the stored file set, or an empty slice when none exists.
func (s *Service) Read(ctx context.Context, conversationID string) ([]UploadedFileRef, error) {
	const query = `SELECT files FROM conversation_files WHERE key = $1`
	var data []byte
	err := s.db.QueryRow(ctx, query, Key(conversationID)).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []UploadedFileRef{}, nil
		}
		return nil, fmt.Errorf("read file context: %w", err)
	}
	var refs []UploadedFileRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("decode file context: %w", err)
	}
	if refs == nil {
		refs = []UploadedFileRef{}
	}
	return refs, nil
}

// Clear removes the stored file set. Source files are not touched.
func (s *Service) Clear(ctx context.Context, conversationID string) error {
	const del = `DELETE FROM conversation_files WHERE key = $1`
	if _, err := s.db.Exec(ctx, del, Key(conversationID)); err != nil {
		return fmt.Errorf("clear file context: %w", err)
	}
	return nil
}

// PruneExpired deletes contexts untouched for longer than the retention
// window. Run periodically to keep the table bounded.
func (s *Service) PruneExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	const del = `DELETE FROM conversation_files WHERE updated_at < $1`
	tag, err := s.db.Exec(ctx, del, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("prune file contexts: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("pruned expired file contexts", slog.Int64("count", n))
		return n, nil
	}
	return 0, nil
}
