package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/lumenlabs/lumen/internal/db"
	"github.com/lumenlabs/lumen/internal/search"
)

// pgUndefinedColumn is the Postgres error code raised when an insert names a
// column the deployed schema does not know (schema drift).
const pgUndefinedColumn = "42703"

var ErrNotFound = errors.New("conversation not found")

// Service is the durable store for conversations and messages.
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
		logger: log.With(slog.String("service", "conversation")),
	}
}

// Create inserts a new conversation container.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Conversation, error) {
	query := strings.TrimSpace(req.Query)
	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = "search"
	}
	const insert = `
		INSERT INTO conversations (user_id, query, mode, model)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, query, mode, model, created_at
	`
	userID := pgtype.UUID{}
	if strings.TrimSpace(req.UserID) != "" {
		parsed, err := dbpkg.ParseUUID(req.UserID)
		if err != nil {
			return Conversation{}, err
		}
		userID = parsed
	}
	row := s.db.QueryRow(ctx, insert, userID, query, mode, strings.TrimSpace(req.Model))
	conv, err := scanConversation(row)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	conv.Messages = []Message{}
	return conv, nil
}

// Get returns a conversation with its messages oldest-first.
func (s *Service) Get(ctx context.Context, id string) (Conversation, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Conversation{}, err
	}
	const selectConv = `
		SELECT id, user_id, query, mode, model, created_at
		FROM conversations
		WHERE id = $1
	`
	conv, err := scanConversation(s.db.QueryRow(ctx, selectConv, pgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	messages, err := s.listMessages(ctx, pgID)
	if err != nil {
		return Conversation{}, err
	}
	conv.Messages = messages
	return conv, nil
}

// RecordMessage inserts one exchange row. If the store rejects the optional
// metadata column (schema drift on older deployments), the insert is retried
// once without it; the retry happens before any caller-visible success, so at
// most one row is ever created per call.
func (s *Service) RecordMessage(ctx context.Context, input RecordMessageInput) (Message, error) {
	pgConvID, err := dbpkg.ParseUUID(input.ConversationID)
	if err != nil {
		return Message{}, err
	}
	resultsJSON, err := json.Marshal(nonNilResults(input.Results))
	if err != nil {
		return Message{}, fmt.Errorf("marshal search results: %w", err)
	}
	metaJSON, err := json.Marshal(nonNilMap(input.Metadata))
	if err != nil {
		return Message{}, fmt.Errorf("marshal message metadata: %w", err)
	}

	const insertFull = `
		INSERT INTO messages (conversation_id, user_text, search_results, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, user_text, search_results, answer, liked, disliked, created_at
	`
	msg, err := scanMessage(s.db.QueryRow(ctx, insertFull, pgConvID, input.UserText, resultsJSON, metaJSON))
	if err == nil {
		return msg, nil
	}
	if !isUndefinedColumn(err) {
		return Message{}, fmt.Errorf("record message: %w", err)
	}

	s.logger.Warn("message insert hit schema drift, retrying without metadata",
		slog.String("conversation_id", input.ConversationID))
	const insertLegacy = `
		INSERT INTO messages (conversation_id, user_text, search_results)
		VALUES ($1, $2, $3)
		RETURNING id, conversation_id, user_text, search_results, answer, liked, disliked, created_at
	`
	msg, err = scanMessage(s.db.QueryRow(ctx, insertLegacy, pgConvID, input.UserText, resultsJSON))
	if err != nil {
		return Message{}, fmt.Errorf("record message: %w", err)
	}
	return msg, nil
}

// SetAnswer writes the AI answer onto a message once generation finishes.
func (s *Service) SetAnswer(ctx context.Context, messageID, answer string) error {
	pgID, err := dbpkg.ParseUUID(messageID)
	if err != nil {
		return err
	}
	const update = `UPDATE messages SET answer = $2 WHERE id = $1`
	tag, err := s.db.Exec(ctx, update, pgID, answer)
	if err != nil {
		return fmt.Errorf("set answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateReaction sets the like/dislike flags on a message.
func (s *Service) UpdateReaction(ctx context.Context, messageID string, req ReactionRequest) error {
	pgID, err := dbpkg.ParseUUID(messageID)
	if err != nil {
		return err
	}
	const update = `UPDATE messages SET liked = $2, disliked = $3 WHERE id = $1`
	tag, err := s.db.Exec(ctx, update, pgID, req.Liked, req.Disliked)
	if err != nil {
		return fmt.Errorf("update reaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) listMessages(ctx context.Context, convID pgtype.UUID) ([]Message, error) {
	const selectMsgs = `
		SELECT id, conversation_id, user_text, search_results, answer, liked, disliked, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, selectMsgs, convID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	messages := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		id        pgtype.UUID
		userID    pgtype.UUID
		query     string
		mode      string
		model     string
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &userID, &query, &mode, &model, &createdAt); err != nil {
		return Conversation{}, err
	}
	conv := Conversation{
		ID:        id.String(),
		Query:     query,
		Mode:      mode,
		Model:     model,
		CreatedAt: createdAt.Time,
	}
	if userID.Valid {
		conv.UserID = userID.String()
	}
	return conv, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		id          pgtype.UUID
		convID      pgtype.UUID
		userText    string
		resultsJSON []byte
		answer      pgtype.Text
		liked       bool
		disliked    bool
		createdAt   pgtype.Timestamptz
	)
	if err := row.Scan(&id, &convID, &userText, &resultsJSON, &answer, &liked, &disliked, &createdAt); err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:             id.String(),
		ConversationID: convID.String(),
		UserText:       userText,
		SearchResults:  parseResults(resultsJSON),
		Liked:          liked,
		Disliked:       disliked,
		CreatedAt:      createdAt.Time,
	}
	if answer.Valid {
		msg.Answer = answer.String
		msg.HasAnswer = true
	}
	return msg, nil
}

func parseResults(data []byte) []search.SourceItem {
	if len(data) == 0 {
		return []search.SourceItem{}
	}
	var items []search.SourceItem
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("parse stored search results failed", slog.Any("error", err))
		return []search.SourceItem{}
	}
	if items == nil {
		items = []search.SourceItem{}
	}
	return items
}

func isUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedColumn
}

func nonNilResults(items []search.SourceItem) []search.SourceItem {
	if items == nil {
		return []search.SourceItem{}
	}
	return items
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
