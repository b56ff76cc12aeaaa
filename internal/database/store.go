package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Default and maximum limits for history queries.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage inserts a new message record, assigning ID and CreatedAt
	// when unset. Messages are append-only; there is no update or delete.
	SaveMessage(ctx context.Context, message *Message) error

	// GetMessage retrieves a single message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// GetMessagesBefore retrieves up to 'limit' messages in a group with
	// created_at strictly before the cutoff, ordered newest-first.
	GetMessagesBefore(ctx context.Context, groupID string, before time.Time, limit int) ([]Message, error)

	// GetGroupBots retrieves all bots attached to a group.
	GetGroupBots(ctx context.Context, groupID string) ([]Bot, error)

	// GetBot retrieves a bot by ID.
	GetBot(ctx context.Context, id string) (*Bot, error)

	// CreateBot inserts a new bot.
	CreateBot(ctx context.Context, bot *Bot) error

	// UpdateBot updates a bot's name, avatar, prompt, and visibility.
	UpdateBot(ctx context.Context, bot *Bot) error

	// DeleteBot removes a bot and its group attachments.
	DeleteBot(ctx context.Context, id string) error

	// ListBotsForOwner retrieves all bots owned by a user.
	ListBotsForOwner(ctx context.Context, ownerID string) ([]Bot, error)

	// ListPublicBotsForOwner retrieves a user's public bots.
	ListPublicBotsForOwner(ctx context.Context, ownerID string) ([]Bot, error)

	// AttachBotToGroup adds a bot to a group's working set.
	AttachBotToGroup(ctx context.Context, gb *GroupBot) error

	// DetachBotFromGroup removes a bot from a group.
	DetachBotFromGroup(ctx context.Context, groupID, botID string) error

	// Profile operations.
	CreateProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*Profile, error)
	SearchProfiles(ctx context.Context, query string, limit int) ([]Profile, error)

	// Session operations.
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Group operations.
	CreateGroup(ctx context.Context, group *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	DeleteGroup(ctx context.Context, id string) error
	ListGroupsForUser(ctx context.Context, userID string) ([]Group, error)
	AddGroupMember(ctx context.Context, member *GroupMember) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	ListGroupMembers(ctx context.Context, groupID string) ([]Profile, error)
	IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)

	// Friendship operations.
	CreateFriendship(ctx context.Context, friendship *Friendship) error
	GetFriendship(ctx context.Context, id string) (*Friendship, error)
	UpdateFriendshipStatus(ctx context.Context, id, status string) error
	ListFriendshipsForUser(ctx context.Context, userID string) ([]Friendship, error)

	// Bot share request operations.
	CreateBotShareRequest(ctx context.Context, req *BotShareRequest) error
	GetBotShareRequest(ctx context.Context, id string) (*BotShareRequest, error)
	UpdateBotShareRequestStatus(ctx context.Context, id, status string) error
	ListBotShareRequestsForOwner(ctx context.Context, ownerID string) ([]BotShareRequest, error)
	ExpireStaleBotShareRequests(ctx context.Context, olderThan time.Time) (int64, error)
	HasAcceptedBotShare(ctx context.Context, botID, requesterID string) (bool, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveMessage inserts a new message record.
func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.GroupID == "" {
		return fmt.Errorf("message must have a group_id")
	}
	if message.SenderID == "" {
		return fmt.Errorf("message must have a sender_id")
	}
	if message.SenderType != SenderTypeUser && message.SenderType != SenderTypeBot {
		return fmt.Errorf("invalid sender_type %q", message.SenderType)
	}
	if message.Content == "" {
		return fmt.Errorf("message must have non-empty content")
	}

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO messages (id, group_id, sender_id, sender_type, content, bot_hop, created_at)
        VALUES (:id, :group_id, :sender_id, :sender_type, :content, :bot_hop, :created_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, message); err != nil {
		s.logger.ErrorContext(ctx, "Error saving message",
			"group_id", message.GroupID, "sender_id", message.SenderID, "error", err)
		return fmt.Errorf("failed to save message (group %s): %w", message.GroupID, err)
	}

	s.logger.DebugContext(ctx, "Message saved",
		"group_id", message.GroupID, "message_id", message.ID, "sender_type", message.SenderType)
	return nil
}

// GetMessage retrieves a single message by ID.
func (s *sqlxStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	if id == "" {
		return nil, fmt.Errorf("message id cannot be empty")
	}

	var msg Message
	query := `
        SELECT id, group_id, sender_id, sender_type, content, bot_hop, created_at
        FROM messages WHERE id = ?;
    `
	if err := s.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return &msg, nil
}

// GetMessagesBefore retrieves up to 'limit' messages in a group with
// created_at strictly before the cutoff, newest-first. Callers that need
// chronological order reverse the slice.
func (s *sqlxStore) GetMessagesBefore(ctx context.Context, groupID string, before time.Time, limit int) ([]Message, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group_id cannot be empty")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
		s.logger.DebugContext(ctx, "Invalid limit provided, using default", "group_id", groupID, "default_limit", limit)
	} else if limit > maxHistoryLimit {
		limit = maxHistoryLimit
		s.logger.DebugContext(ctx, "Limit exceeded maximum value, capping", "group_id", groupID, "capped_limit", limit)
	}

	var messages []Message
	query := `
        SELECT id, group_id, sender_id, sender_type, content, bot_hop, created_at
        FROM messages
        WHERE group_id = ? AND created_at < ?
        ORDER BY created_at DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &messages, query, groupID, before, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error retrieving message history", "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to get messages for group %s: %w", groupID, err)
	}
	return messages, nil
}

// GetGroupBots retrieves all bots attached to a group.
func (s *sqlxStore) GetGroupBots(ctx context.Context, groupID string) ([]Bot, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group_id cannot be empty")
	}

	var bots []Bot
	query := `
        SELECT b.id, b.owner_id, b.name, b.avatar_url, b.system_prompt, b.is_public, b.created_at
        FROM bots b
        INNER JOIN group_bots gb ON gb.bot_id = b.id
        WHERE gb.group_id = ?
        ORDER BY gb.joined_at ASC;
    `
	if err := s.db.SelectContext(ctx, &bots, query, groupID); err != nil {
		s.logger.ErrorContext(ctx, "Error retrieving group bots", "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to get bots for group %s: %w", groupID, err)
	}
	return bots, nil
}

// GetBot retrieves a bot by ID.
func (s *sqlxStore) GetBot(ctx context.Context, id string) (*Bot, error) {
	if id == "" {
		return nil, fmt.Errorf("bot id cannot be empty")
	}

	var bot Bot
	query := `
        SELECT id, owner_id, name, avatar_url, system_prompt, is_public, created_at
        FROM bots WHERE id = ?;
    `
	if err := s.db.GetContext(ctx, &bot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bot %s: %w", id, err)
	}
	return &bot, nil
}

// CreateBot inserts a new bot.
func (s *sqlxStore) CreateBot(ctx context.Context, bot *Bot) error {
	if bot == nil {
		return fmt.Errorf("cannot create nil bot")
	}
	if bot.OwnerID == "" || bot.Name == "" {
		return fmt.Errorf("bot must have owner_id and name")
	}
	if bot.ID == "" {
		bot.ID = uuid.New().String()
	}
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO bots (id, owner_id, name, avatar_url, system_prompt, is_public, created_at)
        VALUES (:id, :owner_id, :name, :avatar_url, :system_prompt, :is_public, :created_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, bot); err != nil {
		return fmt.Errorf("failed to create bot %q: %w", bot.Name, err)
	}
	s.logger.DebugContext(ctx, "Bot created", "bot_id", bot.ID, "owner_id", bot.OwnerID)
	return nil
}

// UpdateBot updates a bot's mutable fields.
func (s *sqlxStore) UpdateBot(ctx context.Context, bot *Bot) error {
	if bot == nil || bot.ID == "" {
		return fmt.Errorf("bot with id is required for update")
	}

	query := `
        UPDATE bots
        SET name = :name, avatar_url = :avatar_url, system_prompt = :system_prompt, is_public = :is_public
        WHERE id = :id;
    `
	result, err := s.db.NamedExecContext(ctx, query, bot)
	if err != nil {
		return fmt.Errorf("failed to update bot %s: %w", bot.ID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBot removes a bot; group attachments cascade.
func (s *sqlxStore) DeleteBot(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("bot id cannot be empty")
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bot %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBotsForOwner retrieves all bots owned by a user.
func (s *sqlxStore) ListBotsForOwner(ctx context.Context, ownerID string) ([]Bot, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner_id cannot be empty")
	}
	var bots []Bot
	query := `
        SELECT id, owner_id, name, avatar_url, system_prompt, is_public, created_at
        FROM bots WHERE owner_id = ? ORDER BY created_at ASC;
    `
	if err := s.db.SelectContext(ctx, &bots, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list bots for owner %s: %w", ownerID, err)
	}
	return bots, nil
}

// ListPublicBotsForOwner retrieves a user's public bots.
func (s *sqlxStore) ListPublicBotsForOwner(ctx context.Context, ownerID string) ([]Bot, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner_id cannot be empty")
	}
	var bots []Bot
	query := `
        SELECT id, owner_id, name, avatar_url, system_prompt, is_public, created_at
        FROM bots WHERE owner_id = ? AND is_public = TRUE ORDER BY created_at ASC;
    `
	if err := s.db.SelectContext(ctx, &bots, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list public bots for owner %s: %w", ownerID, err)
	}
	return bots, nil
}

// AttachBotToGroup adds a bot to a group.
func (s *sqlxStore) AttachBotToGroup(ctx context.Context, gb *GroupBot) error {
	if gb == nil || gb.GroupID == "" || gb.BotID == "" {
		return fmt.Errorf("group_id and bot_id are required")
	}
	if gb.JoinedAt.IsZero() {
		gb.JoinedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO group_bots (group_id, bot_id, added_by, joined_at)
        VALUES (:group_id, :bot_id, :added_by, :joined_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, gb); err != nil {
		return fmt.Errorf("failed to attach bot %s to group %s: %w", gb.BotID, gb.GroupID, err)
	}
	s.logger.DebugContext(ctx, "Bot attached to group", "group_id", gb.GroupID, "bot_id", gb.BotID)
	return nil
}

// DetachBotFromGroup removes a bot from a group.
func (s *sqlxStore) DetachBotFromGroup(ctx context.Context, groupID, botID string) error {
	if groupID == "" || botID == "" {
		return fmt.Errorf("group_id and bot_id are required")
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM group_bots WHERE group_id = ? AND bot_id = ?;`, groupID, botID)
	if err != nil {
		return fmt.Errorf("failed to detach bot %s from group %s: %w", botID, groupID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RunSQLMaintenance performs database maintenance (VACUUM and ANALYZE).
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running SQL maintenance")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	return nil
}
