package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateProfile inserts a new user profile.
func (s *sqlxStore) CreateProfile(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return fmt.Errorf("cannot create nil profile")
	}
	if profile.Username == "" || profile.DisplayName == "" {
		return fmt.Errorf("profile must have username and display_name")
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO profiles (id, username, display_name, password_hash, avatar_url, bio, created_at)
        VALUES (:id, :username, :display_name, :password_hash, :avatar_url, :bio, :created_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("failed to create profile %q: %w", profile.Username, err)
	}
	s.logger.DebugContext(ctx, "Profile created", "user_id", profile.ID, "username", profile.Username)
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *sqlxStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	if id == "" {
		return nil, fmt.Errorf("profile id cannot be empty")
	}

	var profile Profile
	query := `
        SELECT id, username, display_name, password_hash, avatar_url, bio, created_at
        FROM profiles WHERE id = ?;
    `
	if err := s.db.GetContext(ctx, &profile, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return &profile, nil
}

// GetProfileByUsername retrieves a profile by its unique username.
func (s *sqlxStore) GetProfileByUsername(ctx context.Context, username string) (*Profile, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	var profile Profile
	query := `
        SELECT id, username, display_name, password_hash, avatar_url, bio, created_at
        FROM profiles WHERE username = ?;
    `
	if err := s.db.GetContext(ctx, &profile, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile by username %q: %w", username, err)
	}
	return &profile, nil
}

// SearchProfiles finds profiles whose username or display name contains the query.
func (s *sqlxStore) SearchProfiles(ctx context.Context, query string, limit int) ([]Profile, error) {
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	var profiles []Profile
	pattern := "%" + query + "%"
	q := `
        SELECT id, username, display_name, password_hash, avatar_url, bio, created_at
        FROM profiles
        WHERE username LIKE ? OR display_name LIKE ?
        ORDER BY username ASC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &profiles, q, pattern, pattern, limit); err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	return profiles, nil
}

// CreateSession inserts a new session token.
func (s *sqlxStore) CreateSession(ctx context.Context, session *Session) error {
	if session == nil || session.UserID == "" {
		return fmt.Errorf("session with user_id is required")
	}
	if session.Token == "" {
		session.Token = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO sessions (token, user_id, created_at, expires_at)
        VALUES (:token, :user_id, :created_at, :expires_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("failed to create session for user %s: %w", session.UserID, err)
	}
	return nil
}

// GetSession retrieves a session by token.
func (s *sqlxStore) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("session token cannot be empty")
	}

	var session Session
	query := `SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?;`
	if err := s.db.GetContext(ctx, &session, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// DeleteExpiredSessions removes sessions past their expiry and returns the count.
func (s *sqlxStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?;`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// CreateGroup inserts a new group and its creator membership in one transaction.
func (s *sqlxStore) CreateGroup(ctx context.Context, group *Group) error {
	if group == nil || group.Name == "" || group.CreatedBy == "" {
		return fmt.Errorf("group must have name and created_by")
	}
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if _, err := tx.NamedExecContext(ctx, `
        INSERT INTO groups (id, name, avatar_url, created_by, created_at)
        VALUES (:id, :name, :avatar_url, :created_by, :created_at);
    `, group); err != nil {
		return fmt.Errorf("failed to create group %q: %w", group.Name, err)
	}

	member := &GroupMember{
		GroupID:  group.ID,
		UserID:   group.CreatedBy,
		AddedBy:  group.CreatedBy,
		JoinedAt: group.CreatedAt,
	}
	if _, err := tx.NamedExecContext(ctx, `
        INSERT INTO group_members (group_id, user_id, added_by, joined_at)
        VALUES (:group_id, :user_id, :added_by, :joined_at);
    `, member); err != nil {
		return fmt.Errorf("failed to add creator to group %s: %w", group.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Group created", "group_id", group.ID, "created_by", group.CreatedBy)
	return nil
}

// GetGroup retrieves a group by ID.
func (s *sqlxStore) GetGroup(ctx context.Context, id string) (*Group, error) {
	if id == "" {
		return nil, fmt.Errorf("group id cannot be empty")
	}

	var group Group
	query := `SELECT id, name, avatar_url, created_by, created_at FROM groups WHERE id = ?;`
	if err := s.db.GetContext(ctx, &group, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group %s: %w", id, err)
	}
	return &group, nil
}

// DeleteGroup removes a group; members, bot attachments, and messages cascade.
func (s *sqlxStore) DeleteGroup(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("group id cannot be empty")
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGroupsForUser retrieves all groups where the user is a member.
func (s *sqlxStore) ListGroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}

	var groups []Group
	query := `
        SELECT g.id, g.name, g.avatar_url, g.created_by, g.created_at
        FROM groups g
        INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id = ?
        ORDER BY g.created_at DESC;
    `
	if err := s.db.SelectContext(ctx, &groups, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list groups for user %s: %w", userID, err)
	}
	return groups, nil
}

// AddGroupMember adds a user to a group.
func (s *sqlxStore) AddGroupMember(ctx context.Context, member *GroupMember) error {
	if member == nil || member.GroupID == "" || member.UserID == "" {
		return fmt.Errorf("group_id and user_id are required")
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO group_members (group_id, user_id, added_by, joined_at)
        VALUES (:group_id, :user_id, :added_by, :joined_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, member); err != nil {
		return fmt.Errorf("failed to add member %s to group %s: %w", member.UserID, member.GroupID, err)
	}
	return nil
}

// RemoveGroupMember removes a user from a group.
func (s *sqlxStore) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	if groupID == "" || userID == "" {
		return fmt.Errorf("group_id and user_id are required")
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?;`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member %s from group %s: %w", userID, groupID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGroupMembers retrieves the profiles of all members of a group.
func (s *sqlxStore) ListGroupMembers(ctx context.Context, groupID string) ([]Profile, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group_id cannot be empty")
	}

	var profiles []Profile
	query := `
        SELECT p.id, p.username, p.display_name, p.password_hash, p.avatar_url, p.bio, p.created_at
        FROM profiles p
        INNER JOIN group_members gm ON gm.user_id = p.id
        WHERE gm.group_id = ?
        ORDER BY gm.joined_at ASC;
    `
	if err := s.db.SelectContext(ctx, &profiles, query, groupID); err != nil {
		return nil, fmt.Errorf("failed to list members of group %s: %w", groupID, err)
	}
	return profiles, nil
}

// IsGroupMember reports whether the user belongs to the group.
func (s *sqlxStore) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	if groupID == "" || userID == "" {
		return false, fmt.Errorf("group_id and user_id are required")
	}

	var count int
	query := `SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?;`
	if err := s.db.GetContext(ctx, &count, query, groupID, userID); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

// CreateFriendship inserts a new friend request.
func (s *sqlxStore) CreateFriendship(ctx context.Context, friendship *Friendship) error {
	if friendship == nil || friendship.RequesterID == "" || friendship.AddresseeID == "" {
		return fmt.Errorf("requester_id and addressee_id are required")
	}
	if friendship.RequesterID == friendship.AddresseeID {
		return fmt.Errorf("cannot create friendship with self")
	}
	if friendship.ID == "" {
		friendship.ID = uuid.New().String()
	}
	if friendship.Status == "" {
		friendship.Status = StatusPending
	}
	if friendship.CreatedAt.IsZero() {
		friendship.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO friendships (id, requester_id, addressee_id, status, created_at)
        VALUES (:id, :requester_id, :addressee_id, :status, :created_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, friendship); err != nil {
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	return nil
}

// GetFriendship retrieves a friendship by ID.
func (s *sqlxStore) GetFriendship(ctx context.Context, id string) (*Friendship, error) {
	if id == "" {
		return nil, fmt.Errorf("friendship id cannot be empty")
	}

	var friendship Friendship
	query := `SELECT id, requester_id, addressee_id, status, created_at FROM friendships WHERE id = ?;`
	if err := s.db.GetContext(ctx, &friendship, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get friendship %s: %w", id, err)
	}
	return &friendship, nil
}

// UpdateFriendshipStatus transitions a friendship to accepted or rejected.
func (s *sqlxStore) UpdateFriendshipStatus(ctx context.Context, id, status string) error {
	if id == "" {
		return fmt.Errorf("friendship id cannot be empty")
	}
	if status != StatusAccepted && status != StatusRejected {
		return fmt.Errorf("invalid friendship status %q", status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE friendships SET status = ? WHERE id = ?;`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update friendship %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFriendshipsForUser retrieves all friendships where the user is either side.
func (s *sqlxStore) ListFriendshipsForUser(ctx context.Context, userID string) ([]Friendship, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}

	var friendships []Friendship
	query := `
        SELECT id, requester_id, addressee_id, status, created_at
        FROM friendships
        WHERE requester_id = ? OR addressee_id = ?
        ORDER BY created_at DESC;
    `
	if err := s.db.SelectContext(ctx, &friendships, query, userID, userID); err != nil {
		return nil, fmt.Errorf("failed to list friendships for user %s: %w", userID, err)
	}
	return friendships, nil
}

// CreateBotShareRequest inserts a new share request for a private bot.
func (s *sqlxStore) CreateBotShareRequest(ctx context.Context, req *BotShareRequest) error {
	if req == nil || req.BotID == "" || req.RequesterID == "" || req.OwnerID == "" {
		return fmt.Errorf("bot_id, requester_id and owner_id are required")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO bot_share_requests (id, bot_id, requester_id, owner_id, status, created_at)
        VALUES (:id, :bot_id, :requester_id, :owner_id, :status, :created_at);
    `
	if _, err := s.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("failed to create bot share request: %w", err)
	}
	return nil
}

// GetBotShareRequest retrieves a share request by ID.
func (s *sqlxStore) GetBotShareRequest(ctx context.Context, id string) (*BotShareRequest, error) {
	if id == "" {
		return nil, fmt.Errorf("share request id cannot be empty")
	}

	var req BotShareRequest
	query := `SELECT id, bot_id, requester_id, owner_id, status, created_at FROM bot_share_requests WHERE id = ?;`
	if err := s.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bot share request %s: %w", id, err)
	}
	return &req, nil
}

// UpdateBotShareRequestStatus transitions a share request's status.
func (s *sqlxStore) UpdateBotShareRequestStatus(ctx context.Context, id, status string) error {
	if id == "" {
		return fmt.Errorf("share request id cannot be empty")
	}
	if status != StatusAccepted && status != StatusRejected && status != StatusExpired {
		return fmt.Errorf("invalid share request status %q", status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE bot_share_requests SET status = ? WHERE id = ?;`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update bot share request %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBotShareRequestsForOwner retrieves pending requests addressed to an owner.
func (s *sqlxStore) ListBotShareRequestsForOwner(ctx context.Context, ownerID string) ([]BotShareRequest, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner_id cannot be empty")
	}

	var requests []BotShareRequest
	query := `
        SELECT id, bot_id, requester_id, owner_id, status, created_at
        FROM bot_share_requests
        WHERE owner_id = ? AND status = ?
        ORDER BY created_at DESC;
    `
	if err := s.db.SelectContext(ctx, &requests, query, ownerID, StatusPending); err != nil {
		return nil, fmt.Errorf("failed to list share requests for owner %s: %w", ownerID, err)
	}
	return requests, nil
}

// HasAcceptedBotShare reports whether the owner accepted a share request for
// this bot from this requester. An accepted share grants the requester
// access to the private bot.
func (s *sqlxStore) HasAcceptedBotShare(ctx context.Context, botID, requesterID string) (bool, error) {
	if botID == "" || requesterID == "" {
		return false, fmt.Errorf("bot_id and requester_id are required")
	}

	var count int
	query := `SELECT COUNT(*) FROM bot_share_requests WHERE bot_id = ? AND requester_id = ? AND status = ?;`
	if err := s.db.GetContext(ctx, &count, query, botID, requesterID, StatusAccepted); err != nil {
		return false, fmt.Errorf("failed to check bot share for bot %s: %w", botID, err)
	}
	return count > 0, nil
}

// ExpireStaleBotShareRequests marks old pending requests as expired and returns the count.
func (s *sqlxStore) ExpireStaleBotShareRequests(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE bot_share_requests SET status = ? WHERE status = ? AND created_at < ?;`,
		StatusExpired, StatusPending, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale share requests: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
