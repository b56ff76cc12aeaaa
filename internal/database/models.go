package database

import (
	"time"
)

// Sender type values for Message.SenderType.
const (
	SenderTypeUser = "user"
	SenderTypeBot  = "bot"
)

// Status values shared by friendships and bot share requests.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusExpired  = "expired"
)

// Profile represents a registered user account.
type Profile struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	AvatarURL    string    `db:"avatar_url" json:"avatar_url"`
	Bio          string    `db:"bio" json:"bio"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Session is a bearer token issued at register/login time.
type Session struct {
	Token     string    `db:"token" json:"token"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Group represents a group conversation owning a set of human members
// and a set of bot attachments.
type Group struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GroupMember associates a user with a group.
type GroupMember struct {
	GroupID  string    `db:"group_id" json:"group_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	AddedBy  string    `db:"added_by" json:"added_by"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// Bot is a user-authored persona. SystemPrompt is untrusted free text
// written by the owner and may or may not already carry the structural
// section markers recognized by the prompt builder.
type Bot struct {
	ID           string    `db:"id" json:"id"`
	OwnerID      string    `db:"owner_id" json:"owner_id"`
	Name         string    `db:"name" json:"name"`
	AvatarURL    string    `db:"avatar_url" json:"avatar_url"`
	SystemPrompt string    `db:"system_prompt" json:"system_prompt"`
	IsPublic     bool      `db:"is_public" json:"is_public"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// GroupBot associates a bot with a group. The orchestrator's working set
// for a run is exactly the bots attached to the triggering group.
type GroupBot struct {
	GroupID  string    `db:"group_id" json:"group_id"`
	BotID    string    `db:"bot_id" json:"bot_id"`
	AddedBy  string    `db:"added_by" json:"added_by"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// Message is a single, immutable group message. SenderID points at a
// profile or a bot depending on SenderType. BotHop counts how many
// bot replies precede this message in a bot-to-bot chain; human messages
// always carry hop 0.
type Message struct {
	ID         string    `db:"id" json:"id"`
	GroupID    string    `db:"group_id" json:"group_id"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	SenderType string    `db:"sender_type" json:"sender_type"`
	Content    string    `db:"content" json:"content"`
	BotHop     int       `db:"bot_hop" json:"bot_hop"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Friendship is a friend request between two users.
type Friendship struct {
	ID          string    `db:"id" json:"id"`
	RequesterID string    `db:"requester_id" json:"requester_id"`
	AddresseeID string    `db:"addressee_id" json:"addressee_id"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// BotShareRequest asks a bot's owner to share a private bot with the requester.
type BotShareRequest struct {
	ID          string    `db:"id" json:"id"`
	BotID       string    `db:"bot_id" json:"bot_id"`
	RequesterID string    `db:"requester_id" json:"requester_id"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
