package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tandemtalk/server/internal/store"
)

// Schema is the database schema applied on open. IF NOT EXISTS keeps reopening
// an existing database a no-op.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	online        BOOLEAN NOT NULL DEFAULT 0,
	last_seen_at  DATETIME,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chats (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_a_id         INTEGER NOT NULL,
	user_b_id         INTEGER NOT NULL,
	direct_key        TEXT NOT NULL UNIQUE,
	last_message_body TEXT,
	last_message_from INTEGER,
	last_message_at   DATETIME,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_a_id) REFERENCES users(id),
	FOREIGN KEY (user_b_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id    INTEGER NOT NULL,
	sender_id  INTEGER NOT NULL,
	body       TEXT NOT NULL,
	read       BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (chat_id) REFERENCES chats(id),
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS partners (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	partner_id INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user_id, partner_id),
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (partner_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS calls (
	id               TEXT PRIMARY KEY,
	chat_id          INTEGER NOT NULL,
	initiator_id     INTEGER NOT NULL,
	callee_id        INTEGER NOT NULL,
	status           TEXT NOT NULL DEFAULT 'ringing',
	external_room_id TEXT,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ended_at         DATETIME,
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_chats_user_a ON chats(user_a_id);
CREATE INDEX IF NOT EXISTS idx_chats_user_b ON chats(user_b_id);
CREATE INDEX IF NOT EXISTS idx_partners_user ON partners(user_id);
CREATE INDEX IF NOT EXISTS idx_partners_partner ON partners(partner_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema or seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, online, last_seen_at, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, online, last_seen_at, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	var lastSeen sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Online,
		&lastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if lastSeen.Valid {
		user.LastSeenAt = &lastSeen.Time
	}
	return &user, nil
}

// SetUserOnlineStatus records the user's presence flag and last-seen timestamp.
func (s *SQLiteStore) SetUserOnlineStatus(ctx context.Context, userID int64, online bool, lastSeen time.Time) error {
	query := `
		UPDATE users SET online = ?, last_seen_at = ?
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, online, lastSeen, userID); err != nil {
		return fmt.Errorf("update online status: %w", err)
	}
	return nil
}

// SearchUsers searches for users by username prefix.
func (s *SQLiteStore) SearchUsers(ctx context.Context, queryStr string) ([]*store.User, error) {
	query := `
		SELECT id, username, password_hash, online, last_seen_at, created_at
		FROM users
		WHERE username LIKE ? || '%'
		ORDER BY username
		LIMIT 50
	`
	rows, err := s.db.QueryContext(ctx, query, queryStr)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		var lastSeen sql.NullTime
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Online, &lastSeen, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if lastSeen.Valid {
			user.LastSeenAt = &lastSeen.Time
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// ==== ChatStore implementation ====

// CreateChat creates the chat for a user pair, deduplicated by directKey.
func (s *SQLiteStore) CreateChat(ctx context.Context, directKey string, userAID, userBID int64) (*store.Chat, error) {
	// Return the existing chat for the pair when one already exists.
	existing, err := s.GetChatByDirectKey(ctx, directKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	query := `
		INSERT INTO chats (user_a_id, user_b_id, direct_key)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, userAID, userBID, directKey)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetChatByID(ctx, id)
}

// GetChatByID retrieves a chat by ID.
func (s *SQLiteStore) GetChatByID(ctx context.Context, id int64) (*store.Chat, error) {
	query := selectChat + ` WHERE id = ?`
	return s.scanChat(s.db.QueryRowContext(ctx, query, id))
}

// GetChatByDirectKey retrieves a chat by its direct key.
func (s *SQLiteStore) GetChatByDirectKey(ctx context.Context, directKey string) (*store.Chat, error) {
	query := selectChat + ` WHERE direct_key = ?`
	return s.scanChat(s.db.QueryRowContext(ctx, query, directKey))
}

const selectChat = `
	SELECT id, user_a_id, user_b_id, direct_key,
	       last_message_body, last_message_from, last_message_at, created_at
	FROM chats
`

func (s *SQLiteStore) scanChat(row *sql.Row) (*store.Chat, error) {
	var chat store.Chat
	var body sql.NullString
	var from sql.NullInt64
	var at sql.NullTime
	err := row.Scan(
		&chat.ID,
		&chat.UserAID,
		&chat.UserBID,
		&chat.DirectKey,
		&body,
		&from,
		&at,
		&chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}
	if body.Valid {
		chat.LastMessageBody = &body.String
	}
	if from.Valid {
		chat.LastMessageFrom = &from.Int64
	}
	if at.Valid {
		chat.LastMessageAt = &at.Time
	}
	return &chat, nil
}

// ListChats lists chats the user participates in, most recent activity first.
func (s *SQLiteStore) ListChats(ctx context.Context, userID int64) ([]*store.Chat, error) {
	query := selectChat + `
		WHERE user_a_id = ? OR user_b_id = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*store.Chat
	for rows.Next() {
		var chat store.Chat
		var body sql.NullString
		var from sql.NullInt64
		var at sql.NullTime
		if err := rows.Scan(&chat.ID, &chat.UserAID, &chat.UserBID, &chat.DirectKey,
			&body, &from, &at, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if body.Valid {
			chat.LastMessageBody = &body.String
		}
		if from.Valid {
			chat.LastMessageFrom = &from.Int64
		}
		if at.Valid {
			chat.LastMessageAt = &at.Time
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

// UpdateChatLastMessage updates the chat's denormalized snapshot.
func (s *SQLiteStore) UpdateChatLastMessage(ctx context.Context, chatID int64, snap store.ChatSnapshot) error {
	query := `
		UPDATE chats
		SET last_message_body = ?, last_message_from = ?, last_message_at = ?
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, snap.Body, snap.SenderID, snap.SentAt, chatID); err != nil {
		return fmt.Errorf("update chat snapshot: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

// InsertMessage persists a message and returns it with the assigned id and timestamp.
func (s *SQLiteStore) InsertMessage(ctx context.Context, chatID, senderID int64, body string) (*store.Message, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO messages (chat_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, chatID, senderID, body, now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return &store.Message{
		ID:        id,
		ChatID:    chatID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: now,
	}, nil
}

// ListMessages retrieves messages from a chat, oldest first within the page.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, body, read, created_at
		FROM messages
		WHERE chat_id = ?
	`
	args := []any{chatID}
	if beforeID != nil {
		query += ` AND id < ?`
		args = append(args, *beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Body, &msg.Read, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkMessagesRead marks every message in the chat not sent by readerID as read.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, chatID, readerID int64) error {
	query := `
		UPDATE messages SET read = 1
		WHERE chat_id = ? AND sender_id != ? AND read = 0
	`
	if _, err := s.db.ExecContext(ctx, query, chatID, readerID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// ==== PartnerStore implementation ====

// CreatePartnerRequest creates a new pending partner request.
func (s *SQLiteStore) CreatePartnerRequest(ctx context.Context, userID, partnerID int64) (*store.Partner, error) {
	query := `
		INSERT INTO partners (user_id, partner_id, status)
		VALUES (?, ?, 'pending')
	`
	result, err := s.db.ExecContext(ctx, query, userID, partnerID)
	if err != nil {
		return nil, fmt.Errorf("insert partner request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getPartnerByID(ctx, id)
}

func (s *SQLiteStore) getPartnerByID(ctx context.Context, id int64) (*store.Partner, error) {
	query := `
		SELECT id, user_id, partner_id, status, created_at, updated_at
		FROM partners
		WHERE id = ?
	`
	var p store.Partner
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.PartnerID, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("partner link: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query partner link: %w", err)
	}
	return &p, nil
}

// UpdatePartnerStatus updates the status of a partner link.
func (s *SQLiteStore) UpdatePartnerStatus(ctx context.Context, userID, partnerID int64, status store.PartnerStatus) error {
	query := `
		UPDATE partners SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE (user_id = ? AND partner_id = ?) OR (user_id = ? AND partner_id = ?)
	`
	result, err := s.db.ExecContext(ctx, query, status, userID, partnerID, partnerID, userID)
	if err != nil {
		return fmt.Errorf("update partner status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("partner link: %w", store.ErrNotFound)
	}
	return nil
}

// GetPartnerLink retrieves the link between two users in either direction.
func (s *SQLiteStore) GetPartnerLink(ctx context.Context, userID, partnerID int64) (*store.Partner, error) {
	query := `
		SELECT id, user_id, partner_id, status, created_at, updated_at
		FROM partners
		WHERE (user_id = ? AND partner_id = ?) OR (user_id = ? AND partner_id = ?)
	`
	var p store.Partner
	err := s.db.QueryRowContext(ctx, query, userID, partnerID, partnerID, userID).Scan(
		&p.ID, &p.UserID, &p.PartnerID, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("partner link: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query partner link: %w", err)
	}
	return &p, nil
}

// ListPartners lists links for a user, optionally filtered by status.
func (s *SQLiteStore) ListPartners(ctx context.Context, userID int64, status *store.PartnerStatus) ([]*store.Partner, error) {
	query := `
		SELECT id, user_id, partner_id, status, created_at, updated_at
		FROM partners
		WHERE (user_id = ? OR partner_id = ?)
	`
	args := []any{userID, userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()

	var partners []*store.Partner
	for rows.Next() {
		var p store.Partner
		if err := rows.Scan(&p.ID, &p.UserID, &p.PartnerID, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan partner link: %w", err)
		}
		partners = append(partners, &p)
	}
	return partners, rows.Err()
}

// ArePartners checks for an accepted link in either direction.
func (s *SQLiteStore) ArePartners(ctx context.Context, userID, partnerID int64) (bool, error) {
	query := `
		SELECT COUNT(1) FROM partners
		WHERE status = 'accepted'
		  AND ((user_id = ? AND partner_id = ?) OR (user_id = ? AND partner_id = ?))
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, userID, partnerID, partnerID, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count partner links: %w", err)
	}
	return count > 0, nil
}

// ==== CallStore implementation ====

// CreateCall creates a new call.
func (s *SQLiteStore) CreateCall(ctx context.Context, call *store.Call) error {
	query := `
		INSERT INTO calls (id, chat_id, initiator_id, callee_id, status, external_room_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		call.ID, call.ChatID, call.InitiatorUserID, call.CalleeUserID,
		call.Status, call.ExternalRoomID, call.CreatedAt, call.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// UpdateCall updates an existing call.
func (s *SQLiteStore) UpdateCall(ctx context.Context, call *store.Call) error {
	query := `
		UPDATE calls
		SET status = ?, external_room_id = ?, updated_at = ?, ended_at = ?
		WHERE id = ?
	`
	_, err := s.db.ExecContext(ctx, query,
		call.Status, call.ExternalRoomID, call.UpdatedAt, call.EndedAt, call.ID,
	)
	if err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	return nil
}

// GetCall retrieves a call by ID.
func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*store.Call, error) {
	query := selectCall + ` WHERE id = ?`
	return s.scanCall(s.db.QueryRowContext(ctx, query, id))
}

// GetActiveCallForChat returns a ringing or active call for a chat.
func (s *SQLiteStore) GetActiveCallForChat(ctx context.Context, chatID int64) (*store.Call, error) {
	query := selectCall + ` WHERE chat_id = ? AND status IN ('ringing', 'active')`
	return s.scanCall(s.db.QueryRowContext(ctx, query, chatID))
}

const selectCall = `
	SELECT id, chat_id, initiator_id, callee_id, status, external_room_id, created_at, updated_at, ended_at
	FROM calls
`

func (s *SQLiteStore) scanCall(row *sql.Row) (*store.Call, error) {
	var call store.Call
	var externalRoomID sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(
		&call.ID,
		&call.ChatID,
		&call.InitiatorUserID,
		&call.CalleeUserID,
		&call.Status,
		&externalRoomID,
		&call.CreatedAt,
		&call.UpdatedAt,
		&endedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query call: %w", err)
	}
	if externalRoomID.Valid {
		call.ExternalRoomID = &externalRoomID.String
	}
	if endedAt.Valid {
		call.EndedAt = &endedAt.Time
	}
	return &call, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
