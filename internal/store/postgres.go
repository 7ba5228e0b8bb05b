package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, name, profile_pic_url, email, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, user.UID, user.Name, user.ProfilePicURL, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByUID(ctx context.Context, uid string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, name, profile_pic_url, email, password_hash, created_at, updated_at
		FROM users
		WHERE uid=$1
	`, uid).Scan(&user.UID, &user.Name, &user.ProfilePicURL, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, name, profile_pic_url, email, password_hash, created_at, updated_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.UID, &user.Name, &user.ProfilePicURL, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpsertProfile refreshes the display name and avatar recorded for a user.
// Runs on every sign-in so the profile shown next to messages stays current.
func (s *PostgresStore) UpsertProfile(ctx context.Context, uid, name, profilePicURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name=$2, profile_pic_url=$3, updated_at=NOW()
		WHERE uid=$1
	`, uid, name, profilePicURL)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// ---- refresh sessions (PostgreSQL fallback when Redis is not configured) ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, uid, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET uid=EXCLUDED.uid, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.UID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.uid, u.name, u.profile_pic_url, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.uid = rs.uid
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.UID, &user.Name, &user.ProfilePicURL, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- tasks ----

const taskColumns = `id, owner_uid, category, place, address, latitude, longitude, task_date, time_slot, body, status, created_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var item Task
	err := row.Scan(
		&item.ID,
		&item.OwnerUID,
		&item.Category,
		&item.Place,
		&item.Address,
		&item.Latitude,
		&item.Longitude,
		&item.Date,
		&item.TimeSlot,
		&item.Text,
		&item.Status,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_uid, category, place, address, latitude, longitude, task_date, time_slot, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, task.ID, task.OwnerUID, task.Category, task.Place, task.Address, task.Latitude, task.Longitude, task.Date, task.TimeSlot, task.Text, task.Status, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID)
	item, err := scanTask(row)
	if err != nil {
		return Task{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, limit int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

// ---- rooms ----

const roomColumns = `id, task_id, owner_uid, supporter_uid, status, created_at`

func scanRoom(row interface{ Scan(...any) error }) (Room, error) {
	var item Room
	err := row.Scan(&item.ID, &item.TaskID, &item.OwnerUID, &item.SupporterUID, &item.Status, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, roomID)
	item, err := scanRoom(row)
	if err != nil {
		return Room{}, err
	}
	return item, nil
}

// LatestRoomForTask returns the newest room attached to a task, or nil when
// none exists yet.
func (s *PostgresStore) LatestRoomForTask(ctx context.Context, taskID string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE task_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, taskID)
	item, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest room for task: %w", err)
	}
	return &item, nil
}

// RoomForSupporter returns the room a supporter already holds for a task, or
// nil when they have not opened one.
func (s *PostgresStore) RoomForSupporter(ctx context.Context, taskID, supporterUID string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE task_id=$1 AND supporter_uid=$2
	`, taskID, supporterUID)
	item, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("room for supporter: %w", err)
	}
	return &item, nil
}

// CreateRoom inserts a room and moves the task to MESSAGING in one
// transaction. The UNIQUE (task_id, supporter_uid) constraint makes the
// insert idempotent: on conflict the existing room is returned unchanged.
func (s *PostgresStore) CreateRoom(ctx context.Context, room Room) (Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, fmt.Errorf("begin create room: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO rooms (id, task_id, owner_uid, supporter_uid, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id, supporter_uid) DO NOTHING
	`, room.ID, room.TaskID, room.OwnerUID, room.SupporterUID, room.Status)
	if err != nil {
		return Room{}, fmt.Errorf("insert room: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return Room{}, fmt.Errorf("insert room result: %w", err)
	}
	if inserted > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status=$2 WHERE id=$1 AND status=$3
		`, room.TaskID, TaskMessaging, TaskWaiting); err != nil {
			return Room{}, fmt.Errorf("mark task messaging: %w", err)
		}
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE task_id=$1 AND supporter_uid=$2
	`, room.TaskID, room.SupporterUID)
	created, err := scanRoom(row)
	if err != nil {
		return Room{}, fmt.Errorf("reread room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Room{}, fmt.Errorf("commit create room: %w", err)
	}
	return created, nil
}

// ApplyRoomTransition moves a room from one of the allowed source states to
// the target state and, when taskStatus is non-zero, updates the parent task
// in the same transaction. Returns false when the room was not in an allowed
// source state.
func (s *PostgresStore) ApplyRoomTransition(ctx context.Context, roomID string, from []RoomStatus, to RoomStatus, taskID string, taskStatus TaskStatus) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE rooms SET status=$2 WHERE id=$1 AND status=ANY($3::int[])
	`, roomID, to, pgIntArray(from))
	if err != nil {
		return false, fmt.Errorf("update room status: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition result: %w", err)
	}
	if changed == 0 {
		return false, nil
	}

	if taskStatus != 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status=$2 WHERE id=$1`, taskID, taskStatus); err != nil {
			return false, fmt.Errorf("update task status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transition: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) listRoomSummaries(ctx context.Context, query string, uid string, limit int) ([]RoomSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, uid, limit)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	items := make([]RoomSummary, 0)
	for rows.Next() {
		var item RoomSummary
		var partnerUID sql.NullString
		if err := rows.Scan(
			&item.ID,
			&item.TaskID,
			&item.OwnerUID,
			&item.SupporterUID,
			&item.Status,
			&item.CreatedAt,
			&item.TaskText,
			&item.TaskStatus,
			&partnerUID,
			&item.PartnerName,
			&item.PartnerPhotoURL,
		); err != nil {
			return nil, fmt.Errorf("scan room summary: %w", err)
		}
		item.PartnerUID = partnerUID.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return items, nil
}

// ListRoomsByOwner returns rooms on the caller's tasks; the partner shown is
// the supporter.
func (s *PostgresStore) ListRoomsByOwner(ctx context.Context, ownerUID string, limit int) ([]RoomSummary, error) {
	const query = `
		SELECT r.id, r.task_id, r.owner_uid, r.supporter_uid, r.status, r.created_at,
			t.body, t.status,
			p.uid, COALESCE(p.name, ''), COALESCE(p.profile_pic_url, '')
		FROM rooms r
		JOIN tasks t ON t.id = r.task_id
		LEFT JOIN users p ON p.uid = r.supporter_uid
		WHERE r.owner_uid = $1
		ORDER BY r.created_at ASC
		LIMIT $2
	`
	return s.listRoomSummaries(ctx, query, ownerUID, limit)
}

// ListRoomsBySupporter returns rooms the caller opened on others' tasks; the
// partner shown is the owner.
func (s *PostgresStore) ListRoomsBySupporter(ctx context.Context, supporterUID string, limit int) ([]RoomSummary, error) {
	const query = `
		SELECT r.id, r.task_id, r.owner_uid, r.supporter_uid, r.status, r.created_at,
			t.body, t.status,
			p.uid, COALESCE(p.name, ''), COALESCE(p.profile_pic_url, '')
		FROM rooms r
		JOIN tasks t ON t.id = r.task_id
		LEFT JOIN users p ON p.uid = r.owner_uid
		WHERE r.supporter_uid = $1
		ORDER BY r.created_at ASC
		LIMIT $2
	`
	return s.listRoomSummaries(ctx, query, supporterUID, limit)
}

// ---- messages ----

const messageColumns = `id, room_id, author_uid, author_name, profile_pic_url, body, image_url, storage_path, created_at`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var item Message
	err := row.Scan(
		&item.ID,
		&item.RoomID,
		&item.AuthorUID,
		&item.AuthorName,
		&item.ProfilePicURL,
		&item.Text,
		&item.ImageURL,
		&item.StoragePath,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertMessage(ctx context.Context, message Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, author_uid, author_name, profile_pic_url, body, image_url, storage_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, message.ID, message.RoomID, message.AuthorUID, message.AuthorName, message.ProfilePicURL, message.Text, message.ImageURL, message.StoragePath, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListRoomMessages returns the newest messages first, bounded by limit.
func (s *PostgresStore) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE room_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		item, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	item, err := scanMessage(row)
	if err != nil {
		return Message{}, err
	}
	return item, nil
}

// UpdateMessageImage swaps the loading placeholder for the uploaded image URL.
func (s *PostgresStore) UpdateMessageImage(ctx context.Context, messageID, imageURL, storagePath string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET image_url=$2, storage_path=$3 WHERE id=$1
	`, messageID, imageURL, storagePath)
	if err != nil {
		return false, fmt.Errorf("update message image: %w", err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update message image result: %w", err)
	}
	return changed > 0, nil
}

// pgIntArray renders statuses as a Postgres int[] literal for ANY() matching.
func pgIntArray(statuses []RoomStatus) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, status := range statuses {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(status)))
	}
	b.WriteByte('}')
	return b.String()
}

// ---- device tokens ----

func (s *PostgresStore) UpsertDeviceToken(ctx context.Context, token, uid string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fcm_tokens (token, uid)
		VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET uid=EXCLUDED.uid
	`, token, uid)
	if err != nil {
		return fmt.Errorf("upsert device token: %w", err)
	}
	return nil
}
