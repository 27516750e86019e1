package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"purple-player/internal/models"
	"purple-player/pkg/logger"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// SQLiteDB is the embedded single-node backend. Timestamps are stored as
// unix milliseconds so range comparisons stay numeric.
type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	logger.Info("Opened SQLite store %s", path)
	return &SQLiteDB{db: db}, nil
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

func (s *SQLiteDB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteDB) Migrate(ctx context.Context) (err error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			is_group_mode INTEGER NOT NULL DEFAULT 0,
			group_id TEXT,
			group_role TEXT NOT NULL DEFAULT '',
			joined_group_at INTEGER,
			is_online INTEGER NOT NULL DEFAULT 0,
			last_seen INTEGER NOT NULL,
			currently_listening TEXT NOT NULL DEFAULT '',
			last_listened_song TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS users_online_last_seen_idx ON users (is_online, last_seen);`,
		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			group_name TEXT NOT NULL,
			group_code TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			total_songs INTEGER NOT NULL DEFAULT 0,
			total_messages INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			joined_at INTEGER NOT NULL,
			PRIMARY KEY (group_id, user_id),
			FOREIGN KEY(group_id) REFERENCES groups(id) ON DELETE CASCADE,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			cover TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			added_by TEXT NOT NULL,
			group_id TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS tracks_group_created_idx ON tracks (group_id, created_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const sqliteUserColumns = `id, name, email, password_hash, avatar, session_id, is_group_mode, group_id, group_role,
	joined_group_at, is_online, last_seen, currently_listening, last_listened_song, created_at, updated_at`

func scanSQLiteUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var groupID sql.NullString
	var joinedAt sql.NullInt64
	var lastSeen, createdAt, updatedAt int64
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Avatar, &user.SessionID,
		&user.IsGroupMode, &groupID, &user.GroupRole, &joinedAt, &user.IsOnline, &lastSeen,
		&user.CurrentlyListening, &user.LastListenedSong, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	user.GroupID = groupID.String
	if joinedAt.Valid {
		t := fromMillis(joinedAt.Int64)
		user.JoinedGroupAt = &t
	}
	user.LastSeen = fromMillis(lastSeen)
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

// User Repository Implementation
func (s *SQLiteDB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, avatar, session_id, is_online, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Avatar, user.SessionID,
		user.IsOnline, toMillis(user.LastSeen), toMillis(user.CreatedAt), toMillis(user.CreatedAt))
	if err != nil {
		if isConstraintError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.UpdatedAt = user.CreatedAt
	return nil
}

func (s *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`, email))
}

func (s *SQLiteDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id))
}

func (s *SQLiteDB) UpdateProfile(ctx context.Context, id, name, avatar string) (*models.User, error) {
	query := `UPDATE users SET name = ?, avatar = ?, updated_at = ? WHERE id = ? RETURNING ` + sqliteUserColumns
	return scanSQLiteUser(s.db.QueryRowContext(ctx, query, name, avatar, toMillis(time.Now()), id))
}

func (s *SQLiteDB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.execOne(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, toMillis(time.Now()), id)
}

func (s *SQLiteDB) StartSession(ctx context.Context, id, sessionID string, at time.Time) error {
	return s.execOne(ctx, `UPDATE users SET session_id = ?, is_online = 1, last_seen = ?, updated_at = ? WHERE id = ?`,
		sessionID, toMillis(at), toMillis(at), id)
}

func (s *SQLiteDB) DeleteUser(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM users WHERE id = ?`, id)
}

// Group Repository Implementation
const sqliteGroupColumns = `id, group_name, group_code, description, total_songs, total_messages, created_at, updated_at`

func scanSQLiteGroup(row rowScanner) (*models.Group, error) {
	group := &models.Group{}
	var createdAt, updatedAt int64
	err := row.Scan(&group.ID, &group.Name, &group.Code, &group.Description,
		&group.TotalSongs, &group.TotalMessages, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	group.CreatedAt = fromMillis(createdAt)
	group.UpdatedAt = fromMillis(updatedAt)
	return group, nil
}

func (s *SQLiteDB) CreateGroup(ctx context.Context, group *models.Group, adminID string, at time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO groups (id, group_name, group_code, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.Code, group.Description, toMillis(at), toMillis(at)); err != nil {
		if isConstraintError(err) {
			return ErrGroupCodeTaken
		}
		return fmt.Errorf("failed to create group: %w", err)
	}
	if err = sqliteJoinGroup(ctx, tx, group.ID, adminID, models.RoleAdmin, at); err != nil {
		return err
	}
	group.CreatedAt = fromMillis(toMillis(at))
	group.UpdatedAt = group.CreatedAt
	return tx.Commit()
}

func sqliteJoinGroup(ctx context.Context, tx *sql.Tx, groupID, userID, role string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE users SET is_group_mode = 1, group_id = ?, group_role = ?, joined_group_at = ?, updated_at = ?
		WHERE id = ? AND group_id IS NULL`,
		groupID, role, toMillis(at), toMillis(at), userID)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrAlreadyInGroup
		}
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		groupID, userID, role, toMillis(at)); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetGroupByID(ctx context.Context, id string) (*models.Group, error) {
	return scanSQLiteGroup(s.db.QueryRowContext(ctx, `SELECT `+sqliteGroupColumns+` FROM groups WHERE id = ?`, id))
}

func (s *SQLiteDB) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	return scanSQLiteGroup(s.db.QueryRowContext(ctx, `SELECT `+sqliteGroupColumns+` FROM groups WHERE group_code = ?`, code))
}

func (s *SQLiteDB) AddGroupMember(ctx context.Context, groupID, userID, role string, at time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = sqliteJoinGroup(ctx, tx, groupID, userID, role, at); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteDB) RemoveGroupMember(ctx context.Context, groupID, userID string) (deleted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := toMillis(time.Now())
	var role string
	if err = tx.QueryRowContext(ctx, `DELETE FROM group_members WHERE group_id = ? AND user_id = ? RETURNING role`,
		groupID, userID).Scan(&role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE users SET is_group_mode = 0, group_id = NULL, group_role = '', joined_group_at = NULL, updated_at = ?
		WHERE id = ?`, now, userID); err != nil {
		return false, err
	}

	var remaining, admins int
	if err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN role = 'admin' THEN 1 ELSE 0 END), 0)
		FROM group_members WHERE group_id = ?`, groupID).Scan(&remaining, &admins); err != nil {
		return false, err
	}

	switch {
	case remaining == 0:
		if _, err = tx.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, groupID); err != nil {
			return false, err
		}
		deleted = true
	case role == models.RoleAdmin && admins == 0:
		var successor string
		if err = tx.QueryRowContext(ctx, `
			UPDATE group_members SET role = 'admin'
			WHERE group_id = ? AND user_id = (
				SELECT user_id FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id LIMIT 1
			)
			RETURNING user_id`, groupID, groupID).Scan(&successor); err != nil {
			return false, err
		}
		if _, err = tx.ExecContext(ctx, `UPDATE users SET group_role = 'admin', updated_at = ? WHERE id = ?`,
			now, successor); err != nil {
			return false, err
		}
	}

	if !deleted {
		if _, err = tx.ExecContext(ctx, `UPDATE groups SET updated_at = ? WHERE id = ?`, now, groupID); err != nil {
			return false, err
		}
	}
	return deleted, tx.Commit()
}

func (s *SQLiteDB) ListGroupMembers(ctx context.Context, groupID string) ([]*models.GroupMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role, joined_at FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.GroupMember
	for rows.Next() {
		member := &models.GroupMember{}
		var joinedAt int64
		if err := rows.Scan(&member.UserID, &member.Role, &joinedAt); err != nil {
			return nil, err
		}
		member.JoinedAt = fromMillis(joinedAt)
		members = append(members, member)
	}
	return members, rows.Err()
}

func (s *SQLiteDB) IncrementGroupSongs(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE groups SET total_songs = total_songs + 1, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()), groupID)
	return err
}

// Track Repository Implementation
const sqliteTrackSelect = `
	SELECT t.id, t.title, t.artist, t.source, t.url, t.cover, t.message, t.added_by, t.group_id, t.created_at,
		COALESCE(u.name, ''), COALESCE(u.email, '')
	FROM tracks t
	LEFT JOIN users u ON u.id = t.added_by`

func scanSQLiteTrack(row rowScanner) (*models.Track, error) {
	track := &models.Track{}
	var groupID sql.NullString
	var createdAt int64
	var name, email string
	err := row.Scan(&track.ID, &track.Title, &track.Artist, &track.Source, &track.URL, &track.Cover,
		&track.Message, &track.AddedBy, &groupID, &createdAt, &name, &email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	track.GroupID = groupID.String
	track.CreatedAt = fromMillis(createdAt)
	track.Adder = &models.TrackUser{ID: track.AddedBy, Name: name, Email: email}
	return track, nil
}

func (s *SQLiteDB) CreateTrack(ctx context.Context, track *models.Track) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracks (id, title, artist, source, url, cover, message, added_by, group_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.ID, track.Title, track.Artist, track.Source, track.URL, track.Cover, track.Message,
		track.AddedBy, sql.NullString{String: track.GroupID, Valid: track.GroupID != ""}, toMillis(track.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create track: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetTrackByID(ctx context.Context, id string) (*models.Track, error) {
	return scanSQLiteTrack(s.db.QueryRowContext(ctx, sqliteTrackSelect+` WHERE t.id = ?`, id))
}

func (s *SQLiteDB) ListTracks(ctx context.Context, scope TrackScope, limit int) ([]*models.Track, error) {
	if limit <= 0 {
		limit = -1
	}

	var rows *sql.Rows
	var err error
	if scope.GroupID != "" {
		rows, err = s.db.QueryContext(ctx, sqliteTrackSelect+`
			WHERE t.group_id = ? ORDER BY t.created_at DESC, t.rowid DESC LIMIT ?`, scope.GroupID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, sqliteTrackSelect+`
			WHERE t.group_id IS NULL AND t.added_by = ? ORDER BY t.created_at DESC, t.rowid DESC LIMIT ?`, scope.UserID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := scanSQLiteTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

func (s *SQLiteDB) DeleteTrack(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM tracks WHERE id = ?`, id)
}

func (s *SQLiteDB) DeleteTracksByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE added_by = ?`, userID)
	return err
}

// Presence Repository Implementation
func (s *SQLiteDB) TouchPresence(ctx context.Context, userID string, at time.Time) error {
	return s.execOne(ctx, `UPDATE users SET is_online = 1, last_seen = ? WHERE id = ?`, toMillis(at), userID)
}

func (s *SQLiteDB) SetOffline(ctx context.Context, userID string, at time.Time) error {
	return s.execOne(ctx, `UPDATE users SET is_online = 0, last_seen = ? WHERE id = ?`, toMillis(at), userID)
}

func (s *SQLiteDB) SetListening(ctx context.Context, userID, listening, song string, at time.Time) (*models.User, error) {
	query := `
		UPDATE users SET currently_listening = ?, last_listened_song = ?, last_seen = ?
		WHERE id = ? RETURNING ` + sqliteUserColumns
	return scanSQLiteUser(s.db.QueryRowContext(ctx, query, listening, song, toMillis(at), userID))
}

func (s *SQLiteDB) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_online = 0 WHERE is_online = 1 AND last_seen < ?`, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteDB) ListUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id IN (`+placeholders+`)
		ORDER BY last_seen DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *SQLiteDB) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
