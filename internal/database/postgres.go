package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"purple-player/internal/models"
	"purple-player/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string, maxConns int) (*PostgresDB, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func (db *PostgresDB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			is_group_mode BOOLEAN NOT NULL DEFAULT FALSE,
			group_id TEXT,
			group_role TEXT NOT NULL DEFAULT '',
			joined_group_at TIMESTAMPTZ,
			is_online BOOLEAN NOT NULL DEFAULT FALSE,
			last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			currently_listening TEXT NOT NULL DEFAULT '',
			last_listened_song TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS users_online_last_seen_idx ON users (is_online, last_seen)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			group_name TEXT NOT NULL,
			group_code TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			total_songs INTEGER NOT NULL DEFAULT 0,
			total_messages INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role TEXT NOT NULL DEFAULT 'member',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (group_id, user_id)
		)`,
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
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS tracks_group_created_idx ON tracks (group_id, created_at DESC)`,
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// User Repository Implementation
const pgUserColumns = `id, name, email, password_hash, avatar, session_id, is_group_mode, group_id, group_role,
	joined_group_at, is_online, last_seen, currently_listening, last_listened_song, created_at, updated_at`

func scanPgUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	var groupID *string
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Avatar, &user.SessionID,
		&user.IsGroupMode, &groupID, &user.GroupRole, &user.JoinedGroupAt, &user.IsOnline, &user.LastSeen,
		&user.CurrentlyListening, &user.LastListenedSong, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if groupID != nil {
		user.GroupID = *groupID
	}
	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, avatar, session_id, is_online, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	_, err := db.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.Avatar,
		user.SessionID, user.IsOnline, user.LastSeen, user.CreatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.UpdatedAt = user.CreatedAt
	return nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + pgUserColumns + ` FROM users WHERE email = $1`
	return scanPgUser(db.pool.QueryRow(ctx, query, email))
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + pgUserColumns + ` FROM users WHERE id = $1`
	return scanPgUser(db.pool.QueryRow(ctx, query, id))
}

func (db *PostgresDB) UpdateProfile(ctx context.Context, id, name, avatar string) (*models.User, error) {
	query := `UPDATE users SET name = $2, avatar = $3, updated_at = NOW() WHERE id = $1 RETURNING ` + pgUserColumns
	return scanPgUser(db.pool.QueryRow(ctx, query, id, name, avatar))
}

func (db *PostgresDB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) StartSession(ctx context.Context, id, sessionID string, at time.Time) error {
	query := `UPDATE users SET session_id = $2, is_online = TRUE, last_seen = $3, updated_at = $3 WHERE id = $1`
	tag, err := db.pool.Exec(ctx, query, id, sessionID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) DeleteUser(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Group Repository Implementation
const pgGroupColumns = `id, group_name, group_code, description, total_songs, total_messages, created_at, updated_at`

func scanPgGroup(row pgx.Row) (*models.Group, error) {
	group := &models.Group{}
	err := row.Scan(&group.ID, &group.Name, &group.Code, &group.Description,
		&group.TotalSongs, &group.TotalMessages, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return group, nil
}

func (db *PostgresDB) CreateGroup(ctx context.Context, group *models.Group, adminID string, at time.Time) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO groups (id, group_name, group_code, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		group.ID, group.Name, group.Code, group.Description, at)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrGroupCodeTaken
		}
		return fmt.Errorf("failed to create group: %w", err)
	}

	if err := pgJoinGroup(ctx, tx, group.ID, adminID, models.RoleAdmin, at); err != nil {
		return err
	}

	group.CreatedAt = at
	group.UpdatedAt = at
	return tx.Commit(ctx)
}

// pgJoinGroup claims the user for groupID first, so two concurrent joins
// cannot both succeed.
func pgJoinGroup(ctx context.Context, tx pgx.Tx, groupID, userID, role string, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users SET is_group_mode = TRUE, group_id = $2, group_role = $3, joined_group_at = $4, updated_at = $4
		WHERE id = $1 AND group_id IS NULL`,
		userID, groupID, role, at)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrAlreadyInGroup
		}
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, role, at); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetGroupByID(ctx context.Context, id string) (*models.Group, error) {
	query := `SELECT ` + pgGroupColumns + ` FROM groups WHERE id = $1`
	return scanPgGroup(db.pool.QueryRow(ctx, query, id))
}

func (db *PostgresDB) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	query := `SELECT ` + pgGroupColumns + ` FROM groups WHERE group_code = $1`
	return scanPgGroup(db.pool.QueryRow(ctx, query, code))
}

func (db *PostgresDB) AddGroupMember(ctx context.Context, groupID, userID, role string, at time.Time) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := pgJoinGroup(ctx, tx, groupID, userID, role, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (db *PostgresDB) RemoveGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var role string
	err = tx.QueryRow(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2 RETURNING role`,
		groupID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET is_group_mode = FALSE, group_id = NULL, group_role = '', joined_group_at = NULL, updated_at = NOW()
		WHERE id = $1`, userID); err != nil {
		return false, err
	}

	var remaining, admins int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE role = 'admin') FROM group_members WHERE group_id = $1`,
		groupID).Scan(&remaining, &admins); err != nil {
		return false, err
	}

	deleted := false
	switch {
	case remaining == 0:
		if _, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID); err != nil {
			return false, err
		}
		deleted = true
	case role == models.RoleAdmin && admins == 0:
		var successor string
		if err := tx.QueryRow(ctx, `
			UPDATE group_members SET role = 'admin'
			WHERE group_id = $1 AND user_id = (
				SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id LIMIT 1
			)
			RETURNING user_id`, groupID).Scan(&successor); err != nil {
			return false, err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET group_role = 'admin', updated_at = NOW() WHERE id = $1`, successor); err != nil {
			return false, err
		}
	}

	if !deleted {
		if _, err := tx.Exec(ctx, `UPDATE groups SET updated_at = NOW() WHERE id = $1`, groupID); err != nil {
			return false, err
		}
	}

	return deleted, tx.Commit(ctx)
}

func (db *PostgresDB) ListGroupMembers(ctx context.Context, groupID string) ([]*models.GroupMember, error) {
	query := `SELECT user_id, role, joined_at FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id`

	rows, err := db.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.GroupMember
	for rows.Next() {
		member := &models.GroupMember{}
		if err := rows.Scan(&member.UserID, &member.Role, &member.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (db *PostgresDB) IncrementGroupSongs(ctx context.Context, groupID string) error {
	_, err := db.pool.Exec(ctx, `UPDATE groups SET total_songs = total_songs + 1, updated_at = NOW() WHERE id = $1`, groupID)
	return err
}

// Track Repository Implementation
const pgTrackSelect = `
	SELECT t.id, t.title, t.artist, t.source, t.url, t.cover, t.message, t.added_by, t.group_id, t.created_at,
		COALESCE(u.name, ''), COALESCE(u.email, '')
	FROM tracks t
	LEFT JOIN users u ON u.id = t.added_by`

func scanPgTrack(row pgx.Row) (*models.Track, error) {
	track := &models.Track{}
	var groupID *string
	var name, email string
	err := row.Scan(&track.ID, &track.Title, &track.Artist, &track.Source, &track.URL, &track.Cover,
		&track.Message, &track.AddedBy, &groupID, &track.CreatedAt, &name, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if groupID != nil {
		track.GroupID = *groupID
	}
	track.Adder = &models.TrackUser{ID: track.AddedBy, Name: name, Email: email}
	return track, nil
}

func (db *PostgresDB) CreateTrack(ctx context.Context, track *models.Track) error {
	query := `
		INSERT INTO tracks (id, title, artist, source, url, cover, message, added_by, group_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := db.pool.Exec(ctx, query, track.ID, track.Title, track.Artist, track.Source, track.URL,
		track.Cover, track.Message, track.AddedBy, nullableString(track.GroupID), track.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create track: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetTrackByID(ctx context.Context, id string) (*models.Track, error) {
	return scanPgTrack(db.pool.QueryRow(ctx, pgTrackSelect+` WHERE t.id = $1`, id))
}

func (db *PostgresDB) ListTracks(ctx context.Context, scope TrackScope, limit int) ([]*models.Track, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	var rows pgx.Rows
	var err error
	if scope.GroupID != "" {
		rows, err = db.pool.Query(ctx, pgTrackSelect+`
			WHERE t.group_id = $1 ORDER BY t.created_at DESC LIMIT $2`, scope.GroupID, lim)
	} else {
		rows, err = db.pool.Query(ctx, pgTrackSelect+`
			WHERE t.group_id IS NULL AND t.added_by = $1 ORDER BY t.created_at DESC LIMIT $2`, scope.UserID, lim)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := scanPgTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

func (db *PostgresDB) DeleteTrack(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM tracks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) DeleteTracksByUser(ctx context.Context, userID string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM tracks WHERE added_by = $1`, userID)
	return err
}

// Presence Repository Implementation
func (db *PostgresDB) TouchPresence(ctx context.Context, userID string, at time.Time) error {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET is_online = TRUE, last_seen = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) SetOffline(ctx context.Context, userID string, at time.Time) error {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET is_online = FALSE, last_seen = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) SetListening(ctx context.Context, userID, listening, song string, at time.Time) (*models.User, error) {
	query := `
		UPDATE users SET currently_listening = $2, last_listened_song = $3, last_seen = $4
		WHERE id = $1 RETURNING ` + pgUserColumns
	return scanPgUser(db.pool.QueryRow(ctx, query, userID, listening, song, at))
}

func (db *PostgresDB) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET is_online = FALSE WHERE is_online AND last_seen < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (db *PostgresDB) ListUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = ANY($1) ORDER BY last_seen DESC`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanPgUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
