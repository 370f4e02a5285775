package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"drumbot/internal/domain"
	logx "drumbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// columns added after the first schema; older databases get them via ALTER TABLE.
var addedColumns = []struct{ name, ddl string }{
	{"channel_title", "ALTER TABLE users_channels ADD COLUMN channel_title TEXT NOT NULL DEFAULT ''"},
	{"owner_handle", "ALTER TABLE users_channels ADD COLUMN owner_handle TEXT NOT NULL DEFAULT ''"},
	{"updated_at", "ALTER TABLE users_channels ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0"},
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("sqlite store ready", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return err
	}

	have := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(users_channels)")
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return err
		}
		have[name] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, c := range addedColumns {
		if have[c.name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, c.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
		s.log.Info("sqlite column added", logx.String("column", c.name))
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Upsert(ctx context.Context, sub domain.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users_channels(user_id, channel_id, post_mode, extra_data, channel_title, owner_handle, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(user_id, channel_id) DO UPDATE SET
		   post_mode=excluded.post_mode, extra_data=excluded.extra_data,
		   channel_title=excluded.channel_title, owner_handle=excluded.owner_handle,
		   updated_at=excluded.updated_at`,
		sub.OwnerID, sub.DestinationID, sub.Policy.String(), sub.PolicyParam,
		sub.DestinationTitle, sub.OwnerHandle, sub.UpdatedAt.Unix(),
	)
	if err != nil {
		return storageErr("upsert", err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, ownerID, destID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users_channels WHERE user_id = ? AND channel_id = ?`, ownerID, destID)
	if err != nil {
		return false, storageErr("delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) DeleteByDestination(ctx context.Context, destID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users_channels WHERE channel_id = ?`, destID)
	if err != nil {
		return 0, storageErr("delete by destination", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM announced WHERE destination_id = ?`, destID); err != nil {
		return 0, storageErr("delete by destination", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const selectSubs = `SELECT user_id, channel_id, post_mode, COALESCE(extra_data, ''), channel_title, owner_handle, updated_at FROM users_channels`

func (s *sqliteStore) Get(ctx context.Context, ownerID, destID int64) (domain.Subscription, error) {
	subs, err := s.query(ctx, "get", selectSubs+` WHERE user_id = ? AND channel_id = ?`, ownerID, destID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if len(subs) == 0 {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return subs[0], nil
}

func (s *sqliteStore) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Subscription, error) {
	return s.query(ctx, "list by owner", selectSubs+` WHERE user_id = ? ORDER BY channel_id`, ownerID)
}

func (s *sqliteStore) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	return s.query(ctx, "list all", selectSubs+` ORDER BY user_id, channel_id`)
}

func (s *sqliteStore) ListByPolicy(ctx context.Context, p domain.Policy) ([]domain.Subscription, error) {
	return s.query(ctx, "list by policy", selectSubs+` WHERE post_mode = ? ORDER BY user_id, channel_id`, p.String())
}

func (s *sqliteStore) query(ctx context.Context, op, q string, args ...any) ([]domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []domain.Subscription
	for rows.Next() {
		var (
			owner, dest, updated       int64
			mode, extra, title, handle string
		)
		if err := rows.Scan(&owner, &dest, &mode, &extra, &title, &handle, &updated); err != nil {
			return nil, storageErr(op, err)
		}
		var at time.Time
		if updated > 0 {
			at = time.Unix(updated, 0)
		}
		out = append(out, fromRow(owner, dest, mode, extra, title, handle, at))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *sqliteStore) PutAnnounced(ctx context.Context, destID int64, filePath string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO announced(destination_id, file_path, updated_at) VALUES(?,?,?)
		 ON CONFLICT(destination_id) DO UPDATE SET file_path=excluded.file_path, updated_at=excluded.updated_at`,
		destID, filePath, time.Now().Unix(),
	)
	if err != nil {
		return storageErr("put announced", err)
	}
	return nil
}

func (s *sqliteStore) LoadAnnounced(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT destination_id, file_path FROM announced`)
	if err != nil {
		return nil, storageErr("load announced", err)
	}
	defer rows.Close()
	out := map[int64]string{}
	for rows.Next() {
		var (
			dest int64
			path string
		)
		if err := rows.Scan(&dest, &path); err != nil {
			return nil, storageErr("load announced", err)
		}
		out[dest] = path
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load announced", err)
	}
	return out, nil
}
