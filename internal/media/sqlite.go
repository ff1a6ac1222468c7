package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteGallery persists the gallery in a single table. Each Add is one
// INSERT, which keeps the commit atomic.
type SQLiteGallery struct {
	db *sql.DB
}

// OpenSQLiteGallery opens (or creates) the database at path.
func OpenSQLiteGallery(ctx context.Context, path string) (*SQLiteGallery, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open gallery db: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	g := &SQLiteGallery{db: db}
	if err := g.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

func (g *SQLiteGallery) migrate(ctx context.Context) error {
	stmts := []string{`
	CREATE TABLE IF NOT EXISTS gallery_items (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		url TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		structured_prompt TEXT,
		tool TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		seq INTEGER NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS idx_gallery_session ON gallery_items (session_id, seq);`,
	}
	for _, q := range stmts {
		if _, err := g.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate gallery db: %w", err)
		}
	}
	return nil
}

func (g *SQLiteGallery) Add(ctx context.Context, it Item) error {
	query := `INSERT INTO gallery_items (
		id, session_id, type, url, image_url, structured_prompt, tool, created_at, seq
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM gallery_items))`

	var sp any
	if len(it.StructuredPrompt) > 0 {
		sp = string(it.StructuredPrompt)
	}
	_, err := g.db.ExecContext(ctx, query,
		it.ID, it.SessionID, string(it.Type), it.URL, it.ImageURL, sp, it.Tool,
		it.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert gallery item: %w", err)
	}
	return nil
}

const selectItem = `SELECT id, session_id, type, url, image_url, structured_prompt, tool, created_at FROM gallery_items`

func (g *SQLiteGallery) List(ctx context.Context, sessionID string) ([]Item, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if sessionID == "" {
		rows, err = g.db.QueryContext(ctx, selectItem+` ORDER BY seq`)
	} else {
		rows, err = g.db.QueryContext(ctx, selectItem+` WHERE session_id = ? ORDER BY seq`, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (g *SQLiteGallery) Get(ctx context.Context, id string) (Item, error) {
	row := g.db.QueryRowContext(ctx, selectItem+` WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (g *SQLiteGallery) Close() error { return g.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (Item, error) {
	var (
		it      Item
		typ     string
		sp      sql.NullString
		created string
	)
	if err := s.Scan(&it.ID, &it.SessionID, &typ, &it.URL, &it.ImageURL, &sp, &it.Tool, &created); err != nil {
		return Item{}, err
	}
	it.Type = Type(typ)
	if sp.Valid && sp.String != "" {
		it.StructuredPrompt = []byte(sp.String)
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Item{}, fmt.Errorf("parse created_at: %w", err)
	}
	it.Timestamp = ts
	return it, nil
}
