package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"nutriplan/internal/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: dsn},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	pg := &DB{driver: "postgres"}
	got := pg.Rebind(`INSERT INTO users (email, created_at) VALUES (?, ?)`)
	want := `INSERT INTO users (email, created_at) VALUES ($1, $2)`
	if got != want {
		t.Fatalf("rebind: got %q want %q", got, want)
	}

	lite := &DB{driver: "sqlite3"}
	query := `SELECT id FROM users WHERE email = ?`
	if got := lite.Rebind(query); got != query {
		t.Fatalf("sqlite query rewritten: %q", got)
	}
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"users", "user_tokens", "password_resets", "chat_sessions", "messages", "meal_plans", "attachments"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestInsertReturningID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.InsertReturningID(ctx,
		`INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)`,
		"a@example.com", "hash", time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	id2, err := db.InsertReturningID(ctx,
		`INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)`,
		"b@example.com", "hash", time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if id2 <= id {
		t.Fatalf("ids not increasing: %d then %d", id, id2)
	}
}

func TestSessionDeleteCascadesMessages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sessionID, err := db.InsertReturningID(ctx,
		`INSERT INTO chat_sessions (user_id, title, startup_data, prompt_count, created_at, updated_at) VALUES (1, 't', '{}', 1, ?, ?)`,
		now, now,
	)
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO messages (user_id, session_id, role, content, created_at) VALUES (1, ?, 'user', 'hi', ?)`,
		sessionID, now,
	); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, sessionID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("messages survived session delete: %d", count)
	}
}
