package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/severalx/site/internal/domain"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		service TEXT,
		message TEXT NOT NULL,
		visitor_id TEXT,
		admin_notified INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		company TEXT NOT NULL,
		visitor_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveLead stores a contact form submission.
func (s *SQLiteStore) SaveLead(ctx context.Context, lead *domain.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO leads (id, name, email, phone, service, message, visitor_id, admin_notified, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		admin_notified = excluded.admin_notified`

	err := withBusyRetry(ctx, "save_lead", func() error {
		_, err := s.db.ExecContext(ctx, query,
			lead.ID, lead.Name, lead.Email,
			nullable(lead.Phone), nullable(lead.Service), lead.Message,
			nullable(lead.VisitorID), lead.AdminNotified, lead.CreatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	return nil
}

// ListLeads returns the most recent leads first.
func (s *SQLiteStore) ListLeads(ctx context.Context, limit int) ([]*domain.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, name, email, phone, service, message, visitor_id, admin_notified, created_at
		FROM leads ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close lead rows", "error", closeErr)
		}
	}()

	var leads []*domain.Lead
	for rows.Next() {
		var lead domain.Lead
		var phone, service, visitorID sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&lead.ID, &lead.Name, &lead.Email, &phone, &service,
			&lead.Message, &visitorID, &lead.AdminNotified, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}

		lead.Phone = phone.String
		lead.Service = service.String
		lead.VisitorID = visitorID.String
		lead.CreatedAt = time.Unix(createdAt, 0)
		leads = append(leads, &lead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}

	return leads, nil
}

// UpsertMember creates or updates a member keyed by email. The stored ID is
// written back to member.
func (s *SQLiteStore) UpsertMember(ctx context.Context, member *domain.Member) error {
	member.Email = strings.ToLower(strings.TrimSpace(member.Email))
	now := time.Now()
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	member.UpdatedAt = now

	query := `
	INSERT INTO members (id, email, name, company, visitor_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(email) DO UPDATE SET
		name = excluded.name,
		company = excluded.company,
		visitor_id = COALESCE(excluded.visitor_id, members.visitor_id),
		updated_at = excluded.updated_at
	RETURNING id, created_at`

	var createdAt int64
	err := withBusyRetry(ctx, "upsert_member", func() error {
		return s.db.QueryRowContext(ctx, query,
			member.ID, member.Email, member.Name, member.Company,
			nullable(member.VisitorID), member.CreatedAt.Unix(), member.UpdatedAt.Unix(),
		).Scan(&member.ID, &createdAt)
	})
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	member.CreatedAt = time.Unix(createdAt, 0)
	return nil
}

// GetMemberByEmail retrieves a member by email.
func (s *SQLiteStore) GetMemberByEmail(ctx context.Context, email string) (*domain.Member, error) {
	query := `
		SELECT id, email, name, company, visitor_id, created_at, updated_at
		FROM members WHERE email = ?`

	row := s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email)))

	var member domain.Member
	var visitorID sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&member.ID, &member.Email, &member.Name, &member.Company,
		&visitorID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan member row: %w", err)
	}

	member.VisitorID = visitorID.String
	member.CreatedAt = time.Unix(createdAt, 0)
	member.UpdatedAt = time.Unix(updatedAt, 0)

	return &member, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
