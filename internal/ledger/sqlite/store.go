// Package sqlite provides a SQLite-backed claims ledger.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/hexstride/internal/ledger"
	"github.com/louisbranch/hexstride/internal/platform/id"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    area_m2 REAL NOT NULL,
    cells TEXT NOT NULL,
    claimed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_claims_user_id ON claims (user_id);
`

// Store provides a SQLite-backed store implementing the claims ledger.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite ledger at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// FetchClaimedCells returns the union of cells across the user's claims.
func (s *Store) FetchClaimedCells(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, "SELECT cells FROM claims WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var all []string
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan claim row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(encoded), &cells); err != nil {
			return nil, fmt.Errorf("decode claim cells: %w", err)
		}
		for _, cell := range cells {
			if _, ok := seen[cell]; ok {
				continue
			}
			seen[cell] = struct{}{}
			all = append(all, cell)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return all, nil
}

// AppendClaim records an accepted claim.
func (s *Store) AppendClaim(ctx context.Context, claim ledger.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	claim.UserID = strings.TrimSpace(claim.UserID)
	if claim.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	claim.SessionID = strings.TrimSpace(claim.SessionID)
	if claim.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(claim.Cells) == 0 {
		return fmt.Errorf("claim cells are required")
	}
	if claim.ID == "" {
		claimID, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate claim id: %w", err)
		}
		claim.ID = claimID
	}
	if claim.ClaimedAt.IsZero() {
		claim.ClaimedAt = time.Now().UTC()
	}

	encoded, err := json.Marshal(claim.Cells)
	if err != nil {
		return fmt.Errorf("encode claim cells: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx,
		"INSERT INTO claims (id, user_id, session_id, area_m2, cells, claimed_at) VALUES (?, ?, ?, ?, ?, ?)",
		claim.ID,
		claim.UserID,
		claim.SessionID,
		claim.AreaM2,
		string(encoded),
		claim.ClaimedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

var _ ledger.ClaimLedger = (*Store)(nil)
