// Package missions is the SQLite persistence layer for monitoring
// missions. It owns the Mission records: the engine reads via GetByIndex
// and writes only via UpdateContent; structural mutations (Add, Remove,
// AppendReplacer) come from the user-facing API.
package missions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veillant/huntd/hunter"
)

// Ref addresses one mission slot for the scheduler.
type Ref struct {
	Issuer string
	Index  int
}

// Store is the mission database handle.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an opened database. The caller applies Schema via
// dbopen.WithSchema.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Add appends a mission to the issuer's list and returns it. Type and
// URL are immutable afterwards.
func (s *Store) Add(ctx context.Context, issuer string, typ hunter.Type, url string) (*hunter.Mission, error) {
	if _, err := hunter.ParseType(string(typ)); err != nil {
		return nil, err
	}
	if url == "" {
		return nil, errors.New("url must not be empty")
	}

	now := time.Now()
	m := &hunter.Mission{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Issuer:    issuer,
		Type:      typ,
		URL:       url,
		CreatedAt: now,
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM missions WHERE issuer = ?`, issuer).Scan(&count); err != nil {
		return nil, err
	}
	m.Index = count

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO missions (id, issuer, idx, type, url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, issuer, m.Index, string(typ), url, now.UnixMilli(), now.UnixMilli(),
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// GetByIndex returns the mission at index for issuer, with its replacer
// rules in application order, or (nil, nil) when absent.
func (s *Store) GetByIndex(ctx context.Context, issuer string, index int) (*hunter.Mission, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, issuer, idx, type, url, last_content, created_at
		 FROM missions WHERE issuer = ? AND idx = ?`, issuer, index)

	m, err := scanMission(row)
	if m == nil || err != nil {
		return nil, err
	}

	rules, err := s.replacers(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	m.ContentReplace = rules
	return m, nil
}

// List returns all missions of an issuer in index order.
func (s *Store) List(ctx context.Context, issuer string) ([]*hunter.Mission, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, issuer, idx, type, url, last_content, created_at
		 FROM missions WHERE issuer = ? ORDER BY idx`, issuer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hunter.Mission
	for rows.Next() {
		m, err := scanMissionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range out {
		rules, err := s.replacers(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		m.ContentReplace = rules
	}
	return out, nil
}

// Count returns the number of missions of an issuer.
func (s *Store) Count(ctx context.Context, issuer string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM missions WHERE issuer = ?`, issuer).Scan(&n)
	return n, err
}

// Missions lists every (issuer, index) slot across all issuers, for the
// scheduler to walk each cycle.
func (s *Store) Missions(ctx context.Context) ([]Ref, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT issuer, idx FROM missions ORDER BY issuer, idx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var r Ref
		if err := rows.Scan(&r.Issuer, &r.Index); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// Remove deletes the mission at index and compacts the issuer's indices
// so the list stays gapless.
func (s *Store) Remove(ctx context.Context, issuer string, index int) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM missions WHERE issuer = ? AND idx = ?`, issuer, index)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no mission at index %d", index)
	}

	// Shift in two steps through negative values; a single decrementing
	// UPDATE can trip the UNIQUE(issuer, idx) constraint depending on
	// row order.
	if _, err := tx.ExecContext(ctx,
		`UPDATE missions SET idx = -idx WHERE issuer = ? AND idx > ?`,
		issuer, index); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE missions SET idx = -idx - 1 WHERE issuer = ? AND idx < 0`,
		issuer); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateContent overwrites the stored comparison content of a mission.
// Returns false when the mission was deleted in the meantime; the write
// is then a no-op and the caller discards the evaluation result.
func (s *Store) UpdateContent(ctx context.Context, missionID, content string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE missions SET last_content = ?, updated_at = ? WHERE id = ?`,
		content, time.Now().UnixMilli(), missionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AppendReplacer validates the rule and appends it to the mission's
// ordered rule list. Validation happens here, at creation time; the
// engine assumes stored rules compile.
func (s *Store) AppendReplacer(ctx context.Context, issuer string, index int, rule hunter.ContentReplace) (*hunter.Mission, error) {
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid replacer: %w", err)
	}

	m, err := s.GetByIndex(ctx, issuer, index)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no mission at index %d", index)
	}

	if _, err := s.DB.ExecContext(ctx,
		`INSERT INTO replacers (mission_id, seq, source, flags, replace_value)
		 VALUES (?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM replacers WHERE mission_id = ?), ?, ?, ?)`,
		m.ID, m.ID, rule.Source, rule.Flags, rule.ReplaceValue,
	); err != nil {
		return nil, err
	}

	m.ContentReplace = append(m.ContentReplace, rule)
	return m, nil
}

func (s *Store) replacers(ctx context.Context, missionID string) ([]hunter.ContentReplace, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT source, flags, replace_value FROM replacers
		 WHERE mission_id = ? ORDER BY seq`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []hunter.ContentReplace
	for rows.Next() {
		var r hunter.ContentReplace
		if err := rows.Scan(&r.Source, &r.Flags, &r.ReplaceValue); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMission(row *sql.Row) (*hunter.Mission, error) {
	m, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func scanMissionRows(rows *sql.Rows) (*hunter.Mission, error) {
	return scanInto(rows)
}

func scanInto(sc scanner) (*hunter.Mission, error) {
	var m hunter.Mission
	var typ string
	var lastContent sql.NullString
	var createdAt int64
	if err := sc.Scan(&m.ID, &m.Issuer, &m.Index, &typ, &m.URL, &lastContent, &createdAt); err != nil {
		return nil, err
	}
	m.Type = hunter.Type(typ)
	if lastContent.Valid {
		m.LastContent = &lastContent.String
	}
	m.CreatedAt = time.UnixMilli(createdAt)
	return &m, nil
}
