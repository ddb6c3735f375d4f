package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const planColumns = `owner_address, owner_email, check_in_interval_seconds, last_check_in_at,
	is_claim_initiated, version, created_at, updated_at`

// CreatePlan inserts a plan with its inheritors, tokens and the creation activity.
func (db *DB) CreatePlan(ctx context.Context, p *models.Plan, created models.Activity) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM plans WHERE owner_address = ?`, p.OwnerAddress).Scan(&exists)
	switch {
	case err == nil:
		return apperr.New(apperr.ErrAlreadyExists, "plan already exists for owner")
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("store: check plan: %w", err)
	}

	if p.Version == 0 {
		p.Version = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.OwnerAddress, p.OwnerEmail, p.CheckInIntervalSeconds, toMillis(p.LastCheckInAt),
		boolInt(p.IsClaimInitiated), p.Version, toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store: insert plan: %w", err)
	}
	if err := replaceChildren(ctx, tx, p); err != nil {
		return err
	}
	if err := insertActivity(ctx, tx, created); err != nil {
		return err
	}
	return tx.Commit()
}

// GetPlan loads the plan owned by owner.
func (db *DB) GetPlan(ctx context.Context, owner string) (*models.Plan, error) {
	return getPlan(ctx, db.conn, owner)
}

// FindPlanByOwnerEmail loads the plan whose owner contact email matches,
// ignoring case and surrounding whitespace.
func (db *DB) FindPlanByOwnerEmail(ctx context.Context, email string) (*models.Plan, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.ErrNotFound
	}
	var owner string
	err := db.conn.QueryRowContext(ctx,
		`SELECT owner_address FROM plans WHERE lower(trim(owner_email)) = ? LIMIT 1`, email).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by email: %w", err)
	}
	return db.GetPlan(ctx, owner)
}

// ListUnclaimed returns every plan whose claim has not been initiated.
func (db *DB) ListUnclaimed(ctx context.Context) ([]*models.Plan, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE is_claim_initiated = 0 ORDER BY created_at, owner_address`)
	if err != nil {
		return nil, fmt.Errorf("store: list unclaimed: %w", err)
	}
	var plans []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, p := range plans {
		if err := loadChildren(ctx, db.conn, p); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// UpdatePlan replaces the configuration of an existing plan. p.Version must
// match the persisted version; a mismatch or an initiated claim yields ErrConflict.
func (db *DB) UpdatePlan(ctx context.Context, p *models.Plan, updated models.Activity) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE plans SET
			owner_email               = ?,
			check_in_interval_seconds = ?,
			version                   = version + 1,
			updated_at                = ?
		WHERE owner_address = ? AND version = ? AND is_claim_initiated = 0
	`, p.OwnerEmail, p.CheckInIntervalSeconds, toMillis(p.UpdatedAt), p.OwnerAddress, p.Version)
	if err != nil {
		return fmt.Errorf("store: update plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return conflictOrMissing(ctx, tx, p.OwnerAddress, "plan changed concurrently or claim already initiated")
	}
	if err := replaceChildren(ctx, tx, p); err != nil {
		return err
	}
	if err := insertActivity(ctx, tx, updated); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.Version++
	return nil
}

// RecordCheckIn advances the owner's liveness timestamp. The check-in entry is
// derived by fn from the plan as read inside the same write transaction, so
// concurrent check-ins for one owner observe each other in order.
func (db *DB) RecordCheckIn(ctx context.Context, owner string, fn CheckInFunc) (*models.Plan, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	p, err := getPlan(ctx, tx, owner)
	if err != nil {
		return nil, err
	}
	if p.IsClaimInitiated {
		return nil, apperr.New(apperr.ErrConflict, "claim already initiated")
	}
	ci, act, err := fn(p)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE plans SET last_check_in_at = ?, version = version + 1, updated_at = ?
		WHERE owner_address = ? AND version = ? AND is_claim_initiated = 0
	`, toMillis(ci.Timestamp), toMillis(ci.Timestamp), owner, p.Version)
	if err != nil {
		return nil, fmt.Errorf("store: advance check-in: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrStale
	}
	if err := insertCheckIn(ctx, tx, ci); err != nil {
		return nil, err
	}
	if err := insertActivity(ctx, tx, act); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	p.LastCheckInAt = ci.Timestamp
	p.UpdatedAt = ci.Timestamp
	p.Version++
	return p, nil
}

// MarkClaimInitiated flips the claim flag and appends the claim activity in
// one transaction. It reports false, writing nothing, when the flag was
// already set.
func (db *DB) MarkClaimInitiated(ctx context.Context, owner string, claimed models.Activity) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE plans SET is_claim_initiated = 1, version = version + 1, updated_at = ?
		WHERE owner_address = ? AND is_claim_initiated = 0
	`, toMillis(claimed.Timestamp), owner)
	if err != nil {
		return false, fmt.Errorf("store: mark claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := getPlan(ctx, tx, owner); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := insertActivity(ctx, tx, claimed); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ResolveInheritor binds address to a pending inheritor slot. A slot that
// already carries a non-zero address yields ErrConflict.
func (db *DB) ResolveInheritor(ctx context.Context, owner string, index int, address string, at time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE inheritors SET address = ?
		WHERE owner_address = ? AND idx = ? AND (address = '' OR address = ?)
	`, address, owner, index, models.ZeroAddress)
	if err != nil {
		return fmt.Errorf("store: resolve inheritor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var cur string
		err := tx.QueryRowContext(ctx,
			`SELECT address FROM inheritors WHERE owner_address = ? AND idx = ?`, owner, index).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.ErrNotFound, "inheritor not found")
		}
		if err != nil {
			return fmt.Errorf("store: resolve inheritor: %w", err)
		}
		return apperr.New(apperr.ErrConflict, "beneficiary already resolved")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE plans SET version = version + 1, updated_at = ? WHERE owner_address = ?`,
		toMillis(at), owner); err != nil {
		return fmt.Errorf("store: bump plan: %w", err)
	}
	return tx.Commit()
}

func getPlan(ctx context.Context, q queryer, owner string) (*models.Plan, error) {
	row := q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE owner_address = ?`, owner)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.ErrNotFound, "plan not found")
	}
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (*models.Plan, error) {
	var (
		p                     models.Plan
		last, created, update int64
		claimed               int
	)
	if err := s.Scan(&p.OwnerAddress, &p.OwnerEmail, &p.CheckInIntervalSeconds, &last,
		&claimed, &p.Version, &created, &update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan plan: %w", err)
	}
	p.LastCheckInAt = fromMillis(last)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(update)
	p.IsClaimInitiated = claimed != 0
	return &p, nil
}

func loadChildren(ctx context.Context, q queryer, p *models.Plan) error {
	inheritors, err := loadInheritors(ctx, q, p.OwnerAddress)
	if err != nil {
		return err
	}
	tokens, err := loadTokens(ctx, q, p.OwnerAddress)
	if err != nil {
		return err
	}
	p.Inheritors = inheritors
	p.Tokens = tokens
	return nil
}

func loadInheritors(ctx context.Context, q queryer, owner string) ([]models.Inheritor, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT address, share_percentage, name, email, phone,
		       secret_question, secret_answer_hash, share_secret_question
		FROM inheritors WHERE owner_address = ? ORDER BY idx
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: load inheritors: %w", err)
	}
	defer rows.Close()

	out := []models.Inheritor{}
	for rows.Next() {
		var (
			in    models.Inheritor
			share int
		)
		if err := rows.Scan(&in.Address, &in.SharePercentage, &in.Name, &in.Email, &in.Phone,
			&in.SecretQuestion, &in.SecretAnswerHash, &share); err != nil {
			return nil, err
		}
		in.ShareSecretQuestion = share != 0
		out = append(out, in)
	}
	return out, rows.Err()
}

func loadTokens(ctx context.Context, q queryer, owner string) ([]models.Token, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT address, type FROM tokens WHERE owner_address = ? ORDER BY position`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: load tokens: %w", err)
	}
	defer rows.Close()

	out := []models.Token{}
	for rows.Next() {
		var tok models.Token
		if err := rows.Scan(&tok.Address, &tok.Type); err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func replaceChildren(ctx context.Context, tx *sql.Tx, p *models.Plan) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM inheritors WHERE owner_address = ?`, p.OwnerAddress); err != nil {
		return fmt.Errorf("store: clear inheritors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE owner_address = ?`, p.OwnerAddress); err != nil {
		return fmt.Errorf("store: clear tokens: %w", err)
	}

	istmt, err := tx.PrepareContext(ctx, `
		INSERT INTO inheritors (owner_address, idx, address, share_percentage, name, email, phone,
			secret_question, secret_answer_hash, share_secret_question)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare inheritor insert: %w", err)
	}
	defer istmt.Close()
	for i, in := range p.Inheritors {
		if _, err := istmt.ExecContext(ctx, p.OwnerAddress, i, in.Address, in.SharePercentage, in.Name,
			in.Email, in.Phone, in.SecretQuestion, in.SecretAnswerHash, boolInt(in.ShareSecretQuestion)); err != nil {
			return fmt.Errorf("store: insert inheritor: %w", err)
		}
	}

	tstmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tokens (owner_address, position, address, type) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare token insert: %w", err)
	}
	defer tstmt.Close()
	for i, tok := range p.Tokens {
		if _, err := tstmt.ExecContext(ctx, p.OwnerAddress, i, tok.Address, string(tok.Type)); err != nil {
			return fmt.Errorf("store: insert token: %w", err)
		}
	}
	return nil
}

func conflictOrMissing(ctx context.Context, tx *sql.Tx, owner, msg string) error {
	if _, err := getPlan(ctx, tx, owner); err != nil {
		return err
	}
	return apperr.New(apperr.ErrConflict, msg)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
