package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trialdex/internal/audit"
	"trialdex/internal/auth"
	"trialdex/internal/trial"
)

// pgPolicyRecursionCode is the Postgres error code for "infinite
// recursion detected in policy", raised when row-level security
// policies reference each other in a cycle.
const pgPolicyRecursionCode = "42P17"

// Postgres is the live-database Store implementation.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a connection pool as a Store. The pool is expected
// to be configured and pinged by the caller.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// List returns all trials ordered by ID ascending.
func (p *Postgres) List(ctx context.Context) ([]trial.Trial, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, department, pi, title, disease, tags, criteria, contact
		FROM trials
		ORDER BY id ASC`)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	defer rows.Close()

	var trials []trial.Trial
	for rows.Next() {
		var t trial.Trial
		if err := rows.Scan(&t.ID, &t.Department, &t.PI, &t.Title, &t.Disease, &t.Tags, &t.Criteria, &t.Contact); err != nil {
			return nil, &Error{Op: "list", Err: err}
		}
		if t.Tags == nil {
			t.Tags = []string{}
		}
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return trials, nil
}

// Insert persists a draft and returns it with the assigned ID.
func (p *Postgres) Insert(ctx context.Context, t trial.Trial) (trial.Trial, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO trials (department, pi, title, disease, tags, criteria, contact)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		t.Department, t.PI, t.Title, t.Disease, tagsValue(t.Tags), t.Criteria, t.Contact,
	).Scan(&t.ID)
	if err != nil {
		return trial.Trial{}, &Error{Op: "insert", Err: err}
	}
	return t, nil
}

// InsertBatch writes one importer chunk inside a transaction. The
// chunk commits or fails as a unit; chunks already committed by
// earlier calls are unaffected by a later failure.
func (p *Postgres) InsertBatch(ctx context.Context, batch []trial.Trial) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &Error{Op: "insert batch", Err: err}
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, t := range batch {
		b.Queue(`
			INSERT INTO trials (department, pi, title, disease, tags, criteria, contact)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.Department, t.PI, t.Title, t.Disease, tagsValue(t.Tags), t.Criteria, t.Contact)
	}

	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return &Error{Op: "insert batch", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &Error{Op: "insert batch", Err: err}
	}
	return nil
}

// Update overwrites the trial with the given ID. Returns ErrNotFound
// when the ID does not exist; a write rejected by the backend's access
// policy surfaces as an ordinary store error.
func (p *Postgres) Update(ctx context.Context, id int64, t trial.Trial) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE trials
		SET department = $2, pi = $3, title = $4, disease = $5, tags = $6, criteria = $7, contact = $8
		WHERE id = $1`,
		id, t.Department, t.PI, t.Title, t.Disease, tagsValue(t.Tags), t.Criteria, t.Contact)
	if err != nil {
		return &Error{Op: "update", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &Error{Op: "update", Err: ErrNotFound}
	}
	return nil
}

// RecordAudit appends an audit entry. Entries are never updated or
// deleted through this application.
func (p *Postgres) RecordAudit(ctx context.Context, e audit.Entry) error {
	var details []byte
	if e.Details != nil {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return &Error{Op: "record audit", Err: err}
		}
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO audit_log (user_id, user_email, action, details)
		VALUES ($1, $2, $3, $4)`,
		e.UserID, e.UserEmail, string(e.Action), details)
	if err != nil {
		return &Error{Op: "record audit", Err: err}
	}
	return nil
}

// ListAudit returns audit entries newest-first.
func (p *Postgres) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	if f.Limit <= 0 {
		f.Limit = audit.DefaultLimit
	}

	query := `
		SELECT id::text, created_at, user_id, user_email, action, details
		FROM audit_log`
	args := []any{}
	if f.Action != "" {
		query += ` WHERE action = $1`
		args = append(args, string(f.Action))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, f.Limit, f.Offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &Error{Op: "list audit", Err: err}
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var action string
		var details []byte
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.UserID, &e.UserEmail, &action, &details); err != nil {
			return nil, &Error{Op: "list audit", Err: err}
		}
		e.Action = audit.Action(action)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list audit", Err: err}
	}
	return entries, nil
}

// FindAdmin implements auth.CredentialSource.
func (p *Postgres) FindAdmin(ctx context.Context, email string) (auth.Admin, error) {
	var a auth.Admin
	var role string
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, email, password_hash, role
		FROM admins
		WHERE email = $1`, email,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Admin{}, auth.ErrAdminNotFound
	}
	if err != nil {
		return auth.Admin{}, &Error{Op: "find admin", Err: err}
	}
	a.Role = auth.Role(role)
	return a, nil
}

// AdminRole implements auth.CredentialSource. A row-level-security
// policy cycle on the admins table is reported as ErrPolicyRecursion so
// the auth layer can distinguish a misconfigured backend from an
// ordinary lookup failure.
func (p *Postgres) AdminRole(ctx context.Context, userID string) (auth.Role, error) {
	var role string
	err := p.pool.QueryRow(ctx, `SELECT role FROM admins WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", auth.ErrAdminNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgPolicyRecursionCode {
			return "", fmt.Errorf("%w: %s", auth.ErrPolicyRecursion, pgErr.Message)
		}
		return "", &Error{Op: "admin role", Err: err}
	}
	return auth.Role(role), nil
}

// tagsValue normalizes nil tag slices so the column is never NULL.
func tagsValue(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
