package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/icc-checker/internal/api"
	"github.com/soaringjerry/icc-checker/internal/services"
)

// SQLStore implements api.Store over database/sql for SQLite and Postgres.
// Reads return (nil, nil) when nothing matches.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ api.Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB, d Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	return &SQLStore{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}, nil
}

// NewStore opens dsn, migrates it and returns the store.
func NewStore(ctx context.Context, d Dialect, dsn, migrationsDir string) (*SQLStore, error) {
	db, err := Open(ctx, d, dsn, migrationsDir)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db, d)
}

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) q(query string) string { return rebind(s.dialect, query) }

func (s *SQLStore) logErr(prefix string, err error) error {
	if err != nil {
		log.Printf("sql store: %s: %v", prefix, err)
	}
	return err
}

// isUniqueViolation recognises unique and primary key violations of both drivers.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Stores

func (s *SQLStore) ListStores(ctx context.Context) ([]services.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, code FROM stores ORDER BY name`)
	if err != nil {
		return nil, s.logErr("ListStores", err)
	}
	defer rows.Close()
	var out []services.Store
	for rows.Next() {
		var st services.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Code); err != nil {
			return nil, s.logErr("ListStores scan", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetStore(ctx context.Context, id string) (*services.Store, error) {
	var st services.Store
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, name, code FROM stores WHERE id = ?`), id).Scan(&st.ID, &st.Name, &st.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr("GetStore", err)
	}
	return &st, nil
}

func (s *SQLStore) AddStore(ctx context.Context, st *services.Store) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO stores (id, name, code, created_at) VALUES (?, ?, ?, ?)`), st.ID, st.Name, st.Code, s.now())
	if isUniqueViolation(err) {
		return services.ErrDuplicateStore
	}
	return s.logErr("AddStore", err)
}

func (s *SQLStore) UpdateStoreCode(ctx context.Context, id, code string) (bool, error) {
	ok, err := affected(s.db.ExecContext(ctx, s.q(`UPDATE stores SET code = ? WHERE id = ?`), code, id))
	return ok, s.logErr("UpdateStoreCode", err)
}

func (s *SQLStore) DeleteStore(ctx context.Context, id string) (bool, error) {
	ok, err := affected(s.db.ExecContext(ctx, s.q(`DELETE FROM stores WHERE id = ?`), id))
	return ok, s.logErr("DeleteStore", err)
}

// Items

func (s *SQLStore) ListItems(ctx context.Context) ([]services.ItemDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, description, icon, ord, active FROM items ORDER BY ord, created_at, id`)
	if err != nil {
		return nil, s.logErr("ListItems", err)
	}
	defer rows.Close()
	var out []services.ItemDefinition
	for rows.Next() {
		var it services.ItemDefinition
		var active bool
		if err := rows.Scan(&it.ID, &it.Title, &it.Description, &it.Icon, &it.Order, &active); err != nil {
			return nil, s.logErr("ListItems scan", err)
		}
		it.Active = &active
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLStore) AddItem(ctx context.Context, it *services.ItemDefinition) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO items (id, title, description, icon, ord, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		it.ID, it.Title, it.Description, it.Icon, it.Order, it.IsActive(), s.now())
	if isUniqueViolation(err) {
		return services.NewConflictError("item id exists")
	}
	return s.logErr("AddItem", err)
}

func (s *SQLStore) UpdateItem(ctx context.Context, id string, patch services.ItemPatch) (bool, error) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Title != nil {
		add("title", strings.TrimSpace(*patch.Title))
	}
	if patch.Description != nil {
		add("description", strings.TrimSpace(*patch.Description))
	}
	if patch.Icon != nil {
		add("icon", strings.TrimSpace(*patch.Icon))
	}
	if patch.Order != nil {
		add("ord", *patch.Order)
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	if len(sets) == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM items WHERE id = ?`), id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return err == nil, s.logErr("UpdateItem", err)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE items SET %s WHERE id = ?`, strings.Join(sets, ", "))
	ok, err := affected(s.db.ExecContext(ctx, s.q(query), args...))
	return ok, s.logErr("UpdateItem", err)
}

func (s *SQLStore) DeleteItem(ctx context.Context, id string) (bool, error) {
	ok, err := affected(s.db.ExecContext(ctx, s.q(`DELETE FROM items WHERE id = ?`), id))
	return ok, s.logErr("DeleteItem", err)
}

// Audits

const auditCols = `id, store_id, store_name, verifier, audit_date, period, results, comment, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudit(r rowScanner) (*services.AuditRecord, error) {
	var rec services.AuditRecord
	var results string
	if err := r.Scan(&rec.ID, &rec.StoreID, &rec.StoreName, &rec.Verifier, &rec.Date, &rec.Period, &results, &rec.Comment, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Results = services.Responses{}
	if strings.TrimSpace(results) != "" {
		if err := json.Unmarshal([]byte(results), &rec.Results); err != nil {
			return nil, fmt.Errorf("decode results of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func (s *SQLStore) queryAudits(ctx context.Context, op, query string, args ...any) ([]services.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.logErr(op, err)
	}
	defer rows.Close()
	var out []services.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, s.logErr(op, err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) FindAuditByStoreAndDate(ctx context.Context, storeID, date string) (*services.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+auditCols+` FROM audits WHERE store_id = ? AND audit_date = ?`), storeID, date)
	rec, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr("FindAuditByStoreAndDate", err)
	}
	return rec, nil
}

func (s *SQLStore) LatestAuditForStore(ctx context.Context, storeID string) (*services.AuditRecord, error) {
	recs, err := s.RecentAuditsForStore(ctx, storeID, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func (s *SQLStore) RecentAuditsForStore(ctx context.Context, storeID string, limit int) ([]services.AuditRecord, error) {
	return s.queryAudits(ctx, "RecentAuditsForStore",
		`SELECT `+auditCols+` FROM audits WHERE store_id = ? ORDER BY audit_date DESC, created_at DESC LIMIT ?`, storeID, limit)
}

func (s *SQLStore) ListAudits(ctx context.Context, storeID string) ([]services.AuditRecord, error) {
	if storeID == "" {
		return s.queryAudits(ctx, "ListAudits", `SELECT `+auditCols+` FROM audits ORDER BY audit_date DESC, created_at DESC`)
	}
	return s.queryAudits(ctx, "ListAudits",
		`SELECT `+auditCols+` FROM audits WHERE store_id = ? ORDER BY audit_date DESC, created_at DESC`, storeID)
}

// InsertAudit relies on UNIQUE(store_id, audit_date); a violation is
// reported as ErrDuplicateAudit.
func (s *SQLStore) InsertAudit(ctx context.Context, rec *services.AuditRecord) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO audits (`+auditCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.StoreID, rec.StoreName, rec.Verifier, rec.Date, rec.Period, string(results), rec.Comment, created)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert audit %s/%s: %w", rec.StoreID, rec.Date, services.ErrDuplicateAudit)
	}
	return s.logErr("InsertAudit", err)
}

// Users and tokens

func (s *SQLStore) scanUser(row *sql.Row, op string) (*services.User, error) {
	var u services.User
	err := row.Scan(&u.ID, &u.Email, &u.PassHash, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr(op, err)
	}
	return &u, nil
}

func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (*services.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, email, pass_hash, is_admin, created_at FROM users WHERE email = ?`), email)
	return s.scanUser(row, "FindUserByEmail")
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*services.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, email, pass_hash, is_admin, created_at FROM users WHERE id = ?`), id)
	return s.scanUser(row, "GetUser")
}

func (s *SQLStore) AddUser(ctx context.Context, u *services.User) error {
	created := u.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO users (id, email, pass_hash, is_admin, created_at) VALUES (?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.PassHash, u.IsAdmin, created)
	if isUniqueViolation(err) {
		return services.NewConflictError("email exists")
	}
	return s.logErr("AddUser", err)
}

// RevokeToken also drops revocations that have expired.
func (s *SQLStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM revoked_tokens WHERE expires_at < ?`), s.now()); err != nil {
		return s.logErr("RevokeToken purge", err)
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?) ON CONFLICT (jti) DO NOTHING`), jti, expiresAt.UTC())
	return s.logErr("RevokeToken", err)
}

func (s *SQLStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM revoked_tokens WHERE jti = ?`), jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.logErr("IsTokenRevoked", err)
	}
	return true, nil
}

// Activity

func (s *SQLStore) AddActivity(ctx context.Context, e services.ActivityEntry) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO activity (at, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`),
		e.Time.UTC(), e.Actor, e.Action, e.Target, e.Note)
	return s.logErr("AddActivity", err)
}

// ListActivity returns the newest entries first.
func (s *SQLStore) ListActivity(ctx context.Context, limit int) ([]services.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT at, actor, action, target, note FROM activity ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, s.logErr("ListActivity", err)
	}
	defer rows.Close()
	var out []services.ActivityEntry
	for rows.Next() {
		var e services.ActivityEntry
		if err := rows.Scan(&e.Time, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			return nil, s.logErr("ListActivity scan", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
