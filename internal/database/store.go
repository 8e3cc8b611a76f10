package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/keyward/go/internal/vault"
)

const passwordColumns = `id, name, password, category, account_name, url, created_at, updated_at, last_viewed`

// querier is the part of *sql.DB and *sql.Tx the store reads through
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPassword(row scanner) (*vault.Password, error) {
	var (
		p          vault.Password
		category   string
		account    string
		link       string
		lastViewed sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Password, &category, &account, &link, &p.CreatedAt, &p.UpdatedAt, &lastViewed); err != nil {
		return nil, err
	}

	p.Category = vault.Category(category)
	if p.Category == vault.CategoryApplication {
		p.Application = &vault.ApplicationDetails{AccountName: account, URL: link}
	}
	if lastViewed.Valid {
		p.LastViewed = lastViewed.Time
	}
	return &p, nil
}

func (vd *VaultDatabase) getPassword(ctx context.Context, q querier, op, id string) (*vault.Password, error) {
	p, err := scanPassword(q.QueryRowContext(ctx, `SELECT `+passwordColumns+` FROM passwords WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", vault.ErrNotFound, id)
		}
		return nil, storeError(op, err)
	}
	return p, nil
}

// List returns every record, oldest first
func (vd *VaultDatabase) List(ctx context.Context) ([]*vault.Password, error) {
	if err := vd.ensureConnected(); err != nil {
		return nil, err
	}

	rows, err := vd.connection.QueryContext(ctx, `SELECT `+passwordColumns+` FROM passwords ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, storeError("list_passwords", err)
	}
	defer rows.Close()

	var out []*vault.Password
	for rows.Next() {
		p, err := scanPassword(rows)
		if err != nil {
			return nil, storeError("scan_password_list", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list_passwords_iteration", err)
	}
	return out, nil
}

// Get returns a record and stamps its last viewed time
func (vd *VaultDatabase) Get(ctx context.Context, id string) (*vault.Password, error) {
	if err := vd.ensureConnected(); err != nil {
		return nil, err
	}

	p, err := vd.getPassword(ctx, vd.connection, "get_password", id)
	if err != nil {
		return nil, err
	}

	viewed := vd.now().UTC()
	if _, err := vd.connection.ExecContext(ctx, `UPDATE passwords SET last_viewed = ? WHERE id = ?`, viewed, id); err != nil {
		return nil, storeError("update_last_viewed", err)
	}
	p.LastViewed = viewed
	return p, nil
}

// Create validates draft and inserts a new record
func (vd *VaultDatabase) Create(ctx context.Context, draft vault.Draft) (*vault.Password, error) {
	if err := vd.ensureConnected(); err != nil {
		return nil, err
	}

	d := draft.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	now := vd.now().UTC()
	p := &vault.Password{
		ID:        uuid.NewString(),
		Name:      d.Name,
		Password:  d.Password,
		Category:  d.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if d.Category == vault.CategoryApplication {
		p.Application = &vault.ApplicationDetails{AccountName: d.AccountName, URL: d.URL}
	}

	_, err := vd.connection.ExecContext(ctx, `
		INSERT INTO passwords (id, name, password, category, account_name, url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Password, string(p.Category), p.AccountName(), p.URL(), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			if d.Category == vault.CategoryDevice {
				return nil, fmt.Errorf("%w: a device with this name already exists", vault.ErrDuplicateEntry)
			}
			return nil, fmt.Errorf("%w: an application with this name and account already exists", vault.ErrDuplicateEntry)
		}
		return nil, storeError("create_password", err)
	}

	vd.logger.Debug("password created", "record", p.ID)
	return p, nil
}

// Update replaces the value of a record, keeping the previous one in history
func (vd *VaultDatabase) Update(ctx context.Context, id, password string) (*vault.Password, error) {
	if err := vd.ensureConnected(); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, vault.NewValidationError("password", "password is required")
	}

	tx, err := vd.connection.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("begin_update", err)
	}
	defer tx.Rollback()

	var previous string
	err = tx.QueryRowContext(ctx, `SELECT password FROM passwords WHERE id = ?`, id).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", vault.ErrNotFound, id)
		}
		return nil, storeError("read_previous_password", err)
	}

	now := vd.now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO password_history (id, password_id, value, created_at) VALUES (?, ?, ?, ?)`,
		ulid.Make().String(), id, previous, now); err != nil {
		return nil, storeError("insert_history", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE passwords SET password = ?, updated_at = ? WHERE id = ?`,
		password, now, id); err != nil {
		return nil, storeError("update_password", err)
	}

	p, err := vd.getPassword(ctx, tx, "read_updated_password", id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storeError("commit_update", err)
	}
	return p, nil
}

// Remove deletes a record and its history
func (vd *VaultDatabase) Remove(ctx context.Context, id string) error {
	if err := vd.ensureConnected(); err != nil {
		return err
	}

	tx, err := vd.connection.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin_remove", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM password_history WHERE password_id = ?`, id); err != nil {
		return storeError("delete_history", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM passwords WHERE id = ?`, id)
	if err != nil {
		return storeError("delete_password", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeError("delete_password_check", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", vault.ErrNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit_remove", err)
	}
	return nil
}

// History returns the prior values of a record, oldest first
func (vd *VaultDatabase) History(ctx context.Context, id string) ([]vault.HistoryEntry, error) {
	if err := vd.ensureConnected(); err != nil {
		return nil, err
	}

	var exists int
	err := vd.connection.QueryRowContext(ctx, `SELECT 1 FROM passwords WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", vault.ErrNotFound, id)
		}
		return nil, storeError("check_password", err)
	}

	rows, err := vd.connection.QueryContext(ctx, `
		SELECT id, value, created_at, password_id
		FROM password_history
		WHERE password_id = ?
		ORDER BY created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, storeError("list_history", err)
	}
	defer rows.Close()

	var out []vault.HistoryEntry
	for rows.Next() {
		var h vault.HistoryEntry
		if err := rows.Scan(&h.ID, &h.Value, &h.CreatedAt, &h.PasswordID); err != nil {
			return nil, storeError("scan_history", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list_history_iteration", err)
	}
	return out, nil
}
