package agreement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InsertParams contains the write parameters for a new agreement.
type InsertParams struct {
	Title       string
	FileURL     string
	SignerEmail string
	SenderID    string
}

const agreementColumns = `id, title, file_url, status, sender_id, signer_id, signer_email, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL. Reads that back
// single operations go through the pool; writes participate in the caller's
// transaction.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed agreement repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert persists a new Draft agreement inside the active transaction.
func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Agreement, error) {
	const insertSQL = `
		INSERT INTO agreements (title, file_url, status, sender_id, signer_email)
		VALUES ($1, $2, 'Draft', $3, NULLIF($4, ''))
		RETURNING ` + agreementColumns

	rec, err := scanAgreement(tx.QueryRow(ctx, insertSQL, params.Title, params.FileURL, params.SenderID, params.SignerEmail))
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: insert: %w", err)
	}
	return rec, nil
}

// GetForUpdate loads an agreement and locks its row for the rest of the
// transaction, serializing concurrent transitions on the same agreement.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Agreement, error) {
	const selectSQL = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE id = $1
		FOR UPDATE
	`

	rec, err := scanAgreement(tx.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, ErrNotFound
		}
		return Agreement{}, fmt.Errorf("agreement: get for update: %w", err)
	}
	return rec, nil
}

// UpdateStatus writes the new status and, when signerID is non-nil, binds
// the signer identity in the same statement.
func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status Status, signerID *string) (Agreement, error) {
	const updateSQL = `
		UPDATE agreements
		SET status = $1,
		    signer_id = COALESCE($2, signer_id),
		    updated_at = now()
		WHERE id = $3
		RETURNING ` + agreementColumns

	rec, err := scanAgreement(tx.QueryRow(ctx, updateSQL, status, signerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, ErrNotFound
		}
		return Agreement{}, fmt.Errorf("agreement: update status: %w", err)
	}
	return rec, nil
}

// AppendAudit records one immutable audit entry.
func (r *PGRepository) AppendAudit(ctx context.Context, db Execer, agreementID int64, action, performedBy string) error {
	const insertSQL = `
		INSERT INTO audit_logs (agreement_id, action, performed_by)
		VALUES ($1, $2, $3)
	`

	if _, err := db.Exec(ctx, insertSQL, agreementID, action, performedBy); err != nil {
		return fmt.Errorf("agreement: append audit %s: %w", action, err)
	}
	return nil
}

// Find loads a single agreement without locking.
func (r *PGRepository) Find(ctx context.Context, id int64) (Agreement, error) {
	const selectSQL = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE id = $1
	`

	rec, err := scanAgreement(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, ErrNotFound
		}
		return Agreement{}, fmt.Errorf("agreement: find: %w", err)
	}
	return rec, nil
}

// ListForUser returns agreements where the user is sender, bound signer, or
// invited signer by email. The single query is the set union of the three
// membership conditions, so each agreement appears exactly once.
func (r *PGRepository) ListForUser(ctx context.Context, userID, email string) ([]Agreement, error) {
	const listSQL = `
		SELECT ` + agreementColumns + `
		FROM agreements
		WHERE sender_id = $1
		   OR signer_id = $1
		   OR ($2 <> '' AND signer_email = $2)
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, listSQL, userID, email)
	if err != nil {
		return nil, fmt.Errorf("agreement: list for user: %w", err)
	}
	defer rows.Close()

	records := []Agreement{}
	for rows.Next() {
		rec, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("agreement: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate: %w", err)
	}

	return records, nil
}

// ListAudit returns the agreement's audit entries newest-first.
func (r *PGRepository) ListAudit(ctx context.Context, agreementID int64) ([]AuditEntry, error) {
	const listSQL = `
		SELECT id, agreement_id, action, performed_by, created_at
		FROM audit_logs
		WHERE agreement_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, listSQL, agreementID)
	if err != nil {
		return nil, fmt.Errorf("agreement: list audit: %w", err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.ID, &entry.AgreementID, &entry.Action, &entry.PerformedBy, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("agreement: scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate audit entries: %w", err)
	}

	return entries, nil
}

func scanAgreement(row pgx.Row) (Agreement, error) {
	var rec Agreement
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.FileURL,
		&rec.Status,
		&rec.SenderID,
		&rec.SignerID,
		&rec.SignerEmail,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Agreement{}, err
	}
	return rec, nil
}
