package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

const entryCols = `id, user_id, user_name, user_role, action, resource_type, resource_id,
	patient_id, old_values, new_values, description, ip_address, created_at`

func (r *entryRepoPG) scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.UserID, &e.UserName, &e.UserRole, &e.Action,
		&e.ResourceType, &e.ResourceID, &e.PatientID, &e.OldValues, &e.NewValues,
		&e.Description, &e.IPAddress, &e.CreatedAt)
	return &e, err
}

// jsonArg keeps empty snapshots as SQL NULL instead of a JSON null literal.
func jsonArg(m map[string]interface{}) interface{} {
	if len(m) == 0 {
		return nil
	}
	return m
}

func (r *entryRepoPG) Create(ctx context.Context, e *Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, user_id, user_name, user_role, action, resource_type,
			resource_id, patient_id, old_values, new_values, description, ip_address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.UserID, e.UserName, e.UserRole, e.Action, e.ResourceType,
		e.ResourceID, e.PatientID, jsonArg(e.OldValues), jsonArg(e.NewValues),
		e.Description, e.IPAddress, e.CreatedAt)
	return err
}

func (r *entryRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+entryCols+` FROM audit_log WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *entryRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, resourceType string, limit, offset int) ([]*Entry, int, error) {
	where := `patient_id = $1`
	args := []interface{}{patientID}
	if resourceType != "" {
		where += ` AND resource_type = $2`
		args = append(args, resourceType)
	}
	return r.list(ctx, where, args, limit, offset)
}

func (r *entryRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, resourceType string, limit, offset int) ([]*Entry, int, error) {
	where := `user_id = $1`
	args := []interface{}{userID}
	if resourceType != "" {
		where += ` AND resource_type = $2`
		args = append(args, resourceType)
	}
	return r.list(ctx, where, args, limit, offset)
}

func (r *entryRepoPG) ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*Entry, int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryCols+` FROM audit_log WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, len(items), rows.Err()
}
