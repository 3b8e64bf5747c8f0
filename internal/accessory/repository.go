package accessory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines accessory persistence.
type Repository interface {
	// Get returns ErrNotFound if the accessory does not exist.
	Get(ctx context.Context, id string) (*Accessory, error)

	List(ctx context.Context) ([]*Accessory, error)
	ListByHub(ctx context.Context, hubID string) ([]*Accessory, error)

	// Save inserts or replaces a record, setting its timestamps.
	Save(ctx context.Context, a *Accessory) error

	// Delete returns ErrNotFound if the accessory does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the accessories table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT id, display_name, hub_id, context, created_at, updated_at FROM accessories`

// Get retrieves an accessory by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Accessory, error) {
	a, err := scanAccessory(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying accessory by id: %w", err)
	}
	return a, nil
}

// List retrieves all accessories ordered by display name.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Accessory, error) {
	return r.query(ctx, selectColumns+` ORDER BY display_name, id`)
}

// ListByHub retrieves the accessories owned by one hub.
func (r *SQLiteRepository) ListByHub(ctx context.Context, hubID string) ([]*Accessory, error) {
	return r.query(ctx, selectColumns+` WHERE hub_id = ? ORDER BY display_name, id`, hubID)
}

// Save upserts an accessory. CreatedAt is preserved across updates.
func (r *SQLiteRepository) Save(ctx context.Context, a *Accessory) error {
	if err := a.Validate(); err != nil {
		return err
	}
	blob, err := EncodeContext(a.Context)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accessories (
			id, display_name, hub_id, serial_number, device_type, context, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name  = excluded.display_name,
			hub_id        = excluded.hub_id,
			serial_number = excluded.serial_number,
			device_type   = excluded.device_type,
			context       = excluded.context,
			updated_at    = excluded.updated_at`,
		a.ID,
		a.DisplayName,
		a.Context.HubID,
		int64(a.Context.Device.SerialNumber),
		a.Context.Device.DeviceType,
		blob,
		a.CreatedAt.Format(time.RFC3339Nano),
		a.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving accessory: %w", err)
	}
	return nil
}

// Delete removes an accessory by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM accessories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting accessory: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*Accessory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accessories: %w", err)
	}
	defer rows.Close()

	var out []*Accessory
	for rows.Next() {
		a, err := scanAccessory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning accessory: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accessories: %w", err)
	}
	return out, nil
}

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccessory(s rowScanner) (*Accessory, error) {
	var a Accessory
	var hubID, createdAt, updatedAt string
	var blob []byte
	if err := s.Scan(&a.ID, &a.DisplayName, &hubID, &blob, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	c, err := DecodeContext(blob)
	if err != nil {
		return nil, err
	}
	a.Context = c
	a.Context.HubID = hubID

	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &a, nil
}
