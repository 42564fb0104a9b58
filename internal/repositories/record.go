package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spx/internal/models"
	"github.com/desertthunder/spx/internal/shared"
)

// RecordRepository implements [models.Repository] for [models.Record] persistence.
type RecordRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Record] = (*RecordRepository)(nil)

// NewRecordRepository creates a new [RecordRepository] with the given database connection
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Create inserts a new record with a generated ID
func (r *RecordRepository) Create(record *models.Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()
	record.SetID(id)

	query := `INSERT INTO records (id, key, value, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query, id, record.Key(), string(record.Value()), record.CreatedAt(), record.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// Get retrieves a record by ID
func (r *RecordRepository) Get(id string) (*models.Record, error) {
	query := `SELECT id, key, value, created_at, updated_at FROM records WHERE id = ?`
	record, err := scanRecord(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	return record, nil
}

// GetByKey retrieves a record by its key
func (r *RecordRepository) GetByKey(key string) (*models.Record, error) {
	query := `SELECT id, key, value, created_at, updated_at FROM records WHERE key = ?`
	record, err := scanRecord(r.db.QueryRow(query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRecordNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	return record, nil
}

// Update replaces the value of an existing record
func (r *RecordRepository) Update(record *models.Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	record.SetUpdatedAt(now)

	result, err := r.db.Exec(`UPDATE records SET value = ?, updated_at = ? WHERE id = ?`, string(record.Value()), now, record.ID())
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, record.ID())
	}

	return nil
}

// Delete removes a record by ID
func (r *RecordRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, id)
	}

	return nil
}

// List retrieves all records, optionally filtered by "key"
func (r *RecordRepository) List(criteria map[string]any) ([]*models.Record, error) {
	query := `SELECT id, key, value, created_at, updated_at FROM records`
	args := []any{}

	if key, ok := criteria["key"].(string); ok && key != "" {
		query += " WHERE key = ?"
		args = append(args, key)
	}

	query += " ORDER BY key ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Read returns the value stored under key, or [shared.ErrRecordNotFound].
func (r *RecordRepository) Read(key string) ([]byte, error) {
	record, err := r.GetByKey(key)
	if err != nil {
		return nil, err
	}
	return record.Value(), nil
}

// Write upserts the value stored under key.
func (r *RecordRepository) Write(key string, value []byte) error {
	record, err := r.GetByKey(key)
	switch {
	case errors.Is(err, shared.ErrRecordNotFound):
		return r.Create(models.NewRecord(key, value))
	case err != nil:
		return err
	}
	record.SetValue(value)
	return r.Update(record)
}

// Remove deletes the value stored under key. Missing keys are not an error.
func (r *RecordRepository) Remove(key string) error {
	if _, err := r.db.Exec(`DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		id        string
		key       string
		value     string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := row.Scan(&id, &key, &value, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	record := models.NewRecord(key, []byte(value))
	record.SetID(id)
	record.SetCreatedAt(createdAt)
	record.SetUpdatedAt(updatedAt)
	return record, nil
}
