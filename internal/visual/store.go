package visual

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ziadkadry99/dynadash/internal/db"
)

// ErrNotFound is returned when no visualisation has the requested ID.
var ErrNotFound = errors.New("visualisation not found")

// Store provides CRUD operations for visualisations.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts v. If v.ID is empty a UUID is generated. An empty dataset
// is stored as an empty array.
func (s *Store) Create(ctx context.Context, v Visualisation) (*Visualisation, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	dataset, err := normalizeDataset(v.Dataset)
	if err != nil {
		return nil, err
	}
	v.Dataset = dataset

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO visualisations (id, user_id, title, description, template, dataset)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.UserID, v.Title, v.Description, v.Template, string(v.Dataset),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting visualisation: %w", err)
	}
	return s.Get(ctx, v.ID)
}

// Get retrieves a single visualisation including its template and dataset.
func (s *Store) Get(ctx context.Context, id string) (*Visualisation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, template, dataset, created_at, updated_at
		FROM visualisations WHERE id = ?`, id)

	v, err := scanVisualisation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting visualisation %s: %w", id, err)
	}
	return v, nil
}

// List returns visualisations newest first, without templates or datasets.
// An empty userID lists every user's visualisations.
func (s *Store) List(ctx context.Context, userID string) ([]Visualisation, error) {
	query := `SELECT id, user_id, title, description, '', '', created_at, updated_at FROM visualisations`
	var args []any
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing visualisations: %w", err)
	}
	defer rows.Close()

	var out []Visualisation
	for rows.Next() {
		v, err := scanVisualisation(rows)
		if err != nil {
			return nil, err
		}
		v.Dataset = nil
		out = append(out, *v)
	}
	return out, rows.Err()
}

// UpdateDataset replaces the dataset of a visualisation.
func (s *Store) UpdateDataset(ctx context.Context, id string, dataset json.RawMessage) error {
	data, err := normalizeDataset(dataset)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE visualisations SET dataset = ?, updated_at = datetime('now') WHERE id = ?",
		string(data), id,
	)
	if err != nil {
		return fmt.Errorf("updating dataset: %w", err)
	}
	return requireRow(res)
}

// Delete removes a visualisation and its shares.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM shares WHERE visualisation_id = ?", id); err != nil {
		return fmt.Errorf("deleting shares: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM visualisations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting visualisation: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// normalizeDataset validates dataset JSON and maps empty input to [].
func normalizeDataset(dataset json.RawMessage) (json.RawMessage, error) {
	if len(dataset) == 0 {
		return json.RawMessage("[]"), nil
	}
	if !json.Valid(dataset) {
		return nil, fmt.Errorf("dataset is not valid JSON")
	}
	return dataset, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVisualisation(sc scanner) (*Visualisation, error) {
	var (
		v                Visualisation
		dataset          string
		created, updated string
	)
	err := sc.Scan(&v.ID, &v.UserID, &v.Title, &v.Description, &v.Template, &dataset, &created, &updated)
	if err != nil {
		return nil, err
	}
	if dataset != "" {
		v.Dataset = json.RawMessage(dataset)
	}
	v.CreatedAt = parseTimestamp(created)
	v.UpdatedAt = parseTimestamp(updated)
	return &v, nil
}

func parseTimestamp(ts string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Time{}
}
