package visual

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotOwner is returned when someone other than the owner manages
	// sharing.
	ErrNotOwner = errors.New("only the owner can manage sharing")
	// ErrAlreadyShared is returned when the target already has access.
	ErrAlreadyShared = errors.New("visualisation already shared with user")
	// ErrShareNotFound is returned when unsharing a user without access.
	ErrShareNotFound = errors.New("share not found")
	// ErrInvalidShare is returned for an empty target or a self-share.
	ErrInvalidShare = errors.New("invalid share target")
)

// Share grants a user read access to another user's visualisation.
type Share struct {
	VisualisationID string    `json:"visualisation_id"`
	OwnerID         string    `json:"owner_id"`
	TargetID        string    `json:"target_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// SharedVisualisation is a visualisation listed for a share target.
type SharedVisualisation struct {
	Visualisation
	SharedBy string    `json:"shared_by"`
	SharedAt time.Time `json:"shared_at"`
}

// Share grants targetID access to visualisation id. ownerID must own it.
func (s *Store) Share(ctx context.Context, id, ownerID, targetID string) (*Share, error) {
	if err := s.requireOwner(ctx, id, ownerID); err != nil {
		return nil, err
	}
	if targetID == "" || targetID == ownerID {
		return nil, ErrInvalidShare
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (visualisation_id, owner_id, target_id) VALUES (?, ?, ?)
		ON CONFLICT (visualisation_id, target_id) DO NOTHING`,
		id, ownerID, targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting share: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrAlreadyShared
	}

	var (
		sh      = Share{VisualisationID: id, OwnerID: ownerID, TargetID: targetID}
		created string
	)
	err = s.db.QueryRowContext(ctx,
		"SELECT created_at FROM shares WHERE visualisation_id = ? AND target_id = ?", id, targetID,
	).Scan(&created)
	if err != nil {
		return nil, fmt.Errorf("reading share: %w", err)
	}
	sh.CreatedAt = parseTimestamp(created)
	return &sh, nil
}

// Unshare revokes targetID's access to visualisation id.
func (s *Store) Unshare(ctx context.Context, id, ownerID, targetID string) error {
	if err := s.requireOwner(ctx, id, ownerID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM shares WHERE visualisation_id = ? AND owner_id = ? AND target_id = ?",
		id, ownerID, targetID,
	)
	if err != nil {
		return fmt.Errorf("deleting share: %w", err)
	}
	if err := requireRow(res); errors.Is(err, ErrNotFound) {
		return ErrShareNotFound
	} else if err != nil {
		return err
	}
	return nil
}

// Shares lists who visualisation id is shared with, oldest first.
func (s *Store) Shares(ctx context.Context, id string) ([]Share, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT visualisation_id, owner_id, target_id, created_at
		FROM shares WHERE visualisation_id = ? ORDER BY created_at, target_id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}
	defer rows.Close()

	var out []Share
	for rows.Next() {
		var (
			sh      Share
			created string
		)
		if err := rows.Scan(&sh.VisualisationID, &sh.OwnerID, &sh.TargetID, &created); err != nil {
			return nil, err
		}
		sh.CreatedAt = parseTimestamp(created)
		out = append(out, sh)
	}
	return out, rows.Err()
}

// SharedWith lists the visualisations shared with targetID, newest first,
// without templates or datasets.
func (s *Store) SharedWith(ctx context.Context, targetID string) ([]SharedVisualisation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.user_id, v.title, v.description, '', '', v.created_at, v.updated_at,
		       sh.owner_id, sh.created_at
		FROM shares sh JOIN visualisations v ON v.id = sh.visualisation_id
		WHERE sh.target_id = ?
		ORDER BY v.created_at DESC, v.id`, targetID)
	if err != nil {
		return nil, fmt.Errorf("listing shared visualisations: %w", err)
	}
	defer rows.Close()

	var out []SharedVisualisation
	for rows.Next() {
		var (
			sv               SharedVisualisation
			dataset          string
			created, updated string
			sharedAt         string
		)
		err := rows.Scan(&sv.ID, &sv.UserID, &sv.Title, &sv.Description, &sv.Template, &dataset,
			&created, &updated, &sv.SharedBy, &sharedAt)
		if err != nil {
			return nil, err
		}
		sv.CreatedAt = parseTimestamp(created)
		sv.UpdatedAt = parseTimestamp(updated)
		sv.SharedAt = parseTimestamp(sharedAt)
		out = append(out, sv)
	}
	return out, rows.Err()
}

// CanView reports whether userID owns v or has it shared.
func (s *Store) CanView(ctx context.Context, v *Visualisation, userID string) (bool, error) {
	if v.UserID == userID {
		return true, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM shares WHERE visualisation_id = ? AND target_id = ?", v.ID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking share: %w", err)
	}
	return n > 0, nil
}

func (s *Store) requireOwner(ctx context.Context, id, ownerID string) error {
	v, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if v.UserID != ownerID {
		return ErrNotOwner
	}
	return nil
}
