package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/affinity/internal/model"
)

const contradictionColumns = `id, user_id, contradiction_type, original_statement,
	contradicting_statement, resolution, detected_at, resolved_at, is_resolved, context`

// InsertContradiction stores c and links its related memories in order.
func (q *queries) InsertContradiction(ctx context.Context, c *model.Contradiction) error {
	contextJSON, err := encodeJSON(c.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO contradictions (`+contradictionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Type, c.OriginalStatement, c.ContradictingStatement,
		nullString(c.Resolution), formatTime(c.DetectedAt), formatTimePtr(c.ResolvedAt),
		boolInt(c.Resolved), contextJSON)
	if err != nil {
		return fmt.Errorf("insert contradiction: %w", err)
	}

	for i, memID := range c.RelatedMemoryIDs {
		_, err := q.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO contradiction_memories (contradiction_id, memory_id, seq) VALUES (?, ?, ?)`,
			c.ID, memID, i)
		if err != nil {
			return fmt.Errorf("link memory %s: %w", memID, err)
		}
	}
	return nil
}

func (q *queries) GetContradiction(ctx context.Context, id string) (*model.Contradiction, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+contradictionColumns+` FROM contradictions WHERE id = ?`, id)
	c, err := scanContradiction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contradiction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if c.RelatedMemoryIDs, err = q.linkedMemories(ctx, c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateContradiction writes the resolution fields of c.
func (q *queries) UpdateContradiction(ctx context.Context, c *model.Contradiction) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE contradictions SET resolution = ?, resolved_at = ?, is_resolved = ? WHERE id = ?`,
		nullString(c.Resolution), formatTimePtr(c.ResolvedAt), boolInt(c.Resolved), c.ID)
	if err != nil {
		return fmt.Errorf("update contradiction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("contradiction %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

// ListContradictions returns a user's contradictions, most recently detected first.
func (q *queries) ListContradictions(ctx context.Context, userID int64, unresolvedOnly bool) ([]model.Contradiction, error) {
	query := `SELECT ` + contradictionColumns + ` FROM contradictions WHERE user_id = ?`
	if unresolvedOnly {
		query += ` AND is_resolved = 0`
	}
	query += ` ORDER BY detected_at DESC, id DESC`

	rows, err := q.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	var list []model.Contradiction
	for rows.Next() {
		c, err := scanContradiction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Links are loaded after the cursor is closed: the store runs on a
	// single connection.
	for i := range list {
		if list[i].RelatedMemoryIDs, err = q.linkedMemories(ctx, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (q *queries) linkedMemories(ctx context.Context, contradictionID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT memory_id FROM contradiction_memories WHERE contradiction_id = ? ORDER BY seq`,
		contradictionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanContradiction(row scanner) (model.Contradiction, error) {
	var c model.Contradiction
	var resolution, resolvedAt, contextJSON sql.NullString
	var detectedAt string
	var resolved int

	err := row.Scan(&c.ID, &c.UserID, &c.Type, &c.OriginalStatement, &c.ContradictingStatement,
		&resolution, &detectedAt, &resolvedAt, &resolved, &contextJSON)
	if err != nil {
		return c, err
	}
	if resolution.Valid {
		c.Resolution = resolution.String
	}
	var times timeColumns
	c.DetectedAt = times.at("detected_at", detectedAt)
	c.ResolvedAt = times.ptr("resolved_at", resolvedAt)
	if times.err != nil {
		return c, fmt.Errorf("contradiction %s: %w", c.ID, times.err)
	}
	c.Resolved = resolved != 0
	if err := decodeJSON(contextJSON, &c.Context); err != nil {
		return c, fmt.Errorf("decode context: %w", err)
	}
	return c, nil
}
