package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/affinity/internal/model"
)

const memoryColumns = `id, user_id, interaction_kind, occurred_at, summary, content,
	primary_emotion, secondary_emotion, intensity, context, related_achievements,
	related_narrative_keys, importance, decay_rate, last_recalled_at, recall_count,
	tags, is_sensitive, is_forgotten, parent_memory_id`

func (q *queries) InsertMemory(ctx context.Context, m *model.EmotionalMemory) error {
	contextJSON, err := encodeJSON(m.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	achievementsJSON, err := encodeJSON(m.RelatedAchievements)
	if err != nil {
		return fmt.Errorf("encode achievements: %w", err)
	}
	narrativeJSON, err := encodeJSON(m.RelatedNarrativeKeys)
	if err != nil {
		return fmt.Errorf("encode narrative keys: %w", err)
	}
	tagsJSON, err := encodeJSON(m.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO emotional_memories (`+memoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, string(m.Kind), formatTime(m.OccurredAt), m.Summary, m.Content,
		string(m.PrimaryEmotion), nullString(string(m.SecondaryEmotion)), int(m.Intensity),
		contextJSON, achievementsJSON, narrativeJSON, m.Importance, m.DecayRate,
		formatTimePtr(m.LastRecalledAt), m.RecallCount, tagsJSON,
		boolInt(m.Sensitive), boolInt(m.Forgotten), nullString(m.ParentID))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// GetMemory returns a memory by id, including forgotten ones. Callers that
// serve user-facing reads go through ListMemories instead.
func (q *queries) GetMemory(ctx context.Context, id string) (*model.EmotionalMemory, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM emotional_memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (q *queries) ListMemories(ctx context.Context, f MemoryFilter) ([]model.EmotionalMemory, error) {
	where := []string{"user_id = ?", "is_forgotten = 0"}
	args := []interface{}{f.UserID}

	if f.Emotion != "" {
		where = append(where, "primary_emotion = ?")
		args = append(args, string(f.Emotion))
	}
	if f.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(emotional_memories.tags) WHERE json_each.value = ?)")
		args = append(args, f.Tag)
	}
	if f.MinImportance != nil {
		where = append(where, "importance >= ?")
		args = append(args, *f.MinImportance)
	}

	order := "occurred_at DESC, id DESC"
	if f.Order == OrderImportance {
		order = "importance DESC, occurred_at DESC, id DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM emotional_memories WHERE %s ORDER BY %s`,
		memoryColumns, strings.Join(where, " AND "), order)
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []model.EmotionalMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (q *queries) TouchMemories(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []interface{}{formatTime(at)}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE emotional_memories SET recall_count = recall_count + 1, last_recalled_at = ?
		 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("touch memories: %w", err)
	}
	return nil
}

func (q *queries) ForgetMemory(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE emotional_memories SET is_forgotten = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("forget memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}

func (q *queries) ForgetUserMemories(ctx context.Context, userID int64) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE emotional_memories SET is_forgotten = 1 WHERE user_id = ? AND is_forgotten = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("forget user memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanMemory(row scanner) (model.EmotionalMemory, error) {
	var m model.EmotionalMemory
	var kind, occurredAt, primary string
	var secondary, contextJSON, achievementsJSON, narrativeJSON, lastRecalled, tagsJSON, parent sql.NullString
	var intensity, sensitive, forgotten int

	err := row.Scan(
		&m.ID, &m.UserID, &kind, &occurredAt, &m.Summary, &m.Content,
		&primary, &secondary, &intensity, &contextJSON, &achievementsJSON,
		&narrativeJSON, &m.Importance, &m.DecayRate, &lastRecalled, &m.RecallCount,
		&tagsJSON, &sensitive, &forgotten, &parent,
	)
	if err != nil {
		return m, err
	}

	var times timeColumns
	m.Kind = model.InteractionKind(kind)
	m.OccurredAt = times.at("occurred_at", occurredAt)
	m.PrimaryEmotion = model.Emotion(primary)
	if secondary.Valid {
		m.SecondaryEmotion = model.Emotion(secondary.String)
	}
	m.Intensity = model.Intensity(intensity)
	m.LastRecalledAt = times.ptr("last_recalled_at", lastRecalled)
	if times.err != nil {
		return m, fmt.Errorf("memory %s: %w", m.ID, times.err)
	}
	m.Sensitive = sensitive != 0
	m.Forgotten = forgotten != 0
	if parent.Valid {
		m.ParentID = parent.String
	}
	if err := decodeJSON(contextJSON, &m.Context); err != nil {
		return m, fmt.Errorf("decode context: %w", err)
	}
	if err := decodeJSON(achievementsJSON, &m.RelatedAchievements); err != nil {
		return m, fmt.Errorf("decode achievements: %w", err)
	}
	if err := decodeJSON(narrativeJSON, &m.RelatedNarrativeKeys); err != nil {
		return m, fmt.Errorf("decode narrative keys: %w", err)
	}
	if err := decodeJSON(tagsJSON, &m.Tags); err != nil {
		return m, fmt.Errorf("decode tags: %w", err)
	}
	return m, nil
}
