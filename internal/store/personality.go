package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/affinity/internal/model"
)

const personalityColumns = `user_id, warmth, formality, humor, directness, assertiveness,
	curiosity, emotional_expressiveness, preferred_message_length, complexity_level,
	emoji_usage, response_delay_ms, topic_preferences, taboo_topics,
	memory_reference_frequency, adaptation_reason, last_significant_change,
	confidence_score, version, created_at, updated_at`

func (q *queries) GetPersonality(ctx context.Context, userID int64) (*model.PersonalityProfile, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+personalityColumns+` FROM personality_profiles WHERE user_id = ?`, userID)
	p, err := scanPersonality(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("personality for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePersonality inserts p unless a row for the user already exists.
func (q *queries) CreatePersonality(ctx context.Context, p *model.PersonalityProfile) error {
	topics, taboo, err := encodePersonality(p)
	if err != nil {
		return err
	}
	if p.Version == 0 {
		p.Version = 1
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO personality_profiles (`+personalityColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Warmth, p.Formality, p.Humor, p.Directness, p.Assertiveness,
		p.Curiosity, p.EmotionalExpressiveness, string(p.PreferredMessageLength), p.ComplexityLevel,
		p.EmojiUsage, p.ResponseDelayMS, topics, taboo,
		p.MemoryReferenceFrequency, nullString(p.AdaptationReason), formatTimePtr(p.LastSignificantChange),
		p.Confidence, p.Version, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert personality: %w", err)
	}
	return nil
}

func (q *queries) UpdatePersonality(ctx context.Context, p *model.PersonalityProfile) error {
	topics, taboo, err := encodePersonality(p)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE personality_profiles SET
			warmth = ?, formality = ?, humor = ?, directness = ?, assertiveness = ?,
			curiosity = ?, emotional_expressiveness = ?, preferred_message_length = ?,
			complexity_level = ?, emoji_usage = ?, response_delay_ms = ?, topic_preferences = ?,
			taboo_topics = ?, memory_reference_frequency = ?, adaptation_reason = ?,
			last_significant_change = ?, confidence_score = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		p.Warmth, p.Formality, p.Humor, p.Directness, p.Assertiveness,
		p.Curiosity, p.EmotionalExpressiveness, string(p.PreferredMessageLength),
		p.ComplexityLevel, p.EmojiUsage, p.ResponseDelayMS, topics,
		taboo, p.MemoryReferenceFrequency, nullString(p.AdaptationReason),
		formatTimePtr(p.LastSignificantChange), p.Confidence, formatTime(p.UpdatedAt),
		p.UserID, p.Version)
	if err != nil {
		return fmt.Errorf("update personality: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("personality for user %d at version %d: %w", p.UserID, p.Version, ErrConflict)
	}
	p.Version++
	return nil
}

func encodePersonality(p *model.PersonalityProfile) (topics, taboo *string, err error) {
	if topics, err = encodeJSON(p.TopicPreferences); err != nil {
		return nil, nil, fmt.Errorf("encode topic preferences: %w", err)
	}
	if taboo, err = encodeJSON(p.TabooTopics); err != nil {
		return nil, nil, fmt.Errorf("encode taboo topics: %w", err)
	}
	return topics, taboo, nil
}

func scanPersonality(row scanner) (*model.PersonalityProfile, error) {
	var p model.PersonalityProfile
	var length, createdAt, updatedAt string
	var topics, taboo, reason, lastChange sql.NullString

	err := row.Scan(
		&p.UserID, &p.Warmth, &p.Formality, &p.Humor, &p.Directness, &p.Assertiveness,
		&p.Curiosity, &p.EmotionalExpressiveness, &length, &p.ComplexityLevel,
		&p.EmojiUsage, &p.ResponseDelayMS, &topics, &taboo,
		&p.MemoryReferenceFrequency, &reason, &lastChange,
		&p.Confidence, &p.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.PreferredMessageLength = model.MessageLength(length)
	if reason.Valid {
		p.AdaptationReason = reason.String
	}
	var times timeColumns
	p.LastSignificantChange = times.ptr("last_significant_change", lastChange)
	p.CreatedAt = times.at("created_at", createdAt)
	p.UpdatedAt = times.at("updated_at", updatedAt)
	if times.err != nil {
		return nil, fmt.Errorf("personality for user %d: %w", p.UserID, times.err)
	}
	if err := decodeJSON(topics, &p.TopicPreferences); err != nil {
		return nil, fmt.Errorf("decode topic preferences: %w", err)
	}
	if err := decodeJSON(taboo, &p.TabooTopics); err != nil {
		return nil, fmt.Errorf("decode taboo topics: %w", err)
	}
	if p.TopicPreferences == nil {
		p.TopicPreferences = map[string]float64{}
	}
	if p.TabooTopics == nil {
		p.TabooTopics = []string{}
	}
	return &p, nil
}
