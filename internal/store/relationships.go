package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/affinity/internal/model"
)

const relationshipColumns = `user_id, status, trust_level, familiarity, rapport, dominant_emotion,
	emotional_volatility, positive_interactions, negative_interactions, relationship_start,
	last_interaction, longest_absence_days, avg_response_time, avg_message_length,
	communication_frequency, interaction_count, milestone_count, milestones, boundaries,
	preferences, topic_interest, emotion_counts, version, updated_at`

func (q *queries) GetRelationship(ctx context.Context, userID int64) (*model.RelationshipState, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+relationshipColumns+` FROM relationship_states WHERE user_id = ?`, userID)
	r, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("relationship for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateRelationship inserts r unless a row for the user already exists.
func (q *queries) CreateRelationship(ctx context.Context, r *model.RelationshipState) error {
	enc, err := encodeRelationship(r)
	if err != nil {
		return err
	}
	if r.Version == 0 {
		r.Version = 1
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO relationship_states (`+relationshipColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, string(r.Status), r.Trust, r.Familiarity, r.Rapport, nullString(string(r.DominantEmotion)),
		r.Volatility, r.PositiveInteractions, r.NegativeInteractions, formatTime(r.StartedAt),
		formatTimePtr(r.LastInteractionAt), r.LongestAbsenceDays, r.AvgResponseTime, r.AvgMessageLength,
		r.CommunicationFrequency, r.InteractionCount, r.MilestoneCount, enc.milestones, enc.boundaries,
		enc.preferences, enc.topicInterest, enc.emotionCounts, r.Version, formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

func (q *queries) UpdateRelationship(ctx context.Context, r *model.RelationshipState) error {
	enc, err := encodeRelationship(r)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE relationship_states SET
			status = ?, trust_level = ?, familiarity = ?, rapport = ?, dominant_emotion = ?,
			emotional_volatility = ?, positive_interactions = ?, negative_interactions = ?,
			last_interaction = ?, longest_absence_days = ?, avg_response_time = ?,
			avg_message_length = ?, communication_frequency = ?, interaction_count = ?,
			milestone_count = ?, milestones = ?, boundaries = ?, preferences = ?,
			topic_interest = ?, emotion_counts = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		string(r.Status), r.Trust, r.Familiarity, r.Rapport, nullString(string(r.DominantEmotion)),
		r.Volatility, r.PositiveInteractions, r.NegativeInteractions,
		formatTimePtr(r.LastInteractionAt), r.LongestAbsenceDays, r.AvgResponseTime,
		r.AvgMessageLength, r.CommunicationFrequency, r.InteractionCount,
		r.MilestoneCount, enc.milestones, enc.boundaries, enc.preferences,
		enc.topicInterest, enc.emotionCounts, formatTime(r.UpdatedAt),
		r.UserID, r.Version)
	if err != nil {
		return fmt.Errorf("update relationship: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("relationship for user %d at version %d: %w", r.UserID, r.Version, ErrConflict)
	}
	r.Version++
	return nil
}

type encodedRelationship struct {
	milestones, boundaries, preferences, topicInterest, emotionCounts string
}

func encodeRelationship(r *model.RelationshipState) (encodedRelationship, error) {
	var enc encodedRelationship
	fields := []struct {
		dst *string
		v   interface{}
	}{
		{&enc.milestones, r.Milestones},
		{&enc.boundaries, r.Boundaries},
		{&enc.preferences, r.Preferences},
		{&enc.topicInterest, r.TopicInterest},
		{&enc.emotionCounts, r.EmotionCounts},
	}
	for _, f := range fields {
		s, err := encodeJSON(f.v)
		if err != nil {
			return enc, fmt.Errorf("encode relationship: %w", err)
		}
		if s != nil {
			*f.dst = *s
		}
	}
	return enc, nil
}

func scanRelationship(row scanner) (*model.RelationshipState, error) {
	var r model.RelationshipState
	var status, startedAt, updatedAt string
	var dominant, lastInteraction, milestones, boundaries, preferences, topicInterest, emotionCounts sql.NullString

	err := row.Scan(
		&r.UserID, &status, &r.Trust, &r.Familiarity, &r.Rapport, &dominant,
		&r.Volatility, &r.PositiveInteractions, &r.NegativeInteractions, &startedAt,
		&lastInteraction, &r.LongestAbsenceDays, &r.AvgResponseTime, &r.AvgMessageLength,
		&r.CommunicationFrequency, &r.InteractionCount, &r.MilestoneCount, &milestones, &boundaries,
		&preferences, &topicInterest, &emotionCounts, &r.Version, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = model.Status(status)
	if dominant.Valid {
		r.DominantEmotion = model.Emotion(dominant.String)
	}
	var times timeColumns
	r.StartedAt = times.at("relationship_start", startedAt)
	r.UpdatedAt = times.at("updated_at", updatedAt)
	r.LastInteractionAt = times.ptr("last_interaction", lastInteraction)
	if times.err != nil {
		return nil, fmt.Errorf("relationship for user %d: %w", r.UserID, times.err)
	}

	decode := []struct {
		ns sql.NullString
		v  interface{}
	}{
		{milestones, &r.Milestones},
		{boundaries, &r.Boundaries},
		{preferences, &r.Preferences},
		{topicInterest, &r.TopicInterest},
		{emotionCounts, &r.EmotionCounts},
	}
	for _, d := range decode {
		if err := decodeJSON(d.ns, d.v); err != nil {
			return nil, fmt.Errorf("decode relationship: %w", err)
		}
	}
	if r.Milestones == nil {
		r.Milestones = []model.Milestone{}
	}
	if r.Boundaries == nil {
		r.Boundaries = map[string]interface{}{}
	}
	if r.Preferences == nil {
		r.Preferences = map[string]interface{}{}
	}
	if r.TopicInterest == nil {
		r.TopicInterest = map[string]float64{}
	}
	if r.EmotionCounts == nil {
		r.EmotionCounts = map[model.Emotion]int{}
	}
	return &r, nil
}
