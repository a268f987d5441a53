package store

import (
	"context"

	"github.com/rcliao/affinity/internal/model"
)

// UserStats returns memory and contradiction counts for one user.
func (q *queries) UserStats(ctx context.Context, userID int64) (*UserStats, error) {
	st := &UserStats{UserID: userID, ByEmotion: map[model.Emotion]int{}}

	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_forgotten), 0) FROM emotional_memories WHERE user_id = ?`,
		userID).Scan(&st.TotalMemories, &st.ForgottenMemories)
	if err != nil {
		return nil, err
	}
	st.ActiveMemories = st.TotalMemories - st.ForgottenMemories

	err = q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN is_resolved = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(is_resolved), 0)
		 FROM contradictions WHERE user_id = ?`,
		userID).Scan(&st.OpenContradictions, &st.ResolvedContradictions)
	if err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT primary_emotion, COUNT(*) AS cnt
		FROM emotional_memories WHERE user_id = ? AND is_forgotten = 0
		GROUP BY primary_emotion ORDER BY cnt DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var emotion string
		var n int
		if err := rows.Scan(&emotion, &n); err != nil {
			return nil, err
		}
		st.ByEmotion[model.Emotion(emotion)] = n
	}
	return st, rows.Err()
}
