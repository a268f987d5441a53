package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/store"
)

const (
	defaultBudget  = 1000
	contextPool    = 50
	minExcerptSize = 100
)

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	UserID           int64
	Budget           int // max tokens in output (rough proxy: 1 token ≈ 4 chars)
	IncludeSensitive bool
}

// ContextMemory is a scored memory for prompt context.
type ContextMemory struct {
	ID      string        `json:"id"`
	Emotion model.Emotion `json:"primary_emotion"`
	Summary string        `json:"summary"`
	Content string        `json:"content"`
	Score   float64       `json:"score"`
	Excerpt bool          `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context.
type ContextResult struct {
	Budget   int             `json:"budget"`
	Used     int             `json:"used"`
	Memories []ContextMemory `json:"memories"`
}

// Context packs the user's best memories into a token budget for reply
// personalization. Included memories count as recalled.
func (s *Service) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	charBudget := budget * 4

	result := &ContextResult{Budget: budget, Memories: []ContextMemory{}}
	err := s.store.InTx(ctx, func(q store.Queries) error {
		candidates, err := q.ListMemories(ctx, store.MemoryFilter{UserID: p.UserID, Limit: contextPool})
		if err != nil {
			return err
		}
		now := s.store.Now()

		var picked []model.EmotionalMemory
		used := 0
		for _, c := range scoreCandidates(candidates, p.IncludeSensitive, now) {
			text := c.memory.Content
			if text == "" {
				text = c.memory.Summary
			}
			cm := ContextMemory{
				ID:      c.memory.ID,
				Emotion: c.memory.PrimaryEmotion,
				Summary: c.memory.Summary,
				Score:   math.Round(c.score*100) / 100,
			}
			if used+len(text) <= charBudget {
				cm.Content = text
				used += len(text)
			} else if remaining := charBudget - used; remaining >= minExcerptSize {
				cm.Content = truncate(text, remaining) + "..."
				cm.Excerpt = true
				used += remaining
			} else {
				break
			}
			result.Memories = append(result.Memories, cm)
			picked = append(picked, c.memory)
			if cm.Excerpt {
				break
			}
		}
		result.Used = used / 4
		return markRecalled(ctx, q, picked, now)
	})
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}
	return result, nil
}

type scoredMemory struct {
	memory model.EmotionalMemory
	score  float64
}

// scoreCandidates ranks memories by a composite of recency, importance and
// recall frequency.
func scoreCandidates(memories []model.EmotionalMemory, includeSensitive bool, now time.Time) []scoredMemory {
	maxImportance := 0.0
	for _, m := range memories {
		maxImportance = math.Max(maxImportance, m.Importance)
	}

	var out []scoredMemory
	for _, m := range memories {
		if m.Sensitive && !includeSensitive {
			continue
		}
		age := now.Sub(m.OccurredAt).Hours() / 24
		recency := math.Exp(-0.1 * math.Max(0, age))

		importance := 0.0
		if maxImportance > 0 {
			importance = m.Importance / maxImportance
		}

		recall := 0.0
		if m.RecallCount > 0 {
			recall = math.Min(1, math.Log(float64(m.RecallCount)+1)/math.Log(100))
		}

		score := recency*0.4 + importance*0.4 + recall*0.2
		out = append(out, scoredMemory{memory: m, score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
