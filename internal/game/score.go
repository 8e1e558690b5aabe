package game

import (
	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/reply"
)

// ScoreCounter accumulates points_awarded from assistant replies. Cursor
// is the number of log turns already scored, so replaying the same log
// never counts a turn twice.
type ScoreCounter struct {
	Total  int `json:"total"`
	Cursor int `json:"cursor"`
}

// Consume scores turns past the cursor and advances it to len(turns).
// Negative awards are ignored. Returns the points added by this pass.
func (s *ScoreCounter) Consume(turns []domain.Turn) int {
	if s.Cursor >= len(turns) {
		return 0
	}
	if s.Cursor < 0 {
		s.Cursor = 0
	}
	added := 0
	for _, t := range turns[s.Cursor:] {
		if t.Role != domain.RoleAssistant {
			continue
		}
		r, ok := reply.Extract(t.Source())
		if !ok {
			continue
		}
		if points, ok := r.PointsAwarded(); ok && points > 0 {
			added += points
		}
	}
	s.Total += added
	s.Cursor = len(turns)
	return added
}
