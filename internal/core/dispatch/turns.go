package dispatch

import (
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/core"
)

// DefaultTurnTTL bounds how long a clarify or confirm round stays open.
const DefaultTurnTTL = 5 * time.Minute

// PendingTurn records an open clarify or confirm round for a caller+route
// key. Exactly one follow-up is honored; taking the turn consumes it.
type PendingTurn struct {
	Action       core.Action
	Message      string
	Candidate    string
	Alternatives []string
	ExpiresAt    time.Time
}

// PendingTurns tracks open rounds in process. A restart forgets them,
// which costs the caller at most one extra clarification.
type PendingTurns struct {
	TTL   time.Duration
	Clock func() time.Time

	mu    sync.Mutex
	turns map[string]PendingTurn
}

// NewPendingTurns returns an empty table.
func NewPendingTurns(ttl time.Duration) *PendingTurns {
	if ttl <= 0 {
		ttl = DefaultTurnTTL
	}
	return &PendingTurns{TTL: ttl, turns: make(map[string]PendingTurn)}
}

// Put opens a round for the key, replacing any existing one.
func (p *PendingTurns) Put(key string, turn PendingTurn) {
	turn.ExpiresAt = p.now().Add(p.TTL)

	p.mu.Lock()
	if p.turns == nil {
		p.turns = make(map[string]PendingTurn)
	}
	p.turns[key] = turn
	p.mu.Unlock()
}

// Take consumes the open round for the key, if one is still live.
func (p *PendingTurns) Take(key string) (PendingTurn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	turn, ok := p.turns[key]
	if !ok {
		return PendingTurn{}, false
	}
	delete(p.turns, key)

	if !turn.ExpiresAt.After(p.now()) {
		return PendingTurn{}, false
	}
	return turn, true
}

func (p *PendingTurns) now() time.Time {
	if p != nil && p.Clock != nil {
		return p.Clock()
	}
	return time.Now().UTC()
}
