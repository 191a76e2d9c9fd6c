package challenge

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/wordfill-backend/internal/puzzle"
)

// MemoryRepository keeps everything in process. Used when no database is
// configured and in tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	challenges   map[string]Challenge
	participants map[string]Participant
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		challenges:   make(map[string]Challenge),
		participants: make(map[string]Participant),
	}
}

func (m *MemoryRepository) CreateChallenge(ctx context.Context, c *Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.challenges[c.ID] = cloneChallenge(*c)
	return nil
}

func (m *MemoryRepository) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneChallenge(c)
	return &out, nil
}

func (m *MemoryRepository) DeleteChallenge(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.challenges[id]; !ok {
		return ErrNotFound
	}
	delete(m.challenges, id)
	for pid, p := range m.participants {
		if p.ChallengeID == id {
			delete(m.participants, pid)
		}
	}
	return nil
}

func (m *MemoryRepository) StartChallenge(ctx context.Context, id string, p puzzle.Puzzle) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != StatusAvailable {
		out := cloneChallenge(c)
		return &out, ErrNotAvailable
	}

	c.Status = StatusRunning
	c.Text = p.Text
	c.Placeholders = slices.Clone(p.Placeholders)
	m.challenges[id] = c

	out := cloneChallenge(c)
	return &out, nil
}

func (m *MemoryRepository) AddParticipant(ctx context.Context, p *Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.challenges[p.ChallengeID]; !ok {
		return ErrNotFound
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	stored := *p
	stored.Challenge = nil
	m.participants[p.ID] = stored
	return nil
}

func (m *MemoryRepository) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	c, ok := m.challenges[p.ChallengeID]
	if !ok {
		return nil, ErrNotFound
	}
	cc := cloneChallenge(c)
	p.Challenge = &cc
	return &p, nil
}

func (m *MemoryRepository) CountParticipants(ctx context.Context, challengeID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, p := range m.participants {
		if p.ChallengeID == challengeID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) TeamCounts(ctx context.Context, challengeID string) (map[int]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[int]int)
	for _, p := range m.participants {
		if p.ChallengeID == challengeID {
			counts[p.Team]++
		}
	}
	return counts, nil
}

func cloneChallenge(c Challenge) Challenge {
	c.Placeholders = slices.Clone(c.Placeholders)
	return c
}
