// Package challenge stores challenges and their participants and decides
// when a challenge has enough participants to start.
package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/wordfill-backend/internal/puzzle"
)

var ErrNotFound = errors.New("not found")
var ErrInvalidInput = errors.New("invalid input")

// ErrNotAvailable means the challenge is past the forming stage.
var ErrNotAvailable = errors.New("challenge not available")

type Status string

const (
	StatusAvailable Status = "AVAILABLE" // forming, accepting participants
	StatusRunning   Status = "RUNNING"
)

type Challenge struct {
	ID                  string               `gorm:"type:uuid;primaryKey" json:"id"`
	Name                string               `gorm:"size:30;not null" json:"name"`
	TeamsAmount         int                  `gorm:"not null" json:"teamsAmount"`
	ParticipantsPerTeam int                  `gorm:"not null" json:"participantsPerTeam"`
	Status              Status               `gorm:"size:16;not null;index" json:"status"`
	Text                string               `json:"text"`
	Placeholders        []puzzle.Placeholder `gorm:"serializer:json;type:jsonb" json:"placeholders"`
	CreatedAt           time.Time            `json:"createdAt"`
}

func (Challenge) TableName() string { return "challenges" }

// Capacity is the participant count that starts the challenge.
func (c Challenge) Capacity() int {
	return c.TeamsAmount * c.ParticipantsPerTeam
}

type Participant struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	ChallengeID string     `gorm:"type:uuid;not null;index" json:"challengeId"`
	Name        string     `gorm:"size:30;not null" json:"name"`
	Team        int        `gorm:"not null" json:"team"`
	CreatedAt   time.Time  `json:"createdAt"`
	Challenge   *Challenge `gorm:"constraint:OnDelete:CASCADE" json:"challenge,omitempty"`
}

func (Participant) TableName() string { return "challenge_participants" }

// Repository is the durable store for challenges and participants.
type Repository interface {
	CreateChallenge(ctx context.Context, c *Challenge) error
	GetChallenge(ctx context.Context, id string) (*Challenge, error)
	DeleteChallenge(ctx context.Context, id string) error

	// StartChallenge stores the puzzle and flips the status to RUNNING, but
	// only if the challenge is still AVAILABLE; otherwise ErrNotAvailable.
	StartChallenge(ctx context.Context, id string, p puzzle.Puzzle) (*Challenge, error)

	AddParticipant(ctx context.Context, p *Participant) error
	// GetParticipant loads the participant with its challenge.
	GetParticipant(ctx context.Context, id string) (*Participant, error)
	CountParticipants(ctx context.Context, challengeID string) (int, error)
	// TeamCounts returns members per team; teams with no members are absent.
	TeamCounts(ctx context.Context, challengeID string) (map[int]int, error)
}
