package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/wordfill-backend/internal/puzzle"
)

const (
	maxNameLen = 30
	maxTeams   = 5
	maxPerTeam = 5
)

// Channels is how the lifecycle reaches the real-time side.
type Channels interface {
	AnnounceStart(challengeID string, payload any)
	Close(challengeID string)
}

// SessionCleaner drops the ephemeral drag/fill state of a challenge.
type SessionCleaner interface {
	DeleteChallenge(ctx context.Context, challengeID string) error
}

type CreateInput struct {
	UserName            string `json:"userName"`
	ChallengeName       string `json:"challengeName"`
	TeamsAmount         int    `json:"teamsAmount"`
	ParticipantsPerTeam int    `json:"participantsPerTeam"`
}

func (in CreateInput) Validate() error {
	if err := validateName("userName", in.UserName); err != nil {
		return err
	}
	if err := validateName("challengeName", in.ChallengeName); err != nil {
		return err
	}
	if in.TeamsAmount < 1 || in.TeamsAmount > maxTeams {
		return fmt.Errorf("%w: teamsAmount must be between 1 and %d", ErrInvalidInput, maxTeams)
	}
	if in.ParticipantsPerTeam < 1 || in.ParticipantsPerTeam > maxPerTeam {
		return fmt.Errorf("%w: participantsPerTeam must be between 1 and %d", ErrInvalidInput, maxPerTeam)
	}
	return nil
}

type JoinInput struct {
	ChallengeID string `json:"challengeId"`
	Name        string `json:"name"`
}

func (in JoinInput) Validate() error {
	if _, err := uuid.Parse(in.ChallengeID); err != nil {
		return fmt.Errorf("%w: challengeId must be a uuid", ErrInvalidInput)
	}
	return validateName("name", in.Name)
}

type JoinResult struct {
	ChallengeID   string `json:"challengeId"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Team          int    `json:"team"`
}

func validateName(field, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	if utf8.RuneCountInString(v) > maxNameLen {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, field, maxNameLen)
	}
	return nil
}

type Service struct {
	repo     Repository
	channels Channels
	sessions SessionCleaner
	log      *zap.Logger

	// NewPuzzle picks the puzzle for a starting challenge.
	NewPuzzle func() puzzle.Puzzle

	// Joins are serialized so the capacity check can't be raced past.
	joinMu sync.Mutex
}

func NewService(repo Repository, channels Channels, sessions SessionCleaner, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		channels:  channels,
		sessions:  sessions,
		log:       log,
		NewPuzzle: puzzle.Default,
	}
}

// Create makes a new challenge and joins its creator to it.
func (s *Service) Create(ctx context.Context, in CreateInput) (JoinResult, error) {
	if err := in.Validate(); err != nil {
		return JoinResult{}, err
	}

	c := &Challenge{
		ID:                  uuid.NewString(),
		Name:                strings.TrimSpace(in.ChallengeName),
		TeamsAmount:         in.TeamsAmount,
		ParticipantsPerTeam: in.ParticipantsPerTeam,
		Status:              StatusAvailable,
	}
	if err := s.repo.CreateChallenge(ctx, c); err != nil {
		return JoinResult{}, err
	}
	s.log.Info("challenge created", zap.String("challenge_id", c.ID), zap.Int("capacity", c.Capacity()))

	return s.Join(ctx, JoinInput{ChallengeID: c.ID, Name: in.UserName})
}

// Join adds a participant to the smallest team and starts the challenge
// once it is full.
func (s *Service) Join(ctx context.Context, in JoinInput) (JoinResult, error) {
	if err := in.Validate(); err != nil {
		return JoinResult{}, err
	}

	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	c, err := s.repo.GetChallenge(ctx, in.ChallengeID)
	if err != nil {
		return JoinResult{}, err
	}
	if c.Status != StatusAvailable {
		return JoinResult{}, fmt.Errorf("%w: challenge %s is %s", ErrNotFound, c.ID, c.Status)
	}

	counts, err := s.repo.TeamCounts(ctx, c.ID)
	if err != nil {
		return JoinResult{}, err
	}

	p := &Participant{
		ID:          uuid.NewString(),
		ChallengeID: c.ID,
		Name:        strings.TrimSpace(in.Name),
		Team:        smallestTeam(c.TeamsAmount, counts),
	}
	if err := s.repo.AddParticipant(ctx, p); err != nil {
		return JoinResult{}, err
	}

	res := JoinResult{ChallengeID: c.ID, ParticipantID: p.ID, Name: p.Name, Team: p.Team}

	total, err := s.repo.CountParticipants(ctx, c.ID)
	if err != nil {
		return res, err
	}
	s.log.Info("participant joined",
		zap.String("challenge_id", c.ID),
		zap.String("participant_id", p.ID),
		zap.Int("team", p.Team),
		zap.Int("participants", total))

	if total >= c.Capacity() {
		if _, err := s.Start(ctx, c.ID); err != nil {
			return res, err
		}
	}
	return res, nil
}

// smallestTeam picks the team with the fewest members, lowest number on ties.
func smallestTeam(teams int, counts map[int]int) int {
	best := 1
	for team := 2; team <= teams; team++ {
		if counts[team] < counts[best] {
			best = team
		}
	}
	return best
}

// Start hands out the puzzle and announces CHALLENGE_START. Starting an
// already running challenge is a no-op.
func (s *Service) Start(ctx context.Context, challengeID string) (*Challenge, error) {
	p := s.NewPuzzle()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	c, err := s.repo.StartChallenge(ctx, challengeID, p)
	if errors.Is(err, ErrNotAvailable) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("challenge started", zap.String("challenge_id", c.ID))
	s.channels.AnnounceStart(c.ID, c)
	return c, nil
}

type Detail struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Team      int        `json:"team"`
	Challenge *Challenge `json:"challenge"`
}

func (s *Service) Detail(ctx context.Context, participantID string) (Detail, error) {
	p, err := s.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{ID: p.ID, Name: p.Name, Team: p.Team, Challenge: p.Challenge}, nil
}

func (s *Service) Exists(ctx context.Context, challengeID string) (bool, error) {
	_, err := s.repo.GetChallenge(ctx, challengeID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete tears a challenge down: live channel, session state, then the record.
func (s *Service) Delete(ctx context.Context, challengeID string) error {
	s.channels.Close(challengeID)

	var err error
	err = multierr.Append(err, s.sessions.DeleteChallenge(ctx, challengeID))
	err = multierr.Append(err, s.repo.DeleteChallenge(ctx, challengeID))
	if err != nil {
		return err
	}

	s.log.Info("challenge deleted", zap.String("challenge_id", challengeID))
	return nil
}
