package challenge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/wordfill-backend/internal/puzzle"
	"github.com/DoyleJ11/wordfill-backend/internal/session"
	"github.com/DoyleJ11/wordfill-backend/internal/store"
)

type fakeChannels struct {
	mu        sync.Mutex
	announced []string
	closed    []string
	payloads  []any
}

func (f *fakeChannels) AnnounceStart(challengeID string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, challengeID)
	f.payloads = append(f.payloads, payload)
}

func (f *fakeChannels) Close(challengeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, challengeID)
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	channels *fakeChannels
	sessions *session.Service
}

func newFixture() fixture {
	repo := NewMemoryRepository()
	ch := &fakeChannels{}
	sessions := session.NewService(store.NewMemoryStore(0), 0)
	svc := NewService(repo, ch, sessions, nil)
	svc.NewPuzzle = func() puzzle.Puzzle {
		return puzzle.Puzzle{Text: "a {1} b {2}", Placeholders: []puzzle.Placeholder{{Word: "y", Position: 2}, {Word: "x", Position: 1}}}
	}
	return fixture{svc: svc, repo: repo, channels: ch, sessions: sessions}
}

func TestCreate_JoinsCreatorToFirstTeam(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateInput{UserName: "ana", ChallengeName: "friday", TeamsAmount: 2, ParticipantsPerTeam: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Team)
	assert.Equal(t, "ana", res.Name)

	c, err := f.repo.GetChallenge(ctx, res.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, c.Status)
	assert.Equal(t, 4, c.Capacity())
	assert.Empty(t, f.channels.announced)
}

func TestJoin_BalancesTeams(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateInput{UserName: "a", ChallengeName: "c", TeamsAmount: 3, ParticipantsPerTeam: 2})
	require.NoError(t, err)

	var teams []int
	for _, name := range []string{"b", "c", "d", "e"} {
		r, err := f.svc.Join(ctx, JoinInput{ChallengeID: res.ChallengeID, Name: name})
		require.NoError(t, err)
		teams = append(teams, r.Team)
	}
	assert.Equal(t, []int{2, 3, 1, 2}, teams)
}

func TestJoin_StartsOnceFull(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateInput{UserName: "a", ChallengeName: "c", TeamsAmount: 1, ParticipantsPerTeam: 2})
	require.NoError(t, err)
	assert.Empty(t, f.channels.announced)

	_, err = f.svc.Join(ctx, JoinInput{ChallengeID: res.ChallengeID, Name: "b"})
	require.NoError(t, err)

	require.Equal(t, []string{res.ChallengeID}, f.channels.announced)
	started, ok := f.channels.payloads[0].(*Challenge)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, started.Status)
	assert.Equal(t, "a {1} b {2}", started.Text)
	assert.Len(t, started.Placeholders, 2)

	// full and running: nobody else gets in
	_, err = f.svc.Join(ctx, JoinInput{ChallengeID: res.ChallengeID, Name: "late"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStart_SecondCallIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateInput{UserName: "a", ChallengeName: "c", TeamsAmount: 1, ParticipantsPerTeam: 1})
	require.NoError(t, err)
	require.Len(t, f.channels.announced, 1)

	c, err := f.svc.Start(ctx, res.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, c.Status)
	assert.Len(t, f.channels.announced, 1)
}

func TestStart_RejectsPuzzleWithUnmatchedBlanks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.svc.NewPuzzle = func() puzzle.Puzzle {
		return puzzle.Puzzle{Text: "a {1} b {2}", Placeholders: []puzzle.Placeholder{{Word: "x", Position: 1}}}
	}

	_, err := f.svc.Create(ctx, CreateInput{UserName: "a", ChallengeName: "c", TeamsAmount: 1, ParticipantsPerTeam: 1})
	require.ErrorIs(t, err, puzzle.ErrMismatch)
	assert.Empty(t, f.channels.announced)
}

func TestJoin_UnknownChallenge(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Join(context.Background(), JoinInput{ChallengeID: uuid.NewString(), Name: "x"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		in   CreateInput
	}{
		{"empty user", CreateInput{UserName: " ", ChallengeName: "c", TeamsAmount: 1, ParticipantsPerTeam: 1}},
		{"long challenge name", CreateInput{UserName: "u", ChallengeName: strings.Repeat("x", 31), TeamsAmount: 1, ParticipantsPerTeam: 1}},
		{"zero teams", CreateInput{UserName: "u", ChallengeName: "c", TeamsAmount: 0, ParticipantsPerTeam: 1}},
		{"too many per team", CreateInput{UserName: "u", ChallengeName: "c", TeamsAmount: 1, ParticipantsPerTeam: 6}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newFixture().svc.Create(context.Background(), tc.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	err := JoinInput{ChallengeID: "not-a-uuid", Name: "x"}.Validate()
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDetail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateInput{UserName: "ana", ChallengeName: "friday", TeamsAmount: 1, ParticipantsPerTeam: 3})
	require.NoError(t, err)

	d, err := f.svc.Detail(ctx, res.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, "ana", d.Name)
	require.NotNil(t, d.Challenge)
	assert.Equal(t, "friday", d.Challenge.Name)

	_, err = f.svc.Detail(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_ClearsEverything(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateInput{UserName: "a", ChallengeName: "c", TeamsAmount: 1, ParticipantsPerTeam: 2})
	require.NoError(t, err)
	require.NoError(t, f.sessions.AddLock(ctx, res.ChallengeID, 1))

	require.NoError(t, f.svc.Delete(ctx, res.ChallengeID))
	assert.Equal(t, []string{res.ChallengeID}, f.channels.closed)

	ok, err := f.svc.Exists(ctx, res.ChallengeID)
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := f.sessions.Snapshot(ctx, res.ChallengeID)
	require.NoError(t, err)
	assert.Empty(t, snap.Locks)

	_, err = f.svc.Detail(ctx, res.ParticipantID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.Delete(ctx, res.ChallengeID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSmallestTeam(t *testing.T) {
	assert.Equal(t, 1, smallestTeam(3, map[int]int{}))
	assert.Equal(t, 3, smallestTeam(3, map[int]int{1: 1, 2: 1}))
	assert.Equal(t, 2, smallestTeam(3, map[int]int{1: 2, 2: 1, 3: 1}))
}
