// Package session owns the per-challenge shared state: which words are being
// dragged, which blanks are filled and whether the challenge was submitted.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/DoyleJ11/wordfill-backend/internal/store"
)

func LocksKey(challengeID string) string     { return "challenge-locks:" + challengeID }
func FilledKey(challengeID string) string    { return "challenge-filled:" + challengeID }
func SubmittedKey(challengeID string) string { return "challenge-submitted:" + challengeID }

// Service is the only component that reads and writes session keys.
// Every exported operation holds the challenge's mutex for its whole
// read-modify-write, so concurrent callers never lose updates.
type Service struct {
	store store.Store
	ttl   time.Duration
	locks *keyLocks
}

// NewService builds a Service. ttl <= 0 leaves expiry to the store default.
func NewService(st store.Store, ttl time.Duration) *Service {
	return &Service{store: st, ttl: ttl, locks: newKeyLocks()}
}

func (s *Service) Snapshot(ctx context.Context, challengeID string) (Snapshot, error) {
	s.locks.Lock(challengeID)
	defer s.locks.Unlock(challengeID)
	return s.snapshot(ctx, challengeID)
}

func (s *Service) AddLock(ctx context.Context, challengeID string, word int) error {
	s.locks.Lock(challengeID)
	defer s.locks.Unlock(challengeID)
	return s.addLock(ctx, challengeID, word)
}

// RemoveLock drops every lock entry for word. Removing an absent word is a no-op.
func (s *Service) RemoveLock(ctx context.Context, challengeID string, word int) error {
	s.locks.Lock(challengeID)
	defer s.locks.Unlock(challengeID)
	return s.removeLock(ctx, challengeID, word)
}

// Place stores f and releases the lock on its word as one step. If the lock
// can't be released the filled list is put back, so a failed Place leaves
// nothing behind.
func (s *Service) Place(ctx context.Context, challengeID string, f Filled) error {
	s.locks.Lock(challengeID)
	defer s.locks.Unlock(challengeID)

	filled, err := s.getFilled(ctx, challengeID)
	if err != nil {
		return err
	}
	prev := slices.Clone(filled)
	if err := s.put(ctx, FilledKey(challengeID), append(filled, f)); err != nil {
		return err
	}
	if err := s.removeLock(ctx, challengeID, f.Word); err != nil {
		return multierr.Append(err, s.put(ctx, FilledKey(challengeID), prev))
	}
	return nil
}

func (s *Service) AddFilled(ctx context.Context, challengeID string, f Filled) error {
	s.locks.Lock(challengeID)
	defer s.locks.Unlock(challengeID)

	filled, err := s.getFilled(ctx, challengeID)
	if err != nil {
		return err
	}
	return s.put(ctx, FilledKey(challengeID), append(filled, f))
}

// RemoveFilled clears the placement at position and releases the lock on its
// word. It returns the removed placement; ok is false when nothing was there.
func (s *Service) RemoveFilled(ctx context.Context, challengeID string, position int) (removed Filled, ok bool, err error) {
	s.locks.Lock(challengeID)
	defer s.locks.Unlock(challengeID)

	filled, err := s.getFilled(ctx, challengeID)
	if err != nil {
		return Filled{}, false, err
	}

	i := slices.IndexFunc(filled, func(f Filled) bool { return f.Position == position })
	if i < 0 {
		return Filled{}, false, nil
	}
	removed = filled[i]
	prev := slices.Clone(filled)

	rest := slices.DeleteFunc(filled, func(f Filled) bool { return f.Position == position })
	if err := s.put(ctx, FilledKey(challengeID), rest); err != nil {
		return Filled{}, false, err
	}
	if err := s.removeLock(ctx, challengeID, removed.Word); err != nil {
		// Put the placement back so the failed call changes nothing.
		return Filled{}, false, multierr.Append(err, s.put(ctx, FilledKey(challengeID), prev))
	}
	return removed, true, nil
}

// Submit marks the challenge as submitted. Calling it again is harmless.
func (s *Service) Submit(ctx context.Context, challengeID string) error {
	s.locks.Lock(challengeID)
	defer s.locks.Unlock(challengeID)
	return s.put(ctx, SubmittedKey(challengeID), true)
}

// DeleteChallenge removes all session keys of the challenge in one call.
func (s *Service) DeleteChallenge(ctx context.Context, challengeID string) error {
	s.locks.Lock(challengeID)
	defer s.locks.Unlock(challengeID)

	err := s.store.Del(ctx, LocksKey(challengeID), FilledKey(challengeID), SubmittedKey(challengeID))
	if err != nil {
		return fmt.Errorf("failed to delete session for %s: %w", challengeID, err)
	}
	return nil
}

// Unserialized building blocks. Callers must hold the challenge lock.

func (s *Service) snapshot(ctx context.Context, challengeID string) (Snapshot, error) {
	snap := EmptySnapshot()

	locks, err := s.getLocks(ctx, challengeID)
	if err != nil {
		return Snapshot{}, err
	}
	filled, err := s.getFilled(ctx, challengeID)
	if err != nil {
		return Snapshot{}, err
	}
	if _, err := s.get(ctx, SubmittedKey(challengeID), &snap.Submitted); err != nil {
		return Snapshot{}, err
	}

	snap.Locks = append(snap.Locks, locks...)
	snap.Filled = append(snap.Filled, filled...)
	return snap, nil
}

func (s *Service) addLock(ctx context.Context, challengeID string, word int) error {
	locks, err := s.getLocks(ctx, challengeID)
	if err != nil {
		return err
	}
	return s.put(ctx, LocksKey(challengeID), append(locks, word))
}

func (s *Service) removeLock(ctx context.Context, challengeID string, word int) error {
	locks, err := s.getLocks(ctx, challengeID)
	if err != nil {
		return err
	}
	if !slices.Contains(locks, word) {
		return nil
	}
	rest := slices.DeleteFunc(locks, func(l int) bool { return l == word })
	return s.put(ctx, LocksKey(challengeID), rest)
}

func (s *Service) getLocks(ctx context.Context, challengeID string) ([]int, error) {
	locks := []int{}
	if _, err := s.get(ctx, LocksKey(challengeID), &locks); err != nil {
		return nil, err
	}
	return locks, nil
}

func (s *Service) getFilled(ctx context.Context, challengeID string) ([]Filled, error) {
	filled := []Filled{}
	if _, err := s.get(ctx, FilledKey(challengeID), &filled); err != nil {
		return nil, err
	}
	return filled, nil
}

// get decodes key into dest. A missing key leaves dest untouched.
func (s *Service) get(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Service) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.store.Set(ctx, key, raw, s.ttl); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
