package engine

import (
	"encoding/json"
	"errors"

	"github.com/DoyleJ11/wordfill-backend/internal/session"
)

var ErrAlreadySubmitted = errors.New("challenge already submitted")
var ErrWordLocked = errors.New("word is being dragged")
var ErrWordPlaced = errors.New("word already placed")
var ErrPositionFilled = errors.New("position already filled")
var ErrUnsupportedCommand = errors.New("unsupported command")

type CommandType string

const (
	CmdDragStart  CommandType = "drag:start"
	CmdDragCancel CommandType = "drag:cancel"
	CmdDragMove   CommandType = "drag:move"
	CmdDragEnd    CommandType = "drag:end"
	CmdRemoveItem CommandType = "remove:item"
	CmdSubmit     CommandType = "submit"
)

/*
	CmdDragStart  -> AddLock               -> EvtDragStart
	CmdDragCancel -> RemoveLock            -> EvtDragCancel
	CmdDragMove   -> (nothing stored)      -> EvtDragMove, raw payload relayed
	CmdDragEnd    -> Place (fill + unlock) -> EvtDragEnd
	CmdRemoveItem -> RemoveFilled          -> EvtRemoveItem
	CmdSubmit     -> Submit                -> EvtChallengeEnd
*/

type Command struct {
	Type          CommandType
	ParticipantID string
	Word          int
	Position      int
	Raw           json.RawMessage // drag:move only
}

type EventType string

const (
	EvtChallengeStart EventType = "CHALLENGE_START"
	EvtDragStart      EventType = "DRAG_START"
	EvtDragMove       EventType = "DRAG_MOVE"
	EvtDragCancel     EventType = "DRAG_CANCEL"
	EvtDragEnd        EventType = "DRAG_END"
	EvtRemoveItem     EventType = "REMOVE_ITEM"
	EvtChallengeEnd   EventType = "CHALLENGE_END"

	// Sent to a single client only.
	EvtSnapshot EventType = "SNAPSHOT"
	EvtError    EventType = "ERROR"
)

var commandEvents = map[CommandType]EventType{
	CmdDragStart:  EvtDragStart,
	CmdDragCancel: EvtDragCancel,
	CmdDragMove:   EvtDragMove,
	CmdDragEnd:    EvtDragEnd,
	CmdRemoveItem: EvtRemoveItem,
	CmdSubmit:     EvtChallengeEnd,
}

// EventFor returns the broadcast event produced by a command type.
func EventFor(t CommandType) (EventType, bool) {
	evt, ok := commandEvents[t]
	return evt, ok
}

// Mutates reports whether the command changes stored state. drag:move is a
// pure relay.
func (c Command) Mutates() bool {
	return c.Type != CmdDragMove
}

// Check decides whether cmd may be applied to the current snapshot.
// Removing something that isn't there is allowed; the session layer treats
// it as a no-op.
func Check(s session.Snapshot, cmd Command) error {
	if _, ok := commandEvents[cmd.Type]; !ok {
		return ErrUnsupportedCommand
	}

	if err := CheckPhase(DerivePhase(s), cmd); err != nil {
		return err
	}

	switch cmd.Type {
	case CmdDragStart:
		if s.IsLocked(cmd.Word) {
			return ErrWordLocked
		}
		if s.IsPlaced(cmd.Word) {
			return ErrWordPlaced
		}

	case CmdDragEnd:
		if _, taken := s.PlacementAt(cmd.Position); taken {
			return ErrPositionFilled
		}
		if s.IsPlaced(cmd.Word) {
			return ErrWordPlaced
		}
	}

	return nil
}

// Phase is the coarse lifecycle of a challenge as seen by the router.
type Phase string

const (
	PhaseRunning   Phase = "running"
	PhaseSubmitted Phase = "submitted"
)

func DerivePhase(s session.Snapshot) Phase {
	if s.Submitted {
		return PhaseSubmitted
	}
	return PhaseRunning
}

// CheckPhase is the part of Check that needs only the phase. drag:move is
// gated with it alone since the relay never reads the store.
func CheckPhase(p Phase, cmd Command) error {
	// Resubmitting is idempotent, everything else is closed after submit.
	if p == PhaseSubmitted && cmd.Type != CmdSubmit {
		return ErrAlreadySubmitted
	}
	return nil
}
