// Package protocol defines the JSON messages exchanged over the websocket.
//
// Client -> Server (one flat object, tagged by "action"):
//
//	{"action":"drag:start",  "challengeId":"...", "participantId":"...", "word":5}
//	{"action":"drag:cancel", "challengeId":"...", "participantId":"...", "word":5}
//	{"action":"drag:move",   "challengeId":"...", "participantId":"...", ...anything}
//	{"action":"drag:end",    "challengeId":"...", "participantId":"...", "word":5, "position":2}
//	{"action":"remove:item", "challengeId":"...", "participantId":"...", "position":2}
//	{"action":"submit",      "challengeId":"...", "participantId":"..."}
//
// Server -> Client:
//
//	{"channel":"challenge:<id>", "event":"DRAG_START", "payload":{...}}
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/wordfill-backend/internal/session"
)

var ErrBadJSON = errors.New("bad json")
var ErrUnknownAction = errors.New("unknown action")
var ErrMissingField = errors.New("missing field")

func ChannelName(challengeID string) string {
	return "challenge:" + challengeID
}

// Meta is carried by every inbound action.
type Meta struct {
	ChallengeID   string `json:"challengeId"`
	ParticipantID string `json:"participantId"`
}

type Action interface{ isAction() }

type DragStart struct{ Word int }
type DragCancel struct{ Word int }
type DragEnd struct{ Word, Position int }
type RemoveItem struct{ Position int }
type Submit struct{}

// DragMove keeps the client's message untouched so it can be relayed as-is.
type DragMove struct{ Raw json.RawMessage }

func (DragStart) isAction()  {}
func (DragCancel) isAction() {}
func (DragMove) isAction()   {}
func (DragEnd) isAction()    {}
func (RemoveItem) isAction() {}
func (Submit) isAction()     {}

type envelope struct {
	Action string `json:"action"`
	Meta
}

type wordField struct {
	Word *int `json:"word"`
}

type positionField struct {
	Position *int `json:"position"`
}

type placementFields struct {
	Word     *int `json:"word"`
	Position *int `json:"position"`
}

// Decode parses one client message and validates the fields its action needs.
func Decode(data []byte) (Meta, Action, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Meta{}, nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	if env.Action == "" {
		return Meta{}, nil, fmt.Errorf("%w: action", ErrMissingField)
	}
	if env.ChallengeID == "" {
		return Meta{}, nil, fmt.Errorf("%w: challengeId", ErrMissingField)
	}
	if env.ParticipantID == "" {
		return Meta{}, nil, fmt.Errorf("%w: participantId", ErrMissingField)
	}

	var act Action
	switch env.Action {
	case "drag:start", "drag:cancel":
		var f wordField
		if err := json.Unmarshal(data, &f); err != nil {
			return Meta{}, nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
		}
		if f.Word == nil {
			return Meta{}, nil, fmt.Errorf("%w: word", ErrMissingField)
		}
		if env.Action == "drag:start" {
			act = DragStart{Word: *f.Word}
		} else {
			act = DragCancel{Word: *f.Word}
		}

	case "drag:move":
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		act = DragMove{Raw: raw}

	case "drag:end":
		var f placementFields
		if err := json.Unmarshal(data, &f); err != nil {
			return Meta{}, nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
		}
		if f.Word == nil {
			return Meta{}, nil, fmt.Errorf("%w: word", ErrMissingField)
		}
		if f.Position == nil {
			return Meta{}, nil, fmt.Errorf("%w: position", ErrMissingField)
		}
		act = DragEnd{Word: *f.Word, Position: *f.Position}

	case "remove:item":
		var f positionField
		if err := json.Unmarshal(data, &f); err != nil {
			return Meta{}, nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
		}
		if f.Position == nil {
			return Meta{}, nil, fmt.Errorf("%w: position", ErrMissingField)
		}
		act = RemoveItem{Position: *f.Position}

	case "submit":
		act = Submit{}

	default:
		return Meta{}, nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}

	return env.Meta, act, nil
}

type ServerMessage struct {
	Channel string `json:"channel,omitempty"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// SnapshotPayload is the snapshot plus who caused it.
type SnapshotPayload struct {
	session.Snapshot
	ParticipantID string `json:"participantId,omitempty"`
	Word          *int   `json:"word,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
