package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/wordfill-backend/internal/engine"
	"github.com/DoyleJ11/wordfill-backend/internal/hub"
	"github.com/DoyleJ11/wordfill-backend/internal/protocol"
	"github.com/DoyleJ11/wordfill-backend/internal/room"
)

const writeTimeout = 3 * time.Second

// Challenges answers whether a challenge id is known.
type Challenges interface {
	Exists(ctx context.Context, challengeID string) (bool, error)
}

type Options struct {
	Log            *zap.Logger
	OriginPatterns []string
}

// Handler upgrades GET /ws?challengeId=...&participantId=... and subscribes
// the connection to the challenge's channel.
func Handler(h *hub.Hub, challenges Challenges, opts Options) http.HandlerFunc {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		challengeID := r.URL.Query().Get("challengeId")
		participantID := r.URL.Query().Get("participantId")
		if challengeID == "" || participantID == "" {
			http.Error(w, "missing challengeId or participantId", http.StatusBadRequest)
			return
		}

		ok, err := challenges.Exists(r.Context(), challengeID)
		if err != nil {
			log.Warn("challenge lookup failed", zap.String("challenge_id", challengeID), zap.Error(err))
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "challenge not found", http.StatusNotFound)
			return
		}

		out := make(chan protocol.ServerMessage, 16)
		clientID := uuid.NewString()
		clog := log.With(zap.String("challenge_id", challengeID), zap.String("client_id", clientID))

		// The join snapshot waits in out until the writer starts.
		rm, err := h.Join(r.Context(), challengeID, room.Join{ClientID: clientID, ParticipantID: participantID, Outbox: out})
		if err != nil {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		defer rm.Send(room.Leave{ClientID: clientID})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					clog.Error("failed to encode message", zap.String("event", msg.Event), zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			// The room closed our outbox: we were too slow or the challenge ended.
			conn.Close(websocket.StatusGoingAway, "channel closed")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						clog.Debug("read ended", zap.Error(err))
					}
				}
				return
			}

			meta, act, err := protocol.Decode(data)
			if err != nil {
				writeError(r.Context(), conn, challengeID, "bad_request", err.Error())
				continue
			}
			if meta.ChallengeID != challengeID {
				writeError(r.Context(), conn, challengeID, "wrong_channel", "message is for another challenge")
				continue
			}

			if !rm.Send(room.FromClient{ClientID: clientID, Cmd: toEngineCommand(meta, act)}) {
				return
			}
		}
	}
}

func toEngineCommand(meta protocol.Meta, act protocol.Action) engine.Command {
	cmd := engine.Command{ParticipantID: meta.ParticipantID}

	switch a := act.(type) {
	case protocol.DragStart:
		cmd.Type, cmd.Word = engine.CmdDragStart, a.Word
	case protocol.DragCancel:
		cmd.Type, cmd.Word = engine.CmdDragCancel, a.Word
	case protocol.DragMove:
		cmd.Type, cmd.Raw = engine.CmdDragMove, a.Raw
	case protocol.DragEnd:
		cmd.Type, cmd.Word, cmd.Position = engine.CmdDragEnd, a.Word, a.Position
	case protocol.RemoveItem:
		cmd.Type, cmd.Position = engine.CmdRemoveItem, a.Position
	case protocol.Submit:
		cmd.Type = engine.CmdSubmit
	}
	return cmd
}

func writeError(ctx context.Context, conn *websocket.Conn, challengeID, code, message string) {
	payload, _ := json.Marshal(protocol.ServerMessage{
		Channel: protocol.ChannelName(challengeID),
		Event:   string(engine.EvtError),
		Payload: protocol.ErrorPayload{Code: code, Message: message},
	})
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
