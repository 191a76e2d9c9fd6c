// Package room runs one actor per challenge. The actor is the only writer
// for its challenge: it applies client actions to the session state one at a
// time and broadcasts the resulting snapshot to every connected client.
package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/wordfill-backend/internal/engine"
	"github.com/DoyleJ11/wordfill-backend/internal/protocol"
	"github.com/DoyleJ11/wordfill-backend/internal/session"
	"github.com/DoyleJ11/wordfill-backend/internal/store"
)

const opTimeout = 5 * time.Second

// Sessions is the slice of session.Service the room needs.
type Sessions interface {
	Snapshot(ctx context.Context, challengeID string) (session.Snapshot, error)
	AddLock(ctx context.Context, challengeID string, word int) error
	RemoveLock(ctx context.Context, challengeID string, word int) error
	Place(ctx context.Context, challengeID string, f session.Filled) error
	RemoveFilled(ctx context.Context, challengeID string, position int) (session.Filled, bool, error)
	Submit(ctx context.Context, challengeID string) error
}

type Msg interface{ isRoomMsg() }

type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isRoomMsg() {}

type Join struct {
	ClientID      string
	ParticipantID string
	Outbox        chan protocol.ServerMessage // where this client wants to receive messages
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

// Announce broadcasts a lifecycle event that doesn't touch session state,
// e.g. CHALLENGE_START.
type Announce struct {
	Event   engine.EventType
	Payload any
}

func (Announce) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// StopIfIdle stops the room if no client is connected. Reply gets whether it
// stopped.
type StopIfIdle struct {
	Reply chan bool
}

func (StopIfIdle) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Version    int
	NumClients int
	Holders    map[int]string // word -> client that started dragging it
}

type member struct {
	participantID string
	outbox        chan protocol.ServerMessage
}

// hold is a drag in progress.
type hold struct {
	clientID      string
	participantID string
}

type Room struct {
	id       string
	channel  string
	inbox    chan Msg
	sessions Sessions
	log      *zap.Logger

	version int
	phase   engine.Phase
	clients map[string]*member
	holders map[int]hold
	dropped []string // slow clients cut off mid-broadcast, not yet released
	onIdle  func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts the room's actor. onIdle, if set, is called from the actor
// whenever the last client goes away; it must not block.
func New(parent context.Context, challengeID string, sessions Sessions, log *zap.Logger, onIdle func()) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:       challengeID,
		channel:  protocol.ChannelName(challengeID),
		inbox:    make(chan Msg, 64),
		sessions: sessions,
		log:      log.With(zap.String("challenge_id", challengeID)),
		phase:    engine.PhaseRunning,
		clients:  make(map[string]*member),
		holders:  make(map[int]hold),
		onIdle:   onIdle,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Expose the inbox so tests or the WS layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

// Send delivers msg unless the room has already stopped.
func (r *Room) Send(msg Msg) bool {
	select {
	case r.inbox <- msg:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) loop() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			before := len(r.clients)

			switch msg := m.(type) {
			case Join:
				r.clients[msg.ClientID] = &member{participantID: msg.ParticipantID, outbox: msg.Outbox}
				r.log.Debug("client joined", zap.String("client_id", msg.ClientID), zap.Int("clients", len(r.clients)))
				r.sendSnapshot(msg.ClientID)

			case Leave:
				r.leave(msg.ClientID)

			case FromClient:
				r.handle(msg.ClientID, msg.Cmd)

			case Announce:
				r.version++
				r.broadcast(protocol.ServerMessage{Channel: r.channel, Event: string(msg.Event), Payload: msg.Payload})

			case GetState:
				// test-only: reflect internal state without data races
				holders := make(map[int]string, len(r.holders))
				for w, h := range r.holders {
					holders[w] = h.clientID
				}
				msg.Reply <- View{Version: r.version, NumClients: len(r.clients), Holders: holders}

			case StopIfIdle:
				if len(r.clients) == 0 {
					msg.Reply <- true
					r.shutdown()
					return
				}
				msg.Reply <- false

			case Shutdown:
				r.shutdown()
				return
			}

			r.releaseDropped()
			if before > 0 && len(r.clients) == 0 && r.onIdle != nil {
				r.onIdle()
			}
		}
	}
}

func (r *Room) handle(clientID string, cmd engine.Command) {
	if !cmd.Mutates() {
		// Cursor relay: nothing stored, nothing read back.
		if err := engine.CheckPhase(r.phase, cmd); err != nil {
			r.sendTo(clientID, errorMessage(r.channel, err))
			return
		}
		r.broadcast(protocol.ServerMessage{Channel: r.channel, Event: string(engine.EvtDragMove), Payload: cmd.Raw})
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	current, err := r.sessions.Snapshot(ctx, r.id)
	if err != nil {
		r.fail(clientID, cmd, err)
		return
	}
	r.phase = engine.DerivePhase(current)
	if err := engine.Check(current, cmd); err != nil {
		r.log.Debug("action rejected", zap.String("client_id", clientID), zap.String("action", string(cmd.Type)), zap.Error(err))
		r.sendTo(clientID, errorMessage(r.channel, err))
		return
	}

	if err := r.apply(ctx, clientID, cmd); err != nil {
		r.fail(clientID, cmd, err)
		return
	}

	snap, err := r.sessions.Snapshot(ctx, r.id)
	if err != nil {
		r.fail(clientID, cmd, err)
		return
	}

	r.phase = engine.DerivePhase(snap)

	evt, _ := engine.EventFor(cmd.Type)
	payload := protocol.SnapshotPayload{Snapshot: snap, ParticipantID: cmd.ParticipantID}
	if cmd.Type == engine.CmdDragCancel || cmd.Type == engine.CmdDragEnd {
		word := cmd.Word
		payload.Word = &word
	}

	r.version++
	r.broadcast(protocol.ServerMessage{Channel: r.channel, Event: string(evt), Payload: payload})

	if evt == engine.EvtChallengeEnd {
		r.log.Info("challenge submitted", zap.String("participant_id", cmd.ParticipantID))
	}
}

func (r *Room) apply(ctx context.Context, clientID string, cmd engine.Command) error {
	switch cmd.Type {
	case engine.CmdDragStart:
		if err := r.sessions.AddLock(ctx, r.id, cmd.Word); err != nil {
			return err
		}
		r.holders[cmd.Word] = hold{clientID: clientID, participantID: cmd.ParticipantID}

	case engine.CmdDragCancel:
		if err := r.sessions.RemoveLock(ctx, r.id, cmd.Word); err != nil {
			return err
		}
		delete(r.holders, cmd.Word)

	case engine.CmdDragEnd:
		// Dropping a word onto a blank also releases it.
		if err := r.sessions.Place(ctx, r.id, session.Filled{Word: cmd.Word, Position: cmd.Position}); err != nil {
			return err
		}
		delete(r.holders, cmd.Word)

	case engine.CmdRemoveItem:
		removed, ok, err := r.sessions.RemoveFilled(ctx, r.id, cmd.Position)
		if err != nil {
			return err
		}
		if ok {
			delete(r.holders, removed.Word)
		}

	case engine.CmdSubmit:
		return r.sessions.Submit(ctx, r.id)

	default:
		return engine.ErrUnsupportedCommand
	}
	return nil
}

// leave unregisters a client and releases any drag it left hanging. A
// client that was already dropped for being slow only has its drags
// released.
func (r *Room) leave(clientID string) {
	if m, ok := r.clients[clientID]; ok {
		delete(r.clients, clientID)
		close(m.outbox)
		r.log.Debug("client left", zap.String("client_id", clientID), zap.Int("clients", len(r.clients)))
	}
	r.release(clientID)
}

// release cancels every drag held by clientID.
func (r *Room) release(clientID string) {
	for word, h := range r.holders {
		if h.clientID != clientID {
			continue
		}
		r.handle(clientID, engine.Command{Type: engine.CmdDragCancel, ParticipantID: h.participantID, Word: word})
	}
}

// releaseDropped runs after each message, once no broadcast is in flight.
// Releasing can drop more slow clients, so it loops until none are left.
func (r *Room) releaseDropped() {
	for len(r.dropped) > 0 {
		clientID := r.dropped[0]
		r.dropped = r.dropped[1:]
		r.release(clientID)
	}
}

func (r *Room) sendSnapshot(clientID string) {
	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	snap, err := r.sessions.Snapshot(ctx, r.id)
	if err != nil {
		r.log.Warn("snapshot failed", zap.String("client_id", clientID), zap.Error(err))
		r.sendTo(clientID, errorMessage(r.channel, err))
		return
	}
	r.phase = engine.DerivePhase(snap)
	r.sendTo(clientID, protocol.ServerMessage{
		Channel: r.channel,
		Event:   string(engine.EvtSnapshot),
		Payload: protocol.SnapshotPayload{Snapshot: snap},
	})
}

// fail reports a store failure to the acting client. Nothing is broadcast.
func (r *Room) fail(clientID string, cmd engine.Command, err error) {
	r.log.Warn("action failed", zap.String("client_id", clientID), zap.String("action", string(cmd.Type)), zap.Error(err))
	r.sendTo(clientID, errorMessage(r.channel, err))
}

func (r *Room) shutdown() {
	for id, m := range r.clients {
		close(m.outbox) // Tell client no more messages
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) broadcast(msg protocol.ServerMessage) {
	for id := range r.clients {
		r.sendTo(id, msg)
	}
}

func (r *Room) sendTo(clientID string, msg protocol.ServerMessage) {
	m, ok := r.clients[clientID]
	if !ok {
		return
	}
	select {
	case m.outbox <- msg:
		//ok
	default:
		// Client is slow/full - drop them.
		r.log.Info("dropping slow client", zap.String("client_id", clientID))
		close(m.outbox)
		delete(r.clients, clientID)
		r.dropped = append(r.dropped, clientID)
	}
}

func errorMessage(channel string, err error) protocol.ServerMessage {
	return protocol.ServerMessage{
		Channel: channel,
		Event:   string(engine.EvtError),
		Payload: protocol.ErrorPayload{Code: ErrorCode(err), Message: err.Error()},
	}
}

// ErrorCode maps an error to the short code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, engine.ErrWordLocked):
		return "word_locked"
	case errors.Is(err, engine.ErrWordPlaced):
		return "word_placed"
	case errors.Is(err, engine.ErrPositionFilled):
		return "position_filled"
	case errors.Is(err, engine.ErrUnsupportedCommand):
		return "unsupported"
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "unavailable"
	default:
		return "internal"
	}
}
