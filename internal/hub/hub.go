package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/wordfill-backend/internal/engine"
	"github.com/DoyleJ11/wordfill-backend/internal/room"
)

var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// EnsureRoom finds or opens the challenge's room and hands it Join before
// replying, so an idle room can't be reaped between the two.
type EnsureRoom struct {
	ChallengeID string
	Join        room.Join
	Reply       chan *room.Room
}

type RemoveRoom struct {
	ChallengeID string
}

// AnnounceStart tells everyone already watching a challenge that it started.
type AnnounceStart struct {
	ChallengeID string
	Payload     any
}

// ReapRoom asks the hub to stop Room if it is still the challenge's room and
// nobody has joined it since it went idle.
type ReapRoom struct {
	ChallengeID string
	Room        *room.Room
}

type ShutdownHub struct{}

// Hub maps each challenge to its room. Rooms are created on demand.
type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Room
	sessions room.Sessions
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func (EnsureRoom) isHubMsg()    {}
func (RemoveRoom) isHubMsg()    {}
func (AnnounceStart) isHubMsg() {}
func (ReapRoom) isHubMsg()      {}
func (ShutdownHub) isHubMsg()   {}

func NewHub(parent context.Context, sessions room.Sessions, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		sessions: sessions,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Join adds a client to the challenge's room, opening the room if needed.
func (h *Hub) Join(ctx context.Context, challengeID string, join room.Join) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, EnsureRoom{ChallengeID: challengeID, Join: join, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case rm := <-reply:
		if rm == nil {
			return nil, ErrHubClosed
		}
		return rm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	}
}

func (h *Hub) AnnounceStart(challengeID string, payload any) {
	_ = h.send(context.Background(), AnnounceStart{ChallengeID: challengeID, Payload: payload})
}

// Close stops the challenge's room and disconnects its clients.
func (h *Hub) Close(challengeID string) {
	_ = h.send(context.Background(), RemoveRoom{ChallengeID: challengeID})
}

func (h *Hub) Shutdown() {
	_ = h.send(context.Background(), ShutdownHub{})
}

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				rm := h.live(msg.ChallengeID)
				if rm == nil {
					rm = h.open(msg.ChallengeID)
				}
				if !rm.Send(msg.Join) {
					msg.Reply <- nil // hub is going down
					break
				}
				msg.Reply <- rm

			case ReapRoom:
				h.reap(msg.ChallengeID, msg.Room)

			case RemoveRoom:
				if rm := h.rooms[msg.ChallengeID]; rm != nil {
					rm.Send(room.Shutdown{})
					delete(h.rooms, msg.ChallengeID)
					h.log.Debug("room closed", zap.String("challenge_id", msg.ChallengeID))
				}

			case AnnounceStart:
				rm := h.live(msg.ChallengeID)
				if rm == nil {
					h.log.Debug("no one watching, start not announced", zap.String("challenge_id", msg.ChallengeID))
					break
				}
				rm.Send(room.Announce{Event: engine.EvtChallengeStart, Payload: msg.Payload})

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) open(challengeID string) *room.Room {
	var rm *room.Room
	rm = room.New(h.ctx, challengeID, h.sessions, h.log, func() {
		// Called from the room's goroutine; never block it on the hub.
		go func() { _ = h.send(context.Background(), ReapRoom{ChallengeID: challengeID, Room: rm}) }()
	})
	h.rooms[challengeID] = rm
	h.log.Debug("room opened", zap.String("challenge_id", challengeID), zap.Int("rooms", len(h.rooms)))
	return rm
}

// reap stops rm if it is still registered and empty. Joins pass through the
// hub, so one that raced the idle notice is already queued ahead of
// StopIfIdle and keeps the room open.
func (h *Hub) reap(challengeID string, rm *room.Room) {
	if h.rooms[challengeID] != rm {
		return
	}
	reply := make(chan bool, 1)
	stopped := true
	if rm.Send(room.StopIfIdle{Reply: reply}) {
		select {
		case stopped = <-reply:
		case <-rm.Done():
		}
	}
	if stopped {
		delete(h.rooms, challengeID)
		h.log.Debug("idle room reaped", zap.String("challenge_id", challengeID), zap.Int("rooms", len(h.rooms)))
	}
}

// live returns the room if it is still running, forgetting stopped ones.
func (h *Hub) live(challengeID string) *room.Room {
	rm := h.rooms[challengeID]
	if rm == nil {
		return nil
	}
	select {
	case <-rm.Done():
		delete(h.rooms, challengeID)
		return nil
	default:
		return rm
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Send(room.Shutdown{})
	}
	clear(h.rooms)
	h.cancel()
}
