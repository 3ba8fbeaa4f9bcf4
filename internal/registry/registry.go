// Package registry implements the process-wide Room Registry: the single
// map from roomCode to a running Room Actor, race-safe acquisition against
// the Session Store Gateway, and reference-counted disposal once a room has
// finished and every local connection has dropped off (spec.md §4.3).
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/auth"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/config"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/logging"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/room"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/store"
)

// ErrSessionNotFound names the case of a roomCode with no session. Acquire
// does not return it: a missing session surfaces as whatever error the
// Gateway's LoadSession returns.
var ErrSessionNotFound = errors.New("registry: session not found")

// disposalSweepInterval governs how often finished, connectionless rooms
// are torn down. It does not need to be operator-tunable like RoomConfig;
// spec.md leaves disposal timing unspecified beyond "eventually".
const disposalSweepInterval = 30 * time.Second

// Registry owns every live Room Actor in this process.
type Registry struct {
	ctx    context.Context
	cancel context.CancelFunc

	gw    store.Gateway
	hub   room.Publisher
	authv auth.CSRFVerifier
	cfg   config.RoomConfig
	log   logging.Logger

	mu       sync.Mutex
	rooms    map[string]*room.Room
	creating map[string]chan struct{}
}

// New builds a Registry. ctx governs the lifetime of every Room Actor it
// spawns; cancelling it tears every room down.
func New(ctx context.Context, gw store.Gateway, hub room.Publisher, authv auth.CSRFVerifier, cfg config.RoomConfig, log logging.Logger) *Registry {
	roomsCtx, cancel := context.WithCancel(ctx)
	reg := &Registry{
		ctx:      roomsCtx,
		cancel:   cancel,
		gw:       gw,
		hub:      hub,
		authv:    authv,
		cfg:      cfg,
		log:      log,
		rooms:    make(map[string]*room.Room),
		creating: make(map[string]chan struct{}),
	}
	go reg.sweepLoop()
	return reg
}

// Acquire returns the live Room for roomCode, materializing one from the
// Session Store Gateway if none is running in this process. Concurrent
// Acquire calls for the same roomCode resolve to exactly one Room: the
// first caller loads and registers it, every other caller waits for that
// in-flight creation and then returns the same instance.
func (reg *Registry) Acquire(ctx context.Context, roomCode string) (*room.Room, error) {
	for {
		reg.mu.Lock()
		if rm, ok := reg.rooms[roomCode]; ok {
			reg.mu.Unlock()
			return rm, nil
		}
		if ch, inflight := reg.creating[roomCode]; inflight {
			reg.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		ch := make(chan struct{})
		reg.creating[roomCode] = ch
		reg.mu.Unlock()

		rm, err := reg.materialize(ctx, roomCode)

		reg.mu.Lock()
		delete(reg.creating, roomCode)
		if err == nil {
			reg.rooms[roomCode] = rm
		}
		reg.mu.Unlock()
		close(ch)

		return rm, err
	}
}

func (reg *Registry) materialize(ctx context.Context, roomCode string) (*room.Room, error) {
	snap, err := reg.gw.LoadSession(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if snap.Session.Status == model.SessionFinished {
		return nil, room.ErrRoomClosed
	}

	rm := room.New(snap, reg.gw, reg.hub, reg.authv, reg.cfg, reg.log)
	go rm.Run(reg.ctx)
	return rm, nil
}

// sweepLoop periodically disposes of rooms that have finished and dropped
// every local connection.
func (reg *Registry) sweepLoop() {
	ticker := time.NewTicker(disposalSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-reg.ctx.Done():
			return
		case <-ticker.C:
			reg.sweep()
		}
	}
}

func (reg *Registry) sweep() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for code, rm := range reg.rooms {
		if rm.Finished() && rm.ConnectionCount() == 0 {
			rm.Stop()
			delete(reg.rooms, code)
			reg.log.Info("registry: disposed finished room", "room", code)
		}
	}
}

// Shutdown stops every Room Actor this Registry owns.
func (reg *Registry) Shutdown() {
	reg.cancel()
}
