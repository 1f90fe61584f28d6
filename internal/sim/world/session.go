package world

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/blocks"
	"tilecraft.ai/internal/sim/entity"
)

// Inbound is one decoded client frame waiting for the tick.
type Inbound struct {
	Type string
	Raw  json.RawMessage
}

// Session binds a connection to a player entity. Enqueue, SendNow and
// Close are safe from any goroutine; everything else belongs to the tick.
type Session struct {
	ID    string
	Name  string
	Class string

	out  chan []byte
	done chan struct{}

	mu     sync.Mutex
	queue  []Inbound
	closed atomic.Bool
	once   sync.Once

	player   *entity.Entity
	admitted uint64
	synced   bool
	initSent bool

	breaking  blocks.BreakingState
	open      *Container
	cooldowns map[string]uint64
	chat      *rate.Limiter

	lastSent map[entity.ID]protocol.EntityState
	outbox   []json.RawMessage
	invDirty bool
}

func newSession(id, name, class string, out chan []byte, chat *rate.Limiter) *Session {
	return &Session{
		ID:        id,
		Name:      name,
		Class:     class,
		out:       out,
		done:      make(chan struct{}),
		breaking:  blocks.NewBreakingState(),
		cooldowns: map[string]uint64{},
		chat:      chat,
		lastSent:  map[entity.ID]protocol.EntityState{},
	}
}

// Enqueue appends a frame for the next tick. Frames for a closed session
// are dropped. It returns the queue depth after the append.
func (s *Session) Enqueue(in Inbound) int {
	if s.closed.Load() {
		return 0
	}
	s.mu.Lock()
	s.queue = append(s.queue, in)
	n := len(s.queue)
	s.mu.Unlock()
	return n
}

// drain swaps out the pending queue.
func (s *Session) drain() []Inbound {
	s.mu.Lock()
	q := s.queue
	s.queue = nil
	s.mu.Unlock()
	return q
}

// Close marks the session for removal on the next sweep.
func (s *Session) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
}

func (s *Session) Closed() bool { return s.closed.Load() }

// Done is closed when the session ends; writers stop reading Out then.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Out() <-chan []byte { return s.out }

func (s *Session) Synced() bool { return s.synced }

func (s *Session) PlayerID() entity.ID {
	if s.player == nil {
		return 0
	}
	return s.player.ID
}

// SendNow writes msg straight to the connection, skipping the outbox.
// Used for WELCOME and ERROR. A full channel closes the session.
func (s *Session) SendNow(msg any) bool {
	b, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return s.push(b)
}

func (s *Session) push(b []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.out <- b:
		return true
	default:
		s.Close()
		return false
	}
}

// queueMsg buffers msg for the end-of-tick BATCH.
func (s *Session) queueMsg(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.outbox = append(s.outbox, b)
}

func (s *Session) sendError(code, message, forType string) {
	s.SendNow(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
		For:             forType,
	})
}

// flush sends the outbox as one BATCH frame. It reports false when the
// connection could not keep up.
func (s *Session) flush(tick uint64) bool {
	if len(s.outbox) == 0 {
		return true
	}
	b, err := json.Marshal(protocol.BatchMsg{
		Type:            protocol.TypeBatch,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Messages:        s.outbox,
	})
	s.outbox = nil
	if err != nil {
		return true
	}
	return s.push(b)
}

// cooldownReady checks and arms a per-action cooldown.
func (s *Session) cooldownReady(action string, tick uint64, ticks int) bool {
	if s.coolingDown(action, tick) {
		return false
	}
	s.armCooldown(action, tick, ticks)
	return true
}

func (s *Session) coolingDown(action string, tick uint64) bool {
	next, ok := s.cooldowns[action]
	return ok && tick < next
}

func (s *Session) armCooldown(action string, tick uint64, ticks int) {
	if ticks > 0 {
		s.cooldowns[action] = tick + uint64(ticks)
	}
}

// SessionInfo is the read-only summary published for observers.
type SessionInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Class    string `json:"class"`
	EntityID uint64 `json:"entity_id"`
	Admitted uint64 `json:"admitted_tick"`
	Synced   bool   `json:"synced"`
}
