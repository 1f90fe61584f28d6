package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/world"
)

// Authenticator checks HELLO credentials and returns the saved player,
// or nil for a new one. It runs on the connection goroutine.
type Authenticator interface {
	Authenticate(name, password string) (*world.PlayerRecord, error)
}

type Options struct {
	// AuthTimeout bounds the HELLO exchange.
	AuthTimeout time.Duration
	// JoinTimeout bounds the wait for the tick to admit the session.
	JoinTimeout time.Duration
	// OutQueue is the per-connection outbound buffer.
	OutQueue int
	// InboundPerSecond caps client frames; excess frames are dropped.
	InboundPerSecond int
	ReadTimeout      time.Duration
	Auth             Authenticator
}

func (o *Options) applyDefaults() {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 5 * time.Second
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 5 * time.Second
	}
	if o.OutQueue <= 0 {
		o.OutQueue = 64
	}
	if o.InboundPerSecond <= 0 {
		o.InboundPerSecond = 240
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
}

var validName = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

type conn struct {
	ws   *websocket.Conn
	name string
	sess *world.Session
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*conn]struct{}
	online map[string]struct{}
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	opts.applyDefaults()
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		conns:  map[*conn]struct{}{},
		online: map[string]struct{}{},
	}
}

// Online returns the number of admitted connections.
func (s *Server) Online() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Maintain prunes connections whose session ended until ctx is done.
func (s *Server) Maintain(ctx context.Context) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.prune()
		}
	}
}

func (s *Server) prune() {
	s.mu.Lock()
	var dead []*conn
	for c := range s.conns {
		if c.sess.Closed() {
			dead = append(dead, c)
			delete(s.conns, c)
		}
	}
	s.mu.Unlock()
	for _, c := range dead {
		// Unblocks the reader loop.
		_ = c.ws.Close()
	}
}

// CloseAll ends every connection; used at shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	all := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		all = append(all, c)
	}
	s.mu.Unlock()
	for _, c := range all {
		c.sess.Close()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	}
}

func (s *Server) reserve(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.online[name]; ok {
		return false
	}
	s.online[name] = struct{}{}
	return true
}

func (s *Server) release(name string) {
	s.mu.Lock()
	delete(s.online, name)
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		wsc, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer wsc.Close()

		c := s.handshake(wsc)
		if c == nil {
			return
		}
		defer s.release(c.name)
		defer c.sess.Close()

		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.sess.Done():
					_ = wsc.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
						time.Now().Add(time.Second))
					_ = wsc.Close()
					return
				case b := <-c.sess.Out():
					_ = wsc.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := wsc.WriteMessage(websocket.TextMessage, b); err != nil {
						c.sess.Close()
						return
					}
				}
			}
		}()

		s.readLoop(c)
		s.log.Printf("disconnect: %s", c.name)
	}
}

// readLoop validates frames and queues them for the tick. Bad frames get
// an ERROR reply; the connection stays open.
func (s *Server) readLoop(c *conn) {
	lim := rate.NewLimiter(rate.Limit(s.opts.InboundPerSecond), s.opts.InboundPerSecond)
	limited := false
	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if c.sess.Closed() {
			return
		}
		if !lim.Allow() {
			if !limited {
				s.log.Printf("session %s: inbound rate limited", c.name)
				sendError(c.sess, protocol.ErrRateLimit, "too many messages", "")
			}
			limited = true
			continue
		}
		limited = false

		base, err := protocol.DecodeBase(msg)
		if err != nil {
			s.log.Printf("session %s: malformed frame: %v", c.name, err)
			sendError(c.sess, protocol.ErrProtoBadRequest, "malformed json", "")
			continue
		}
		if base.ProtocolVersion != protocol.Version {
			s.log.Printf("session %s: dropped %s with protocol_version %q", c.name, base.Type, base.ProtocolVersion)
			sendError(c.sess, protocol.ErrProtoBadRequest, "bad protocol_version", base.Type)
			continue
		}
		if !protocol.IsClientType(base.Type) {
			s.log.Printf("session %s: dropped unknown type %q", c.name, base.Type)
			sendError(c.sess, protocol.ErrProtoBadRequest, "unknown message type", base.Type)
			continue
		}
		c.sess.Enqueue(world.Inbound{Type: base.Type, Raw: msg})
	}
}

func sendError(sess *world.Session, code, message, forType string) {
	sess.SendNow(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
		For:             forType,
	})
}

func (s *Server) handshake(wsc *websocket.Conn) *conn {
	_ = wsc.SetReadDeadline(time.Now().Add(s.opts.AuthTimeout))
	_, msg, err := wsc.ReadMessage()
	if err != nil {
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			reject(wsc, protocol.ErrAuthTimeout, "no HELLO within "+s.opts.AuthTimeout.String())
		}
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reject(wsc, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		reject(wsc, protocol.ErrProtoBadRequest, "malformed HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		reject(wsc, protocol.ErrProtoBadRequest, "bad protocol_version")
		return nil
	}
	if !validName.MatchString(hello.Username) {
		reject(wsc, protocol.ErrAuthFailed, "bad username")
		return nil
	}

	var rec *world.PlayerRecord
	if s.opts.Auth != nil {
		rec, err = s.opts.Auth.Authenticate(hello.Username, hello.Password)
		if err != nil {
			s.log.Printf("auth %s: %v", hello.Username, err)
			reject(wsc, protocol.ErrAuthFailed, "bad username or password")
			return nil
		}
	}

	if !s.reserve(hello.Username) {
		reject(wsc, protocol.ErrDuplicateName, "name already online")
		return nil
	}

	out := make(chan []byte, s.opts.OutQueue)
	respCh := make(chan world.JoinResponse, 1)
	req := world.JoinRequest{Name: hello.Username, Class: hello.Class, Record: rec, Out: out, Resp: respCh}

	timer := time.NewTimer(s.opts.JoinTimeout)
	defer timer.Stop()
	select {
	case s.world.Join() <- req:
	case <-timer.C:
		s.release(hello.Username)
		reject(wsc, protocol.ErrServerFull, "join queue full")
		return nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-timer.C:
		s.release(hello.Username)
		reject(wsc, protocol.ErrInternal, "world did not answer")
		go func() {
			select {
			case r := <-respCh:
				if r.Session != nil {
					r.Session.Close()
				}
			case <-time.After(time.Minute):
			}
		}()
		return nil
	}
	if !resp.Accepted {
		s.release(hello.Username)
		reject(wsc, resp.Code, resp.Message)
		return nil
	}
	_ = wsc.SetReadDeadline(time.Time{})
	s.log.Printf("connect: %s session=%s", hello.Username, resp.Session.ID)
	return &conn{ws: wsc, name: hello.Username, sess: resp.Session}
}

// reject answers a failed handshake and closes with a policy violation.
func reject(wsc *websocket.Conn, code, message string) {
	_ = writeJSON(wsc, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Accepted:        false,
		Code:            code,
		Message:         message,
	})
	_ = wsc.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
