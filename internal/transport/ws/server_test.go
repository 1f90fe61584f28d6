package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/catalogs"
	"tilecraft.ai/internal/sim/scheduler"
	"tilecraft.ai/internal/sim/tiles"
	"tilecraft.ai/internal/sim/tuning"
	"tilecraft.ai/internal/sim/world"
)

type denyAll struct{}

func (denyAll) Authenticate(name, password string) (*world.PlayerRecord, error) {
	return nil, errors.New("wrong password")
}

func startServer(t *testing.T, opts Options) string {
	t.Helper()
	cat, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	stone, _ := cat.BlockIndex("STONE")
	g := tiles.NewGrid(32, 16)
	for y := 6; y < 16; y++ {
		for x := 0; x < 32; x++ {
			g.SetTile(x, y, stone)
		}
	}
	tune := tuning.Defaults()
	tune.World.Width, tune.World.Height = 32, 16
	tune.World.Spawn = [2]int{8, 5}
	logger := log.New(io.Discard, "", 0)
	w, err := world.New(world.Config{Tuning: tune, Seed: 3, Map: g, DisableMobs: true}, cat, logger)
	if err != nil {
		t.Fatalf("world: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sched := scheduler.New(scheduler.Config{RateHz: tune.TickRateHz}, w, logger)
	sched.Start(ctx)

	srv := NewServer(w, logger, opts)
	go srv.Maintain(ctx)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.CloseAll()
		hs.Close()
		cancel()
		sched.Stop()
	})
	return "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	b, _ := json.Marshal(v)
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func hello(name string) protocol.HelloMsg {
	return protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Username: name, Password: "pw"}
}

// readUntil reads frames until pred accepts one, unpacking batches.
func readUntil(t *testing.T, c *websocket.Conn, pred func(typ string, raw []byte) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = c.SetReadDeadline(deadline)
		_, b, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type != protocol.TypeBatch {
			if pred(base.Type, b) {
				return
			}
			continue
		}
		var batch protocol.BatchMsg
		if err := json.Unmarshal(b, &batch); err != nil {
			t.Fatalf("batch: %v", err)
		}
		for _, m := range batch.Messages {
			inner, _ := protocol.DecodeBase(m)
			if pred(inner.Type, m) {
				return
			}
		}
	}
}

func readWelcome(t *testing.T, c *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	var wm protocol.WelcomeMsg
	if err := json.Unmarshal(b, &wm); err != nil || wm.Type != protocol.TypeWelcome {
		t.Fatalf("expected WELCOME, got %s", b)
	}
	return wm
}

func TestJoinReceivesWorldInit(t *testing.T) {
	url := startServer(t, Options{})
	c := dial(t, url)
	send(t, c, hello("alice"))

	wm := readWelcome(t, c)
	if !wm.Accepted || wm.SessionID == "" || wm.EntityID == 0 {
		t.Fatalf("welcome: %+v", wm)
	}
	var wi protocol.WorldInitMsg
	readUntil(t, c, func(typ string, raw []byte) bool {
		if typ != protocol.TypeWorldInit {
			return false
		}
		_ = json.Unmarshal(raw, &wi)
		return true
	})
	if wi.Width != 32 || wi.Height != 16 {
		t.Fatalf("world init size %dx%d", wi.Width, wi.Height)
	}
}

func TestAuthTimeout(t *testing.T) {
	url := startServer(t, Options{AuthTimeout: 100 * time.Millisecond})
	c := dial(t, url)
	wm := readWelcome(t, c)
	if wm.Accepted || wm.Code != protocol.ErrAuthTimeout {
		t.Fatalf("welcome: %+v", wm)
	}
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	url := startServer(t, Options{})
	a := dial(t, url)
	send(t, a, hello("alice"))
	if wm := readWelcome(t, a); !wm.Accepted {
		t.Fatalf("first join: %+v", wm)
	}

	b := dial(t, url)
	send(t, b, hello("alice"))
	wm := readWelcome(t, b)
	if wm.Accepted || wm.Code != protocol.ErrDuplicateName {
		t.Fatalf("second join: %+v", wm)
	}
}

func TestAuthFailure(t *testing.T) {
	url := startServer(t, Options{Auth: denyAll{}})
	c := dial(t, url)
	send(t, c, hello("alice"))
	wm := readWelcome(t, c)
	if wm.Accepted || wm.Code != protocol.ErrAuthFailed {
		t.Fatalf("welcome: %+v", wm)
	}
}

func TestBadUsername(t *testing.T) {
	url := startServer(t, Options{})
	c := dial(t, url)
	send(t, c, hello("no spaces allowed"))
	if wm := readWelcome(t, c); wm.Accepted || wm.Code != protocol.ErrAuthFailed {
		t.Fatalf("welcome: %+v", wm)
	}
}

func TestBadFrameKeepsConnection(t *testing.T) {
	url := startServer(t, Options{})
	c := dial(t, url)
	send(t, c, hello("alice"))
	if wm := readWelcome(t, c); !wm.Accepted {
		t.Fatalf("welcome: %+v", wm)
	}

	if err := c.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, c, map[string]string{"type": "TELEPORT", "protocol_version": protocol.Version})
	send(t, c, protocol.PingMsg{Type: protocol.TypePing, ProtocolVersion: protocol.Version, ClientTime: 42})

	var codes []string
	readUntil(t, c, func(typ string, raw []byte) bool {
		switch typ {
		case protocol.TypeError:
			var em protocol.ErrorMsg
			_ = json.Unmarshal(raw, &em)
			codes = append(codes, em.Code)
		case protocol.TypePong:
			var pm protocol.PongMsg
			_ = json.Unmarshal(raw, &pm)
			return pm.ClientTime == 42
		}
		return false
	})
	if len(codes) != 2 {
		t.Fatalf("errors: %v", codes)
	}
	for _, code := range codes {
		if code != protocol.ErrProtoBadRequest {
			t.Fatalf("error code %s", code)
		}
	}
}
