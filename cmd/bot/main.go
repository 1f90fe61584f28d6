package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/encoding"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		password = flag.String("password", "bot", "password")
		class    = flag.String("class", "MINER", "class for a new player")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "behaviour seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Username:        *name,
		Password:        *password,
		Class:           *class,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	b := newBot(conn, logger, rand.New(rand.NewSource(*seed)))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		if err := b.handle(msg); err != nil {
			logger.Printf("%v", err)
			return
		}
	}
}

// bot walks around, digs the tile in front of its feet now and then, and
// chats. It steers from the tick numbers in BATCH frames.
type bot struct {
	conn *websocket.Conn
	log  *log.Logger
	rng  *rand.Rand

	self    uint64
	pos     [2]float64
	width   int
	height  int
	palette []string
	tiles   []uint16

	seq     uint64
	dir     int
	turnAt  uint64
	digAt   uint64
	dig     *[2]int
	digFrom uint64
	lastX   float64
}

func newBot(conn *websocket.Conn, logger *log.Logger, rng *rand.Rand) *bot {
	return &bot{conn: conn, log: logger, rng: rng, dir: 1}
}

func (b *bot) handle(msg []byte) error {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return nil
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return nil
		}
		if !w.Accepted {
			return fmt.Errorf("rejected: %s %s", w.Code, w.Message)
		}
		b.self = w.EntityID
		b.log.Printf("WELCOME session=%s entity=%d tick_rate=%d", w.SessionID, w.EntityID, w.TickRateHz)
	case protocol.TypeError:
		var e protocol.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		b.log.Printf("ERROR %s %s (for %s)", e.Code, e.Message, e.For)
	case protocol.TypeBatch:
		var batch protocol.BatchMsg
		if err := json.Unmarshal(msg, &batch); err != nil {
			return nil
		}
		for _, m := range batch.Messages {
			b.apply(m)
		}
		b.think(batch.Tick)
	}
	return nil
}

func (b *bot) apply(raw json.RawMessage) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWorldInit:
		var wi protocol.WorldInitMsg
		if err := json.Unmarshal(raw, &wi); err != nil {
			return
		}
		tiles, err := encoding.DecodeTiles(wi.Tiles, wi.Width, wi.Height)
		if err != nil {
			b.log.Printf("world init: %v", err)
			return
		}
		b.width, b.height, b.tiles, b.palette = wi.Width, wi.Height, tiles, wi.Palette
		b.self = wi.SelfID
		for _, e := range wi.Entities {
			if e.ID == b.self {
				b.pos = [2]float64{e.X, e.Y}
			}
		}
		b.log.Printf("WORLD_INIT %dx%d entities=%d", wi.Width, wi.Height, len(wi.Entities))
	case protocol.TypeEntityDiff:
		var d protocol.EntityDiffMsg
		if err := json.Unmarshal(raw, &d); err != nil {
			return
		}
		for _, e := range d.Upserts {
			if e.ID == b.self {
				b.pos = [2]float64{e.X, e.Y}
			}
		}
	case protocol.TypeBlockChange:
		var bc protocol.BlockChangeMsg
		if err := json.Unmarshal(raw, &bc); err != nil {
			return
		}
		if bc.X >= 0 && bc.Y >= 0 && bc.X < b.width && bc.Y < b.height {
			b.tiles[bc.Y*b.width+bc.X] = bc.Tile
		}
		if b.dig != nil && b.dig[0] == bc.X && b.dig[1] == bc.Y {
			if bc.Correction {
				b.log.Printf("dig (%d,%d) refused: %s", bc.X, bc.Y, bc.Code)
			} else {
				b.log.Printf("dug (%d,%d), now %s", bc.X, bc.Y, bc.Block)
			}
			b.dig = nil
		}
	case protocol.TypeChat:
		var c protocol.ChatMsg
		if err := json.Unmarshal(raw, &c); err == nil {
			b.log.Printf("chat <%s> %s", c.From, c.Text)
		}
	}
}

func (b *bot) tile(x, y int) string {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return ""
	}
	idx := b.tiles[y*b.width+x]
	if int(idx) < len(b.palette) {
		return b.palette[idx]
	}
	return ""
}

func (b *bot) think(tick uint64) {
	if b.tiles == nil {
		return
	}

	if b.dig != nil {
		if tick-b.digFrom > 240 {
			b.send(protocol.BlockChangeReq{Type: protocol.TypeBlockChange, ProtocolVersion: protocol.Version, Action: protocol.BlockCancel})
			b.dig = nil
		} else {
			b.send(protocol.BlockChangeReq{Type: protocol.TypeBlockChange, ProtocolVersion: protocol.Version, Action: protocol.BlockBreak, X: b.dig[0], Y: b.dig[1]})
			b.input(0, false)
			return
		}
	}

	if tick >= b.turnAt {
		b.dir = []int{-1, 1}[b.rng.Intn(2)]
		b.turnAt = tick + uint64(120+b.rng.Intn(240))
	}
	stuck := math.Abs(b.pos[0]-b.lastX) < 0.01
	b.lastX = b.pos[0]
	b.input(b.dir, stuck)

	if tick >= b.digAt {
		b.digAt = tick + uint64(300+b.rng.Intn(300))
		fx := int(math.Floor(b.pos[0] + 0.4 + float64(b.dir)))
		fy := int(math.Floor(b.pos[1] + 1.7))
		if t := b.tile(fx, fy); t != "" && t != "AIR" {
			b.dig = &[2]int{fx, fy}
			b.digFrom = tick
			b.log.Printf("digging %s at (%d,%d)", t, fx, fy)
		}
	}
	if tick%1800 == 0 {
		b.send(protocol.ChatMsg{Type: protocol.TypeChat, ProtocolVersion: protocol.Version,
			Text: fmt.Sprintf("tick=%d pos=(%.1f,%.1f)", tick, b.pos[0], b.pos[1])})
	}
	if tick%300 == 0 {
		b.send(protocol.PingMsg{Type: protocol.TypePing, ProtocolVersion: protocol.Version, ClientTime: time.Now().UnixMilli()})
	}
}

func (b *bot) input(moveX int, jump bool) {
	b.seq++
	b.send(protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Seq: b.seq, MoveX: moveX, Jump: jump})
}

func (b *bot) send(v any) {
	_ = b.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := b.conn.WriteJSON(v); err != nil {
		b.log.Printf("write: %v", err)
	}
}
