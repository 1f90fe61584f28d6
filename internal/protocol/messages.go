package protocol

import "encoding/json"

// HELLO (client -> server). Must be the first frame on a new connection.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Class           string `json:"class,omitempty"`
}

// WELCOME (server -> client): accept/reject reply to HELLO.
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	EntityID        uint64 `json:"entity_id,omitempty"`
	TickRateHz      int    `json:"tick_rate_hz,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// INPUT (client -> server): latest movement intent.
type InputMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq,omitempty"`
	MoveX           int    `json:"move_x"`
	Jump            bool   `json:"jump,omitempty"`
}

// Block change actions.
const (
	BlockBreak  = "BREAK"
	BlockCancel = "CANCEL"
	BlockPlace  = "PLACE"
)

// BLOCK_CHANGE (client -> server). BREAK is re-sent every tick the player
// keeps targeting the tile.
type BlockChangeReq struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Action          string `json:"action"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Slot            int    `json:"slot,omitempty"`
}

// BLOCK_CHANGE (server -> client): authoritative value of one tile.
type BlockChangeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Tile            uint16 `json:"tile"`
	Block           string `json:"block"`
	Correction      bool   `json:"correction,omitempty"`
	Code            string `json:"code,omitempty"`
}

// Inventory actions.
const (
	InvSelect        = "SELECT"
	InvSwap          = "SWAP"
	InvDrop          = "DROP"
	InvCraft         = "CRAFT"
	InvContainerPut  = "CONTAINER_PUT"
	InvContainerTake = "CONTAINER_TAKE"
)

// INVENTORY_ACTION (client -> server).
type InventoryActionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Action          string `json:"action"`
	Slot            int    `json:"slot,omitempty"`
	To              int    `json:"to,omitempty"`
	Count           int    `json:"count,omitempty"`
	Recipe          string `json:"recipe,omitempty"`
	// Container coordinate for CONTAINER_* actions.
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`
}

// Interact actions.
const (
	InteractUse   = "USE"
	InteractClose = "CLOSE"
)

// INTERACT (client -> server): open containers, toggle doors, use beds.
type InteractMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Action          string `json:"action"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
}

// ATTACK (client -> server). Melee uses TargetID; ranged weapons use Aim.
type AttackMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	TargetID        uint64     `json:"target_id,omitempty"`
	Aim             [2]float64 `json:"aim,omitempty"`
}

// CHAT (both directions). From is filled by the server.
type ChatMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	From            string `json:"from,omitempty"`
	Text            string `json:"text"`
	System          bool   `json:"system,omitempty"`
}

// PING (client -> server).
type PingMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientTime      int64  `json:"client_time"`
}

// PONG (server -> client).
type PongMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientTime      int64  `json:"client_time"`
	ServerTick      uint64 `json:"server_tick"`
}

// WORLD_INIT (server -> client): full snapshot sent once on join.
type WorldInitMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	Palette         []string      `json:"palette"`
	PaletteDigest   string        `json:"palette_digest"`
	Encoding        string        `json:"encoding"` // "RLE"
	Tiles           string        `json:"tiles"`
	Spawn           [2]int        `json:"spawn"`
	SelfID          uint64        `json:"self_id"`
	Entities        []EntityState `json:"entities"`
}

// EntityState is the wire form of one entity. It only holds scalar fields so
// that per-viewer diffing can compare values directly.
type EntityState struct {
	ID    uint64  `json:"id"`
	Kind  string  `json:"kind"` // "PLAYER","MOB","ITEM","PROJECTILE"
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	HP    int     `json:"hp,omitempty"`
	MaxHP int     `json:"max_hp,omitempty"`
	Dead  bool    `json:"dead,omitempty"`

	// Kind-specific payload.
	Name  string `json:"name,omitempty"`  // player name
	Class string `json:"class,omitempty"` // player class
	Tag   string `json:"tag,omitempty"`   // mob tag, item id, projectile tag
	Count int    `json:"count,omitempty"` // item stack size
	Held  string `json:"held,omitempty"`  // player held item
}

// ENTITY_DIFF (server -> client): culled per-viewer batch.
type EntityDiffMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Upserts         []EntityState `json:"upserts"`
	Removed         []uint64      `json:"removed"`
}

type SlotObs struct {
	Slot      int    `json:"slot"`
	Item      string `json:"item"`
	Count     int    `json:"count"`
	Uses      int    `json:"uses,omitempty"`
	TotalUses int    `json:"total_uses,omitempty"`
	Bonus     bool   `json:"bonus,omitempty"`
}

// INVENTORY (server -> client): full inventory of the session's player.
type InventoryMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Selected        int       `json:"selected"`
	Size            int       `json:"size"`
	Slots           []SlotObs `json:"slots"`
}

// CONTAINER (server -> client): contents of the container this session has open.
type ContainerMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	X               int       `json:"x"`
	Y               int       `json:"y"`
	Kind            string    `json:"kind"`
	Open            bool      `json:"open"`
	Size            int       `json:"size"`
	Slots           []SlotObs `json:"slots"`
	Progress        int       `json:"progress,omitempty"`
}

// BREAKING_PROGRESS (server -> client).
type BreakingProgressMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Ticks           int    `json:"ticks"`
	Required        int    `json:"required"`
	Done            bool   `json:"done,omitempty"`
	Stop            bool   `json:"stop,omitempty"`
}

// ERROR (server -> client). Never closes the connection by itself.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
	For             string `json:"for,omitempty"`
}

// BATCH (server -> client): every buffered message of one tick in one frame.
type BatchMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Tick            uint64            `json:"tick"`
	Messages        []json.RawMessage `json:"messages"`
}
