package protocol

import "encoding/json"

const Version = "1.0"

// Message types, client -> server.
const (
	TypeHello           = "HELLO"
	TypeInput           = "INPUT"
	TypeBlockChange     = "BLOCK_CHANGE"
	TypeInventoryAction = "INVENTORY_ACTION"
	TypeInteract        = "INTERACT"
	TypeAttack          = "ATTACK"
	TypeChat            = "CHAT"
	TypePing            = "PING"
)

// Message types, server -> client. BLOCK_CHANGE and CHAT are shared with the
// client direction.
const (
	TypeWelcome          = "WELCOME"
	TypeWorldInit        = "WORLD_INIT"
	TypeEntityDiff       = "ENTITY_DIFF"
	TypeInventory        = "INVENTORY"
	TypeContainer        = "CONTAINER"
	TypeBreakingProgress = "BREAKING_PROGRESS"
	TypePong             = "PONG"
	TypeError            = "ERROR"
	TypeBatch            = "BATCH"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// IsClientType reports whether t is a message kind clients may send after HELLO.
func IsClientType(t string) bool {
	switch t {
	case TypeInput, TypeBlockChange, TypeInventoryAction, TypeInteract, TypeAttack, TypeChat, TypePing:
		return true
	}
	return false
}
