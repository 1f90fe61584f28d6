package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Handshake.
	ErrAuthFailed    = "E_AUTH_FAILED"
	ErrAuthTimeout   = "E_AUTH_TIMEOUT"
	ErrDuplicateName = "E_DUPLICATE_NAME"
	ErrServerFull    = "E_SERVER_FULL"

	// Rule/action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrOutOfReach    = "E_OUT_OF_REACH"
	ErrCooldown      = "E_COOLDOWN"
	ErrNotOpen       = "E_NOT_OPEN"
	ErrDead          = "E_DEAD"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrBlocked       = "E_BLOCKED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrAuthFailed:      {},
	ErrAuthTimeout:     {},
	ErrDuplicateName:   {},
	ErrServerFull:      {},
	ErrBadRequest:      {},
	ErrOutOfReach:      {},
	ErrCooldown:        {},
	ErrNotOpen:         {},
	ErrDead:            {},
	ErrRateLimit:       {},
	ErrInvalidTarget:   {},
	ErrNoResource:      {},
	ErrBlocked:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
