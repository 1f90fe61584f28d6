package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrAuthFailed,
		ErrAuthTimeout,
		ErrDuplicateName,
		ErrServerFull,
		ErrBadRequest,
		ErrOutOfReach,
		ErrCooldown,
		ErrNotOpen,
		ErrDead,
		ErrRateLimit,
		ErrInvalidTarget,
		ErrNoResource,
		ErrBlocked,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	base, err := DecodeBase([]byte(`{"type":"PING","protocol_version":"1.0","client_time":5}`))
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if base.Type != TypePing || base.ProtocolVersion != Version {
		t.Fatalf("unexpected base: %+v", base)
	}
	if !IsClientType(base.Type) {
		t.Fatalf("PING should be a client type")
	}
	if IsClientType(TypeWorldInit) {
		t.Fatalf("WORLD_INIT is server-only")
	}
	if _, err := DecodeBase([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected error for truncated json")
	}
}
