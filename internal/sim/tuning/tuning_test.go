package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.TickRateHz != 60 {
		t.Fatalf("tick rate: got %d want 60", d.TickRateHz)
	}
	if d.BroadcastEveryTicks != 1 {
		t.Fatalf("broadcast every: got %d want 1", d.BroadcastEveryTicks)
	}
	if d.BreakingTimeoutTicks != 60 || d.AuthTimeoutMs != 5000 {
		t.Fatalf("unexpected timeouts: breaking=%d auth=%d", d.BreakingTimeoutTicks, d.AuthTimeoutMs)
	}
	if d.World.Spawn[1] >= d.World.Surface {
		t.Fatalf("spawn should be above the surface: spawn=%v surface=%d", d.World.Spawn, d.World.Surface)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := []byte("tick_rate_hz: 30\nbroadcast_every_ticks: 3\nworld:\n  width: 128\n  height: 64\n")
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune.TickRateHz != 30 || tune.BroadcastEveryTicks != 3 {
		t.Fatalf("rates not read: %+v", tune)
	}
	if tune.World.Width != 128 || tune.World.Height != 64 {
		t.Fatalf("world dims not read: %+v", tune.World)
	}
	if tune.ReachTiles != 6 {
		t.Fatalf("reach default lost: %v", tune.ReachTiles)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}
