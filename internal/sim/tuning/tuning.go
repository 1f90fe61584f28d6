package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`
	// BroadcastEveryTicks sets the steady-state diff rate: 1 sends at the
	// tick rate, 6 sends at 10Hz when ticking at 60Hz.
	BroadcastEveryTicks int `yaml:"broadcast_every_ticks"`

	World    WorldTuning    `yaml:"world"`
	Viewport ViewportTuning `yaml:"viewport"`

	ReachTiles           float64 `yaml:"reach_tiles"`
	MeleeReachTiles      float64 `yaml:"melee_reach_tiles"`
	BreakingTimeoutTicks int     `yaml:"breaking_timeout_ticks"`
	MaxCascade           int     `yaml:"max_cascade"`

	Cooldowns Cooldowns `yaml:"cooldowns"`
	Chat      ChatLimit `yaml:"chat"`

	AuthTimeoutMs int `yaml:"auth_timeout_ms"`
	MaxSessions   int `yaml:"max_sessions"`
	MaxOutQueue   int `yaml:"max_out_queue"`
	// InboundPerSecond caps frames accepted from one connection.
	InboundPerSecond int `yaml:"inbound_per_second"`

	AutosaveEveryTicks int `yaml:"autosave_every_ticks"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Mobs MobTuning `yaml:"mobs"`

	RespawnTicks int  `yaml:"respawn_ticks"`
	PlayerMaxHP  int  `yaml:"player_max_hp"`
	PvP          bool `yaml:"pvp"`

	StarterItems map[string]int `yaml:"starter_items"`
}

type WorldTuning struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Spawn  [2]int `yaml:"spawn"`
	// Surface is the y of the top terrain layer for a fresh world.
	Surface int `yaml:"surface"`
}

type ViewportTuning struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	Margin int `yaml:"margin"`
}

type Cooldowns struct {
	AttackTicks   int `yaml:"attack_ticks"`
	InteractTicks int `yaml:"interact_ticks"`
	PlaceTicks    int `yaml:"place_ticks"`
}

type ChatLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
	MaxLen    int     `yaml:"max_len"`
}

type MobTuning struct {
	Cap             int `yaml:"cap"`
	SpawnEveryTicks int `yaml:"spawn_every_ticks"`
	SpawnMinDist    int `yaml:"spawn_min_dist"`
	SpawnMaxDist    int `yaml:"spawn_max_dist"`
	DespawnDist     int `yaml:"despawn_dist"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.ApplyDefaults()
	return t
}

func (t *Tuning) ApplyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 60
	}
	if t.BroadcastEveryTicks <= 0 {
		t.BroadcastEveryTicks = 1
	}
	if t.World.Width <= 0 {
		t.World.Width = 400
	}
	if t.World.Height <= 0 {
		t.World.Height = 200
	}
	if t.World.Surface <= 0 || t.World.Surface >= t.World.Height {
		t.World.Surface = t.World.Height / 3
	}
	if t.World.Spawn == [2]int{} {
		t.World.Spawn = [2]int{t.World.Width / 2, t.World.Surface - 3}
	}
	if t.Viewport.Width <= 0 {
		t.Viewport.Width = 60
	}
	if t.Viewport.Height <= 0 {
		t.Viewport.Height = 34
	}
	if t.Viewport.Margin < 0 {
		t.Viewport.Margin = 0
	}
	if t.Viewport.Margin == 0 {
		t.Viewport.Margin = 8
	}
	if t.ReachTiles <= 0 {
		t.ReachTiles = 6
	}
	if t.MeleeReachTiles <= 0 {
		t.MeleeReachTiles = 3
	}
	if t.BreakingTimeoutTicks <= 0 {
		t.BreakingTimeoutTicks = 60
	}
	if t.MaxCascade <= 0 {
		t.MaxCascade = 64
	}
	if t.Cooldowns.AttackTicks <= 0 {
		t.Cooldowns.AttackTicks = 20
	}
	if t.Cooldowns.InteractTicks <= 0 {
		t.Cooldowns.InteractTicks = 10
	}
	if t.Cooldowns.PlaceTicks < 0 {
		t.Cooldowns.PlaceTicks = 0
	}
	if t.Chat.PerSecond <= 0 {
		t.Chat.PerSecond = 1
	}
	if t.Chat.Burst <= 0 {
		t.Chat.Burst = 5
	}
	if t.Chat.MaxLen <= 0 {
		t.Chat.MaxLen = 256
	}
	if t.AuthTimeoutMs <= 0 {
		t.AuthTimeoutMs = 5000
	}
	if t.MaxSessions <= 0 {
		t.MaxSessions = 64
	}
	if t.MaxOutQueue <= 0 {
		t.MaxOutQueue = 64
	}
	if t.InboundPerSecond <= 0 {
		t.InboundPerSecond = 240
	}
	if t.AutosaveEveryTicks <= 0 {
		t.AutosaveEveryTicks = 3600
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = 18000
	}
	if t.Mobs.Cap <= 0 {
		t.Mobs.Cap = 16
	}
	if t.Mobs.SpawnEveryTicks <= 0 {
		t.Mobs.SpawnEveryTicks = 300
	}
	if t.Mobs.SpawnMinDist <= 0 {
		t.Mobs.SpawnMinDist = 24
	}
	if t.Mobs.SpawnMaxDist <= t.Mobs.SpawnMinDist {
		t.Mobs.SpawnMaxDist = t.Mobs.SpawnMinDist + 12
	}
	if t.Mobs.DespawnDist <= 0 {
		t.Mobs.DespawnDist = 96
	}
	if t.RespawnTicks <= 0 {
		t.RespawnTicks = 180
	}
	if t.PlayerMaxHP <= 0 {
		t.PlayerMaxHP = 100
	}
	if t.StarterItems == nil {
		t.StarterItems = map[string]int{
			"WOOD_PICKAXE": 1,
			"WOOD_SWORD":   1,
			"DIRT":         20,
			"TORCH":        10,
		}
	}
}
