package world

import (
	"tilecraft.ai/internal/persistence/snapshot"
	"tilecraft.ai/internal/sim/blocks"
	"tilecraft.ai/internal/sim/entity"
	"tilecraft.ai/internal/sim/tiles"
	"tilecraft.ai/internal/sim/tuning"
)

type Config struct {
	Tuning tuning.Tuning
	Seed   int64

	// Map is an existing world (snapshot or test fixture). When nil a fresh
	// layered world is generated.
	Map *tiles.Grid
	// Snapshot restores tiles and containers; it wins over Map.
	Snapshot *snapshot.WorldV1

	// Optional sinks (may be nil). None of them may block the tick.
	Store        PlayerStore
	Audit        AuditLogger
	SnapshotSink chan<- snapshot.WorldV1

	// Participants run after the built-in mob spawner and furnaces.
	Participants []Participant
	// DisableMobs turns off the built-in spawner.
	DisableMobs bool
}

func (c *Config) applyDefaults() {
	c.Tuning.ApplyDefaults()
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// PlayerRecord is the persisted part of a player.
type PlayerRecord struct {
	Name      string           `json:"name" msgpack:"name"`
	Class     string           `json:"class" msgpack:"class"`
	X         float64          `json:"x" msgpack:"x"`
	Y         float64          `json:"y" msgpack:"y"`
	HP        int              `json:"hp" msgpack:"hp"`
	Spawn     [2]int           `json:"spawn" msgpack:"spawn"`
	BedSpawn  bool             `json:"bed_spawn,omitempty" msgpack:"bed"`
	Inventory entity.Inventory `json:"inventory" msgpack:"inv"`
	SavedTick uint64           `json:"saved_tick" msgpack:"tick"`
}

// PlayerStore receives player records on autosave and disconnect.
// SavePlayer must not block; implementations queue the write.
type PlayerStore interface {
	SavePlayer(rec PlayerRecord) error
}

type AuditLogger interface {
	WriteAudit(m blocks.Mutation) error
}
