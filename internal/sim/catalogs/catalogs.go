package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Tool classes.
const (
	ToolPickaxe = "PICKAXE"
	ToolAxe     = "AXE"
	ToolShovel  = "SHOVEL"
	ToolSword   = "SWORD"
	ToolBow     = "BOW"
)

// Item kinds.
const (
	KindBlock    = "BLOCK"
	KindTool     = "TOOL"
	KindMaterial = "MATERIAL"
	KindFood     = "FOOD"
	KindAmmo     = "AMMO"
)

// Container kinds.
const (
	ContainerChest   = "CHEST"
	ContainerFurnace = "FURNACE"
)

const DefaultClass = "ADVENTURER"

type Catalogs struct {
	Blocks  BlockCatalog
	Items   ItemCatalog
	Recipes RecipeCatalog
	Classes ClassCatalog
	Mobs    MobCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID        string `json:"id"`
	Solid     bool   `json:"solid"`
	Breakable bool   `json:"breakable"`
	// Hardness is the base number of ticks to break with bare hands.
	Hardness        float64    `json:"hardness,omitempty"`
	ToolClass       string     `json:"tool_class,omitempty"`
	RequiresSupport bool       `json:"requires_support,omitempty"`
	Companion       *Companion `json:"companion,omitempty"`
	Container       string     `json:"container,omitempty"`
	RequiredClass   string     `json:"required_class,omitempty"`
	ToggleTo        string     `json:"toggle_to,omitempty"`
	SpawnPoint      bool       `json:"spawn_point,omitempty"`
	ContactDamage   int        `json:"contact_damage,omitempty"`
	Drops           []DropDef  `json:"drops,omitempty"`
}

// Companion is the second tile of a two-tile block, relative to this one.
type Companion struct {
	DX    int    `json:"dx"`
	DY    int    `json:"dy"`
	Block string `json:"block"`
}

type DropDef struct {
	Item           string         `json:"item"`
	Min            int            `json:"min"`
	Max            int            `json:"max"`
	ChancePermille int            `json:"chance_permille"`
	BiomeBonus     map[string]int `json:"biome_bonus,omitempty"`
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"` // "BLOCK","TOOL","MATERIAL","FOOD","AMMO"
	PlaceAs   string  `json:"place_as,omitempty"`
	ToolClass string  `json:"tool_class,omitempty"`
	ToolSpeed float64 `json:"tool_speed,omitempty"`
	Uses      int     `json:"uses,omitempty"`
	Damage    int     `json:"damage,omitempty"`
	Ammo      string  `json:"ammo,omitempty"`
	EdibleHP  int     `json:"edible_hp,omitempty"`
	FuelTicks int     `json:"fuel_ticks,omitempty"`
	MaxStack  int     `json:"max_stack,omitempty"`
}

func (d ItemDef) StackLimit() int {
	if d.Kind == KindTool {
		return 1
	}
	if d.MaxStack > 0 {
		return d.MaxStack
	}
	return 99
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	Digest string
}

type RecipeDef struct {
	RecipeID      string      `json:"recipe_id"`
	Station       string      `json:"station"` // "HAND","FURNACE"
	Inputs        []ItemCount `json:"inputs"`
	Outputs       []ItemCount `json:"outputs"`
	TimeTicks     int         `json:"time_ticks"`
	RequiredClass string      `json:"required_class,omitempty"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type ClassCatalog struct {
	ByID   map[string]ClassDef
	Digest string
}

type ClassDef struct {
	ID                  string  `json:"id"`
	BreakSpeed          float64 `json:"break_speed"`
	ExtraDropPermille   int     `json:"extra_drop_permille,omitempty"`
	SkipConsumePermille int     `json:"skip_consume_permille,omitempty"`
	ToolUsesScale       float64 `json:"tool_uses_scale,omitempty"`
	DamageBonus         int     `json:"damage_bonus,omitempty"`
}

type MobCatalog struct {
	ByID   map[string]MobDef
	Digest string
}

type MobDef struct {
	ID          string     `json:"id"`
	HP          int        `json:"hp"`
	Damage      int        `json:"damage"`
	Speed       float64    `json:"speed"`
	Jump        float64    `json:"jump"`
	Size        [2]float64 `json:"size"`
	SpawnWeight int        `json:"spawn_weight"`
	SpawnMax    int        `json:"spawn_max"`
	Drops       []DropDef  `json:"drops,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), &c.Recipes); err != nil {
		return nil, err
	}
	if err := loadClasses(filepath.Join(configDir, "classes.json"), &c.Classes); err != nil {
		return nil, err
	}
	if err := loadMobs(filepath.Join(configDir, "mobs.json"), &c.Mobs); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate checks cross references between catalogs.
func (c *Catalogs) validate() error {
	for id, b := range c.Blocks.Defs {
		if b.Companion != nil {
			if _, ok := c.Blocks.Defs[b.Companion.Block]; !ok {
				return fmt.Errorf("blocks.json: %s companion %q unknown", id, b.Companion.Block)
			}
		}
		if b.ToggleTo != "" {
			if _, ok := c.Blocks.Defs[b.ToggleTo]; !ok {
				return fmt.Errorf("blocks.json: %s toggle_to %q unknown", id, b.ToggleTo)
			}
		}
		for _, d := range b.Drops {
			if _, ok := c.Items.Defs[d.Item]; !ok {
				return fmt.Errorf("blocks.json: %s drops unknown item %q", id, d.Item)
			}
		}
	}
	for id, it := range c.Items.Defs {
		if it.PlaceAs == "" {
			continue
		}
		if _, ok := c.Blocks.Defs[it.PlaceAs]; !ok {
			return fmt.Errorf("items.json: %s place_as %q unknown", id, it.PlaceAs)
		}
	}
	for id, r := range c.Recipes.ByID {
		for _, ic := range append(append([]ItemCount{}, r.Inputs...), r.Outputs...) {
			if _, ok := c.Items.Defs[ic.Item]; !ok {
				return fmt.Errorf("recipes.json: %s uses unknown item %q", id, ic.Item)
			}
		}
	}
	if _, ok := c.Classes.ByID[DefaultClass]; !ok {
		return fmt.Errorf("classes.json: missing %s", DefaultClass)
	}
	return nil
}

// Block returns the definition for a palette index.
func (c *Catalogs) Block(tile uint16) (BlockDef, bool) {
	if int(tile) >= len(c.Blocks.Palette) {
		return BlockDef{}, false
	}
	d, ok := c.Blocks.Defs[c.Blocks.Palette[tile]]
	return d, ok
}

func (c *Catalogs) BlockIndex(id string) (uint16, bool) {
	v, ok := c.Blocks.Index[id]
	return v, ok
}

func (c *Catalogs) Item(id string) (ItemDef, bool) {
	d, ok := c.Items.Defs[id]
	return d, ok
}

// Class falls back to the default class for unknown ids.
func (c *Catalogs) Class(id string) ClassDef {
	if d, ok := c.Classes.ByID[id]; ok {
		return d
	}
	return c.Classes.ByID[DefaultClass]
}

func (c *Catalogs) IsSolid(tile uint16) bool {
	d, ok := c.Block(tile)
	return ok && d.Solid
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if d.Breakable && d.Hardness <= 0 {
			d.Hardness = 1
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// AIR must be palette id 0 so a zeroed grid is empty.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if d.Kind == KindTool && d.Uses <= 0 {
			return fmt.Errorf("items.json: tool %s without uses", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadRecipes(path string, out *RecipeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	out.ByID = map[string]RecipeDef{}
	for _, r := range defs {
		if r.RecipeID == "" {
			return fmt.Errorf("recipes.json: empty recipe_id")
		}
		out.ByID[r.RecipeID] = r
	}
	return nil
}

func loadClasses(path string, out *ClassCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ClassDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("classes.json: %w", err)
	}
	out.ByID = map[string]ClassDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("classes.json: empty id")
		}
		if d.BreakSpeed <= 0 {
			d.BreakSpeed = 1
		}
		if d.ToolUsesScale <= 0 {
			d.ToolUsesScale = 1
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadMobs(path string, out *MobCatalog) error {
	out.ByID = map[string]MobDef{}
	raw, err := os.ReadFile(path)
	if err != nil {
		// No mobs configured is a valid (peaceful) world.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []MobDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("mobs.json: %w", err)
	}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("mobs.json: empty id")
		}
		if d.HP <= 0 {
			return fmt.Errorf("mobs.json: %s without hp", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
