// Package catalog holds the static quest content: an immutable lookup table
// from quest key to quest definition. Definitions are loaded once at startup
// and never mutated, so lookups need no locking.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/groupquest/server/apperr"
)

// BossDef describes a boss-fight quest: the party chips HP down to zero.
type BossDef struct {
	HP float64 `json:"hp"`
}

// Reward is reward metadata attached to a quest. Granting it belongs to the
// economy subsystem; the coordinator only passes it to the completion hook.
type Reward struct {
	Gold float64 `json:"gold"`
	Exp  int     `json:"exp"`
}

// QuestDef is a single quest definition. Exactly one of Boss / Collect is set.
type QuestDef struct {
	Key     string         `json:"key"`
	Title   string         `json:"title"`
	Boss    *BossDef       `json:"boss,omitempty"`
	Collect map[string]int `json:"collect,omitempty"`
	Reward  Reward         `json:"reward"`
}

// IsBoss reports whether the quest tracks boss HP rather than collection.
func (d *QuestDef) IsBoss() bool { return d.Boss != nil }

// Catalog is the loaded quest content.
type Catalog struct {
	defs map[string]*QuestDef
}

// New builds a Catalog from the given definitions, validating each one.
func New(defs []*QuestDef) (*Catalog, error) {
	byKey := make(map[string]*QuestDef, len(defs))
	for _, d := range defs {
		if d.Key == "" {
			return nil, fmt.Errorf("catalog: quest with empty key")
		}
		if _, dup := byKey[d.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate quest key %q", d.Key)
		}
		if d.Boss != nil && len(d.Collect) > 0 {
			return nil, fmt.Errorf("catalog: quest %q has both boss and collect goals", d.Key)
		}
		if d.Boss == nil && len(d.Collect) == 0 {
			return nil, fmt.Errorf("catalog: quest %q has neither boss nor collect goals", d.Key)
		}
		if d.Boss != nil && d.Boss.HP <= 0 {
			return nil, fmt.Errorf("catalog: quest %q has non-positive boss hp", d.Key)
		}
		byKey[d.Key] = d
	}
	return &Catalog{defs: byKey}, nil
}

// Load reads quest definitions from a JSON file: an array of QuestDef.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var defs []*QuestDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return New(defs)
}

// Lookup returns the definition for key, or a QuestNotFound error.
func (c *Catalog) Lookup(key string) (*QuestDef, error) {
	d, ok := c.defs[key]
	if !ok {
		return nil, apperr.New(apperr.KindQuestNotFound, "quest %q not found", key)
	}
	return d, nil
}

// Len returns the number of loaded quest definitions.
func (c *Catalog) Len() int { return len(c.defs) }
