package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/groupquest/server/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name string
		defs []*QuestDef
	}{
		{"empty key", []*QuestDef{{Boss: &BossDef{HP: 10}}}},
		{"duplicate key", []*QuestDef{
			{Key: "q", Boss: &BossDef{HP: 10}},
			{Key: "q", Boss: &BossDef{HP: 20}},
		}},
		{"both goal kinds", []*QuestDef{
			{Key: "q", Boss: &BossDef{HP: 10}, Collect: map[string]int{"x": 1}},
		}},
		{"no goal", []*QuestDef{{Key: "q"}}},
		{"non-positive hp", []*QuestDef{{Key: "q", Boss: &BossDef{HP: 0}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.defs)
			assert.Error(t, err)
		})
	}
}

func TestLookup(t *testing.T) {
	c, err := New([]*QuestDef{
		{Key: "q.boss", Boss: &BossDef{HP: 100}},
		{Key: "q.collect", Collect: map[string]int{"egg": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	d, err := c.Lookup("q.boss")
	require.NoError(t, err)
	assert.True(t, d.IsBoss())

	d, err = c.Lookup("q.collect")
	require.NoError(t, err)
	assert.False(t, d.IsBoss())

	_, err = c.Lookup("q.missing")
	assert.Equal(t, apperr.KindQuestNotFound, apperr.KindOf(err))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quests.json")
	content := `[
		{"key": "q.dragon", "title": "Dragon", "boss": {"hp": 500}, "reward": {"gold": 100, "exp": 250}},
		{"key": "q.herbs", "title": "Herbs", "collect": {"herb": 10}}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	d, err := c.Lookup("q.dragon")
	require.NoError(t, err)
	assert.Equal(t, float64(500), d.Boss.HP)
	assert.Equal(t, float64(100), d.Reward.Gold)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
