package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

func TestSaveLoadPlacements(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	want := testLayout()

	require.NoError(t, s.SavePlacements(ctx, "factory", want))
	got, err := s.LoadPlacements(ctx, "factory")
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID, "position %d", i)
		assert.Equal(t, want[i].Type, got[i].Type)
		assert.True(t, want[i].Config.Equal(got[i].Config), "block %s config changed: %v", want[i].ID, got[i].Config)
	}
}

func TestSavePlacementsReplacesLayout(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePlacements(ctx, "a", testLayout()))
	require.NoError(t, s.SavePlacements(ctx, "a", testLayout()[:1]))

	got, err := s.LoadPlacements(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ir.BlockID("src"), got[0].ID)
}

func TestSavePlacementsIsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePlacements(ctx, "a", testLayout()))

	dup := append(testLayout(), ir.Placement{ID: "src", Type: "constant"})
	require.Error(t, s.SavePlacements(ctx, "a", dup))

	got, err := s.LoadPlacements(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got, 3, "failed save leaves the previous layout")
}

func TestSavePlacementsRequiresName(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.SavePlacements(context.Background(), "", nil))
}

func TestLoadPlacementsUnknownSlot(t *testing.T) {
	s := createTestStore(t)
	_, err := s.LoadPlacements(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestLoadPlacementsEmptySlot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePlacements(ctx, "empty", nil))

	got, err := s.LoadPlacements(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoadPlacementsDetectsTampering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePlacements(ctx, "a", testLayout()))

	_, err := s.db.Exec(`UPDATE placements SET config = '{"value":{"config":99,"type":"number"}}' WHERE block_id = 'src'`)
	require.NoError(t, err)

	_, err = s.LoadPlacements(ctx, "a")
	assert.ErrorIs(t, err, ErrConfigHashMismatch)
}

func TestStoredConfigIsCanonical(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePlacements(ctx, "a", testLayout()[:1]))

	var cfg, hash string
	require.NoError(t, s.db.QueryRow(`SELECT config, config_hash FROM placements WHERE block_id = 'src'`).Scan(&cfg, &hash))
	assert.Equal(t, `{"value":{"config":4.5,"type":"number"}}`, cfg)
	assert.Equal(t, ir.MustConfigHash(testLayout()[0].Config), hash)
}

func TestListSlots(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePlacements(ctx, "zeta", testLayout()))
	require.NoError(t, s.SavePlacements(ctx, "alpha", testLayout()[:2]))
	require.NoError(t, s.AppendEvents(ctx, "alpha", []synchronizer.Event{soundEvent(1, 1, "spk", true)}))
	require.NoError(t, s.SaveProgress(ctx, "alpha", 42, 1.4))

	slots, err := s.ListSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	assert.Equal(t, SlotInfo{
		Name:          "alpha",
		Placements:    2,
		Events:        1,
		Tick:          42,
		Elapsed:       1.4,
		ConfigVersion: ir.ConfigVersion,
		EngineVersion: ir.EngineVersion,
	}, slots[0])
	assert.Equal(t, "zeta", slots[1].Name)
	assert.Equal(t, 3, slots[1].Placements)
}

func TestListSlotsEmpty(t *testing.T) {
	s := createTestStore(t)
	slots, err := s.ListSlots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSaveProgressUnknownSlot(t *testing.T) {
	s := createTestStore(t)
	assert.ErrorIs(t, s.SaveProgress(context.Background(), "nope", 1, 0), ErrSlotNotFound)
}

func TestDeleteSlot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SavePlacements(ctx, "a", testLayout()))
	require.NoError(t, s.AppendEvents(ctx, "a", []synchronizer.Event{soundEvent(1, 1, "spk", true)}))

	require.NoError(t, s.DeleteSlot(ctx, "a"))
	_, err := s.Slot(ctx, "a")
	assert.ErrorIs(t, err, ErrSlotNotFound)

	events, err := s.ReadEvents(ctx, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.ErrorIs(t, s.DeleteSlot(ctx, "a"), ErrSlotNotFound)
}
