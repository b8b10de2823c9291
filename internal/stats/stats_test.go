package stats

import (
	"testing"

	"github.com/raceweek/raceweek/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseVehicle() core.Vehicle {
	return core.Vehicle{
		ID:    "v1",
		Name:  "Test Coupe",
		Class: "A",
		Stats: core.Stats{
			Power:        100,
			Torque:       150,
			TopSpeed:     180,
			Acceleration: 10,
			Handling:     50,
			Offroad:      20,
		},
	}
}

func TestEffectiveStats_NoParts(t *testing.T) {
	v := baseVehicle()
	assert.Equal(t, v.Stats, EffectiveStats(v))
}

func TestEffectiveStats_AbsoluteBoost(t *testing.T) {
	v := baseVehicle()
	v.Coefficients = &core.Stats{Power: 1}
	v.InstalledParts = []core.Part{{ID: "p1", Boosts: core.Boosts{Power: 10}}}

	assert.Equal(t, 110.0, EffectiveStats(v).Power)
}

func TestEffectiveStats_CoefficientScalesAbsolute(t *testing.T) {
	v := baseVehicle()
	v.Coefficients = &core.Stats{Power: 2}
	v.InstalledParts = []core.Part{{ID: "p1", Boosts: core.Boosts{Power: 10}}}

	got := EffectiveStats(v)
	assert.Equal(t, 120.0, got.Power)
	// unset coefficients behave as 1
	assert.Equal(t, 150.0, got.Torque)
}

func TestEffectiveStats_PercentIsAdditive(t *testing.T) {
	v := baseVehicle()
	v.InstalledParts = []core.Part{
		{ID: "p1", Boosts: core.Boosts{PowerPct: 10}},
		{ID: "p2", Boosts: core.Boosts{PowerPct: 10}},
	}
	assert.Equal(t, 120.0, EffectiveStats(v).Power)

	single := baseVehicle()
	single.InstalledParts = []core.Part{{ID: "p3", Boosts: core.Boosts{PowerPct: 20}}}
	assert.Equal(t, EffectiveStats(single), EffectiveStats(v))
}

func TestEffectiveStats_PercentAfterAbsolute(t *testing.T) {
	v := baseVehicle()
	v.InstalledParts = []core.Part{
		{ID: "p1", Boosts: core.Boosts{PowerPct: 10}},
		{ID: "p2", Boosts: core.Boosts{Power: 20}},
	}
	assert.Equal(t, 132.0, EffectiveStats(v).Power)
}

func TestEffectiveStats_AccelerationPercentIsFaster(t *testing.T) {
	v := baseVehicle()
	v.InstalledParts = []core.Part{{ID: "p1", Boosts: core.Boosts{AccelerationPct: 10}}}

	assert.Equal(t, 9.0, EffectiveStats(v).Acceleration)
}

func TestEffectiveStats_Clamps(t *testing.T) {
	v := baseVehicle()
	v.InstalledParts = []core.Part{{ID: "junk", Boosts: core.Boosts{
		Power:           -500,
		Torque:          -500,
		TopSpeed:        -500,
		Handling:        -500,
		Offroad:         -500,
		AccelerationPct: 99,
	}}}

	got := EffectiveStats(v)
	assert.Equal(t, float64(MinPower), got.Power)
	assert.Equal(t, float64(MinTorque), got.Torque)
	assert.Equal(t, float64(MinTopSpeed), got.TopSpeed)
	assert.Equal(t, MinAcceleration, got.Acceleration)
	assert.Equal(t, float64(HandlingFloor), got.Handling)
	assert.Equal(t, float64(HandlingFloor), got.Offroad)
}

func TestEffectiveStats_Rounding(t *testing.T) {
	v := baseVehicle()
	v.Stats.Acceleration = 9.87
	v.InstalledParts = []core.Part{{ID: "p1", Boosts: core.Boosts{Power: 0.4, TopSpeed: 0.6}}}

	got := EffectiveStats(v)
	assert.Equal(t, 100.0, got.Power)
	assert.Equal(t, 181.0, got.TopSpeed)
	assert.Equal(t, 9.9, got.Acceleration)
}

func TestEffectiveStats_DeterministicAndOrderIndependent(t *testing.T) {
	parts := []core.Part{
		{ID: "a", Boosts: core.Boosts{Power: 7, TorquePct: 3}},
		{ID: "b", Boosts: core.Boosts{PowerPct: 5, Handling: 4}},
		{ID: "c", Boosts: core.Boosts{TopSpeedPct: 2, AccelerationPct: 4, Offroad: 3}},
	}
	v := baseVehicle()
	v.Coefficients = &core.Stats{Power: 1.3, Torque: 0.8, TopSpeed: 1.1, Acceleration: 1.2, Handling: 1, Offroad: 0.9}
	v.InstalledParts = parts

	want := EffectiveStats(v)
	assert.Equal(t, want, EffectiveStats(v))

	orders := [][]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, order := range orders {
		p := baseVehicle()
		p.Coefficients = v.Coefficients
		for _, i := range order {
			p.InstalledParts = append(p.InstalledParts, parts[i])
		}
		assert.Equal(t, want, EffectiveStats(p), "order %v", order)
	}
}

func TestPartLimit(t *testing.T) {
	tests := []struct {
		class string
		want  int
	}{
		{"A", 16}, {"B", 14}, {"C", 12}, {"D", 10}, {"E", 8}, {"R", 6}, {"S", 4}, {"", 16}, {"X", 16},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PartLimit(tt.class), "class %q", tt.class)
	}
}

func TestCanInstall_SlotExclusivity(t *testing.T) {
	v := baseVehicle()
	tires := core.Part{ID: "tires-1", Slot: core.SlotTires}
	v, err := Install(v, tires, 0)
	require.NoError(t, err)

	before := len(v.InstalledParts)
	out, err := Install(v, core.Part{ID: "tires-2", Slot: core.SlotTires}, 0)
	require.Error(t, err)

	var ie *InstallError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ReasonSlotOccupied, ie.Reason)
	assert.Len(t, out.InstalledParts, before)
	assert.Len(t, v.InstalledParts, before)
}

func TestCanInstall_Prerequisite(t *testing.T) {
	v := baseVehicle()
	turbo := core.Part{ID: "turbo-1", Slot: core.SlotTurbo, Requires: core.SlotIntercooler}

	err := CanInstall(v, turbo, 0)
	var ie *InstallError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ReasonMissingPrerequisite, ie.Reason)
	assert.Equal(t, core.SlotIntercooler, ie.Slot)

	v, err = Install(v, core.Part{ID: "ic-1", Slot: core.SlotIntercooler}, 0)
	require.NoError(t, err)
	assert.NoError(t, CanInstall(v, turbo, 0))
}

func TestCanInstall_PartLimit(t *testing.T) {
	v := baseVehicle()
	v.Class = "S"
	for _, id := range []string{"a", "b", "c", "d"} {
		var err error
		v, err = Install(v, core.Part{ID: id}, 0)
		require.NoError(t, err)
	}

	err := CanInstall(v, core.Part{ID: "e"}, 0)
	var ie *InstallError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ReasonPartLimit, ie.Reason)
	assert.Equal(t, 4, ie.Limit)

	assert.NoError(t, CanInstall(v, core.Part{ID: "e"}, 5))
}

func TestCanInstall_Duplicate(t *testing.T) {
	v := baseVehicle()
	p := core.Part{ID: "filter"}
	v, err := Install(v, p, 0)
	require.NoError(t, err)

	err = CanInstall(v, p, 0)
	var ie *InstallError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ReasonAlreadyInstalled, ie.Reason)
}

func TestInstall_DoesNotMutateInput(t *testing.T) {
	v := baseVehicle()
	v.InstalledParts = make([]core.Part, 0, 4)

	out, err := Install(v, core.Part{ID: "p1"}, 0)
	require.NoError(t, err)
	assert.Empty(t, v.InstalledParts)
	assert.Len(t, out.InstalledParts, 1)
}

func TestRemove(t *testing.T) {
	v := baseVehicle()
	v.InstalledParts = []core.Part{
		{ID: "ic", Slot: core.SlotIntercooler},
		{ID: "turbo", Slot: core.SlotTurbo, Requires: core.SlotIntercooler},
		{ID: "filter"},
	}

	_, _, err := Remove(v, 0)
	var ie *InstallError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ReasonRequiredBy, ie.Reason)

	out, removed, err := Remove(v, 1)
	require.NoError(t, err)
	assert.Equal(t, "turbo", removed.ID)
	assert.Len(t, out.InstalledParts, 2)
	assert.Len(t, v.InstalledParts, 3)
	assert.Equal(t, "turbo", v.InstalledParts[1].ID)

	out, removed, err = Remove(out, 0)
	require.NoError(t, err)
	assert.Equal(t, "ic", removed.ID)
	assert.Equal(t, "filter", out.InstalledParts[0].ID)

	_, _, err = Remove(out, 5)
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ReasonNoSuchPart, ie.Reason)
}
