package schedule

import (
	"testing"
	"time"

	"github.com/raceweek/raceweek/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestLookup_OpeningWeekend(t *testing.T) {
	assert.Equal(t, ActivityTuning, Lookup(1).Activity)
	assert.Equal(t, RaceQualification, Lookup(2).RaceType)
	assert.Equal(t, ActivityDealer, Lookup(3).Activity)
	assert.False(t, Lookup(3).AdvancesYear)
}

func TestLookup_NonPositiveDay(t *testing.T) {
	assert.Equal(t, Lookup(1), Lookup(0))
	assert.Equal(t, Lookup(1), Lookup(-3))
}

func TestLookup_Cycles(t *testing.T) {
	for d := 4; d <= 10; d++ {
		assert.Equal(t, Lookup(d), Lookup(d+7), "day %d", d)
		assert.Equal(t, Lookup(d), Lookup(d+70), "day %d", d)
	}
	assert.Equal(t, 4, Lookup(11).Day)
	assert.Equal(t, 10, Lookup(17).Day)
}

func TestWeekly_Table(t *testing.T) {
	a := assert.New(t)
	a.Len(Weekly.Entries, 10)

	races := map[int]RaceType{2: RaceQualification, 5: RaceCity, 7: RaceNational, 9: RaceWorld}
	for _, e := range Weekly.Entries {
		if rt, ok := races[e.Day]; ok {
			a.Equal(ActivityRace, e.Activity, "day %d", e.Day)
			a.Equal(rt, e.RaceType, "day %d", e.Day)
		} else {
			a.NotEqual(ActivityRace, e.Activity, "day %d", e.Day)
		}
	}
	a.Equal(time.Friday, Weekly.Entries[0].Weekday)
	a.Equal(time.Sunday, Weekly.Entries[9].Weekday)
	a.True(Weekly.Entries[9].AdvancesYear)
}

func TestPhaseFor(t *testing.T) {
	assert.Equal(t, core.PhaseTuning, PhaseFor(Lookup(1)))
	assert.Equal(t, core.PhaseRaceSetup, PhaseFor(Lookup(2)))
	assert.Equal(t, core.PhaseDealer, PhaseFor(Lookup(3)))
}

func TestNext(t *testing.T) {
	tests := []struct {
		name      string
		day, year int
		want      Transition
	}{
		{"start to qualification", 1, 1960, Transition{Day: 2, Year: 1960, Phase: core.PhaseRaceSetup}},
		{"opening sunday keeps year", 2, 1960, Transition{Day: 3, Year: 1960, Phase: core.PhaseDealer}},
		{"monday", 3, 1960, Transition{Day: 4, Year: 1960, Phase: core.PhaseTuning}},
		{"year change", 9, 1960, Transition{Day: 10, Year: 1962, Phase: core.PhaseDealer}},
		{"second cycle year change", 16, 1962, Transition{Day: 17, Year: 1964, Phase: core.PhaseDealer}},
		{"final year holds", 9, 2024, Transition{Day: 10, Year: 2024, Phase: core.PhaseDealer}},
		{"wraps to monday", 10, 1962, Transition{Day: 11, Year: 1962, Phase: core.PhaseTuning}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Weekly.Next(tt.day, tt.year)
			assert.Equal(t, tt.want.Day, got.Day)
			assert.Equal(t, tt.want.Year, got.Year)
			assert.Equal(t, tt.want.Phase, got.Phase)
		})
	}
}

func TestQuick(t *testing.T) {
	assert.Equal(t, Quick, ForMode(core.ModeQuick))
	assert.Equal(t, Weekly.Name, ForMode(core.ModeWeekly).Name)

	next := Quick.Next(0, 1960)
	assert.Equal(t, 1, next.Day)
	assert.Equal(t, core.PhaseRaceSetup, next.Phase)
	assert.Equal(t, ActivityRace, Quick.Lookup(5).Activity)
}

func TestNextYear(t *testing.T) {
	assert.Equal(t, 1962, NextYear(1960))
	assert.Equal(t, 2024, NextYear(2022))
	assert.Equal(t, 2024, NextYear(2024))
	assert.Equal(t, 1961, NextYear(1961))
	assert.Len(t, Years, 33)
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, "0-120", CategoryFor(80).Label)
	assert.Equal(t, "121-200", CategoryFor(121).Label)
	assert.Equal(t, "451-650", CategoryFor(650).Label)
	assert.Equal(t, "900+", CategoryFor(5000).Label)
}
