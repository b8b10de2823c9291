// Package schedule holds the recurring day tables rooms advance through.
package schedule

import (
	"time"

	"github.com/raceweek/raceweek/pkg/core"
)

// Activity is what players do on a schedule day.
type Activity string

const (
	ActivityTuning Activity = "TUNING"
	ActivityRace   Activity = "RACE"
	ActivityDealer Activity = "DEALER"
)

// RaceType names the competition held on a race day.
type RaceType string

const (
	RaceNone          RaceType = ""
	RaceQualification RaceType = "QUALIFICATION"
	RaceCity          RaceType = "CITY"
	RaceNational      RaceType = "NATIONAL"
	RaceWorld         RaceType = "WORLD"
)

// Entry is one day of a schedule table.
type Entry struct {
	Day          int          `json:"day"`
	Weekday      time.Weekday `json:"weekday"`
	Activity     Activity     `json:"activity"`
	RaceType     RaceType     `json:"raceType,omitempty"`
	AdvancesYear bool         `json:"advancesYear,omitempty"`
}

// Table is an ordered list of schedule days. Days 1..CycleStart-1 are played
// once; the remainder repeats.
type Table struct {
	Name       string
	Entries    []Entry
	CycleStart int
	// ResetAllowed permits returning a finished room to the lobby.
	ResetAllowed bool
}

// Weekly is the ten-day table: a three-day opening weekend followed by a
// repeating seven-day week ending in the year change.
var Weekly = Table{
	Name: "weekly",
	Entries: []Entry{
		{Day: 1, Weekday: time.Friday, Activity: ActivityTuning},
		{Day: 2, Weekday: time.Saturday, Activity: ActivityRace, RaceType: RaceQualification},
		{Day: 3, Weekday: time.Sunday, Activity: ActivityDealer},
		{Day: 4, Weekday: time.Monday, Activity: ActivityTuning},
		{Day: 5, Weekday: time.Tuesday, Activity: ActivityRace, RaceType: RaceCity},
		{Day: 6, Weekday: time.Wednesday, Activity: ActivityTuning},
		{Day: 7, Weekday: time.Thursday, Activity: ActivityRace, RaceType: RaceNational},
		{Day: 8, Weekday: time.Friday, Activity: ActivityTuning},
		{Day: 9, Weekday: time.Saturday, Activity: ActivityRace, RaceType: RaceWorld},
		{Day: 10, Weekday: time.Sunday, Activity: ActivityDealer, AdvancesYear: true},
	},
	CycleStart: 4,
}

// Quick is the single-race table used by quick matches.
var Quick = Table{
	Name: "quick",
	Entries: []Entry{
		{Day: 1, Activity: ActivityRace, RaceType: RaceQualification},
	},
	CycleStart:   1,
	ResetAllowed: true,
}

// ForMode returns the table a room mode follows.
func ForMode(m core.RoomMode) Table {
	if m == core.ModeQuick {
		return Quick
	}
	return Weekly
}

// Lookup returns the schedule entry for an absolute day number. Days before
// the cycle map directly; later days wrap around the cycle. Days <= 0 map to
// day 1.
func (t Table) Lookup(day int) Entry {
	if day <= 0 {
		day = 1
	}
	if day < t.CycleStart || t.CycleStart <= 0 {
		if day > len(t.Entries) {
			day = len(t.Entries)
		}
		return t.Entries[day-1]
	}
	cycleLen := len(t.Entries) - t.CycleStart + 1
	idx := (day-t.CycleStart)%cycleLen + t.CycleStart
	return t.Entries[idx-1]
}

// Lookup resolves a day on the Weekly table.
func Lookup(day int) Entry {
	return Weekly.Lookup(day)
}

// PhaseFor returns the room phase a schedule day opens in.
func PhaseFor(e Entry) core.Phase {
	switch e.Activity {
	case ActivityRace:
		return core.PhaseRaceSetup
	case ActivityDealer:
		return core.PhaseDealer
	default:
		return core.PhaseTuning
	}
}

// Transition is the result of moving a room to its next day.
type Transition struct {
	Day   int
	Year  int
	Phase core.Phase
	Entry Entry
}

// Next computes the day, year and phase following currentDay. The year
// advances only on a year-changing day after the opening weekend.
func (t Table) Next(currentDay, currentYear int) Transition {
	next := currentDay + 1
	e := t.Lookup(next)
	year := currentYear
	if e.AdvancesYear && next > 3 {
		year = NextYear(year)
	}
	return Transition{Day: next, Year: year, Phase: PhaseFor(e), Entry: e}
}
