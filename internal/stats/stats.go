// Package stats computes effective vehicle performance and validates part
// installation.
package stats

import (
	"fmt"
	"math"

	"github.com/raceweek/raceweek/pkg/core"
)

// Stat floors applied after all boosts.
const (
	MinPower        = 1
	MinTorque       = 1
	MinTopSpeed     = 10
	MinAcceleration = 0.5
	HandlingFloor   = 0
)

// DefaultPartLimit applies to vehicles with an unknown class.
const DefaultPartLimit = 16

var classPartLimits = map[string]int{
	"A": 16,
	"B": 14,
	"C": 12,
	"D": 10,
	"E": 8,
	"R": 6,
	"S": 4,
}

// PartLimit returns the maximum number of installed parts for a vehicle class.
func PartLimit(class string) int {
	if n, ok := classPartLimits[class]; ok {
		return n
	}
	return DefaultPartLimit
}

// EffectiveStats returns the vehicle's stats after applying installed parts.
//
// Absolute boosts are scaled by the vehicle coefficient and added. Percent
// boosts are summed per stat across all parts, then applied once, also scaled
// by the coefficient. The result does not depend on the order of installed
// parts.
func EffectiveStats(v core.Vehicle) core.Stats {
	out := v.Stats
	var pct core.Stats

	for _, p := range v.InstalledParts {
		abs := p.Boosts.Absolute()
		per := p.Boosts.Percent()
		for _, t := range core.StatTypes {
			if d := abs.Get(t); d != 0 {
				out.Set(t, out.Get(t)+d*v.Coefficient(t))
			}
			if d := per.Get(t); d != 0 {
				pct.Set(t, pct.Get(t)+d)
			}
		}
	}

	for _, t := range core.StatTypes {
		sum := pct.Get(t)
		if sum == 0 {
			continue
		}
		factor := sum * v.Coefficient(t) / 100
		if t == core.StatAcceleration {
			out.Set(t, out.Get(t)*(1-factor))
		} else {
			out.Set(t, out.Get(t)*(1+factor))
		}
	}

	out.Power = math.Max(MinPower, math.Round(out.Power))
	out.Torque = math.Max(MinTorque, math.Round(out.Torque))
	out.TopSpeed = math.Max(MinTopSpeed, math.Round(out.TopSpeed))
	out.Acceleration = math.Max(MinAcceleration, math.Round(out.Acceleration*10)/10)
	out.Handling = math.Max(HandlingFloor, math.Round(out.Handling))
	out.Offroad = math.Max(HandlingFloor, math.Round(out.Offroad))
	return out
}

// Reasons reported by InstallError.
const (
	ReasonMissingPrerequisite = "missing_prerequisite"
	ReasonPartLimit           = "part_limit"
	ReasonSlotOccupied        = "slot_occupied"
	ReasonAlreadyInstalled    = "already_installed"
	ReasonRequiredBy          = "required_by"
	ReasonNoSuchPart          = "no_such_part"
)

// InstallError explains why a part cannot be installed or removed.
type InstallError struct {
	Reason string
	PartID string
	Slot   core.Slot
	Limit  int
}

func (e *InstallError) Error() string {
	switch e.Reason {
	case ReasonMissingPrerequisite:
		return fmt.Sprintf("part %s requires %s", e.PartID, e.Slot)
	case ReasonPartLimit:
		return fmt.Sprintf("part limit %d reached", e.Limit)
	case ReasonSlotOccupied:
		return fmt.Sprintf("slot %s is occupied", e.Slot)
	case ReasonAlreadyInstalled:
		return fmt.Sprintf("part %s is already installed", e.PartID)
	case ReasonRequiredBy:
		return fmt.Sprintf("slot %s is required by another part", e.Slot)
	case ReasonNoSuchPart:
		return "no installed part at that position"
	}
	return e.Reason
}

// CanInstall checks whether p can be installed on v.
// A limit <= 0 uses the vehicle's class limit.
func CanInstall(v core.Vehicle, p core.Part, limit int) error {
	if limit <= 0 {
		limit = PartLimit(v.Class)
	}
	if p.Requires != core.SlotNone && !v.HasSlot(p.Requires) {
		return &InstallError{Reason: ReasonMissingPrerequisite, PartID: p.ID, Slot: p.Requires}
	}
	if len(v.InstalledParts) >= limit {
		return &InstallError{Reason: ReasonPartLimit, PartID: p.ID, Limit: limit}
	}
	if v.HasSlot(p.Slot) {
		return &InstallError{Reason: ReasonSlotOccupied, PartID: p.ID, Slot: p.Slot}
	}
	for _, installed := range v.InstalledParts {
		if installed.ID == p.ID {
			return &InstallError{Reason: ReasonAlreadyInstalled, PartID: p.ID}
		}
	}
	return nil
}

// Install returns a copy of v with p appended to its installed parts.
// v itself is never modified.
func Install(v core.Vehicle, p core.Part, limit int) (core.Vehicle, error) {
	if err := CanInstall(v, p, limit); err != nil {
		return v, err
	}
	out := v.Clone()
	out.InstalledParts = append(out.InstalledParts, p)
	return out, nil
}

// Remove returns a copy of v without the part at index, and the removed part.
// A part whose slot is still required by another installed part cannot be
// removed.
func Remove(v core.Vehicle, index int) (core.Vehicle, core.Part, error) {
	if index < 0 || index >= len(v.InstalledParts) {
		return v, core.Part{}, &InstallError{Reason: ReasonNoSuchPart}
	}
	removed := v.InstalledParts[index]

	if removed.Slot != core.SlotNone {
		for i, p := range v.InstalledParts {
			if i != index && p.Requires == removed.Slot {
				return v, core.Part{}, &InstallError{Reason: ReasonRequiredBy, PartID: p.ID, Slot: removed.Slot}
			}
		}
	}

	out := v.Clone()
	out.InstalledParts = append(out.InstalledParts[:index], out.InstalledParts[index+1:]...)
	return out, removed, nil
}
