package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/internal/stats"
	"github.com/raceweek/raceweek/pkg/core"
)

// Listing is a dealer vehicle with its remaining stock. Remaining is -1 for
// unlimited vehicles.
type Listing struct {
	Vehicle   core.Vehicle `json:"vehicle"`
	Remaining int          `json:"remaining"`
}

func remaining(v core.Vehicle, sold int) int {
	if v.Quantity <= 0 {
		return -1
	}
	if left := v.Quantity - sold; left > 0 {
		return left
	}
	return 0
}

// Dealer lists the vehicles the room's year unlocks, with stock left.
func (s *Service) Dealer(ctx context.Context, roomID string) ([]Listing, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.PurchaseCounts(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("dealer: %w", err)
	}
	vehicles := s.catalog.DealerVehicles(room.CurrentYear)
	out := make([]Listing, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, Listing{Vehicle: v, Remaining: remaining(v, counts[v.ID])})
	}
	return out, nil
}

// PurchaseCounts returns dealer sales per catalog vehicle.
func (s *Service) PurchaseCounts(ctx context.Context, roomID string) (map[string]int, error) {
	if _, err := s.loadRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.PurchaseCounts(ctx, roomID)
}

// RaceResults lists the room's stored races in the order they ran.
func (s *Service) RaceResults(ctx context.Context, roomID string) ([]core.RaceRecord, error) {
	if _, err := s.loadRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.RaceResults(ctx, roomID)
}

// BuyVehicle sells a dealer vehicle to the player.
func (s *Service) BuyVehicle(ctx context.Context, roomID, playerID, catalogID string) (core.Player, error) {
	unlock := s.lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return core.Player{}, err
	}
	if err := requirePlaying(room); err != nil {
		return core.Player{}, err
	}
	if room.Mode == core.ModeWeekly && room.Phase != core.PhaseDealer {
		return core.Player{}, reject(ReasonWrongPhase, "dealers are closed today")
	}
	v, ok := s.catalog.Vehicle(catalogID)
	if !ok {
		return core.Player{}, reject(ReasonUnknownVehicle, "vehicle %s", catalogID)
	}
	if v.Year > room.CurrentYear {
		return core.Player{}, reject(ReasonVehicleLocked, "%s is available from %d", v.Name, v.Year)
	}
	p, err := s.loadPlayer(ctx, roomID, playerID)
	if err != nil {
		return core.Player{}, err
	}
	if p.Money < v.Price {
		return core.Player{}, reject(ReasonInsufficientFunds, "%s costs %d, you have %d", v.Name, v.Price, p.Money)
	}
	if p.Owns(catalogID) {
		return core.Player{}, reject(ReasonAlreadyOwned, "you already own a %s", v.Name)
	}
	if v.Quantity > 0 {
		counts, err := s.store.PurchaseCounts(ctx, roomID)
		if err != nil {
			return core.Player{}, fmt.Errorf("buy vehicle: %w", err)
		}
		if counts[catalogID] >= v.Quantity {
			return core.Player{}, reject(ReasonOutOfStock, "%s is sold out", v.Name)
		}
	}

	owned := v.Clone()
	owned.CatalogID = v.ID
	owned.ID = s.ids()
	owned.InstalledParts = nil
	p.Money -= v.Price
	p.Garage = append(p.Garage, owned)

	log := core.PurchaseLog{
		ID:        s.ids(),
		RoomID:    roomID,
		PlayerID:  playerID,
		CatalogID: catalogID,
		CreatedAt: s.now(),
	}
	if err := s.store.CommitPurchase(ctx, p, log); err != nil {
		return core.Player{}, fmt.Errorf("buy vehicle: %w", err)
	}

	s.log.DebugContext(ctx, "Vehicle bought", "room", roomID, "player", playerID, "vehicle", catalogID, "price", v.Price)
	s.publish(ctx, realtime.PlayerUpdated(p), realtime.PurchaseLogged(log))
	return p, nil
}

func installRejection(err error) error {
	var ie *stats.InstallError
	if errors.As(err, &ie) {
		return &Rejection{Reason: Reason(ie.Reason), Detail: ie.Error(), Err: ie}
	}
	return err
}

// BuyPart buys a shop part and installs it on one of the player's vehicles.
// Each vehicle may visit one shop brand per day.
func (s *Service) BuyPart(ctx context.Context, roomID, playerID, vehicleID, partID string) (core.Player, error) {
	unlock := s.lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return core.Player{}, err
	}
	if err := requirePlaying(room); err != nil {
		return core.Player{}, err
	}
	if room.Mode == core.ModeWeekly && room.Phase != core.PhaseTuning {
		return core.Player{}, reject(ReasonWrongPhase, "shops are closed today")
	}
	part, ok := s.catalog.Part(partID)
	if !ok {
		return core.Player{}, reject(ReasonUnknownPart, "part %s", partID)
	}
	if !s.catalog.ShopUnlocked(part.Brand, room.CurrentYear) {
		return core.Player{}, reject(ReasonShopLocked, "%s is not open in %d", part.Brand, room.CurrentYear)
	}
	p, err := s.loadPlayer(ctx, roomID, playerID)
	if err != nil {
		return core.Player{}, err
	}
	v, idx, ok := p.Vehicle(vehicleID)
	if !ok {
		return core.Player{}, reject(ReasonVehicleNotInGarage, "vehicle %s", vehicleID)
	}
	if visited := p.ShopVisits[vehicleID]; visited != "" && visited != part.Brand {
		return core.Player{}, reject(ReasonShopVisitLocked, "%s already visited %s today", v.Name, visited)
	}
	if p.Money < part.Price {
		return core.Player{}, reject(ReasonInsufficientFunds, "%s costs %d, you have %d", part.Name, part.Price, p.Money)
	}
	upgraded, err := stats.Install(v, part, 0)
	if err != nil {
		return core.Player{}, installRejection(err)
	}

	p.Money -= part.Price
	p.Garage[idx] = upgraded
	p.ShopVisits[vehicleID] = part.Brand

	if err := s.store.UpdatePlayer(ctx, p); err != nil {
		return core.Player{}, fmt.Errorf("buy part: %w", err)
	}
	s.log.DebugContext(ctx, "Part installed", "room", roomID, "player", playerID, "vehicle", vehicleID, "part", partID)
	s.publish(ctx, realtime.PlayerUpdated(p))
	return p, nil
}

// RemovePart takes the part at index off a vehicle. Removed parts are not
// refunded.
func (s *Service) RemovePart(ctx context.Context, roomID, playerID, vehicleID string, index int) (core.Player, error) {
	unlock := s.lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return core.Player{}, err
	}
	if err := requirePlaying(room); err != nil {
		return core.Player{}, err
	}
	if room.Mode == core.ModeWeekly && room.Phase != core.PhaseTuning {
		return core.Player{}, reject(ReasonWrongPhase, "garages are closed today")
	}
	p, err := s.loadPlayer(ctx, roomID, playerID)
	if err != nil {
		return core.Player{}, err
	}
	v, idx, ok := p.Vehicle(vehicleID)
	if !ok {
		return core.Player{}, reject(ReasonVehicleNotInGarage, "vehicle %s", vehicleID)
	}
	stripped, _, err := stats.Remove(v, index)
	if err != nil {
		return core.Player{}, installRejection(err)
	}
	p.Garage[idx] = stripped

	if err := s.store.UpdatePlayer(ctx, p); err != nil {
		return core.Player{}, fmt.Errorf("remove part: %w", err)
	}
	s.publish(ctx, realtime.PlayerUpdated(p))
	return p, nil
}
