package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/raceweek/raceweek/internal/api"
	"github.com/raceweek/raceweek/internal/race"
	"github.com/raceweek/raceweek/pkg/core"
)

func roomID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRoomRequest
	if !decode(w, r, &req) {
		return
	}
	room, player, err := s.svc.CreateRoom(r.Context(), req.Username, req.Mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.Membership{Room: room, Player: player})
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req api.JoinRoomRequest
	if !decode(w, r, &req) {
		return
	}
	room, player, err := s.svc.JoinRoom(r.Context(), req.Code, req.Username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Membership{Room: room, Player: player})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	id := roomID(r)
	if s.cache != nil {
		if room, ok := s.cache.Room(id); ok {
			writeJSON(w, http.StatusOK, room)
			return
		}
	}
	room, err := s.svc.Room(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) getPlayers(w http.ResponseWriter, r *http.Request) {
	id := roomID(r)
	if s.cache != nil {
		if players, ok := s.cache.Players(id); ok {
			writeJSON(w, http.StatusOK, players)
			return
		}
	}
	players, err := s.svc.Players(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.cache != nil {
		s.cache.SeedPlayers(id, players)
		if cached, ok := s.cache.Players(id); ok {
			players = cached
		}
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Server) getStandings(w http.ResponseWriter, r *http.Request) {
	players, err := s.svc.Standings(r.Context(), roomID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Server) getDealer(w http.ResponseWriter, r *http.Request) {
	listings, err := s.svc.Dealer(r.Context(), roomID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.RaceResults(r.Context(), roomID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a number")
			return
		}
		limit = n
	}
	msgs, err := s.svc.Chat(r.Context(), roomID(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) startGame(w http.ResponseWriter, r *http.Request) {
	var req api.ActorRequest
	if !decode(w, r, &req) {
		return
	}
	room, err := s.svc.StartGame(r.Context(), roomID(r), req.ActorID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) advanceDay(w http.ResponseWriter, r *http.Request) {
	var req api.AdvanceRequest
	if !decode(w, r, &req) {
		return
	}
	room, err := s.svc.AdvanceDay(r.Context(), roomID(r), req.ActorID, req.ExpectedDay)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) runRace(w http.ResponseWriter, r *http.Request) {
	var req api.RaceRequest
	if !decode(w, r, &req) {
		return
	}
	weather, ok := parseWeather(req.Weather)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "unknown weather "+string(req.Weather))
		return
	}
	rec, err := s.svc.RunRace(r.Context(), roomID(r), req.ActorID, req.RaceID, req.TrackID, weather)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) resetToLobby(w http.ResponseWriter, r *http.Request) {
	var req api.ActorRequest
	if !decode(w, r, &req) {
		return
	}
	room, err := s.svc.ResetToLobby(r.Context(), roomID(r), req.ActorID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) submitEntry(w http.ResponseWriter, r *http.Request) {
	var req api.EntryRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := s.svc.SubmitRaceEntry(r.Context(), roomID(r), req.PlayerID, req.RaceID, req.VehicleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) buyVehicle(w http.ResponseWriter, r *http.Request) {
	var req api.BuyVehicleRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.svc.BuyVehicle(r.Context(), roomID(r), req.PlayerID, req.VehicleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) buyPart(w http.ResponseWriter, r *http.Request) {
	var req api.BuyPartRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.svc.BuyPart(r.Context(), roomID(r), req.PlayerID, req.VehicleID, req.PartID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) removePart(w http.ResponseWriter, r *http.Request) {
	var req api.RemovePartRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.svc.RemovePart(r.Context(), roomID(r), req.PlayerID, req.VehicleID, req.Index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) sendChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := s.svc.SendChat(r.Context(), roomID(r), req.PlayerID, req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	var req api.StatsRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.ComputeEffectiveStats(req.Vehicle))
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	var req api.SimulateRequest
	if !decode(w, r, &req) {
		return
	}
	track, ok := s.svc.Catalog().Track(req.TrackID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_track", "track "+req.TrackID)
		return
	}
	weather, ok := parseWeather(req.Weather)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "unknown weather "+string(req.Weather))
		return
	}
	entries := make([]race.Entry, 0, len(req.Vehicles))
	for _, v := range req.Vehicles {
		entries = append(entries, race.Entry{Vehicle: v, OwnerID: "player"})
	}
	writeJSON(w, http.StatusOK, s.svc.SimulateRace(entries, track, weather, req.IncludeFiller))
}

// parseWeather keeps an empty value empty so the service rolls the weather.
func parseWeather(w core.Weather) (core.Weather, bool) {
	if w == "" {
		return "", true
	}
	return core.ParseWeather(string(w))
}
