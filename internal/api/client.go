package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raceweek/raceweek/pkg/core"
)

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Reason  string
	Message string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Reason, e.Message, e.Status)
}

// Client talks to the raceweek HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the server address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Healthcheck checks if the server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthcheck", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		var er ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil {
			apiErr.Reason = er.Reason
			apiErr.Message = er.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func roomPath(roomID string, parts ...string) string {
	return "/rooms/" + url.PathEscape(roomID) + strings.Join(parts, "")
}

// CreateRoom opens a room with username as host.
func (c *Client) CreateRoom(ctx context.Context, username string, mode core.RoomMode) (Membership, error) {
	var m Membership
	err := c.do(ctx, http.MethodPost, "/rooms", CreateRoomRequest{Username: username, Mode: mode}, &m)
	return m, err
}

// JoinRoom joins the waiting room with the given code.
func (c *Client) JoinRoom(ctx context.Context, code, username string) (Membership, error) {
	var m Membership
	err := c.do(ctx, http.MethodPost, "/rooms/join", JoinRoomRequest{Code: code, Username: username}, &m)
	return m, err
}

func (c *Client) Room(ctx context.Context, roomID string) (core.Room, error) {
	var room core.Room
	err := c.do(ctx, http.MethodGet, roomPath(roomID), nil, &room)
	return room, err
}

func (c *Client) Players(ctx context.Context, roomID string) ([]core.Player, error) {
	var players []core.Player
	err := c.do(ctx, http.MethodGet, roomPath(roomID, "/players"), nil, &players)
	return players, err
}

func (c *Client) Standings(ctx context.Context, roomID string) ([]core.Player, error) {
	var players []core.Player
	err := c.do(ctx, http.MethodGet, roomPath(roomID, "/standings"), nil, &players)
	return players, err
}

func (c *Client) Dealer(ctx context.Context, roomID string) ([]Listing, error) {
	var listings []Listing
	err := c.do(ctx, http.MethodGet, roomPath(roomID, "/dealer"), nil, &listings)
	return listings, err
}

func (c *Client) Results(ctx context.Context, roomID string) ([]core.RaceRecord, error) {
	var recs []core.RaceRecord
	err := c.do(ctx, http.MethodGet, roomPath(roomID, "/results"), nil, &recs)
	return recs, err
}

func (c *Client) StartGame(ctx context.Context, roomID, actorID string) (core.Room, error) {
	var room core.Room
	err := c.do(ctx, http.MethodPost, roomPath(roomID, "/start"), ActorRequest{ActorID: actorID}, &room)
	return room, err
}

func (c *Client) AdvanceDay(ctx context.Context, roomID, actorID string, expectedDay int) (core.Room, error) {
	var room core.Room
	err := c.do(ctx, http.MethodPost, roomPath(roomID, "/advance"), AdvanceRequest{ActorID: actorID, ExpectedDay: expectedDay}, &room)
	return room, err
}

func (c *Client) RunRace(ctx context.Context, roomID string, req RaceRequest) (core.RaceRecord, error) {
	var rec core.RaceRecord
	err := c.do(ctx, http.MethodPost, roomPath(roomID, "/race"), req, &rec)
	return rec, err
}

func (c *Client) ResetToLobby(ctx context.Context, roomID, actorID string) (core.Room, error) {
	var room core.Room
	err := c.do(ctx, http.MethodPost, roomPath(roomID, "/reset"), ActorRequest{ActorID: actorID}, &room)
	return room, err
}

func (c *Client) SubmitEntry(ctx context.Context, roomID string, req EntryRequest) (core.RaceEntry, error) {
	var e core.RaceEntry
	err := c.do(ctx, http.MethodPost, roomPath(roomID, "/entries"), req, &e)
	return e, err
}

func (c *Client) BuyVehicle(ctx context.Context, roomID, playerID, vehicleID string) (core.Player, error) {
	var p core.Player
	err := c.do(ctx, http.MethodPost, roomPath(roomID, "/vehicles"), BuyVehicleRequest{PlayerID: playerID, VehicleID: vehicleID}, &p)
	return p, err
}

func (c *Client) BuyPart(ctx context.Context, roomID string, req BuyPartRequest) (core.Player, error) {
	var p core.Player
	err := c.do(ctx, http.MethodPost, roomPath(roomID, "/parts"), req, &p)
	return p, err
}

func (c *Client) RemovePart(ctx context.Context, roomID string, req RemovePartRequest) (core.Player, error) {
	var p core.Player
	err := c.do(ctx, http.MethodDelete, roomPath(roomID, "/parts"), req, &p)
	return p, err
}

// Chat returns the latest messages, oldest first. A limit <= 0 uses the
// server default.
func (c *Client) Chat(ctx context.Context, roomID string, limit int) ([]core.ChatMessage, error) {
	path := roomPath(roomID, "/chat")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var msgs []core.ChatMessage
	err := c.do(ctx, http.MethodGet, path, nil, &msgs)
	return msgs, err
}

func (c *Client) SendChat(ctx context.Context, roomID, playerID, message string) (core.ChatMessage, error) {
	var msg core.ChatMessage
	err := c.do(ctx, http.MethodPost, roomPath(roomID, "/chat"), ChatRequest{PlayerID: playerID, Message: message}, &msg)
	return msg, err
}

// Stats computes the effective stats of a vehicle.
func (c *Client) Stats(ctx context.Context, v core.Vehicle) (core.Stats, error) {
	var s core.Stats
	err := c.do(ctx, http.MethodPost, "/stats", StatsRequest{Vehicle: v}, &s)
	return s, err
}

// Simulate runs a race outside any room.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) ([]core.RaceResult, error) {
	var results []core.RaceResult
	err := c.do(ctx, http.MethodPost, "/simulate", req, &results)
	return results, err
}

// StreamURL returns the websocket address for a room's event stream.
func (c *Client) StreamURL(roomID string) string {
	u := c.baseURL + roomPath(roomID, "/ws")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
