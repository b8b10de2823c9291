package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raceweek/raceweek/internal/api"
	"github.com/raceweek/raceweek/internal/realtime/websocket"
	"github.com/raceweek/raceweek/pkg/core"
)

const usage = `usage: raceweekctl <command> [flags]

commands:
  health                         check the server
  create  -user NAME [-mode M]   create a room
  join    -code C -user NAME     join a room
  room    -room ID               show room, players and standings
  start   -room ID -actor ID     start the game
  advance -room ID -actor ID     advance one day
  race    -room ID -actor ID     run the day's race
  enter   -room ID -player ID -vehicle ID
  buy     -room ID -player ID -vehicle ID [-part ID]
  say     -room ID -player ID -msg TEXT
  watch   -room ID               stream room events
  host    -room ID -actor ID     advance the room at the nightly trigger
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "health":
		err = healthCmd(ctx, args)
	case "create":
		err = createCmd(ctx, args)
	case "join":
		err = joinCmd(ctx, args)
	case "room":
		err = roomCmd(ctx, args)
	case "start":
		err = startCmd(ctx, args)
	case "advance":
		err = advanceCmd(ctx, args)
	case "race":
		err = raceCmd(ctx, args)
	case "enter":
		err = enterCmd(ctx, args)
	case "buy":
		err = buyCmd(ctx, args)
	case "say":
		err = sayCmd(ctx, args)
	case "watch":
		err = watchCmd(ctx, args)
	case "host":
		err = hostCmd(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, cmd+":", err)
		os.Exit(1)
	}
}

type common struct {
	server *string
	apiKey *string
}

func newFlags(name string) (*flag.FlagSet, common) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	server := os.Getenv("RACEWEEK_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	return fs, common{
		server: fs.String("server", server, "server base URL"),
		apiKey: fs.String("key", os.Getenv("RACEWEEK_API_KEY"), "API key for mutating requests"),
	}
}

func (c common) client() *api.Client {
	return api.New(*c.server, *c.apiKey)
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing -%s", name)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func healthCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("health")
	_ = fs.Parse(args)
	if err := c.client().Healthcheck(ctx); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func createCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("create")
	user := fs.String("user", "", "username")
	mode := fs.String("mode", string(core.ModeWeekly), "WEEKLY or QUICK")
	_ = fs.Parse(args)
	if err := required("user", *user); err != nil {
		return err
	}
	m, err := c.client().CreateRoom(ctx, *user, core.RoomMode(strings.ToUpper(*mode)))
	if err != nil {
		return err
	}
	return printJSON(m)
}

func joinCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("join")
	code := fs.String("code", "", "room code")
	user := fs.String("user", "", "username")
	_ = fs.Parse(args)
	if err := required("code", *code); err != nil {
		return err
	}
	if err := required("user", *user); err != nil {
		return err
	}
	m, err := c.client().JoinRoom(ctx, *code, *user)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func roomCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("room")
	roomID := fs.String("room", "", "room id")
	_ = fs.Parse(args)
	if err := required("room", *roomID); err != nil {
		return err
	}
	cl := c.client()
	room, err := cl.Room(ctx, *roomID)
	if err != nil {
		return err
	}
	standings, err := cl.Standings(ctx, *roomID)
	if err != nil {
		return err
	}
	return printJSON(struct {
		Room      core.Room     `json:"room"`
		Standings []core.Player `json:"standings"`
	}{room, standings})
}

func startCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("start")
	roomID := fs.String("room", "", "room id")
	actor := fs.String("actor", "", "host player id")
	_ = fs.Parse(args)
	if err := required("room", *roomID); err != nil {
		return err
	}
	room, err := c.client().StartGame(ctx, *roomID, *actor)
	if err != nil {
		return err
	}
	return printJSON(room)
}

func advanceCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("advance")
	roomID := fs.String("room", "", "room id")
	actor := fs.String("actor", "", "host player id")
	expected := fs.Int("day", 0, "expected current day (default: read from the server)")
	_ = fs.Parse(args)
	if err := required("room", *roomID); err != nil {
		return err
	}
	cl := c.client()
	day := *expected
	if day == 0 {
		room, err := cl.Room(ctx, *roomID)
		if err != nil {
			return err
		}
		day = room.CurrentDay
	}
	room, err := cl.AdvanceDay(ctx, *roomID, *actor, day)
	if err != nil {
		return err
	}
	return printJSON(room)
}

func raceCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("race")
	roomID := fs.String("room", "", "room id")
	actor := fs.String("actor", "", "host player id")
	raceID := fs.String("race", "", "race id (default: the day's race)")
	track := fs.String("track", "", "track id (default: rotation)")
	weather := fs.String("weather", "", "CLEAR, RAIN or STORM (default: rolled)")
	_ = fs.Parse(args)
	if err := required("room", *roomID); err != nil {
		return err
	}
	var w core.Weather
	if *weather != "" {
		parsed, ok := core.ParseWeather(*weather)
		if !ok {
			return fmt.Errorf("unknown weather %q", *weather)
		}
		w = parsed
	}
	rec, err := c.client().RunRace(ctx, *roomID, api.RaceRequest{
		ActorID: *actor,
		RaceID:  *raceID,
		TrackID: *track,
		Weather: w,
	})
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func enterCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("enter")
	roomID := fs.String("room", "", "room id")
	player := fs.String("player", "", "player id")
	vehicle := fs.String("vehicle", "", "garage vehicle id")
	raceID := fs.String("race", "", "race id (default: the day's race)")
	_ = fs.Parse(args)
	if err := required("room", *roomID); err != nil {
		return err
	}
	entry, err := c.client().SubmitEntry(ctx, *roomID, api.EntryRequest{
		PlayerID:  *player,
		RaceID:    *raceID,
		VehicleID: *vehicle,
	})
	if err != nil {
		return err
	}
	return printJSON(entry)
}

func buyCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("buy")
	roomID := fs.String("room", "", "room id")
	player := fs.String("player", "", "player id")
	vehicle := fs.String("vehicle", "", "dealer vehicle id, or garage vehicle id with -part")
	part := fs.String("part", "", "part id to install")
	_ = fs.Parse(args)
	if err := required("room", *roomID); err != nil {
		return err
	}
	cl := c.client()
	var (
		p   core.Player
		err error
	)
	if *part != "" {
		p, err = cl.BuyPart(ctx, *roomID, api.BuyPartRequest{PlayerID: *player, VehicleID: *vehicle, PartID: *part})
	} else {
		p, err = cl.BuyVehicle(ctx, *roomID, *player, *vehicle)
	}
	if err != nil {
		return err
	}
	return printJSON(p)
}

func sayCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("say")
	roomID := fs.String("room", "", "room id")
	player := fs.String("player", "", "player id")
	msg := fs.String("msg", "", "message")
	_ = fs.Parse(args)
	if err := required("room", *roomID); err != nil {
		return err
	}
	m, err := c.client().SendChat(ctx, *roomID, *player, *msg)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func watchCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("watch")
	roomID := fs.String("room", "", "room id")
	_ = fs.Parse(args)
	if err := required("room", *roomID); err != nil {
		return err
	}
	w, err := websocket.Watch(c.client().StreamURL(*roomID))
	if err != nil {
		return err
	}
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-w.Events():
			if !ok {
				return fmt.Errorf("stream closed")
			}
			fmt.Printf("%s %s %s\n", time.Now().Format(time.TimeOnly), env.Type, env.Payload)
		}
	}
}
