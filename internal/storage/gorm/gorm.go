// Package gormstorage implements storage.Gateway over GORM. The SQLite and
// Postgres backends embed it and only add connection handling.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raceweek/raceweek/internal/database"
	"github.com/raceweek/raceweek/internal/logging"
	"github.com/raceweek/raceweek/internal/model"
	"github.com/raceweek/raceweek/internal/model/convert"
	"github.com/raceweek/raceweek/internal/storage"
	"github.com/raceweek/raceweek/pkg/core"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
}

// Backend implements storage.Gateway using GORM.
type Backend struct {
	deps Dependencies
}

var _ storage.Gateway = (*Backend)(nil)

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database")
	}
	if err := database.Migrate(b.deps.DB); err != nil {
		b.log("Init", fmt.Sprintf("Failed to migrate: %v", err), "ERROR")
		return err
	}
	b.log("Init", "Database setup complete", "INFO")
	return nil
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *Backend) log(fn, msg, level string) {
	if b.deps.LogManager != nil {
		b.deps.LogManager.WriteLog("gorm:"+fn, msg, level)
	}
}

func (b *Backend) db(ctx context.Context) *gorm.DB {
	return b.deps.DB.WithContext(ctx)
}

// translate maps GORM errors onto storage sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}

////////////////////////
// ROOMS
////////////////////////

func (b *Backend) CreateRoom(ctx context.Context, room core.Room) error {
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		return createRoom(tx, room)
	})
}

func createRoom(tx *gorm.DB, room core.Room) error {
	var n int64
	err := tx.Model(&model.Room{}).
		Where("UPPER(code) = ? AND status <> ?", strings.ToUpper(room.Code), string(core.RoomFinished)).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return storage.ErrConflict
	}
	m := convert.CoreToRoom(room)
	return translate(tx.Create(&m).Error)
}

func (b *Backend) OpenRoom(ctx context.Context, room core.Room, host core.Player) error {
	m, err := convert.CoreToPlayer(host)
	if err != nil {
		return err
	}
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createRoom(tx, room); err != nil {
			return err
		}
		return translate(tx.Create(&m).Error)
	})
}

func (b *Backend) RoomByID(ctx context.Context, id string) (core.Room, error) {
	var m model.Room
	if err := b.db(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return core.Room{}, translate(err)
	}
	return convert.RoomToCore(m), nil
}

func (b *Backend) RoomByCode(ctx context.Context, code string) (core.Room, error) {
	var m model.Room
	err := b.db(ctx).
		Where("UPPER(code) = ? AND status <> ?", strings.ToUpper(code), string(core.RoomFinished)).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return core.Room{}, translate(err)
	}
	return convert.RoomToCore(m), nil
}

func (b *Backend) RoomsByStatus(ctx context.Context, status core.RoomStatus) ([]core.Room, error) {
	var rows []model.Room
	if err := b.db(ctx).Where("status = ?", string(status)).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Room, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.RoomToCore(r))
	}
	return out, nil
}

func roomUpdates(room core.Room) map[string]any {
	m := convert.CoreToRoom(room)
	return map[string]any{
		"status":          m.Status,
		"mode":            m.Mode,
		"host_id":         m.HostID,
		"current_day":     m.CurrentDay,
		"current_year":    m.CurrentYear,
		"phase":           m.Phase,
		"max_players":     m.MaxPlayers,
		"day_started_at":  m.DayStartedAt,
		"week_started_at": m.WeekStartedAt,
		"updated_at":      m.UpdatedAt,
	}
}

// conditionalRoomWrite updates the room only while current_day still equals
// expectedDay and, when from is set, phase equals from.
func conditionalRoomWrite(tx *gorm.DB, room core.Room, expectedDay int, from core.Phase) error {
	q := tx.Model(&model.Room{}).Where("id = ? AND current_day = ?", room.ID, expectedDay)
	if from != "" {
		q = q.Where("phase = ?", string(from))
	}
	res := q.Updates(roomUpdates(room))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := tx.Model(&model.Room{}).Where("id = ?", room.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

func (b *Backend) UpdateRoom(ctx context.Context, room core.Room, expectedDay int) error {
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		return conditionalRoomWrite(tx, room, expectedDay, "")
	})
}

func (b *Backend) TransitionRoom(ctx context.Context, room core.Room, expectedDay int, from core.Phase) error {
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		return conditionalRoomWrite(tx, room, expectedDay, from)
	})
}

// CommitRace credits rewards as increments so concurrent garage or shop
// writes to the same rows survive.
func (b *Backend) CommitRace(ctx context.Context, room core.Room, expectedDay int, from core.Phase, rec core.RaceRecord, rewards map[string]core.Reward) error {
	m, err := convert.CoreToRaceRecord(rec)
	if err != nil {
		return err
	}
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conditionalRoomWrite(tx, room, expectedDay, from); err != nil {
			return err
		}
		for id, r := range rewards {
			res := tx.Model(&model.Player{}).
				Where("id = ? AND room_id = ?", id, room.ID).
				Updates(map[string]any{
					"money":  gorm.Expr("money + ?", r.Money),
					"points": gorm.Expr("points + ?", r.Points),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("crediting %s: %w", id, storage.ErrNotFound)
			}
		}
		return translate(tx.Create(&m).Error)
	})
}

func (b *Backend) CommitDayAdvance(ctx context.Context, room core.Room, expectedDay int) error {
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conditionalRoomWrite(tx, room, expectedDay, ""); err != nil {
			return err
		}
		return tx.Model(&model.Player{}).
			Where("room_id = ?", room.ID).
			Update("shop_visits", "{}").Error
	})
}

////////////////////////
// PLAYERS
////////////////////////

func (b *Backend) AddPlayer(ctx context.Context, p core.Player) error {
	m, err := convert.CoreToPlayer(p)
	if err != nil {
		return err
	}
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Room{}).Where("id = ?", p.RoomID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrNotFound
		}
		err := tx.Model(&model.Player{}).
			Where("(room_id = ? AND username = ?) OR id = ?", p.RoomID, p.Username, p.ID).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return storage.ErrConflict
		}
		return translate(tx.Create(&m).Error)
	})
}

func (b *Backend) Player(ctx context.Context, id string) (core.Player, error) {
	var m model.Player
	if err := b.db(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return core.Player{}, translate(err)
	}
	return convert.PlayerToCore(m)
}

func (b *Backend) Players(ctx context.Context, roomID string) ([]core.Player, error) {
	var rows []model.Player
	if err := b.db(ctx).Where("room_id = ?", roomID).Order("joined_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Player, 0, len(rows))
	for _, r := range rows {
		p, err := convert.PlayerToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (b *Backend) CountPlayers(ctx context.Context, roomID string) (int, error) {
	var n int64
	if err := b.db(ctx).Model(&model.Player{}).Where("room_id = ?", roomID).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (b *Backend) UpdatePlayer(ctx context.Context, p core.Player) error {
	return updatePlayer(b.db(ctx), p)
}

func updatePlayer(tx *gorm.DB, p core.Player) error {
	m, err := convert.CoreToPlayer(p)
	if err != nil {
		return err
	}
	res := tx.Model(&model.Player{}).Where("id = ?", p.ID).Updates(map[string]any{
		"money":       m.Money,
		"points":      m.Points,
		"garage":      m.Garage,
		"shop_visits": m.ShopVisits,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

////////////////////////
// CHAT
////////////////////////

func (b *Backend) AddChatMessage(ctx context.Context, msg core.ChatMessage) error {
	m := convert.CoreToChatMessage(msg)
	return translate(b.db(ctx).Create(&m).Error)
}

func (b *Backend) ChatMessages(ctx context.Context, roomID string, limit int) ([]core.ChatMessage, error) {
	q := b.db(ctx).Where("room_id = ?", roomID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.ChatMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.ChatMessage, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = convert.ChatMessageToCore(r)
	}
	return out, nil
}

////////////////////////
// RACES
////////////////////////

func (b *Backend) ReplaceRaceEntry(ctx context.Context, e core.RaceEntry) error {
	m := convert.CoreToRaceEntry(e)
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("room_id = ? AND player_id = ? AND race_id = ? AND day = ?", e.RoomID, e.PlayerID, e.RaceID, e.Day).
			Delete(&model.RaceEntry{}).Error
		if err != nil {
			return err
		}
		return translate(tx.Create(&m).Error)
	})
}

func (b *Backend) RaceEntries(ctx context.Context, roomID string, day int) ([]core.RaceEntry, error) {
	var rows []model.RaceEntry
	if err := b.db(ctx).Where("room_id = ? AND day = ?", roomID, day).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.RaceEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.RaceEntryToCore(r))
	}
	return out, nil
}

func (b *Backend) SaveRaceResults(ctx context.Context, rec core.RaceRecord) error {
	m, err := convert.CoreToRaceRecord(rec)
	if err != nil {
		return err
	}
	return translate(b.db(ctx).Create(&m).Error)
}

func (b *Backend) RaceResults(ctx context.Context, roomID string) ([]core.RaceRecord, error) {
	var rows []model.RaceRecord
	if err := b.db(ctx).Where("room_id = ?", roomID).Order("ran_at, day").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.RaceRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := convert.RaceRecordToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

////////////////////////
// DEALER
////////////////////////

func (b *Backend) LogPurchase(ctx context.Context, l core.PurchaseLog) error {
	m := convert.CoreToPurchaseLog(l)
	return translate(b.db(ctx).Create(&m).Error)
}

func (b *Backend) CommitPurchase(ctx context.Context, p core.Player, l core.PurchaseLog) error {
	m := convert.CoreToPurchaseLog(l)
	return b.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updatePlayer(tx, p); err != nil {
			return err
		}
		return translate(tx.Create(&m).Error)
	})
}

func (b *Backend) PurchaseCounts(ctx context.Context, roomID string) (map[string]int, error) {
	var rows []struct {
		CatalogID string
		N         int
	}
	err := b.db(ctx).Model(&model.PurchaseLog{}).
		Select("catalog_id, COUNT(*) AS n").
		Where("room_id = ?", roomID).
		Group("catalog_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.CatalogID] = r.N
	}
	return counts, nil
}
