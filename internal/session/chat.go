package session

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/pkg/core"
)

// SendChat posts a player message to the room.
func (s *Service) SendChat(ctx context.Context, roomID, playerID, text string) (core.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.ChatMessage{}, reject(ReasonEmptyMessage, "message is empty")
	}
	if utf8.RuneCountInString(text) > maxMessage {
		return core.ChatMessage{}, reject(ReasonMessageTooLong, "message is longer than %d characters", maxMessage)
	}
	if _, err := s.loadRoom(ctx, roomID); err != nil {
		return core.ChatMessage{}, err
	}
	p, err := s.loadPlayer(ctx, roomID, playerID)
	if err != nil {
		return core.ChatMessage{}, err
	}

	msg := core.ChatMessage{
		ID:        s.ids(),
		RoomID:    roomID,
		PlayerID:  p.ID,
		Username:  p.Username,
		Message:   text,
		Kind:      core.MessageUser,
		CreatedAt: s.now(),
	}
	if err := s.store.AddChatMessage(ctx, msg); err != nil {
		return core.ChatMessage{}, fmt.Errorf("send chat: %w", err)
	}
	s.publish(ctx, realtime.ChatPosted(msg))
	return msg, nil
}

// Chat returns the latest messages in chronological order. A limit <= 0
// uses the configured history size.
func (s *Service) Chat(ctx context.Context, roomID string, limit int) ([]core.ChatMessage, error) {
	if limit <= 0 || limit > s.cfg.ChatHistory {
		limit = s.cfg.ChatHistory
	}
	if _, err := s.loadRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.ChatMessages(ctx, roomID, limit)
}
