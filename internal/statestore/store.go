// Package statestore persists the last accepted screen assignment so the
// player can render before the live channel reconnects.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/signage-player/webplayer/internal/model"
	"github.com/signage-player/webplayer/internal/storage"
)

const stateSettingKey = "playback_state"

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

type Store struct {
	settings SettingsStore
	logger   *slog.Logger
}

func New(settings SettingsStore, logger *slog.Logger) *Store {
	return &Store{settings: settings, logger: logger}
}

func (s *Store) Save(ctx context.Context, assignment model.Assignment) error {
	body, err := json.Marshal(assignment)
	if err != nil {
		return fmt.Errorf("encode playback state: %w", err)
	}
	if err := s.settings.PutSetting(ctx, stateSettingKey, string(body)); err != nil {
		return fmt.Errorf("save playback state: %w", err)
	}
	return nil
}

// Load returns the persisted assignment, or nil when absent or unreadable.
func (s *Store) Load(ctx context.Context) *model.Assignment {
	raw, err := s.settings.GetSetting(ctx, stateSettingKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Error("playback state read failed", "err", err)
		return nil
	}
	assignment, err := model.DecodeAssignment([]byte(raw))
	if err != nil {
		s.logger.Error("discarding corrupt playback state", "err", err)
		return nil
	}
	return &assignment
}

func (s *Store) Clear(ctx context.Context) error {
	return s.settings.DeleteSetting(ctx, stateSettingKey)
}
