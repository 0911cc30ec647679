// Package identity keeps the per-device registration code and serial.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/signage-player/webplayer/internal/model"
	"github.com/signage-player/webplayer/internal/storage"
)

const (
	codeSettingKey   = "registration_code"
	serialSettingKey = "device_serial"
)

// SettingsStore is the durable key-value storage used for identity values.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

type Manager struct {
	store  SettingsStore
	random io.Reader
	logger *slog.Logger

	mu     sync.Mutex
	code   model.RegistrationCode
	serial string
}

func NewManager(store SettingsStore, logger *slog.Logger) *Manager {
	return &Manager{store: store, random: rand.Reader, logger: logger}
}

// GetOrCreate returns the persisted registration code, generating and
// persisting one on first use. Storage failures keep an in-memory code.
func (m *Manager) GetOrCreate(ctx context.Context) model.RegistrationCode {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.code != "" {
		return m.code
	}

	if m.store != nil {
		stored, err := m.store.GetSetting(ctx, codeSettingKey)
		switch {
		case err == nil && model.RegistrationCode(stored).Valid():
			m.code = model.RegistrationCode(stored)
			return m.code
		case err == nil:
			m.logger.Warn("discarding malformed stored registration code", "code", stored)
		case !errors.Is(err, storage.ErrNotFound):
			m.logger.Warn("registration code lookup failed; using session-only code", "err", err)
			m.code = m.generate()
			return m.code
		}
	}

	m.code = m.generate()
	if m.store == nil {
		return m.code
	}
	if err := m.store.PutSetting(ctx, codeSettingKey, string(m.code)); err != nil {
		m.logger.Warn("registration code not persisted; using session-only code", "err", err)
	} else {
		m.logger.Info("registration code generated", "code", m.code)
	}
	return m.code
}

// Serial returns a persisted device serial shown for technical support.
func (m *Manager) Serial(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.serial != "" {
		return m.serial
	}
	if m.store != nil {
		if stored, err := m.store.GetSetting(ctx, serialSettingKey); err == nil {
			if parsed, err := uuid.Parse(stored); err == nil {
				m.serial = parsed.String()
				return m.serial
			}
		}
	}

	m.serial = uuid.NewString()
	if m.store != nil {
		if err := m.store.PutSetting(ctx, serialSettingKey, m.serial); err != nil {
			m.logger.Warn("device serial not persisted", "err", err)
		}
	}
	return m.serial
}

// Reset forgets the persisted registration code so the next call generates a new one.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.code = ""
	if m.store == nil {
		return nil
	}
	return m.store.DeleteSetting(ctx, codeSettingKey)
}

func (m *Manager) generate() model.RegistrationCode {
	lead := m.randomBelow(9) + 1
	return model.RegistrationCode(fmt.Sprintf("%d-%04d-%04d", lead, m.randomBelow(10000), m.randomBelow(10000)))
}

func (m *Manager) randomBelow(limit int64) int64 {
	n, err := rand.Int(m.random, big.NewInt(limit))
	if err != nil {
		return 0
	}
	return n.Int64()
}
