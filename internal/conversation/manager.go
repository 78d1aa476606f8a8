// Package conversation tracks where each user is in a multi-step dialog and
// holds the values collected along the way.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
)

// Step names a point in a dialog. The manager does not know which steps may
// follow which; flows own their step graph.
type Step string

// StepIdle is the step of a user with no dialog in progress.
const StepIdle Step = "idle"

// Store persists per-user step and data. Data values are opaque bytes.
type Store interface {
	GetStep(ctx context.Context, userID int64) (Step, bool, error)
	SetStep(ctx context.Context, userID int64, step Step) error
	ClearStep(ctx context.Context, userID int64) error
	GetData(ctx context.Context, userID int64, key string) ([]byte, bool, error)
	SetData(ctx context.Context, userID int64, key string, value []byte) error
	RemoveData(ctx context.Context, userID int64, key string) error
	ClearData(ctx context.Context, userID int64) error
}

// Manager is the typed front of a Store.
type Manager struct {
	store Store
}

// NewManager wraps store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// GetState returns the user's current step, StepIdle if none is set.
func (m *Manager) GetState(ctx context.Context, userID int64) (Step, error) {
	step, ok, err := m.store.GetStep(ctx, userID)
	if err != nil {
		return StepIdle, err
	}
	if !ok || step == "" {
		return StepIdle, nil
	}
	return step, nil
}

// SetState moves the user to step.
func (m *Manager) SetState(ctx context.Context, userID int64, step Step) error {
	return m.store.SetStep(ctx, userID, step)
}

// ClearState resets the step to idle. Collected data is left in place; call
// ClearAllData when abandoning a flow.
func (m *Manager) ClearState(ctx context.Context, userID int64) error {
	return m.store.ClearStep(ctx, userID)
}

// SetData stores value under key. Value must be JSON-encodable.
func (m *Manager) SetData(ctx context.Context, userID int64, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode conversation value %q: %w", key, err)
	}
	return m.store.SetData(ctx, userID, key, raw)
}

// GetData decodes the value under key into dst. It reports false when the key
// is absent, leaving dst untouched.
func (m *Manager) GetData(ctx context.Context, userID int64, key string, dst any) (bool, error) {
	raw, ok, err := m.store.GetData(ctx, userID, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode conversation value %q: %w", key, err)
	}
	return true, nil
}

// RemoveData deletes one key.
func (m *Manager) RemoveData(ctx context.Context, userID int64, key string) error {
	return m.store.RemoveData(ctx, userID, key)
}

// ClearAllData deletes every key for the user.
func (m *Manager) ClearAllData(ctx context.Context, userID int64) error {
	return m.store.ClearData(ctx, userID)
}

// Reset clears both step and data.
func (m *Manager) Reset(ctx context.Context, userID int64) error {
	if err := m.ClearState(ctx, userID); err != nil {
		return err
	}
	return m.ClearAllData(ctx, userID)
}

// Value is a typed GetData.
func Value[T any](ctx context.Context, m *Manager, userID int64, key string) (T, bool, error) {
	var v T
	ok, err := m.GetData(ctx, userID, key, &v)
	return v, ok, err
}
