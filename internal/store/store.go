package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("parameter not found")

// Store is a last-write-wins key-value store for small string records.
// Keys are hierarchical paths scoped by environment.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SecureStore is implemented by backends that can encrypt selected values.
type SecureStore interface {
	Store
	PutSecure(ctx context.Context, key, value string) error
}

// Keys builds the parameter paths for one environment.
type Keys struct {
	Environment string
}

func (k Keys) State() string  { return "/vpn/endpoint/" + k.Environment + "/state" }
func (k Keys) Config() string { return "/vpn/endpoint/" + k.Environment + "/conf" }

func (k Keys) Cooldown() string { return "/vpn/automation/cooldown/" + k.Environment }
func (k Keys) ManualActivity() string {
	return "/vpn/automation/manual_activity/" + k.Environment
}
func (k Keys) AdminOverride() string {
	return "/vpn/automation/admin_override/" + k.Environment
}

func (k Keys) CumulativeSavings() string {
	return "/vpn/cost_optimization/cumulative_savings/" + k.Environment
}

// DailySavings is keyed by the UTC calendar date of day.
func (k Keys) DailySavings(day time.Time) string {
	return "/vpn/cost_optimization/daily_savings/" + k.Environment + "/" + day.UTC().Format(time.DateOnly)
}

const (
	SlackWebhookKey       = "/vpn/slack/webhook"
	SlackSigningSecretKey = "/vpn/slack/signing_secret"
)

// GetJSON reads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and writes it to key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, key, string(data))
}

// GetTime reads an RFC 3339 timestamp. ok is false when the key is absent or empty.
func GetTime(ctx context.Context, s Store, key string) (t time.Time, ok bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid timestamp at %s: %w", key, err)
	}
	return t, true, nil
}

// PutTime writes t in RFC 3339 UTC form.
func PutTime(ctx context.Context, s Store, key string, t time.Time) error {
	return s.Put(ctx, key, t.UTC().Format(time.RFC3339Nano))
}

// GetFloat reads a decimal value, treating absent keys as zero.
func GetFloat(ctx context.Context, s Store, key string) (float64, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number at %s: %w", key, err)
	}
	return f, nil
}

// AddFloat performs a read-modify-write increment and returns the new total.
// Concurrent writers race; the last write wins.
func AddFloat(ctx context.Context, s Store, key string, delta float64) (float64, error) {
	cur, err := GetFloat(ctx, s, key)
	if err != nil {
		return 0, err
	}
	total := cur + delta
	if err := s.Put(ctx, key, strconv.FormatFloat(total, 'f', 4, 64)); err != nil {
		return 0, err
	}
	return total, nil
}

// Memory is an in-process Store used by tests and the CLI dry-run mode.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]string
	secure map[string]bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: map[string]string{}, secure: map[string]bool{}}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v, nil
}

func (m *Memory) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) PutSecure(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.secure[key] = true
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.secure, key)
	return nil
}

// IsSecure reports whether key was written with PutSecure.
func (m *Memory) IsSecure(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.secure[key]
}

// Snapshot returns a copy of all stored values.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}
