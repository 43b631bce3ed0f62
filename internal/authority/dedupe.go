package authority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe remembers, per CUFE/CUDE, which documents are in flight and which DIAN has accepted,
// so a resend after a lost response is answered locally.
type Dedupe interface {
	Claim(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
	Accepted(ctx context.Context, code string) (string, bool, error)
	MarkAccepted(ctx context.Context, code, trackID string) error
}

type memoryEntry struct {
	trackID string
	expires time.Time
}

// MemoryDedupe serves single-instance deployments and tests.
type MemoryDedupe struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	inflight map[string]time.Time
	accepted map[string]memoryEntry
}

func NewMemoryDedupe(ttl time.Duration) *MemoryDedupe {
	return &MemoryDedupe{
		ttl:      ttl,
		now:      time.Now,
		inflight: make(map[string]time.Time),
		accepted: make(map[string]memoryEntry),
	}
}

func (m *MemoryDedupe) Claim(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.inflight[code]; ok && m.now().Before(exp) {
		return false, nil
	}

	m.inflight[code] = m.now().Add(m.ttl)

	return true, nil
}

func (m *MemoryDedupe) Release(_ context.Context, code string) error {
	m.mu.Lock()
	delete(m.inflight, code)
	m.mu.Unlock()

	return nil
}

func (m *MemoryDedupe) Accepted(_ context.Context, code string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.accepted[code]
	if !ok {
		return "", false, nil
	}

	if !m.now().Before(e.expires) {
		delete(m.accepted, code)
		return "", false, nil
	}

	return e.trackID, true, nil
}

func (m *MemoryDedupe) MarkAccepted(_ context.Context, code, trackID string) error {
	m.mu.Lock()
	m.accepted[code] = memoryEntry{trackID: trackID, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()

	return nil
}

// RedisDedupe shares the dedupe state between instances.
type RedisDedupe struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDedupe(client *redis.Client, prefix string, ttl time.Duration) *RedisDedupe {
	return &RedisDedupe{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisDedupe) inflightKey(code string) string {
	return r.prefix + "inflight:" + code
}

func (r *RedisDedupe) acceptedKey(code string) string {
	return r.prefix + "accepted:" + code
}

func (r *RedisDedupe) Claim(ctx context.Context, code string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.inflightKey(code), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", code, err)
	}

	return ok, nil
}

func (r *RedisDedupe) Release(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, r.inflightKey(code)).Err(); err != nil {
		return fmt.Errorf("releasing %s: %w", code, err)
	}

	return nil
}

func (r *RedisDedupe) Accepted(ctx context.Context, code string) (string, bool, error) {
	trackID, err := r.client.Get(ctx, r.acceptedKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("looking up %s: %w", code, err)
	}

	return trackID, true, nil
}

func (r *RedisDedupe) MarkAccepted(ctx context.Context, code, trackID string) error {
	if err := r.client.Set(ctx, r.acceptedKey(code), trackID, r.ttl).Err(); err != nil {
		return fmt.Errorf("marking %s accepted: %w", code, err)
	}

	return nil
}
