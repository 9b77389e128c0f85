package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrRedisUnavailable  = errors.New("redis unavailable")
)

type Scope string

const (
	ScopeGlobalIP  Scope = "ip"
	ScopeViewer    Scope = "viewer"
	ScopeTelemetry Scope = "telemetry"
)

type Decision struct {
	Scope      Scope
	Limit      int
	Remaining  int
	Reset      time.Time // When the window resets
	RetryAfter int       // Seconds
	Allowed    bool
}

type LimitConfig struct {
	Rate   int           `yaml:"rate"`
	Window time.Duration `yaml:"window"`
}

// incrScript increments the window counter and arms its expiry on first hit.
// Returns {count, pttl}.
var incrScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if tonumber(current) == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return {current, redis.call("PTTL", KEYS[1])}
`)

// Limiter is a fixed-window counter limiter backed by Redis.
type Limiter struct {
	client redis.UniversalClient
	salt   string // For IP hashing stability
}

func NewLimiter(client redis.UniversalClient, salt string) *Limiter {
	if salt == "" {
		salt = "roomview"
	}
	return &Limiter{client: client, salt: salt}
}

// HashIP creates a privacy-safe hash of the IP
func (l *Limiter) HashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip + l.salt))
	return hex.EncodeToString(hash[:])
}

// CheckRateLimit counts one hit against key. The window starts at the first hit.
func (l *Limiter) CheckRateLimit(ctx context.Context, scope Scope, key string, cfg LimitConfig) (*Decision, error) {
	window := cfg.Window
	if window <= 0 {
		window = time.Second
	}

	res, err := incrScript.Run(ctx, l.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		return nil, ErrRedisUnavailable
	}
	count, pttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if pttl <= 0 {
		pttl = window
	}

	remaining := cfg.Rate - count
	if remaining < 0 {
		remaining = 0
	}
	retry := int((pttl + time.Second - 1) / time.Second)

	return &Decision{
		Scope:      scope,
		Limit:      cfg.Rate,
		Remaining:  remaining,
		Reset:      time.Now().Add(pttl),
		RetryAfter: retry,
		Allowed:    count <= cfg.Rate,
	}, nil
}
