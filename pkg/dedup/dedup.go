package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// Deduper remembers keys for a TTL, bounded by max entries.
// QoS 1 redeliveries carry identical payloads, so bus callers key by MessageKey.
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	now  func() time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time, max), now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (d *Deduper) WithClock(now func() time.Time) *Deduper {
	d.mu.Lock()
	d.now = now
	d.mu.Unlock()
	return d
}

// PayloadKey is the hex SHA-256 of a message body.
func PayloadKey(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}

// MessageKey identifies a bus message for redelivery suppression. Only a
// message stamped with a timestamp or a command_id has an identity; for any
// other payload, including one that is not a JSON object, it returns "" and
// the message is never suppressed. Two identical unstamped commands are two
// requests.
func MessageKey(payload []byte) string {
	var id struct {
		Timestamp string `json:"timestamp"`
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(payload, &id); err != nil {
		return ""
	}
	if id.Timestamp == "" && id.CommandID == "" {
		return ""
	}
	return PayloadKey(payload)
}

// ShouldProcess reports whether id was not seen within the TTL and records it.
func (d *Deduper) ShouldProcess(id string) bool {
	if d == nil || id == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		d.evict(now)
	}
	return true
}

// ShouldProcessMessage is ShouldProcess keyed by MessageKey.
func (d *Deduper) ShouldProcessMessage(payload []byte) bool {
	if d == nil {
		return true
	}
	return d.ShouldProcess(MessageKey(payload))
}

// Len returns the number of remembered keys.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evict drops expired entries first, then the ones closest to expiry, until within max.
func (d *Deduper) evict(now time.Time) {
	for k, v := range d.seen {
		if now.After(v) {
			delete(d.seen, k)
		}
	}
	for len(d.seen) > d.max {
		var (
			oldest  string
			oldestT time.Time
		)
		for k, v := range d.seen {
			if oldest == "" || v.Before(oldestT) {
				oldest, oldestT = k, v
			}
		}
		delete(d.seen, oldest)
	}
}
