package mcp

import (
	"sync"
	"time"
)

const (
	replayPruneAt = 4096
	replayHardCap = 65536
)

// replayGuard remembers client nonces for ttl so a captured signed request
// cannot be posted twice.
type replayGuard struct {
	mu        sync.Mutex
	seen      map[string]int64
	ttl       time.Duration
	lastPrune int64
}

func newReplayGuard(ttl time.Duration) *replayGuard {
	if ttl <= 0 {
		ttl = 2 * signatureWindow
	}
	return &replayGuard{seen: map[string]int64{}, ttl: ttl}
}

// allow reports whether (clientID, nonce) is fresh and records it.
func (g *replayGuard) allow(clientID, nonce string, now time.Time) bool {
	if g == nil || nonce == "" {
		return true
	}
	key := clientID + "|" + nonce
	nowMS := now.UnixMilli()
	expiresAt := nowMS + g.ttl.Milliseconds()

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.seen) > replayPruneAt || nowMS-g.lastPrune > g.ttl.Milliseconds()/2 {
		for k, exp := range g.seen {
			if exp <= nowMS {
				delete(g.seen, k)
			}
		}
		g.lastPrune = nowMS
	}
	if exp, ok := g.seen[key]; ok && exp > nowMS {
		return false
	}
	g.seen[key] = expiresAt
	if len(g.seen) > replayHardCap {
		g.seen = map[string]int64{key: expiresAt}
		g.lastPrune = nowMS
	}
	return true
}

func (g *replayGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
