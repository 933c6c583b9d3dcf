package bot

import (
	"sync"
	"time"
)

// Multi-step commands carry an explicit state value instead of loose
// per-step flags: the current state plus the fields accumulated so far.
// A conversation lives only for the duration of the command; /cancel and
// the timeout purge are the two abort transitions.

type convState int

const (
	stateUploadName convState = iota + 1
	stateSupportSubject
)

type conversation struct {
	state     convState
	startedAt time.Time

	// upload fields
	fileID   string
	fileName string
	fileSize int64
	fileKind string
}

type conversations struct {
	mu  sync.Mutex
	m   map[int64]*conversation
	ttl time.Duration
}

func newConversations(ttl time.Duration) *conversations {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &conversations{m: make(map[int64]*conversation), ttl: ttl}
}

func (c *conversations) begin(userID int64, conv *conversation) {
	conv.startedAt = time.Now()
	c.mu.Lock()
	c.m[userID] = conv
	c.mu.Unlock()
}

// get returns the conversation for userID while it is within the ttl.
// A conversation past the ttl is removed and still returned, with
// live=false, so the caller can release whatever it holds; the timeout
// transition must hand reservations back.
func (c *conversations) get(userID int64) (conv *conversation, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.m[userID]
	if !ok {
		return nil, false
	}
	if time.Since(conv.startedAt) > c.ttl {
		delete(c.m, userID)
		return conv, false
	}
	return conv, true
}

// take removes and returns the conversation regardless of age.
func (c *conversations) take(userID int64) (*conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.m[userID]
	if ok {
		delete(c.m, userID)
	}
	return conv, ok
}

func (c *conversations) clear(userID int64) {
	c.mu.Lock()
	delete(c.m, userID)
	c.mu.Unlock()
}

// purgeStale drops conversations past the ttl and returns them keyed by
// user so the caller can release what each one still holds.
func (c *conversations) purgeStale(now time.Time) map[int64]*conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stale map[int64]*conversation
	for id, conv := range c.m {
		if now.Sub(conv.startedAt) > c.ttl {
			if stale == nil {
				stale = make(map[int64]*conversation)
			}
			stale[id] = conv
			delete(c.m, id)
		}
	}
	return stale
}
