package secure

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// Canary is a fixed random tag. Its bytes never change after creation.
type Canary struct {
	mu  sync.Mutex
	buf *memguard.LockedBuffer
	b   []byte

	// fallback records why locked storage was not used.
	fallback error
}

// NewCanary draws an n-byte canary. It returns an error only when no secure
// random source is available.
func NewCanary(n int) (*Canary, error) {
	buf, err := lockedRandom(n)
	if err == nil {
		return &Canary{buf: buf, b: buf.Bytes()}, nil
	}

	b := make([]byte, n)
	if _, rerr := rand.Read(b); rerr != nil {
		return nil, fmt.Errorf("secure random source unavailable: %w", rerr)
	}
	return &Canary{b: b, fallback: err}, nil
}

func lockedRandom(n int) (buf *memguard.LockedBuffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("memguard: %v", r)
		}
	}()
	buf = memguard.NewBufferRandom(n)
	if !buf.IsAlive() {
		return nil, fmt.Errorf("memguard: no buffer for %d bytes", n)
	}
	buf.Freeze()
	return buf, nil
}

// Bytes returns the canary. The slice is read-only when Locked reports true.
func (c *Canary) Bytes() []byte {
	return c.b
}

// Locked reports whether the canary lives in memguard storage.
func (c *Canary) Locked() bool {
	return c.buf != nil
}

// Fallback returns the reason the canary is on the heap, or nil.
func (c *Canary) Fallback() error {
	return c.fallback
}

// Destroy wipes the canary. It is idempotent. The fatal exit path calls it
// before memguard purges its buffers.
func (c *Canary) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf != nil {
		c.buf.Destroy()
		c.buf = nil
	} else {
		memguard.WipeBytes(c.b)
	}
	c.b = nil
}
