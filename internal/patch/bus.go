package patch

import (
	"strconv"
	"sync"
	"time"
)

// Bus is a per-room ring buffer of patches with channel fan-out. Slow
// subscribers miss intermediate patches rather than blocking publishers;
// SSE reconnects replay the tail via Last-Event-ID.
type Bus struct {
	mu     sync.Mutex
	nextID int64
	max    int
	rooms  map[string]*roomBuffer
	closed bool
}

type roomBuffer struct {
	patches  []Patch
	watchers map[chan Patch]struct{}
}

func NewBus(max int) *Bus {
	if max <= 0 {
		max = 500
	}
	return &Bus{max: max, rooms: map[string]*roomBuffer{}}
}

func (b *Bus) Publish(p Patch) Patch {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Patch{}
	}
	b.nextID++
	p.ID = strconv.FormatInt(b.nextID, 10)
	if p.TS == 0 {
		p.TS = time.Now().UnixMilli()
	}
	rb := b.roomLocked(p.RoomID)
	rb.patches = append(rb.patches, p)
	if len(rb.patches) > b.max {
		rb.patches = rb.patches[len(rb.patches)-b.max:]
	}
	for ch := range rb.watchers {
		select {
		case ch <- p:
		default:
		}
	}
	return p
}

// ReplayAfter returns the buffered patches newer than lastID. An empty or
// unparsable lastID replays the whole buffer.
func (b *Bus) ReplayAfter(roomID, lastID string) []Patch {
	b.mu.Lock()
	defer b.mu.Unlock()
	rb := b.rooms[roomID]
	if rb == nil || len(rb.patches) == 0 {
		return nil
	}
	last, err := strconv.ParseInt(lastID, 10, 64)
	if lastID == "" || err != nil {
		out := make([]Patch, len(rb.patches))
		copy(out, rb.patches)
		return out
	}
	out := make([]Patch, 0, len(rb.patches))
	for _, p := range rb.patches {
		id, _ := strconv.ParseInt(p.ID, 10, 64)
		if id > last {
			out = append(out, p)
		}
	}
	return out
}

func (b *Bus) Subscribe(roomID string) chan Patch {
	ch := make(chan Patch, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.roomLocked(roomID).watchers[ch] = struct{}{}
	return ch
}

func (b *Bus) Unsubscribe(roomID string, ch chan Patch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rb := b.rooms[roomID]
	if rb == nil {
		return
	}
	if _, ok := rb.watchers[ch]; ok {
		delete(rb.watchers, ch)
		close(ch)
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, rb := range b.rooms {
		for ch := range rb.watchers {
			close(ch)
			delete(rb.watchers, ch)
		}
	}
}

func (b *Bus) roomLocked(roomID string) *roomBuffer {
	rb := b.rooms[roomID]
	if rb == nil {
		rb = &roomBuffer{watchers: map[chan Patch]struct{}{}}
		b.rooms[roomID] = rb
	}
	return rb
}
