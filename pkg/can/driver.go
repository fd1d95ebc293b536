package can

import (
	"errors"
	"sync"
)

// ErrClosed is returned when sending through a closed driver.
var ErrClosed = errors.New("can: driver closed")

// Driver is the boundary between the protocol engine and a CAN
// interface. TryReceive must never block.
type Driver interface {
	Send(Frame) error
	TryReceive() (Frame, bool)
	Close() error
}

// DefaultInboxSize is the receive queue depth of carriers.
const DefaultInboxSize = 256

// Inbox is a bounded FIFO of received frames. Carriers fill it from
// their reader goroutines and the engine drains it from the loop.
// When full the oldest frame is dropped, mimicking a controller
// mailbox overrun.
type Inbox struct {
	lock    sync.Mutex
	frames  []Frame
	size    int
	dropped uint64
}

// NewInbox creates an Inbox holding at most size frames.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{size: size}
}

// Push appends a frame.
func (q *Inbox) Push(f Frame) {
	q.lock.Lock()
	if len(q.frames) >= q.size {
		q.frames = q.frames[1:]
		q.dropped++
	}
	q.frames = append(q.frames, f)
	q.lock.Unlock()
}

// Pop removes the oldest frame.
func (q *Inbox) Pop() (f Frame, ok bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.frames) == 0 {
		return
	}
	f, ok = q.frames[0], true
	q.frames = q.frames[1:]
	return
}

// Len returns the number of queued frames.
func (q *Inbox) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.frames)
}

// Dropped returns the number of overrun frames.
func (q *Inbox) Dropped() uint64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.dropped
}
