package can

import "sync"

// VirtualBus connects in-process Ports. A frame sent through one Port
// is delivered to every other attached Port.
type VirtualBus struct {
	// Filter, when set, decides whether a frame from a port is put on
	// the bus at all. Used to inject frame loss.
	Filter func(from string, f Frame) bool

	lock  sync.RWMutex
	ports []*Port
}

// NewVirtualBus creates an empty VirtualBus.
func NewVirtualBus() *VirtualBus {
	return &VirtualBus{}
}

// Attach creates a Port on the bus.
func (b *VirtualBus) Attach(name string) *Port {
	p := &Port{bus: b, name: name, inbox: NewInbox(DefaultInboxSize)}
	b.lock.Lock()
	b.ports = append(b.ports, p)
	b.lock.Unlock()
	return p
}

func (b *VirtualBus) deliver(from *Port, f Frame) {
	if fn := b.Filter; fn != nil && !fn(from.name, f) {
		return
	}
	b.lock.RLock()
	defer b.lock.RUnlock()
	for _, p := range b.ports {
		if p != from {
			p.inbox.Push(f)
		}
	}
}

func (b *VirtualBus) detach(port *Port) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for i, p := range b.ports {
		if p == port {
			b.ports = append(b.ports[:i], b.ports[i+1:]...)
			return
		}
	}
}

// Port is a Driver attached to a VirtualBus.
type Port struct {
	bus    *VirtualBus
	name   string
	inbox  *Inbox
	closed bool
	lock   sync.Mutex
}

// Name implements Named.
func (p *Port) Name() string {
	return p.name
}

// Send implements Driver.
func (p *Port) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	p.lock.Lock()
	closed := p.closed
	p.lock.Unlock()
	if closed {
		return ErrClosed
	}
	p.bus.deliver(p, f)
	return nil
}

// TryReceive implements Driver.
func (p *Port) TryReceive() (Frame, bool) {
	return p.inbox.Pop()
}

// Pending returns the number of frames waiting to be received.
func (p *Port) Pending() int {
	return p.inbox.Len()
}

// Close implements Driver.
func (p *Port) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.closed {
		p.closed = true
		p.bus.detach(p)
	}
	return nil
}
