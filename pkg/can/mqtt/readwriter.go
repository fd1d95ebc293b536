package mqtt

import (
	"io"
	"sync"

	"github.com/robotalks/canode/pkg/can"
)

// FramesTopic is the topic shared by all nodes of one bus.
const FramesTopic = "frames"

// ReadWriter implements can.PacketReadWriter on one topic which every
// node both publishes to and subscribes. The broker echoes own
// packets, PacketDriver drops them by origin.
type ReadWriter struct {
	Queue *Queue
	Topic string

	packetCh  chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	// written counts own packets not yet echoed, nil unless bridging.
	written   map[string]int
	writeLock sync.Mutex
}

// NewPacketReadWriter creates the ReadWriter and subscribes topic.
func NewPacketReadWriter(q *Queue, topic string) *ReadWriter {
	p := &ReadWriter{
		Queue:    q,
		Topic:    topic,
		packetCh: make(chan []byte, can.DefaultInboxSize),
		closed:   make(chan struct{}),
	}
	q.Sub(topic, p.handleMsg)
	return p
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	if p.written != nil {
		p.writeLock.Lock()
		p.written[string(pkt)]++
		p.writeLock.Unlock()
	}
	token := p.Queue.Pub(p.Topic, pkt)
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.Queue.Close()
	})
	return nil
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	if p.written != nil && p.echoed(payload) {
		return
	}
	select {
	case p.packetCh <- payload:
	case <-p.closed:
	}
}

// Dial connects to the broker at brokerURL and returns a driver.
func Dial(brokerURL, origin string) (*can.PacketDriver, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID("canode:" + origin)
	}
	q := NewQueue(opts, prefix)
	rw := NewPacketReadWriter(q, FramesTopic)
	if err := q.Connect(); err != nil {
		return nil, err
	}
	return can.NewPacketDriver(rw, origin), nil
}

func (p *ReadWriter) echoed(pkt []byte) bool {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	key := string(pkt)
	n := p.written[key]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(p.written, key)
	} else {
		p.written[key] = n - 1
	}
	return true
}

// Bridge connects to the broker for relaying packets of other carriers,
// e.g. as a can.Hub peer. Packets it writes are not read back.
func Bridge(brokerURL, clientID string) (*ReadWriter, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID(clientID)
	}
	q := NewQueue(opts, prefix)
	rw := NewPacketReadWriter(q, FramesTopic)
	rw.written = make(map[string]int)
	if err := q.Connect(); err != nil {
		return nil, err
	}
	return rw, nil
}
