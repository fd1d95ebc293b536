package can

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/canode/pkg/framework"
)

// Hub relays packets between PacketReadWriters, forming a shared bus
// over point-to-point links. Each packet read from one peer is written
// to every other peer.
type Hub struct {
	// Tap observes every relayed packet which decodes as a frame.
	Tap func(*FrameEnvelope)

	lock  sync.RWMutex
	peers map[PacketReadWriter]*sync.Mutex
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{peers: make(map[PacketReadWriter]*sync.Mutex)}
}

// Peers returns the number of connected peers.
func (h *Hub) Peers() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.peers)
}

// Serve attaches rw and relays until it fails or ctx is done.
func (h *Hub) Serve(ctx context.Context, rw PacketReadWriter) error {
	h.lock.Lock()
	h.peers[rw] = &sync.Mutex{}
	h.lock.Unlock()
	defer func() {
		h.lock.Lock()
		delete(h.peers, rw)
		h.lock.Unlock()
	}()
	closer, ok := rw.(io.Closer)
	if !ok {
		closer = nopCloser{}
	}
	return fx.RunWithContextCloser(ctx, closer, func() error {
		for {
			pkt, err := rw.ReadPacket()
			if err != nil {
				return err
			}
			h.Publish(rw, pkt)
		}
	})
}

// Publish writes pkt to all peers except from, which may be nil.
func (h *Hub) Publish(from PacketReadWriter, pkt []byte) {
	if tap := h.Tap; tap != nil {
		if env, err := DecodeFrame(pkt); err == nil {
			tap(env)
		}
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for peer, lock := range h.peers {
		if peer == from {
			continue
		}
		lock.Lock()
		err := peer.WritePacket(pkt)
		lock.Unlock()
		if err != nil {
			glog.Warningf("hub relay: %v", err)
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
