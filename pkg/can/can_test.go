package can

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(0x1000155, []byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, uint8(3), f.Len)
	require.Equal(t, []byte{1, 2, 3}, f.Payload())

	_, err = NewFrame(0x20000000, nil)
	require.Equal(t, ErrInvalidID, err)
	_, err = NewFrame(1, make([]byte, 9))
	require.Equal(t, ErrDataTooLong, err)
}

func TestInboxOverrun(t *testing.T) {
	q := NewInbox(2)
	for i := 0; i < 3; i++ {
		q.Push(Frame{ID: uint32(i)})
	}
	require.Equal(t, uint64(1), q.Dropped())
	f, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, uint32(1), f.ID)
	f, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, uint32(2), f.ID)
	_, ok = q.Pop()
	require.False(t, ok)
}

func TestVirtualBus(t *testing.T) {
	bus := NewVirtualBus()
	a, b, c := bus.Attach("a"), bus.Attach("b"), bus.Attach("c")
	f, _ := NewFrame(42, []byte{9})
	require.NoError(t, a.Send(f))
	require.Equal(t, 0, a.Pending())
	for _, p := range []*Port{b, c} {
		got, ok := p.TryReceive()
		require.True(t, ok)
		require.Equal(t, f, got)
	}

	bus.Filter = func(from string, f Frame) bool { return from != "b" }
	require.NoError(t, b.Send(f))
	require.Equal(t, 0, a.Pending())

	require.NoError(t, c.Close())
	require.Equal(t, ErrClosed, c.Send(f))
	require.NoError(t, a.Send(f))
	require.Equal(t, 1, b.Pending())
	require.Equal(t, 0, c.Pending())
}

type chanRW struct {
	in  chan []byte
	out chan []byte
}

func (rw *chanRW) ReadPacket() ([]byte, error) {
	pkt, ok := <-rw.in
	if !ok {
		return nil, errors.New("closed")
	}
	return pkt, nil
}

func (rw *chanRW) WritePacket(pkt []byte) error {
	rw.out <- pkt
	return nil
}

func TestPacketDriver(t *testing.T) {
	rw := &chanRW{out: make(chan []byte, 4)}
	d := NewPacketDriver(rw, "me")
	f, _ := NewFrame(0x155, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, d.Send(f))
	pkt := <-rw.out

	env, err := DecodeFrame(pkt)
	require.NoError(t, err)
	require.Equal(t, "me", env.Origin)
	got, err := env.Frame()
	require.NoError(t, err)
	require.Equal(t, f, got)

	d.HandlePacket(pkt)
	_, ok := d.TryReceive()
	require.False(t, ok, "own frames must be dropped")

	other, err := EncodeFrame(f, "other", 1)
	require.NoError(t, err)
	d.HandlePacket(other)
	d.HandlePacket([]byte{0xff, 0xff})
	got, ok = d.TryReceive()
	require.True(t, ok)
	require.Equal(t, f, got)
	_, ok = d.TryReceive()
	require.False(t, ok)
}

func TestHubPublish(t *testing.T) {
	hub := NewHub()
	a := &chanRW{out: make(chan []byte, 4)}
	b := &chanRW{out: make(chan []byte, 4)}
	hub.peers[a] = new(sync.Mutex)
	hub.peers[b] = new(sync.Mutex)
	var tapped []*FrameEnvelope
	hub.Tap = func(env *FrameEnvelope) { tapped = append(tapped, env) }

	f, _ := NewFrame(7, []byte{1})
	pkt, err := EncodeFrame(f, "a", 0)
	require.NoError(t, err)
	hub.Publish(a, pkt)
	require.Len(t, a.out, 0)
	require.Len(t, b.out, 1)
	require.Len(t, tapped, 1)
	require.Equal(t, "a", tapped[0].Origin)
}
