package can

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/canode/pkg/framework"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// PacketDriver is a Driver carrying each frame as one FrameEnvelope
// packet. Frames stamped with its own Origin are dropped on receive
// since shared media (MQTT topics, hubs) may echo them back.
type PacketDriver struct {
	ReadWriter PacketReadWriter
	Origin     string

	inbox    *Inbox
	sendLock sync.Mutex
}

// NewPacketDriver creates a PacketDriver.
func NewPacketDriver(rw PacketReadWriter, origin string) *PacketDriver {
	return &PacketDriver{ReadWriter: rw, Origin: origin, inbox: NewInbox(DefaultInboxSize)}
}

// Name implements Named.
func (d *PacketDriver) Name() string {
	return "can-packet:" + d.Origin
}

// Send implements Driver.
func (d *PacketDriver) Send(f Frame) error {
	pkt, err := EncodeFrame(f, d.Origin, uint64(time.Now().UnixNano()/1000))
	if err != nil {
		return err
	}
	d.sendLock.Lock()
	defer d.sendLock.Unlock()
	return d.ReadWriter.WritePacket(pkt)
}

// TryReceive implements Driver.
func (d *PacketDriver) TryReceive() (Frame, bool) {
	return d.inbox.Pop()
}

// Run implements Runnable. It must run for frames to be received.
func (d *PacketDriver) Run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, d, func() error {
		for {
			pkt, err := d.ReadWriter.ReadPacket()
			if err != nil {
				return err
			}
			d.HandlePacket(pkt)
		}
	})
}

// HandlePacket decodes one packet into the inbox.
func (d *PacketDriver) HandlePacket(pkt []byte) {
	env, err := DecodeFrame(pkt)
	if err != nil {
		glog.Warningf("%s: bad packet: %v", d.Name(), err)
		return
	}
	if env.Origin != "" && env.Origin == d.Origin {
		return
	}
	f, err := env.Frame()
	if err != nil {
		glog.Warningf("%s: bad frame from %q: %v", d.Name(), env.Origin, err)
		return
	}
	d.inbox.Push(f)
}

// Close implements Driver.
func (d *PacketDriver) Close() error {
	if closer, ok := d.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
