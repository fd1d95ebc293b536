package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/can"
)

// MaxPacketSize bounds a single length-prefixed packet. A frame
// envelope is far smaller, anything larger means a desynced stream.
const MaxPacketSize = 1024

// ErrPacketTooLarge indicates a length prefix above MaxPacketSize.
var ErrPacketTooLarge = errors.New("stream: packet too large")

// ReadWriter implements can.PacketReadWriter over a byte stream.
// Each packet is prefixed by 4-byte (little-endian) length.
type ReadWriter struct {
	io.ReadWriter
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{s}
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	var size uint32
	if err := binary.Read(p.ReadWriter, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	pkt := make([]byte, size)
	_, err := io.ReadFull(p.ReadWriter, pkt)
	return pkt, err
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	buf := make([]byte, 4+len(pkt))
	binary.LittleEndian.PutUint32(buf, uint32(len(pkt)))
	copy(buf[4:], pkt)
	_, err := p.ReadWriter.Write(buf)
	return err
}

// Close closes the underlying stream if possible.
func (p *ReadWriter) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Dial connects to a TCP hub and returns a driver for it.
func Dial(addr, origin string) (*can.PacketDriver, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return can.NewPacketDriver(New(conn), origin), nil
}

// ServeHub accepts TCP peers into hub until ctx is done.
func ServeHub(ctx context.Context, ln net.Listener, hub *can.Hub) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		glog.Infof("hub: peer %s connected", conn.RemoteAddr())
		go func(conn net.Conn) {
			err := hub.Serve(ctx, New(conn))
			glog.Infof("hub: peer %s disconnected: %v", conn.RemoteAddr(), err)
		}(conn)
	}
}
