package websocket

import (
	"context"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/robotalks/canode/pkg/can"
)

// ReadWriter implements can.PacketReadWriter, one packet per message.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(p), &pkt)
	return
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}

// Dial connects to a websocket hub, e.g. ws://host:7401/can.
func Dial(url, origin string) (*can.PacketDriver, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return can.NewPacketDriver(New(conn), origin), nil
}

// HubHandler exposes hub to websocket peers.
func HubHandler(ctx context.Context, hub *can.Hub) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		hub.Serve(ctx, New(conn))
	})
}
