// +build linux

// Package socketcan attaches the engine to a Linux SocketCAN
// interface such as can0 or vcan0.
package socketcan

import (
	"context"

	brutella "github.com/brutella/can"

	"github.com/robotalks/canode/pkg/can"
	fx "github.com/robotalks/canode/pkg/framework"
)

// Flag bits carried in the raw SocketCAN identifier.
const (
	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000
)

// Driver implements can.Driver on a SocketCAN interface.
type Driver struct {
	Interface string

	bus   *brutella.Bus
	inbox *can.Inbox
}

// Open binds the named interface.
func Open(ifname string) (*Driver, error) {
	bus, err := brutella.NewBusForInterfaceWithName(ifname)
	if err != nil {
		return nil, err
	}
	d := &Driver{Interface: ifname, bus: bus, inbox: can.NewInbox(can.DefaultInboxSize)}
	bus.Subscribe(d)
	return d, nil
}

// Name implements Named.
func (d *Driver) Name() string {
	return "socketcan:" + d.Interface
}

// Handle implements brutella.Handler. Only extended data frames are
// accepted, UAVCAN never uses standard identifiers.
func (d *Driver) Handle(frame brutella.Frame) {
	if frame.ID&effFlag == 0 || frame.ID&(rtrFlag|errFlag) != 0 {
		return
	}
	f, err := can.NewFrame(frame.ID&can.ExtendedIDMask, frame.Data[:frame.Length])
	if err != nil {
		return
	}
	d.inbox.Push(f)
}

// Send implements can.Driver.
func (d *Driver) Send(f can.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return d.bus.Publish(brutella.Frame{
		ID:     f.ID | effFlag,
		Length: f.Len,
		Data:   f.Data,
	})
}

// TryReceive implements can.Driver.
func (d *Driver) TryReceive() (can.Frame, bool) {
	return d.inbox.Pop()
}

// Run implements Runnable, reading frames until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, d, d.bus.ConnectAndPublish)
}

// Close implements can.Driver.
func (d *Driver) Close() error {
	return d.bus.Disconnect()
}
