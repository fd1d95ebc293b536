// Package monitor decodes the transfers seen on a bus regardless of
// their destination.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/can"
	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/transport"
)

// Record is one reassembled transfer.
type Record struct {
	Origin   string
	Transfer *transport.RxTransfer
	Type     dsdl.Type
	// Message is nil when the payload failed to decode.
	Message dsdl.Message
	Err     error
}

// String formats the record for a log line.
func (r *Record) String() string {
	head := fmt.Sprintf("%s %d", r.Type.Name, r.Transfer.Source)
	if r.Transfer.Kind != transport.KindBroadcast {
		head = fmt.Sprintf("%s->%d %s", head, r.Transfer.Destination, r.Transfer.Kind)
	}
	head = fmt.Sprintf("%s tid=%d", head, r.Transfer.TransferID)
	if r.Origin != "" {
		head = r.Origin + ": " + head
	}
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", head, r.Err)
	}
	return fmt.Sprintf("%s %+v", head, r.Message)
}

// Monitor reassembles frames of all known types into Records.
type Monitor struct {
	// Output receives every record.
	Output func(*Record)
	// Now stamps the frames, envelope timestamps of different origins
	// are not comparable.
	Now func() time.Time

	lock   sync.Mutex
	tr     *transport.Transport
	origin string
}

// New creates a Monitor.
func New(output func(*Record)) *Monitor {
	m := &Monitor{Output: output, Now: time.Now}
	m.tr = transport.New(transport.HandlerFunc(m.handleTransfer), transport.AcceptFunc(accept))
	m.tr.Promiscuous = true
	return m
}

func accept(typeID uint16, kind transport.TransferKind, _ uint8) (uint64, bool) {
	t, ok := lookup(typeID, kind)
	return t.Signature, ok
}

func lookup(typeID uint16, kind transport.TransferKind) (dsdl.Type, bool) {
	if kind == transport.KindBroadcast {
		return dsdl.LookupMessage(typeID)
	}
	return dsdl.LookupService(typeID)
}

// HandleFrame feeds one frame.
func (m *Monitor) HandleFrame(f can.Frame, origin string, tsUsec uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.origin = origin
	if err := m.tr.HandleRxFrame(f, tsUsec); err != nil {
		glog.V(2).Infof("monitor: frame %08x: %v", f.ID, err)
	}
	m.tr.CleanupStaleTransfers(tsUsec)
}

// Tap is suitable for can.Hub.Tap.
func (m *Monitor) Tap(env *can.FrameEnvelope) {
	f, err := env.Frame()
	if err != nil {
		glog.V(2).Infof("monitor: bad frame from %s: %v", env.Origin, err)
		return
	}
	m.HandleFrame(f, env.Origin, uint64(m.Now().UnixNano()/1000))
}

func (m *Monitor) handleTransfer(_ *transport.Transport, xfer *transport.RxTransfer) {
	t, ok := lookup(xfer.TypeID, xfer.Kind)
	if !ok {
		return
	}
	rec := &Record{Origin: m.origin, Transfer: xfer, Type: t}
	if msg, ok := t.New(xfer.Kind == transport.KindRequest); ok {
		if rec.Err = msg.Decode(xfer.Payload); rec.Err == nil {
			rec.Message = msg
		}
	}
	if m.Output != nil {
		m.Output(rec)
	}
}
