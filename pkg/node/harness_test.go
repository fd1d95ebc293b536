package node

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/canode/pkg/can"
	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/node/params"
	"github.com/robotalks/canode/pkg/transport"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testUniqueID() (id UniqueID) {
	for i := range id {
		id[i] = byte(i + 1)
	}
	return
}

func testParameters(nodeID float32) []params.Parameter {
	return []params.Parameter{
		{Name: "NODEID", Kind: params.Integer, Value: nodeID, Min: 0, Max: 127},
		{Name: "PARM_1", Kind: params.Integer, Value: 1, Min: 0, Max: 100},
		{Name: "GAIN", Kind: params.Real, Value: 0.5, Min: 0, Max: 1},
	}
}

// testPeer is a bare transport on the bus standing for the other
// nodes: it records what it receives and can act as a minimal
// allocator and file server.
type testPeer struct {
	t     *testing.T
	clock *fakeClock
	port  *can.Port
	tr    *transport.Transport

	received []*transport.RxTransfer
	tids     map[uint16]*transport.TransferID

	allocateID uint8
	allocated  []byte
	allocReqs  []dsdl.Allocation

	image     []byte
	readPaths []string
	reads     []uint64
}

func newTestPeer(t *testing.T, bus *can.VirtualBus, clock *fakeClock, nodeID uint8) *testPeer {
	p := &testPeer{
		t:     t,
		clock: clock,
		port:  bus.Attach("peer"),
		tids:  make(map[uint16]*transport.TransferID),
	}
	p.tr = transport.New(transport.HandlerFunc(p.handle), transport.AcceptFunc(p.accept))
	if nodeID != 0 {
		require.NoError(t, p.tr.SetLocalNodeID(nodeID))
	}
	return p
}

func (p *testPeer) accept(typeID uint16, kind transport.TransferKind, source uint8) (uint64, bool) {
	var typ dsdl.Type
	var ok bool
	if kind == transport.KindBroadcast {
		typ, ok = dsdl.LookupMessage(typeID)
	} else {
		typ, ok = dsdl.LookupService(typeID)
	}
	return typ.Signature, ok
}

func (p *testPeer) tid(typeID uint16) *transport.TransferID {
	tid := p.tids[typeID]
	if tid == nil {
		tid = new(transport.TransferID)
		p.tids[typeID] = tid
	}
	return tid
}

func (p *testPeer) handle(tr *transport.Transport, xfer *transport.RxTransfer) {
	p.received = append(p.received, xfer)
	switch {
	case xfer.Kind == transport.KindBroadcast && xfer.TypeID == dsdl.AllocationID && xfer.Source == 0:
		var req dsdl.Allocation
		require.NoError(p.t, req.Decode(xfer.Payload))
		p.allocReqs = append(p.allocReqs, req)
		if p.allocateID == 0 {
			return
		}
		if req.FirstPartOfUniqueID {
			p.allocated = nil
		}
		p.allocated = append(p.allocated, req.UniqueID...)
		reply := dsdl.Allocation{UniqueID: p.allocated}
		if len(p.allocated) == UniqueIDSize {
			reply.NodeID = p.allocateID
		}
		p.broadcast(dsdl.TypeAllocation, &reply)
	case xfer.Kind == transport.KindRequest && xfer.TypeID == dsdl.FileReadID && p.image != nil:
		var req dsdl.FileReadRequest
		require.NoError(p.t, req.Decode(xfer.Payload))
		p.readPaths = append(p.readPaths, req.Path)
		p.reads = append(p.reads, req.Offset)
		resp := dsdl.FileReadResponse{}
		if req.Offset < uint64(len(p.image)) {
			end := req.Offset + dsdl.FileReadMaxData
			if end > uint64(len(p.image)) {
				end = uint64(len(p.image))
			}
			resp.Data = p.image[req.Offset:end]
		}
		p.respond(xfer, dsdl.TypeFileRead, &resp)
	}
}

func (p *testPeer) broadcast(typ dsdl.Type, msg dsdl.Message) {
	_, err := p.tr.Broadcast(typ.Signature, typ.ID, p.tid(typ.ID), transport.PriorityMedium, msg.Encode())
	require.NoError(p.t, err)
}

func (p *testPeer) request(dest uint8, typ dsdl.Type, msg dsdl.Message) {
	_, err := p.tr.RequestOrRespond(dest, typ.Signature, typ.ID, p.tid(typ.ID), transport.PriorityMedium, transport.KindRequest, msg.Encode())
	require.NoError(p.t, err)
}

func (p *testPeer) respond(xfer *transport.RxTransfer, typ dsdl.Type, msg dsdl.Message) {
	tid := xfer.TransferID
	_, err := p.tr.RequestOrRespond(xfer.Source, typ.Signature, typ.ID, &tid, xfer.Priority, transport.KindResponse, msg.Encode())
	require.NoError(p.t, err)
}

// pump feeds received frames to the transport and sends its queue.
func (p *testPeer) pump() {
	ts := uint64(p.clock.now.Sub(epoch) / time.Microsecond)
	for {
		f, ok := p.port.TryReceive()
		if !ok {
			break
		}
		p.tr.HandleRxFrame(f, ts)
	}
	for {
		f, ok := p.tr.PeekTx()
		if !ok {
			return
		}
		require.NoError(p.t, p.port.Send(f))
		p.tr.PopTx()
	}
}

// last returns the most recent transfer of typeID and kind.
func (p *testPeer) last(typeID uint16, kind transport.TransferKind) *transport.RxTransfer {
	for i := len(p.received) - 1; i >= 0; i-- {
		if x := p.received[i]; x.TypeID == typeID && x.Kind == kind {
			return x
		}
	}
	return nil
}

func (p *testPeer) count(typeID uint16, kind transport.TransferKind) (n int) {
	for _, x := range p.received {
		if x.TypeID == typeID && x.Kind == kind {
			n++
		}
	}
	return
}

type harness struct {
	t      *testing.T
	clock  *fakeClock
	bus    *can.VirtualBus
	port   *can.Port
	engine *Engine
	peer   *testPeer
}

func newHarness(t *testing.T, opts Options) *harness {
	h := &harness{
		t:     t,
		clock: &fakeClock{now: epoch},
		bus:   can.NewVirtualBus(),
	}
	h.port = h.bus.Attach("node")
	h.peer = newTestPeer(t, h.bus, h.clock, 10)
	opts.Driver = h.port
	opts.Clock = h.clock
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	e, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, e.Init())
	h.engine = e
	return h
}

// settle cycles the engine and the peer with the clock stopped until
// the bus is quiet.
func (h *harness) settle() {
	for i := 0; i < 5000; i++ {
		h.engine.Cycle()
		h.peer.pump()
		if h.port.Pending() == 0 && h.engine.tr.TxPending() == 0 {
			return
		}
	}
	h.t.Fatal("bus never settled")
}

// decodeLast decodes the latest transfer of typ and kind seen by the
// peer into msg.
func (h *harness) decodeLast(typ dsdl.Type, kind transport.TransferKind, msg dsdl.Message) *transport.RxTransfer {
	xfer := h.peer.last(typ.ID, kind)
	require.NotNil(h.t, xfer, "no %s %s", kind, typ.Name)
	require.NoError(h.t, msg.Decode(xfer.Payload))
	return xfer
}
