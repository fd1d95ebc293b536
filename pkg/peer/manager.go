// Package peer implements the other side of the bus: a management node
// issuing requests to nodes, serving dynamic node IDs and firmware
// images, and tracking the nodes announcing themselves.
package peer

import (
	"container/list"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/can"
	"github.com/robotalks/canode/pkg/dsdl"
	fx "github.com/robotalks/canode/pkg/framework"
	"github.com/robotalks/canode/pkg/transport"
)

// NodeOfflineTimeout drops a node not heard from for this long.
const NodeOfflineTimeout = 3 * time.Second

// ErrInvalidNodeID indicates a manager without a usable node ID.
var ErrInvalidNodeID = errors.New("peer: node ID must be within 1..127")

// NodeState is the last NodeStatus of a node.
type NodeState struct {
	NodeID   uint8
	Status   dsdl.NodeStatus
	LastSeen time.Time
}

type tidKey struct {
	typeID uint16
	node   uint8
}

// Manager is a management node. Do may be called from any goroutine,
// Poll runs the bus side and is normally driven by a framework Loop.
type Manager struct {
	Expiration time.Duration
	Now        func() time.Time
	// Allocator, when set, answers allocation requests.
	Allocator *Allocator
	// Files, when set, answers file.Read requests.
	Files *FileServer
	// OnTransfer sees every received transfer. It runs inside Poll and
	// must not call back into the Manager.
	OnTransfer transport.Handler

	driver   can.Driver
	start    time.Time
	lock     sync.Mutex
	tr       *transport.Transport
	tids     map[tidKey]*transport.TransferID
	commands list.List
	pending  map[commandKey]*Command
	nodes    map[uint8]*NodeState
}

// NewManager creates a Manager using nodeID on driver.
func NewManager(driver can.Driver, nodeID uint8) (*Manager, error) {
	m := &Manager{
		Expiration: DefaultCommandExpiration,
		Now:        time.Now,
		driver:     driver,
		tids:       make(map[tidKey]*transport.TransferID),
		pending:    make(map[commandKey]*Command),
		nodes:      make(map[uint8]*NodeState),
	}
	m.tr = transport.New(transport.HandlerFunc(m.handleTransfer), transport.AcceptFunc(acceptKnown))
	if err := m.tr.SetLocalNodeID(nodeID); err != nil {
		return nil, ErrInvalidNodeID
	}
	return m, nil
}

func acceptKnown(typeID uint16, kind transport.TransferKind, source uint8) (uint64, bool) {
	var typ dsdl.Type
	var ok bool
	if kind == transport.KindBroadcast {
		typ, ok = dsdl.LookupMessage(typeID)
	} else {
		typ, ok = dsdl.LookupService(typeID)
	}
	return typ.Signature, ok
}

// NodeID returns the manager's node ID.
func (m *Manager) NodeID() uint8 {
	return m.tr.LocalNodeID()
}

func (m *Manager) tid(typeID uint16, node uint8) *transport.TransferID {
	key := tidKey{typeID: typeID, node: node}
	tid := m.tids[key]
	if tid == nil {
		tid = new(transport.TransferID)
		m.tids[key] = tid
	}
	return tid
}

// Do sends a request to dest.
func (m *Manager) Do(dest uint8, typ dsdl.Type, req dsdl.Message) *Command {
	m.lock.Lock()
	defer m.lock.Unlock()
	tid := m.tid(typ.ID, dest)
	key := commandKey{node: dest, typeID: typ.ID, tid: *tid}
	cmd := newCommand(key, m.Now().Add(m.Expiration))
	if prev := m.pending[key]; prev != nil {
		m.commands.Remove(prev.elem)
		delete(m.pending, key)
		prev.done(Result{Err: context.DeadlineExceeded})
	}
	if _, err := m.tr.RequestOrRespond(dest, typ.Signature, typ.ID, tid, transport.PriorityMedium, transport.KindRequest, req.Encode()); err != nil {
		cmd.done(Result{Err: err})
		return cmd
	}
	cmd.elem = m.commands.PushBack(cmd)
	m.pending[key] = cmd
	return cmd
}

// Call sends a request and decodes the response into resp.
func (m *Manager) Call(ctx context.Context, dest uint8, typ dsdl.Type, req, resp dsdl.Message) error {
	return m.Do(dest, typ, req).Wait(ctx).Decode(resp)
}

// Broadcast sends a message.
func (m *Manager) Broadcast(typ dsdl.Type, msg dsdl.Message) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, err := m.tr.Broadcast(typ.Signature, typ.ID, m.tid(typ.ID, transport.BroadcastNodeID), transport.PriorityLow, msg.Encode())
	return err
}

// Nodes returns the nodes online, ordered by node ID.
func (m *Manager) Nodes() []NodeState {
	m.lock.Lock()
	defer m.lock.Unlock()
	list := make([]NodeState, 0, len(m.nodes))
	for _, n := range m.nodes {
		list = append(list, *n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].NodeID < list[j].NodeID })
	return list
}

// Poll receives every pending frame, transmits the queue and expires
// commands. It never blocks.
func (m *Manager) Poll() {
	m.lock.Lock()
	defer m.lock.Unlock()
	now := m.Now()
	if m.start.IsZero() {
		m.start = now
	}
	ts := uint64(now.Sub(m.start) / time.Microsecond)
	for {
		f, ok := m.driver.TryReceive()
		if !ok {
			break
		}
		if err := m.tr.HandleRxFrame(f, ts); err != nil && glog.V(4) {
			glog.Infof("rx %v: %v", f, err)
		}
	}
	for {
		f, ok := m.tr.PeekTx()
		if !ok {
			break
		}
		if err := m.driver.Send(f); err != nil {
			glog.Warningf("send %v: %v", f, err)
		}
		m.tr.PopTx()
	}
	m.expire(now)
}

func (m *Manager) expire(now time.Time) {
	for m.commands.Len() > 0 {
		elem := m.commands.Front()
		cmd := elem.Value.(*Command)
		if cmd.expireAt.After(now) {
			break
		}
		m.commands.Remove(elem)
		delete(m.pending, cmd.key)
		cmd.done(Result{Err: context.DeadlineExceeded})
	}
	for id, n := range m.nodes {
		if now.Sub(n.LastSeen) > NodeOfflineTimeout {
			glog.Infof("node %d offline", id)
			delete(m.nodes, id)
		}
	}
	m.tr.CleanupStaleTransfers(uint64(now.Sub(m.start) / time.Microsecond))
}

// Control implements fx.Controller.
func (m *Manager) Control(fx.ControlContext) error {
	m.Poll()
	return nil
}

// AddToLoop implements fx.LoopAdder.
func (m *Manager) AddToLoop(l *fx.Loop) {
	l.AddController(m)
	if runnable, ok := m.driver.(fx.Runnable); ok {
		l.AddRunnable(runnable)
	}
}

// handleTransfer runs with the lock held.
func (m *Manager) handleTransfer(tr *transport.Transport, xfer *transport.RxTransfer) {
	if h := m.OnTransfer; h != nil {
		h.HandleTransfer(tr, xfer)
	}
	switch xfer.Kind {
	case transport.KindResponse:
		key := commandKey{node: xfer.Source, typeID: xfer.TypeID, tid: xfer.TransferID}
		if cmd := m.pending[key]; cmd != nil {
			m.commands.Remove(cmd.elem)
			delete(m.pending, key)
			cmd.done(Result{Transfer: xfer})
		}
	case transport.KindRequest:
		if xfer.TypeID == dsdl.FileReadID && m.Files != nil {
			m.serveFileRead(xfer)
		}
	case transport.KindBroadcast:
		switch xfer.TypeID {
		case dsdl.NodeStatusID:
			m.updateNode(xfer)
		case dsdl.AllocationID:
			if xfer.Source == transport.BroadcastNodeID && m.Allocator != nil {
				m.serveAllocation(xfer)
			}
		}
	}
}

func (m *Manager) updateNode(xfer *transport.RxTransfer) {
	var status dsdl.NodeStatus
	if err := status.Decode(xfer.Payload); err != nil {
		return
	}
	n := m.nodes[xfer.Source]
	if n == nil {
		glog.Infof("node %d online", xfer.Source)
		n = &NodeState{NodeID: xfer.Source}
		m.nodes[xfer.Source] = n
	}
	n.Status, n.LastSeen = status, m.Now()
	if m.Allocator != nil {
		m.Allocator.MarkUsed(xfer.Source)
	}
}

func (m *Manager) serveAllocation(xfer *transport.RxTransfer) {
	var req dsdl.Allocation
	if err := req.Decode(xfer.Payload); err != nil {
		return
	}
	reply, ok := m.Allocator.HandleRequest(&req, m.Now())
	if !ok {
		return
	}
	if _, err := m.tr.Broadcast(dsdl.AllocationSignature, dsdl.AllocationID,
		m.tid(dsdl.AllocationID, transport.BroadcastNodeID), transport.PriorityLow, reply.Encode()); err != nil {
		glog.Warningf("allocation reply: %v", err)
	}
}

func (m *Manager) serveFileRead(xfer *transport.RxTransfer) {
	var req dsdl.FileReadRequest
	if err := req.Decode(xfer.Payload); err != nil {
		return
	}
	data, code := m.Files.Read(req.Path, req.Offset)
	resp := dsdl.FileReadResponse{Error: code, Data: data}
	tid := xfer.TransferID
	if _, err := m.tr.RequestOrRespond(xfer.Source, dsdl.FileReadSignature, dsdl.FileReadID, &tid,
		xfer.Priority, transport.KindResponse, resp.Encode()); err != nil {
		glog.Warningf("file read response to %d: %v", xfer.Source, err)
	}
}
