// Package node is the protocol engine making a device a node on a
// UAVCAN v0 bus: dynamic node ID allocation, the parameter service,
// the firmware pull client and NodeStatus broadcasting, all driven by
// one cooperative Cycle.
package node

import (
	"errors"
	"math/rand"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/dsdl"
	fx "github.com/robotalks/canode/pkg/framework"
	"github.com/robotalks/canode/pkg/node/handoff"
	"github.com/robotalks/canode/pkg/node/params"
	"github.com/robotalks/canode/pkg/transport"
)

// MaintenancePeriod is the interval of the housekeeping pass.
const MaintenancePeriod = time.Second

var (
	// ErrNoDriver indicates Options without a Driver.
	ErrNoDriver = errors.New("node: driver required")
	// ErrNotInitialized is returned by Control before Init.
	ErrNotInitialized = errors.New("node: engine not initialized")
)

// Engine owns all node state. Every method except the constructor
// must be called from the goroutine running Cycle.
type Engine struct {
	opts     Options
	identity Identity
	params   *params.Store
	tr       *transport.Transport
	clock    Clock
	rand     *rand.Rand

	start           time.Time
	lastMaintenance time.Time
	initialized     bool
	health          uint8
	pendingRestart  bool
	pendingHandoff  *handoff.Handoff

	alloc allocation
	fw    firmware

	statusTID transport.TransferID
	logTID    transport.TransferID
	appTIDs   map[uint16]*transport.TransferID
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Driver == nil {
		return nil, ErrNoDriver
	}
	if opts.NodeIDParam == "" {
		opts.NodeIDParam = DefaultNodeIDParam
	}
	e := &Engine{
		opts:     opts,
		identity: opts.Identity,
		clock:    opts.Clock,
		rand:     opts.Rand,
		appTIDs:  make(map[uint16]*transport.TransferID),
	}
	e.identity.normalize()
	if e.clock == nil {
		e.clock = ClockFunc(time.Now)
	}
	if e.rand == nil {
		var seed int64
		for _, b := range e.identity.UniqueID {
			seed = seed*31 + int64(b)
		}
		e.rand = rand.New(rand.NewSource(seed ^ time.Now().UnixNano()))
	}
	store, err := params.NewStore(opts.Parameters, opts.Storage)
	if err != nil {
		return nil, err
	}
	store.Policy = opts.SetPolicy
	e.params = store
	e.tr = transport.New(transport.HandlerFunc(e.handleTransfer), transport.AcceptFunc(e.accept))
	return e, nil
}

// Init loads parameters, applies a static node ID and resumes a
// firmware update handed over by the previous run.
func (e *Engine) Init() error {
	e.start = e.clock.Now()
	e.lastMaintenance = e.start
	e.alloc.reset(e.start)
	e.params.Load()

	if v, err := e.params.Get(e.opts.NodeIDParam); err == nil && v >= 1 && v <= 127 {
		if err := e.assignNodeID(uint8(v)); err != nil {
			return err
		}
		glog.Infof("static node ID %d", uint8(v))
	}

	if store := e.opts.Handoff; store != nil {
		h, err := store.Load()
		switch {
		case err == nil:
			if e.NodeID() == transport.BroadcastNodeID {
				if err := e.assignNodeID(h.MyNodeID); err != nil {
					glog.Warningf("handoff node ID %d: %v", h.MyNodeID, err)
				}
			}
			glog.Infof("resuming firmware update from node %d: %s", h.ServerNodeID, h.Path)
			e.fw.begin(h.ServerNodeID, h.Path)
			if err := store.Clear(); err != nil {
				glog.Warningf("clear handoff: %v", err)
			}
		case err != handoff.ErrNoHandoff:
			glog.Warningf("load handoff: %v", err)
		}
	}
	e.initialized = true
	return nil
}

// Cycle runs one iteration: maintenance when due, receive one frame,
// drain the transmit queue, then the allocation and firmware steps.
// It never blocks.
func (e *Engine) Cycle() {
	if !e.initialized {
		return
	}
	now := e.clock.Now()
	if now.Sub(e.lastMaintenance) >= MaintenancePeriod {
		e.lastMaintenance = now
		e.maintain(now)
	}

	if f, ok := e.opts.Driver.TryReceive(); ok {
		if err := e.tr.HandleRxFrame(f, e.timestamp(now)); err != nil && glog.V(4) {
			glog.Infof("rx %v: %v", f, err)
		}
	}

	e.flush()

	if e.pendingRestart {
		e.pendingRestart = false
		e.restart()
	}

	e.allocationStep(now)
	e.firmwareStep(now)
}

// Control implements fx.Controller.
func (e *Engine) Control(fx.ControlContext) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	e.Cycle()
	return nil
}

// AddToLoop implements fx.LoopAdder. A driver with a background
// reader is run alongside.
func (e *Engine) AddToLoop(l *fx.Loop) {
	l.AddController(e)
	if runnable, ok := e.opts.Driver.(fx.Runnable); ok {
		l.AddRunnable(runnable)
	}
}

func (e *Engine) timestamp(now time.Time) uint64 {
	return uint64(now.Sub(e.start) / time.Microsecond)
}

func (e *Engine) maintain(now time.Time) {
	e.tr.CleanupStaleTransfers(e.timestamp(now))
	if e.NodeID() != transport.BroadcastNodeID {
		status := e.nodeStatus(now)
		if _, err := e.tr.Broadcast(dsdl.NodeStatusSignature, dsdl.NodeStatusID, &e.statusTID, transport.PriorityLow, status.Encode()); err != nil {
			glog.Warningf("NodeStatus: %v", err)
		}
	}
	if ind := e.opts.Indicator; ind != nil {
		ind.Toggle()
	}
}

func (e *Engine) nodeStatus(now time.Time) dsdl.NodeStatus {
	status := dsdl.NodeStatus{
		UptimeSec: uint32(now.Sub(e.start) / time.Second),
		Health:    e.health,
		Mode:      dsdl.ModeOperational,
	}
	if e.fw.state.Phase == FirmwareRequesting {
		status.Mode = dsdl.ModeSoftwareUpdate
		status.VendorSpecificStatusCode = uint16(e.fw.state.Offset / 1024)
	}
	return status
}

// flush sends every queued frame. A frame failing to send is dropped,
// the next periodic transfer replaces it.
func (e *Engine) flush() {
	for {
		f, ok := e.tr.PeekTx()
		if !ok {
			return
		}
		if err := e.opts.Driver.Send(f); err != nil {
			glog.Warningf("send %v: %v", f, err)
		}
		e.tr.PopTx()
	}
}

func (e *Engine) assignNodeID(id uint8) error {
	return e.tr.SetLocalNodeID(id)
}

func (e *Engine) restart() {
	r := e.opts.Restarter
	if r == nil {
		return
	}
	glog.Info("restarting")
	h := e.pendingHandoff
	e.pendingHandoff = nil
	err := r.Restart()
	if err == nil {
		return
	}
	glog.Errorf("restart failed: %v", err)
	if h != nil {
		if store := e.opts.Handoff; store != nil {
			if err := store.Clear(); err != nil {
				glog.Warningf("clear handoff: %v", err)
			}
		}
		e.fw.begin(h.ServerNodeID, h.Path)
	}
}

// NodeID returns the node ID, 0 while unassigned.
func (e *Engine) NodeID() uint8 {
	return e.tr.LocalNodeID()
}

// Identity returns the normalized identity.
func (e *Engine) Identity() Identity {
	return e.identity
}

// Params exposes the parameter store.
func (e *Engine) Params() *params.Store {
	return e.params
}

// Transport exposes the transfer layer.
func (e *Engine) Transport() *transport.Transport {
	return e.tr
}

// GetParameter reads a parameter by name.
func (e *Engine) GetParameter(name string) (float32, error) {
	return e.params.Get(name)
}

// SetParameter writes a parameter by name, unchecked and in memory.
func (e *Engine) SetParameter(name string, v float32) error {
	return e.params.Set(name, v)
}

// SetHealth sets the health code reported by NodeStatus.
func (e *Engine) SetHealth(health uint8) {
	e.health = health & 3
}

// Debug broadcasts a LogMessage.
func (e *Engine) Debug(level uint8, text string) error {
	source := e.identity.Name
	if len(source) > dsdl.LogSourceMaxLength {
		source = source[len(source)-dsdl.LogSourceMaxLength:]
	}
	msg := dsdl.LogMessage{Level: level, Source: source, Text: text}
	_, err := e.tr.Broadcast(dsdl.LogMessageSignature, dsdl.LogMessageID, &e.logTID, transport.PriorityLow, msg.Encode())
	return err
}

// Broadcast sends an application message with a per-type transfer ID.
func (e *Engine) Broadcast(typ dsdl.Type, prio uint8, payload []byte) error {
	tid := e.appTIDs[typ.ID]
	if tid == nil {
		tid = new(transport.TransferID)
		e.appTIDs[typ.ID] = tid
	}
	_, err := e.tr.Broadcast(typ.Signature, typ.ID, tid, prio, payload)
	return err
}
