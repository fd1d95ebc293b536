package node

import (
	"bytes"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/transport"
)

// Allocation timing.
const (
	AllocationMinRequestPeriod = dsdl.AllocationMinRequestPeriodMs * time.Millisecond
	AllocationMaxFollowupDelay = dsdl.AllocationMaxFollowupDelayMs * time.Millisecond
)

// allocation is the dynamic node ID client state, consulted only
// while the node ID is unassigned.
type allocation struct {
	offset int
	next   time.Time
	tid    transport.TransferID
}

func (a *allocation) reset(now time.Time) {
	a.offset = 0
	a.next = now
}

func (e *Engine) allocationDelay() time.Duration {
	return AllocationMinRequestPeriod + time.Duration(e.rand.Int63n(int64(AllocationMaxFollowupDelay)))
}

// AllocationOffset returns how many unique ID bytes the allocator has
// confirmed so far.
func (e *Engine) AllocationOffset() int {
	return e.alloc.offset
}

// allocationStep broadcasts the next anonymous request when due. The
// offset drops back to 0 right after sending: only an allocator reply
// arriving before the next request moves the node to the next stage.
func (e *Engine) allocationStep(now time.Time) {
	a := &e.alloc
	if e.NodeID() != transport.BroadcastNodeID || now.Before(a.next) {
		return
	}
	a.next = now.Add(e.allocationDelay())

	size := dsdl.AllocationMaxUniqueIDInRequest
	if rest := UniqueIDSize - a.offset; rest < size {
		size = rest
	}
	req := dsdl.Allocation{
		NodeID:              e.identity.PreferredNodeID,
		FirstPartOfUniqueID: a.offset == 0,
		UniqueID:            e.identity.UniqueID[a.offset : a.offset+size],
	}
	glog.V(2).Infof("allocation request: preferred %d, offset %d", req.NodeID, a.offset)
	if _, err := e.tr.Broadcast(dsdl.AllocationSignature, dsdl.AllocationID, &a.tid, transport.PriorityLow, req.Encode()); err != nil {
		glog.Warningf("allocation request: %v", err)
	}
	a.offset = 0
}

func (e *Engine) handleAllocation(xfer *transport.RxTransfer, now time.Time) {
	a := &e.alloc
	if e.NodeID() != transport.BroadcastNodeID {
		return
	}
	a.next = now.Add(e.allocationDelay())

	if xfer.Source == transport.BroadcastNodeID {
		glog.V(2).Info("allocation request from another allocatee")
		a.offset = 0
		return
	}
	var msg dsdl.Allocation
	if err := msg.Decode(xfer.Payload); err != nil {
		glog.V(2).Infof("allocation: %v", err)
		return
	}
	if !bytes.Equal(msg.UniqueID, e.identity.UniqueID[:len(msg.UniqueID)]) {
		a.offset = 0
		return
	}
	if len(msg.UniqueID) < UniqueIDSize {
		a.offset = len(msg.UniqueID)
		a.next = a.next.Add(-AllocationMinRequestPeriod)
		return
	}
	if err := e.assignNodeID(msg.NodeID); err != nil {
		glog.Warningf("allocation: invalid node ID %d", msg.NodeID)
		return
	}
	glog.Infof("node ID %d allocated by %d", msg.NodeID, xfer.Source)
}
