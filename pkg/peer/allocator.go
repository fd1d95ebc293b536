package peer

import (
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/node"
	"github.com/robotalks/canode/pkg/transport"
)

// DefaultMaxAllocatedNodeID leaves 126 and 127 to maintenance tools.
const DefaultMaxAllocatedNodeID = 125

// AllocationFollowupTimeout bounds the gap between the stages of one
// allocatee's requests.
const AllocationFollowupTimeout = dsdl.AllocationFollowupTimeoutMs * time.Millisecond

// Allocation is one entry of the allocation table.
type Allocation struct {
	UniqueID node.UniqueID
	NodeID   uint8
}

// Allocator is a dynamic node ID server. It collects the unique ID of
// one allocatee at a time and answers each stage with what it has
// collected, the node ID is filled in after all 16 bytes.
type Allocator struct {
	MaxNodeID uint8

	lock        sync.Mutex
	table       map[node.UniqueID]uint8
	used        map[uint8]bool
	pending     []byte
	lastRequest time.Time
}

// NewAllocator creates an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		MaxNodeID: DefaultMaxAllocatedNodeID,
		table:     make(map[node.UniqueID]uint8),
		used:      make(map[uint8]bool),
	}
}

// MarkUsed records a node ID seen on the bus.
func (a *Allocator) MarkUsed(id uint8) {
	a.lock.Lock()
	a.used[id] = true
	a.lock.Unlock()
}

// Allocations returns the table ordered by node ID.
func (a *Allocator) Allocations() []Allocation {
	a.lock.Lock()
	defer a.lock.Unlock()
	list := make([]Allocation, 0, len(a.table))
	for uid, id := range a.table {
		list = append(list, Allocation{UniqueID: uid, NodeID: id})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].NodeID < list[j].NodeID })
	return list
}

// HandleRequest processes one anonymous request and returns the reply
// to broadcast. A follow-up not continuing the collected prefix is
// ignored.
func (a *Allocator) HandleRequest(req *dsdl.Allocation, now time.Time) (*dsdl.Allocation, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if len(req.UniqueID) == 0 || len(req.UniqueID) > dsdl.AllocationMaxUniqueIDInRequest {
		return nil, false
	}
	switch {
	case req.FirstPartOfUniqueID:
		a.pending = nil
	case len(a.pending) == 0 || now.Sub(a.lastRequest) > AllocationFollowupTimeout:
		glog.V(2).Info("allocation follow-up without a first stage")
		a.pending = nil
		return nil, false
	}
	if len(a.pending)+len(req.UniqueID) > node.UniqueIDSize {
		a.pending = nil
		return nil, false
	}
	a.pending = append(a.pending, req.UniqueID...)
	a.lastRequest = now

	reply := &dsdl.Allocation{UniqueID: append([]byte(nil), a.pending...)}
	if len(a.pending) < node.UniqueIDSize {
		return reply, true
	}
	var uid node.UniqueID
	copy(uid[:], a.pending)
	a.pending = nil
	id, ok := a.allocate(uid, req.NodeID)
	if !ok {
		glog.Warningf("allocation table full, %s not served", uid)
		return nil, false
	}
	reply.NodeID = id
	return reply, true
}

func (a *Allocator) allocate(uid node.UniqueID, preferred uint8) (uint8, bool) {
	if id, ok := a.table[uid]; ok {
		return id, true
	}
	max := a.MaxNodeID
	if max == 0 || max > transport.MaxNodeID {
		max = transport.MaxNodeID
	}
	if preferred == dsdl.AllocationAnyNodeID || preferred > max {
		preferred = max
	}
	free := func(id uint8) bool {
		if a.used[id] {
			return false
		}
		for _, allocated := range a.table {
			if allocated == id {
				return false
			}
		}
		return true
	}
	pick := uint8(0)
	for id := preferred; id <= max && id >= transport.MinNodeID; id++ {
		if free(id) {
			pick = id
			break
		}
	}
	if pick == 0 {
		for id := preferred; id >= transport.MinNodeID; id-- {
			if free(id) {
				pick = id
				break
			}
		}
	}
	if pick == 0 {
		return 0, false
	}
	a.table[uid] = pick
	a.used[pick] = true
	glog.Infof("allocated node ID %d to %s", pick, uid)
	return pick, true
}

