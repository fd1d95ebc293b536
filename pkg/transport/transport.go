package transport

import (
	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/can"
)

type rxKey struct {
	typeID uint16
	kind   TransferKind
	source uint8
	dest   uint8
}

type rxState struct {
	initialized   bool
	timestampUsec uint64
	transferID    TransferID
	nextToggle    bool
	crc           uint16
	calculatedCRC uint16
	payload       []byte
}

// Transport is a UAVCAN v0 transfer layer instance.
type Transport struct {
	// TxQueueSize bounds the transmit queue, in frames.
	TxQueueSize int
	// Promiscuous receives service transfers addressed to any node,
	// for bus monitors.
	Promiscuous bool

	handler Handler
	filter  AcceptFilter
	nodeID  uint8
	txQueue []can.Frame
	rx      map[rxKey]*rxState
}

// New creates a Transport delivering accepted transfers to handler.
func New(handler Handler, filter AcceptFilter) *Transport {
	if filter == nil {
		filter = AcceptFunc(func(uint16, TransferKind, uint8) (uint64, bool) { return 0, false })
	}
	return &Transport{
		TxQueueSize: DefaultTxQueueSize,
		handler:     handler,
		filter:      filter,
		rx:          make(map[rxKey]*rxState),
	}
}

// LocalNodeID returns the node ID, 0 when not assigned.
func (t *Transport) LocalNodeID() uint8 {
	return t.nodeID
}

// SetLocalNodeID assigns the node ID. It can only be set once.
func (t *Transport) SetLocalNodeID(id uint8) error {
	if t.nodeID != BroadcastNodeID || id < MinNodeID || id > MaxNodeID {
		return ErrInvalidArgument
	}
	t.nodeID = id
	return nil
}

// Broadcast enqueues a message transfer. Without a node ID the
// transfer is sent anonymously, which only allows single-frame
// payloads and type IDs fitting two bits. The counter is advanced.
func (t *Transport) Broadcast(signature uint64, typeID uint16, tid *TransferID, prio uint8, payload []byte) (int, error) {
	if tid == nil || prio > PriorityLowest {
		return 0, ErrInvalidArgument
	}
	var id uint32
	if t.nodeID == BroadcastNodeID {
		if len(payload) > 7 {
			return 0, ErrNodeIDNotSet
		}
		if typeID&anonTypeIDMask != typeID {
			return 0, ErrInvalidArgument
		}
		id = anonymousID(prio, typeID, CRCAdd(crcInitial, payload))
	} else {
		id = messageID(prio, typeID, t.nodeID)
	}
	n, err := t.enqueue(id, signature, *tid, payload)
	if err == nil {
		tid.Next()
	}
	return n, err
}

// RequestOrRespond enqueues a service transfer to dest. Requests
// advance the counter, responses reuse the request's transfer ID.
func (t *Transport) RequestOrRespond(dest uint8, signature uint64, typeID uint16, tid *TransferID, prio uint8, kind TransferKind, payload []byte) (int, error) {
	if tid == nil || prio > PriorityLowest || typeID > 0xFF ||
		dest < MinNodeID || dest > MaxNodeID || kind == KindBroadcast {
		return 0, ErrInvalidArgument
	}
	if t.nodeID == BroadcastNodeID {
		return 0, ErrNodeIDNotSet
	}
	id := serviceID(prio, typeID, kind == KindRequest, dest, t.nodeID)
	n, err := t.enqueue(id, signature, *tid, payload)
	if err == nil && kind == KindRequest {
		tid.Next()
	}
	return n, err
}

func (t *Transport) enqueue(id uint32, signature uint64, tid TransferID, payload []byte) (int, error) {
	if len(payload) < can.MaxDataLen {
		if len(t.txQueue)+1 > t.TxQueueSize {
			return 0, ErrOutOfMemory
		}
		var f can.Frame
		f.ID = id
		n := copy(f.Data[:], payload)
		f.Data[n] = tailByte(true, true, false, tid)
		f.Len = uint8(n + 1)
		t.push(f)
		return 1, nil
	}

	buf := make([]byte, 2, len(payload)+2)
	crc := TransferCRC(signature, payload)
	buf[0], buf[1] = byte(crc), byte(crc>>8)
	buf = append(buf, payload...)
	frames := (len(buf) + 6) / 7
	if len(t.txQueue)+frames > t.TxQueueSize {
		return 0, ErrOutOfMemory
	}
	toggle := false
	for off := 0; off < len(buf); off += 7 {
		end := off + 7
		if end > len(buf) {
			end = len(buf)
		}
		var f can.Frame
		f.ID = id
		n := copy(f.Data[:], buf[off:end])
		f.Data[n] = tailByte(off == 0, end == len(buf), toggle, tid)
		f.Len = uint8(n + 1)
		t.push(f)
		toggle = !toggle
	}
	return frames, nil
}

// push inserts after all frames with lower or equal CAN ID, keeping
// arbitration order and FIFO order within one ID.
func (t *Transport) push(f can.Frame) {
	i := len(t.txQueue)
	for i > 0 && t.txQueue[i-1].ID > f.ID {
		i--
	}
	t.txQueue = append(t.txQueue, can.Frame{})
	copy(t.txQueue[i+1:], t.txQueue[i:])
	t.txQueue[i] = f
}

// PeekTx returns the highest priority frame without removing it.
func (t *Transport) PeekTx() (can.Frame, bool) {
	if len(t.txQueue) == 0 {
		return can.Frame{}, false
	}
	return t.txQueue[0], true
}

// PopTx removes the frame returned by PeekTx.
func (t *Transport) PopTx() {
	if len(t.txQueue) > 0 {
		t.txQueue = t.txQueue[1:]
	}
}

// TxPending returns the number of queued frames.
func (t *Transport) TxPending() int {
	return len(t.txQueue)
}

// HandleRxFrame feeds one received frame. Frames not addressed to
// this node or not wanted by the filter return an error which callers
// normally ignore.
func (t *Transport) HandleRxFrame(f can.Frame, tsUsec uint64) error {
	if f.Validate() != nil {
		return ErrIncompatible
	}
	if f.Len < 1 {
		return ErrShortFrame
	}
	kind, source, dest := idKind(f.ID), idSource(f.ID), idDest(f.ID)
	typeID, prio := idTypeID(f.ID), idPriority(f.ID)
	if kind != KindBroadcast && dest != t.nodeID && !t.Promiscuous {
		return ErrWrongAddress
	}
	tail := f.Data[f.Len-1]
	tid := TransferID(tail & transferIDMask)
	sot, eot, toggle := tail&tailSOT != 0, tail&tailEOT != 0, tail&tailToggle != 0

	if source == BroadcastNodeID {
		if kind != KindBroadcast || !sot || !eot {
			return ErrIncompatible
		}
		if _, ok := t.filter.Accept(typeID, kind, source); !ok {
			return ErrNotWanted
		}
		t.deliver(&RxTransfer{
			TimestampUsec: tsUsec,
			Payload:       append([]byte(nil), f.Data[:f.Len-1]...),
			TypeID:        typeID,
			Kind:          kind,
			TransferID:    tid,
			Priority:      prio,
			Source:        source,
			Destination:   dest,
		})
		return nil
	}

	var signature uint64
	if sot {
		sig, ok := t.filter.Accept(typeID, kind, source)
		if !ok {
			return ErrNotWanted
		}
		signature = sig
	}
	key := rxKey{typeID: typeID, kind: kind, source: source, dest: dest}
	state := t.rx[key]
	if state == nil {
		if !sot {
			return ErrMissedStart
		}
		state = &rxState{}
		t.rx[key] = state
	}

	timedOut := tsUsec-state.timestampUsec > transferTimeoutUsec
	notPrevTID := state.transferID.ForwardDistance(tid) > 1
	if !state.initialized || timedOut || (sot && notPrevTID) {
		state.initialized = true
		state.reset(tid)
		if !sot {
			state.transferID.Next()
			return ErrMissedStart
		}
	}

	if sot && eot {
		state.timestampUsec = tsUsec
		t.deliver(&RxTransfer{
			TimestampUsec: tsUsec,
			Payload:       append([]byte(nil), f.Data[:f.Len-1]...),
			TypeID:        typeID,
			Kind:          kind,
			TransferID:    tid,
			Priority:      prio,
			Source:        source,
			Destination:   dest,
		})
		state.prepareNext()
		return nil
	}
	if toggle != state.nextToggle {
		return ErrWrongToggle
	}
	if tid != state.transferID {
		return ErrUnexpectedTID
	}

	data := f.Data[:f.Len-1]
	if sot {
		if f.Len <= 3 {
			return ErrShortFrame
		}
		state.timestampUsec = tsUsec
		state.crc = uint16(data[0]) | uint16(data[1])<<8
		state.calculatedCRC = CRCAddSignature(crcInitial, signature)
		data = data[2:]
	}
	if len(state.payload)+len(data) > MaxTransferPayload {
		state.reset(tid)
		state.prepareNext()
		return ErrOutOfMemory
	}
	state.payload = append(state.payload, data...)
	state.calculatedCRC = CRCAdd(state.calculatedCRC, data)
	state.nextToggle = !state.nextToggle

	if !eot {
		return nil
	}
	defer state.prepareNext()
	if state.crc != state.calculatedCRC {
		return ErrBadCRC
	}
	t.deliver(&RxTransfer{
		TimestampUsec: state.timestampUsec,
		Payload:       state.payload,
		TypeID:        typeID,
		Kind:          kind,
		TransferID:    tid,
		Priority:      prio,
		Source:        source,
		Destination:   dest,
	})
	return nil
}

func (t *Transport) deliver(xfer *RxTransfer) {
	if glog.V(4) {
		glog.Infof("rx %s type=%d src=%d tid=%d len=%d", xfer.Kind, xfer.TypeID, xfer.Source, xfer.TransferID, len(xfer.Payload))
	}
	if t.handler != nil {
		t.handler.HandleTransfer(t, xfer)
	}
}

// CleanupStaleTransfers forgets receive states idle for longer than
// TransferTimeout at tsUsec.
func (t *Transport) CleanupStaleTransfers(tsUsec uint64) {
	for key, state := range t.rx {
		if tsUsec-state.timestampUsec > transferTimeoutUsec {
			delete(t.rx, key)
		}
	}
}

func (s *rxState) reset(tid TransferID) {
	s.transferID = tid
	s.nextToggle = false
	s.payload = nil
}

func (s *rxState) prepareNext() {
	s.transferID.Next()
	s.nextToggle = false
	s.payload = nil
}
