// Package transport turns typed transfers into UAVCAN v0 CAN frames
// and back: CAN-ID layout, tail bytes, transfer-ID counters,
// multi-frame CRC, a priority ordered transmit queue and receive
// reassembly with an accept filter. A Transport is not safe for
// concurrent use, it belongs to the single loop driving it.
package transport

import (
	"errors"
	"time"
)

// TransferKind distinguishes the three transfer types.
type TransferKind uint8

// Transfer kinds.
const (
	KindResponse TransferKind = iota
	KindRequest
	KindBroadcast
)

func (k TransferKind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindRequest:
		return "request"
	case KindBroadcast:
		return "broadcast"
	}
	return "unknown"
}

// Standard priorities, lower value wins arbitration.
const (
	PriorityHighest uint8 = 0
	PriorityHigh    uint8 = 8
	PriorityMedium  uint8 = 16
	PriorityLow     uint8 = 24
	PriorityLowest  uint8 = 31
)

// Node ID limits, 0 is broadcast/unassigned.
const (
	BroadcastNodeID uint8 = 0
	MinNodeID       uint8 = 1
	MaxNodeID       uint8 = 127
)

const (
	// TransferTimeout drops partially received transfers.
	TransferTimeout = 2 * time.Second
	// MaxTransferPayload bounds reassembly buffers.
	MaxTransferPayload = 1024
	// DefaultTxQueueSize bounds the transmit queue in frames.
	DefaultTxQueueSize = 512

	transferTimeoutUsec = uint64(TransferTimeout / time.Microsecond)
)

// Errors returned by the transport.
var (
	ErrInvalidArgument = errors.New("transport: invalid argument")
	ErrOutOfMemory     = errors.New("transport: out of memory")
	ErrNodeIDNotSet    = errors.New("transport: node ID not set")
	ErrNotWanted       = errors.New("transport: transfer not wanted")
	ErrWrongAddress    = errors.New("transport: frame for another node")
	ErrMissedStart     = errors.New("transport: missed start of transfer")
	ErrWrongToggle     = errors.New("transport: wrong toggle bit")
	ErrUnexpectedTID   = errors.New("transport: unexpected transfer ID")
	ErrShortFrame      = errors.New("transport: frame too short")
	ErrBadCRC          = errors.New("transport: transfer CRC mismatch")
	ErrIncompatible    = errors.New("transport: incompatible frame")
)

// TransferID is the 5-bit rolling transfer counter.
type TransferID uint8

const transferIDMask = 0x1F

// Next returns the current value and advances the counter.
func (t *TransferID) Next() TransferID {
	cur := *t & transferIDMask
	*t = (cur + 1) & transferIDMask
	return cur
}

// ForwardDistance counts how many increments lead from t to to.
func (t TransferID) ForwardDistance(to TransferID) int {
	return int((to - t) & transferIDMask)
}

// RxTransfer is a completely received transfer.
type RxTransfer struct {
	TimestampUsec uint64
	Payload       []byte
	TypeID        uint16
	Kind          TransferKind
	TransferID    TransferID
	Priority      uint8
	Source        uint8
	// Destination is 0 for broadcasts.
	Destination uint8
}

// Handler receives accepted transfers.
type Handler interface {
	HandleTransfer(*Transport, *RxTransfer)
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(*Transport, *RxTransfer)

// HandleTransfer implements Handler.
func (f HandlerFunc) HandleTransfer(t *Transport, xfer *RxTransfer) {
	f(t, xfer)
}

// AcceptFilter decides at the start of a transfer whether it should
// be received, and supplies the data type signature for the CRC.
type AcceptFilter interface {
	Accept(typeID uint16, kind TransferKind, source uint8) (signature uint64, ok bool)
}

// AcceptFunc is the func form of AcceptFilter.
type AcceptFunc func(typeID uint16, kind TransferKind, source uint8) (uint64, bool)

// Accept implements AcceptFilter.
func (f AcceptFunc) Accept(typeID uint16, kind TransferKind, source uint8) (uint64, bool) {
	return f(typeID, kind, source)
}
