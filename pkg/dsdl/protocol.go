package dsdl

// uavcan.protocol.NodeStatus
const (
	NodeStatusID        = 341
	NodeStatusSignature = 0x0F0868D0C1A7C6F1
	// NodeStatusMaxBroadcastingPeriod is the longest allowed interval
	// between two NodeStatus broadcasts, in milliseconds.
	NodeStatusMaxBroadcastingPeriod = 1000
)

// Health codes.
const (
	HealthOK       uint8 = 0
	HealthWarning  uint8 = 1
	HealthError    uint8 = 2
	HealthCritical uint8 = 3
)

// Operating modes.
const (
	ModeOperational    uint8 = 0
	ModeInitialization uint8 = 1
	ModeMaintenance    uint8 = 2
	ModeSoftwareUpdate uint8 = 3
	ModeOffline        uint8 = 7
)

// NodeStatus is the periodic health broadcast.
type NodeStatus struct {
	UptimeSec                uint32
	Health                   uint8
	Mode                     uint8
	SubMode                  uint8
	VendorSpecificStatusCode uint16
}

func (m *NodeStatus) write(w *BitWriter) {
	w.Uint(uint64(m.UptimeSec), 32)
	w.Uint(uint64(m.Health), 2)
	w.Uint(uint64(m.Mode), 3)
	w.Uint(uint64(m.SubMode), 3)
	w.Uint(uint64(m.VendorSpecificStatusCode), 16)
}

func (m *NodeStatus) read(r *BitReader) {
	m.UptimeSec = uint32(r.Uint(32))
	m.Health = uint8(r.Uint(2))
	m.Mode = uint8(r.Uint(3))
	m.SubMode = uint8(r.Uint(3))
	m.VendorSpecificStatusCode = uint16(r.Uint(16))
}

// Encode implements Message.
func (m *NodeStatus) Encode() []byte { return encode(m.write) }

// Decode implements Message.
func (m *NodeStatus) Decode(payload []byte) error { return decode(payload, m.read) }

// uavcan.protocol.GetNodeInfo
const (
	GetNodeInfoID        = 1
	GetNodeInfoSignature = 0xEE468A8121C46A9E
	NodeNameMaxLength    = 80
)

// Software version optional field flags.
const (
	SoftwareVersionVCSCommit uint8 = 1
	SoftwareVersionImageCRC  uint8 = 2
)

// SoftwareVersion describes the running image.
type SoftwareVersion struct {
	Major              uint8
	Minor              uint8
	OptionalFieldFlags uint8
	VCSCommit          uint32
	ImageCRC           uint64
}

// HardwareVersion describes the board.
type HardwareVersion struct {
	Major                     uint8
	Minor                     uint8
	UniqueID                  [16]byte
	CertificateOfAuthenticity []byte
}

// GetNodeInfoRequest has no fields.
type GetNodeInfoRequest struct{}

// Encode implements Message.
func (m *GetNodeInfoRequest) Encode() []byte { return nil }

// Decode implements Message.
func (m *GetNodeInfoRequest) Decode([]byte) error { return nil }

// GetNodeInfoResponse describes a node.
type GetNodeInfoResponse struct {
	Status          NodeStatus
	SoftwareVersion SoftwareVersion
	HardwareVersion HardwareVersion
	Name            string
}

// Encode implements Message.
func (m *GetNodeInfoResponse) Encode() []byte {
	return encode(func(w *BitWriter) {
		m.Status.write(w)
		sw := &m.SoftwareVersion
		w.Uint(uint64(sw.Major), 8)
		w.Uint(uint64(sw.Minor), 8)
		w.Uint(uint64(sw.OptionalFieldFlags), 8)
		w.Uint(uint64(sw.VCSCommit), 32)
		w.Uint(sw.ImageCRC, 64)
		hw := &m.HardwareVersion
		w.Uint(uint64(hw.Major), 8)
		w.Uint(uint64(hw.Minor), 8)
		for _, b := range hw.UniqueID {
			w.Uint(uint64(b), 8)
		}
		w.Bytes8(hw.CertificateOfAuthenticity, 255, false)
		w.Bytes8([]byte(m.Name), NodeNameMaxLength, true)
	})
}

// Decode implements Message.
func (m *GetNodeInfoResponse) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.Status.read(r)
		sw := &m.SoftwareVersion
		sw.Major = uint8(r.Uint(8))
		sw.Minor = uint8(r.Uint(8))
		sw.OptionalFieldFlags = uint8(r.Uint(8))
		sw.VCSCommit = uint32(r.Uint(32))
		sw.ImageCRC = r.Uint(64)
		hw := &m.HardwareVersion
		hw.Major = uint8(r.Uint(8))
		hw.Minor = uint8(r.Uint(8))
		for i := range hw.UniqueID {
			hw.UniqueID[i] = byte(r.Uint(8))
		}
		hw.CertificateOfAuthenticity = r.Bytes8(255, false)
		m.Name = string(r.Bytes8(NodeNameMaxLength, true))
	})
}

// uavcan.protocol.RestartNode
const (
	RestartNodeID        = 5
	RestartNodeSignature = 0x569E05394A3017F0
	RestartMagicNumber   = 0xACCE551B1E
)

// RestartNodeRequest asks a node to reboot.
type RestartNodeRequest struct {
	MagicNumber uint64
}

// Encode implements Message.
func (m *RestartNodeRequest) Encode() []byte {
	return encode(func(w *BitWriter) { w.Uint(m.MagicNumber, 40) })
}

// Decode implements Message.
func (m *RestartNodeRequest) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) { m.MagicNumber = r.Uint(40) })
}

// RestartNodeResponse confirms a restart.
type RestartNodeResponse struct {
	OK bool
}

// Encode implements Message.
func (m *RestartNodeResponse) Encode() []byte {
	return encode(func(w *BitWriter) { w.Bool(m.OK) })
}

// Decode implements Message.
func (m *RestartNodeResponse) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) { m.OK = r.Bool() })
}

// uavcan.protocol.dynamic_node_id.Allocation
const (
	AllocationID        = 1
	AllocationSignature = 0x0B2A812620A11D40

	// Timing of the allocation protocol, milliseconds.
	AllocationMaxRequestPeriodMs = 1000
	AllocationMinRequestPeriodMs = 600
	AllocationMaxFollowupDelayMs = 400
	AllocationMinFollowupDelayMs = 0
	AllocationFollowupTimeoutMs  = 500

	// AllocationMaxUniqueIDInRequest is the most unique ID bytes one
	// request may disclose.
	AllocationMaxUniqueIDInRequest = 6
	// AllocationAnyNodeID lets the allocator pick any node ID.
	AllocationAnyNodeID = 0
)

// Allocation is both the anonymous request of an allocatee and the
// allocator's reply.
type Allocation struct {
	NodeID              uint8
	FirstPartOfUniqueID bool
	UniqueID            []byte
}

// Encode implements Message.
func (m *Allocation) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Uint(uint64(m.NodeID), 7)
		w.Bool(m.FirstPartOfUniqueID)
		w.Bytes8(m.UniqueID, 16, true)
	})
}

// Decode implements Message.
func (m *Allocation) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.NodeID = uint8(r.Uint(7))
		m.FirstPartOfUniqueID = r.Bool()
		m.UniqueID = r.Bytes8(16, true)
	})
}
