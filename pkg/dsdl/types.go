package dsdl

// Message is implemented by every data type in this package.
type Message interface {
	Encode() []byte
	Decode([]byte) error
}

// Type describes a data type: its ID, signature and whether it is a
// service.
type Type struct {
	Name      string
	ID        uint16
	Signature uint64
	Service   bool
}

// Registered data types.
var (
	TypeNodeStatus          = Type{"uavcan.protocol.NodeStatus", NodeStatusID, NodeStatusSignature, false}
	TypeAllocation          = Type{"uavcan.protocol.dynamic_node_id.Allocation", AllocationID, AllocationSignature, false}
	TypeLogMessage          = Type{"uavcan.protocol.debug.LogMessage", LogMessageID, LogMessageSignature, false}
	TypeKeyValue            = Type{"uavcan.protocol.debug.KeyValue", KeyValueID, KeyValueSignature, false}
	TypeGetNodeInfo         = Type{"uavcan.protocol.GetNodeInfo", GetNodeInfoID, GetNodeInfoSignature, true}
	TypeRestartNode         = Type{"uavcan.protocol.RestartNode", RestartNodeID, RestartNodeSignature, true}
	TypeParamGetSet         = Type{"uavcan.protocol.param.GetSet", ParamGetSetID, ParamGetSetSignature, true}
	TypeParamExecuteOpcode  = Type{"uavcan.protocol.param.ExecuteOpcode", ParamExecuteOpcodeID, ParamExecuteOpcodeSignature, true}
	TypeBeginFirmwareUpdate = Type{"uavcan.protocol.file.BeginFirmwareUpdate", BeginFirmwareUpdateID, BeginFirmwareUpdateSignature, true}
	TypeFileRead            = Type{"uavcan.protocol.file.Read", FileReadID, FileReadSignature, true}
)

var (
	messageTypes = map[uint16]Type{}
	serviceTypes = map[uint16]Type{}
)

func init() {
	for _, t := range []Type{
		TypeNodeStatus, TypeAllocation, TypeLogMessage, TypeKeyValue,
		TypeGetNodeInfo, TypeRestartNode, TypeParamGetSet, TypeParamExecuteOpcode,
		TypeBeginFirmwareUpdate, TypeFileRead,
	} {
		if t.Service {
			serviceTypes[t.ID] = t
		} else {
			messageTypes[t.ID] = t
		}
	}
}

// LookupMessage finds a registered message type.
func LookupMessage(id uint16) (Type, bool) {
	t, ok := messageTypes[id]
	return t, ok
}

// LookupService finds a registered service type.
func LookupService(id uint16) (Type, bool) {
	t, ok := serviceTypes[id]
	return t, ok
}

// New creates an empty value of the type. For services request
// selects the request or the response.
func (t Type) New(request bool) (Message, bool) {
	if !t.Service {
		switch t.ID {
		case NodeStatusID:
			return &NodeStatus{}, true
		case AllocationID:
			return &Allocation{}, true
		case LogMessageID:
			return &LogMessage{}, true
		case KeyValueID:
			return &KeyValue{}, true
		}
		return nil, false
	}
	switch t.ID {
	case GetNodeInfoID:
		if request {
			return &GetNodeInfoRequest{}, true
		}
		return &GetNodeInfoResponse{}, true
	case RestartNodeID:
		if request {
			return &RestartNodeRequest{}, true
		}
		return &RestartNodeResponse{}, true
	case ParamGetSetID:
		if request {
			return &ParamGetSetRequest{}, true
		}
		return &ParamGetSetResponse{}, true
	case ParamExecuteOpcodeID:
		if request {
			return &ParamExecuteOpcodeRequest{}, true
		}
		return &ParamExecuteOpcodeResponse{}, true
	case BeginFirmwareUpdateID:
		if request {
			return &BeginFirmwareUpdateRequest{}, true
		}
		return &BeginFirmwareUpdateResponse{}, true
	case FileReadID:
		if request {
			return &FileReadRequest{}, true
		}
		return &FileReadResponse{}, true
	}
	return nil, false
}

func decode(payload []byte, fn func(*BitReader)) error {
	r := NewBitReader(payload)
	fn(r)
	return r.Err()
}

func encode(fn func(*BitWriter)) []byte {
	var w BitWriter
	fn(&w)
	return w.Bytes()
}
