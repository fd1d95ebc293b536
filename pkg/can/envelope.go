package can

import (
	"github.com/golang/protobuf/proto"
)

// FrameEnvelope is the wire form of a Frame on packet carriers.
type FrameEnvelope struct {
	ID            uint32 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Data          []byte `protobuf:"bytes,2,opt,name=data,proto3" json:"data,omitempty"`
	Origin        string `protobuf:"bytes,3,opt,name=origin,proto3" json:"origin,omitempty"`
	TimestampUsec uint64 `protobuf:"varint,4,opt,name=timestamp_usec,proto3" json:"timestamp_usec,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *FrameEnvelope) ProtoMessage() {}

// Reset implements proto.Message.
func (m *FrameEnvelope) Reset() { *m = FrameEnvelope{} }

// String implements proto.Message.
func (m *FrameEnvelope) String() string { return proto.CompactTextString(m) }

// Frame converts the envelope back to a Frame.
func (m *FrameEnvelope) Frame() (Frame, error) {
	return NewFrame(m.ID, m.Data)
}

// EncodeFrame wraps f in an envelope and marshals it.
func EncodeFrame(f Frame, origin string, tsUsec uint64) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return proto.Marshal(&FrameEnvelope{
		ID:            f.ID,
		Data:          append([]byte(nil), f.Payload()...),
		Origin:        origin,
		TimestampUsec: tsUsec,
	})
}

// DecodeFrame unmarshals an envelope.
func DecodeFrame(pkt []byte) (*FrameEnvelope, error) {
	var env FrameEnvelope
	if err := proto.Unmarshal(pkt, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
