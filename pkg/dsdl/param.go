package dsdl

import "math"

// uavcan.protocol.param.GetSet
const (
	ParamGetSetID        = 11
	ParamGetSetSignature = 0xA7B622F939D1A4D5
	ParamNameMaxLength   = 92
	ParamStringMaxLength = 128
)

// uavcan.protocol.param.ExecuteOpcode
const (
	ParamExecuteOpcodeID        = 10
	ParamExecuteOpcodeSignature = 0x3B131AC5EB69D2CD

	OpcodeSave  uint8 = 0
	OpcodeErase uint8 = 1
)

// ValueTag selects the active field of Value and NumericValue.
type ValueTag uint8

// Value tags, NumericValue only uses the first three.
const (
	ValueEmpty ValueTag = iota
	ValueInteger
	ValueReal
	ValueBoolean
	ValueString
)

// Value is uavcan.protocol.param.Value.
type Value struct {
	Tag     ValueTag
	Integer int64
	Real    float32
	Boolean uint8
	String  []byte
}

// IntegerValue creates an integer Value.
func IntegerValue(v int64) Value {
	return Value{Tag: ValueInteger, Integer: v}
}

// RealValue creates a real Value.
func RealValue(v float32) Value {
	return Value{Tag: ValueReal, Real: v}
}

// IsEmpty reports whether no field is set.
func (v Value) IsEmpty() bool {
	return v.Tag == ValueEmpty
}

// Float32 converts numeric and boolean values.
func (v Value) Float32() (float32, bool) {
	switch v.Tag {
	case ValueInteger:
		return float32(v.Integer), true
	case ValueReal:
		return v.Real, true
	case ValueBoolean:
		return float32(v.Boolean), true
	}
	return 0, false
}

func (v *Value) write(w *BitWriter) {
	w.Uint(uint64(v.Tag), 3)
	switch v.Tag {
	case ValueInteger:
		w.Int(v.Integer, 64)
	case ValueReal:
		w.Float32(v.Real)
	case ValueBoolean:
		w.Uint(uint64(v.Boolean), 8)
	case ValueString:
		w.Bytes8(v.String, ParamStringMaxLength, false)
	}
}

func (v *Value) read(r *BitReader) {
	*v = Value{Tag: ValueTag(r.Uint(3))}
	switch v.Tag {
	case ValueEmpty:
	case ValueInteger:
		v.Integer = r.Int(64)
	case ValueReal:
		v.Real = r.Float32()
	case ValueBoolean:
		v.Boolean = uint8(r.Uint(8))
	case ValueString:
		v.String = r.Bytes8(ParamStringMaxLength, false)
	default:
		r.fail(ErrInvalidTag)
	}
}

// NumericValue is uavcan.protocol.param.NumericValue.
type NumericValue struct {
	Tag     ValueTag
	Integer int64
	Real    float32
}

// NumericFrom converts v to a NumericValue of kind tag.
func NumericFrom(tag ValueTag, v float32) NumericValue {
	switch tag {
	case ValueInteger:
		return NumericValue{Tag: ValueInteger, Integer: int64(math.Round(float64(v)))}
	case ValueReal:
		return NumericValue{Tag: ValueReal, Real: v}
	}
	return NumericValue{}
}

func (v *NumericValue) write(w *BitWriter) {
	w.Uint(uint64(v.Tag), 2)
	switch v.Tag {
	case ValueInteger:
		w.Int(v.Integer, 64)
	case ValueReal:
		w.Float32(v.Real)
	}
}

func (v *NumericValue) read(r *BitReader) {
	*v = NumericValue{Tag: ValueTag(r.Uint(2))}
	switch v.Tag {
	case ValueEmpty:
	case ValueInteger:
		v.Integer = r.Int(64)
	case ValueReal:
		v.Real = r.Float32()
	default:
		r.fail(ErrInvalidTag)
	}
}

// ParamGetSetRequest reads, and optionally writes, one parameter.
// Name takes priority over Index when non-empty.
type ParamGetSetRequest struct {
	Index uint16
	Value Value
	Name  string
}

// Encode implements Message.
func (m *ParamGetSetRequest) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Uint(uint64(m.Index), 13)
		m.Value.write(w)
		w.Bytes8([]byte(m.Name), ParamNameMaxLength, true)
	})
}

// Decode implements Message.
func (m *ParamGetSetRequest) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.Index = uint16(r.Uint(13))
		m.Value.read(r)
		m.Name = string(r.Bytes8(ParamNameMaxLength, true))
	})
}

// ParamGetSetResponse describes a parameter. An empty Name means the
// parameter does not exist.
type ParamGetSetResponse struct {
	Value        Value
	DefaultValue Value
	MaxValue     NumericValue
	MinValue     NumericValue
	Name         string
}

// Encode implements Message.
func (m *ParamGetSetResponse) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Void(5)
		m.Value.write(w)
		w.Void(5)
		m.DefaultValue.write(w)
		w.Void(6)
		m.MaxValue.write(w)
		w.Void(6)
		m.MinValue.write(w)
		w.Bytes8([]byte(m.Name), ParamNameMaxLength, true)
	})
}

// Decode implements Message.
func (m *ParamGetSetResponse) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		r.Void(5)
		m.Value.read(r)
		r.Void(5)
		m.DefaultValue.read(r)
		r.Void(6)
		m.MaxValue.read(r)
		r.Void(6)
		m.MinValue.read(r)
		m.Name = string(r.Bytes8(ParamNameMaxLength, true))
	})
}

// ParamExecuteOpcodeRequest runs a bulk operation on the store.
type ParamExecuteOpcodeRequest struct {
	Opcode   uint8
	Argument int64
}

// Encode implements Message.
func (m *ParamExecuteOpcodeRequest) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Uint(uint64(m.Opcode), 8)
		w.Int(m.Argument, 48)
	})
}

// Decode implements Message.
func (m *ParamExecuteOpcodeRequest) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.Opcode = uint8(r.Uint(8))
		m.Argument = r.Int(48)
	})
}

// ParamExecuteOpcodeResponse reports the result.
type ParamExecuteOpcodeResponse struct {
	Argument int64
	OK       bool
}

// Encode implements Message.
func (m *ParamExecuteOpcodeResponse) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Int(m.Argument, 48)
		w.Bool(m.OK)
	})
}

// Decode implements Message.
func (m *ParamExecuteOpcodeResponse) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.Argument = r.Int(48)
		m.OK = r.Bool()
	})
}
