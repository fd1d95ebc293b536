package dsdl

// uavcan.protocol.debug.*
const (
	LogMessageID        = 16383
	LogMessageSignature = 0xD654A48E0C049D75
	KeyValueID          = 16370
	KeyValueSignature   = 0xE02F25D6E0C98AE0

	LogSourceMaxLength = 31
	LogTextMaxLength   = 90
	KeyMaxLength       = 58
)

// Log levels.
const (
	LogDebug   uint8 = 0
	LogInfo    uint8 = 1
	LogWarning uint8 = 2
	LogError   uint8 = 3
)

// LogMessage is a human readable bus log line.
type LogMessage struct {
	Level  uint8
	Source string
	Text   string
}

// Encode implements Message.
func (m *LogMessage) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Uint(uint64(m.Level), 3)
		w.Bytes8([]byte(m.Source), LogSourceMaxLength, false)
		w.Bytes8([]byte(m.Text), LogTextMaxLength, true)
	})
}

// Decode implements Message.
func (m *LogMessage) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.Level = uint8(r.Uint(3))
		m.Source = string(r.Bytes8(LogSourceMaxLength, false))
		m.Text = string(r.Bytes8(LogTextMaxLength, true))
	})
}

// KeyValue publishes a named float.
type KeyValue struct {
	Value float32
	Key   string
}

// Encode implements Message.
func (m *KeyValue) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Float32(m.Value)
		w.Bytes8([]byte(m.Key), KeyMaxLength, true)
	})
}

// Decode implements Message.
func (m *KeyValue) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.Value = r.Float32()
		m.Key = string(r.Bytes8(KeyMaxLength, true))
	})
}
