package dsdl

// uavcan.protocol.file.*
const (
	FileReadID                   = 48
	FileReadSignature            = 0x8DCDCA939F33F678
	BeginFirmwareUpdateID        = 40
	BeginFirmwareUpdateSignature = 0xB7D725DF72724126

	FilePathMaxLength = 200
	// FileReadMaxData is the chunk size of file.Read, a shorter
	// response marks the end of file.
	FileReadMaxData = 256
	// FirmwareErrorMessageMaxLength bounds the optional error text.
	FirmwareErrorMessageMaxLength = 128
)

// File error codes, errno compatible.
const (
	FileOK             int16 = 0
	FileNotFound       int16 = 2
	FileIOError        int16 = 5
	FileAccessDenied   int16 = 13
	FileIsDirectory    int16 = 21
	FileInvalidValue   int16 = 22
	FileTooLarge       int16 = 27
	FileOutOfSpace     int16 = 28
	FileNotImplemented int16 = 38
	FileUnknownError   int16 = 32767
)

// BeginFirmwareUpdate error codes.
const (
	FirmwareOK           uint8 = 0
	FirmwareInvalidMode  uint8 = 1
	FirmwareInProgress   uint8 = 2
	FirmwareUnknownError uint8 = 255
)

// FileReadRequest reads up to FileReadMaxData bytes at Offset.
type FileReadRequest struct {
	Offset uint64
	Path   string
}

// Encode implements Message.
func (m *FileReadRequest) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Uint(m.Offset, 40)
		w.Bytes8([]byte(m.Path), FilePathMaxLength, true)
	})
}

// Decode implements Message.
func (m *FileReadRequest) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.Offset = r.Uint(40)
		m.Path = string(r.Bytes8(FilePathMaxLength, true))
	})
}

// FileReadResponse carries one chunk or an error.
type FileReadResponse struct {
	Error int16
	Data  []byte
}

// Encode implements Message.
func (m *FileReadResponse) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Int(int64(m.Error), 16)
		w.Bytes8(m.Data, FileReadMaxData, true)
	})
}

// Decode implements Message.
func (m *FileReadResponse) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.Error = int16(r.Int(16))
		m.Data = r.Bytes8(FileReadMaxData, true)
	})
}

// BeginFirmwareUpdateRequest asks a node to pull a new image from
// SourceNodeID, or from the requester when it is 0.
type BeginFirmwareUpdateRequest struct {
	SourceNodeID uint8
	ImagePath    string
}

// Encode implements Message.
func (m *BeginFirmwareUpdateRequest) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Uint(uint64(m.SourceNodeID), 8)
		w.Bytes8([]byte(m.ImagePath), FilePathMaxLength, true)
	})
}

// Decode implements Message.
func (m *BeginFirmwareUpdateRequest) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.SourceNodeID = uint8(r.Uint(8))
		m.ImagePath = string(r.Bytes8(FilePathMaxLength, true))
	})
}

// BeginFirmwareUpdateResponse acknowledges the update request.
type BeginFirmwareUpdateResponse struct {
	Error        uint8
	ErrorMessage string
}

// Encode implements Message.
func (m *BeginFirmwareUpdateResponse) Encode() []byte {
	return encode(func(w *BitWriter) {
		w.Uint(uint64(m.Error), 8)
		w.Bytes8([]byte(m.ErrorMessage), FirmwareErrorMessageMaxLength, true)
	})
}

// Decode implements Message.
func (m *BeginFirmwareUpdateResponse) Decode(payload []byte) error {
	return decode(payload, func(r *BitReader) {
		m.Error = uint8(r.Uint(8))
		m.ErrorMessage = string(r.Bytes8(FirmwareErrorMessageMaxLength, true))
	})
}
