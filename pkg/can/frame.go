package can

import (
	"errors"
	"fmt"
)

const (
	// MaxDataLen is the classic CAN payload limit.
	MaxDataLen = 8
	// ExtendedIDMask covers the 29-bit extended identifier.
	ExtendedIDMask = 0x1FFFFFFF
)

var (
	// ErrDataTooLong indicates more than 8 data bytes.
	ErrDataTooLong = errors.New("can: data exceeds 8 bytes")
	// ErrInvalidID indicates an identifier outside 29 bits.
	ErrInvalidID = errors.New("can: identifier exceeds 29 bits")
)

// Frame is an extended (29-bit) data frame.
type Frame struct {
	ID   uint32
	Len  uint8
	Data [MaxDataLen]byte
}

// NewFrame builds a Frame from id and data.
func NewFrame(id uint32, data []byte) (Frame, error) {
	f := Frame{ID: id}
	if len(data) > MaxDataLen {
		return f, ErrDataTooLong
	}
	f.Len = uint8(copy(f.Data[:], data))
	return f, f.Validate()
}

// Validate checks the identifier and length.
func (f Frame) Validate() error {
	if f.ID&^ExtendedIDMask != 0 {
		return ErrInvalidID
	}
	if f.Len > MaxDataLen {
		return ErrDataTooLong
	}
	return nil
}

// Payload returns the valid data bytes.
func (f Frame) Payload() []byte {
	return f.Data[:f.Len]
}

func (f Frame) String() string {
	return fmt.Sprintf("%08X [%d] % X", f.ID, f.Len, f.Data[:f.Len])
}
