package params

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"sync"
)

// SlotSize is the storage footprint of one parameter.
const SlotSize = 4

// Storage is the byte-addressable non-volatile memory. Parameter i
// occupies [i*SlotSize, (i+1)*SlotSize) as a little-endian float32.
type Storage interface {
	io.ReaderAt
	io.WriterAt
}

// MemStorage emulates an EEPROM in memory. Unwritten bytes read as
// 0xFF like erased cells.
type MemStorage struct {
	lock sync.Mutex
	data []byte
}

// NewMemStorage creates an erased MemStorage of size bytes.
func NewMemStorage(size int) *MemStorage {
	s := &MemStorage{}
	s.grow(size)
	return s
}

func (s *MemStorage) grow(size int) {
	for len(s.data) < size {
		s.data = append(s.data, 0xFF)
	}
}

// ReadAt implements io.ReaderAt.
func (s *MemStorage) ReadAt(p []byte, off int64) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (s *MemStorage) WriteAt(p []byte, off int64) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.grow(int(off) + len(p))
	return copy(s.data[off:], p), nil
}

// FileStorage keeps the EEPROM image in a file.
type FileStorage struct {
	*os.File
}

// OpenFileStorage opens or creates the image at path.
func OpenFileStorage(path string) (*FileStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &FileStorage{File: f}, nil
}

// WriteAt implements io.WriterAt and syncs, a parameter write must
// survive power loss. A gap past the end of the file is filled with
// 0xFF so unwritten slots keep reading as erased.
func (s *FileStorage) WriteAt(p []byte, off int64) (int, error) {
	info, err := s.File.Stat()
	if err != nil {
		return 0, err
	}
	if size := info.Size(); off > size {
		gap := make([]byte, off-size)
		for i := range gap {
			gap[i] = 0xFF
		}
		if _, err := s.File.WriteAt(gap, size); err != nil {
			return 0, err
		}
	}
	n, err := s.File.WriteAt(p, off)
	if err == nil {
		err = s.File.Sync()
	}
	return n, err
}

func readSlot(s Storage, index int) (float32, bool) {
	var buf [SlotSize]byte
	if n, _ := s.ReadAt(buf[:], int64(index*SlotSize)); n < SlotSize {
		return 0, false
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))
	if math.IsNaN(float64(v)) {
		return 0, false
	}
	return v, true
}

func writeSlot(s Storage, index int, v float32) error {
	var buf [SlotSize]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	_, err := s.WriteAt(buf[:], int64(index*SlotSize))
	return err
}
