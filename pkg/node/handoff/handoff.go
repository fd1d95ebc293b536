// Package handoff carries a firmware update request across a restart.
// The request handler saves a Handoff before resetting, the next boot
// consumes it and resumes the transfer.
package handoff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/ioutil"
	"os"
	"sync"
)

const (
	// Magic marks a valid handoff region.
	Magic uint32 = 0xc544ad9a
	// PathSize is the NUL padded path field.
	PathSize = 201
	// Size is the serialized length. The layout matches the
	// app/bootloader shared region: magic, four reserved network
	// words, server node ID, own node ID and path.
	Size = 4 + 4*4 + 1 + 1 + PathSize

	offServer = 20
	offMyNode = 21
	offPath   = 22
)

var (
	// ErrNoHandoff indicates a missing or invalid handoff region.
	ErrNoHandoff = errors.New("handoff: no valid handoff")
	// ErrPathTooLong indicates a path not fitting the region.
	ErrPathTooLong = errors.New("handoff: path too long")
)

// Handoff is the resumable state of a firmware update.
type Handoff struct {
	ServerNodeID uint8
	MyNodeID     uint8
	Path         string
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h *Handoff) MarshalBinary() ([]byte, error) {
	if len(h.Path) >= PathSize {
		return nil, ErrPathTooLong
	}
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf, Magic)
	buf[offServer] = h.ServerNodeID
	buf[offMyNode] = h.MyNodeID
	copy(buf[offPath:], h.Path)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Data
// without the magic sentinel is uninitialized memory.
func (h *Handoff) UnmarshalBinary(data []byte) error {
	if len(data) < Size || binary.LittleEndian.Uint32(data) != Magic {
		return ErrNoHandoff
	}
	path := data[offPath : offPath+PathSize]
	if n := bytes.IndexByte(path, 0); n >= 0 {
		path = path[:n]
	}
	*h = Handoff{
		ServerNodeID: data[offServer],
		MyNodeID:     data[offMyNode],
		Path:         string(path),
	}
	if h.ServerNodeID == 0 || h.ServerNodeID > 127 || h.MyNodeID == 0 || h.MyNodeID > 127 {
		return ErrNoHandoff
	}
	return nil
}

// Store persists a Handoff across restarts.
type Store interface {
	Load() (*Handoff, error)
	Save(*Handoff) error
	Clear() error
}

// MemStore is a reset surviving memory region, e.g. retained RAM, or
// shared between an engine and its in-process restart.
type MemStore struct {
	lock   sync.Mutex
	Region [Size]byte
}

// Load implements Store.
func (s *MemStore) Load() (*Handoff, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var h Handoff
	if err := h.UnmarshalBinary(s.Region[:]); err != nil {
		return nil, err
	}
	return &h, nil
}

// Save implements Store.
func (s *MemStore) Save(h *Handoff) error {
	data, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	s.lock.Lock()
	copy(s.Region[:], data)
	s.lock.Unlock()
	return nil
}

// Clear implements Store.
func (s *MemStore) Clear() error {
	s.lock.Lock()
	s.Region = [Size]byte{}
	s.lock.Unlock()
	return nil
}

// FileStore keeps the region in a flag file.
type FileStore struct {
	Path string
}

// Load implements Store.
func (s *FileStore) Load() (*Handoff, error) {
	data, err := ioutil.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, ErrNoHandoff
	}
	if err != nil {
		return nil, err
	}
	var h Handoff
	if err := h.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &h, nil
}

// Save implements Store.
func (s *FileStore) Save(h *Handoff) error {
	data, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

// Clear implements Store.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
