package node

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/node/handoff"
	"github.com/robotalks/canode/pkg/transport"
)

type memImage struct {
	data      []byte
	offsets   []uint64
	committed bool
	aborted   int
}

func (m *memImage) WriteChunk(offset uint64, data []byte) error {
	m.offsets = append(m.offsets, offset)
	if end := offset + uint64(len(data)); end > uint64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-uint64(len(m.data)))...)
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *memImage) Commit(size uint64) error {
	m.data = m.data[:size]
	m.committed = true
	return nil
}

func (m *memImage) Abort() error {
	m.aborted++
	m.data = nil
	return nil
}

func testImage(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func beginUpdate(h *harness, req *dsdl.BeginFirmwareUpdateRequest) dsdl.BeginFirmwareUpdateResponse {
	h.peer.request(5, dsdl.TypeBeginFirmwareUpdate, req)
	h.peer.pump()
	h.settle()
	var resp dsdl.BeginFirmwareUpdateResponse
	h.decodeLast(dsdl.TypeBeginFirmwareUpdate, transport.KindResponse, &resp)
	return resp
}

func TestFirmwareUpdateInPlace(t *testing.T) {
	image := &memImage{}
	h := newHarness(t, Options{Parameters: testParameters(5), Image: image})
	h.peer.image = testImage(2*dsdl.FileReadMaxData + 88)

	resp := beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "fw.bin"})
	assert.Equal(t, dsdl.FirmwareOK, resp.Error)
	h.settle()

	assert.Equal(t, []uint64{0, dsdl.FileReadMaxData, 2 * dsdl.FileReadMaxData}, h.peer.reads)
	assert.Equal(t, []string{"fw.bin", "fw.bin", "fw.bin"}, h.peer.readPaths)
	fw := h.engine.Firmware()
	assert.Equal(t, FirmwareCompleted, fw.Phase)
	assert.Equal(t, uint64(len(h.peer.image)), fw.Offset)
	assert.True(t, image.committed)
	assert.Equal(t, h.peer.image, image.data)
	assert.Equal(t, []uint64{0, dsdl.FileReadMaxData, 2 * dsdl.FileReadMaxData}, image.offsets)

	// requests use high priority and the server from the request source
	xfer := h.peer.last(dsdl.FileReadID, transport.KindRequest)
	require.NotNil(t, xfer)
	assert.Equal(t, transport.PriorityHigh, xfer.Priority)
	assert.Equal(t, uint8(5), xfer.Source)
}

func TestFirmwareImageMultipleOfChunk(t *testing.T) {
	image := &memImage{}
	h := newHarness(t, Options{Parameters: testParameters(5), Image: image})
	h.peer.image = testImage(dsdl.FileReadMaxData)

	beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{SourceNodeID: 10, ImagePath: "fw.bin"})
	h.settle()
	assert.Equal(t, []uint64{0, dsdl.FileReadMaxData}, h.peer.reads)
	assert.Equal(t, FirmwareCompleted, h.engine.Firmware().Phase)
	assert.Len(t, image.data, dsdl.FileReadMaxData)
}

func TestBeginFirmwareUpdateRejects(t *testing.T) {
	h := newHarness(t, Options{Parameters: testParameters(5)})

	resp := beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{})
	assert.Equal(t, dsdl.FirmwareUnknownError, resp.Error)
	assert.Equal(t, FirmwareIdle, h.engine.Firmware().Phase)

	resp = beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "a.bin"})
	assert.Equal(t, dsdl.FirmwareOK, resp.Error)
	resp = beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "b.bin"})
	assert.Equal(t, dsdl.FirmwareInProgress, resp.Error)
	assert.Equal(t, "a.bin", h.engine.Firmware().Path)
}

func TestFirmwareIgnoresMismatchedResponses(t *testing.T) {
	h := newHarness(t, Options{Parameters: testParameters(5)})
	beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "fw.bin"})
	h.settle()

	req := h.peer.last(dsdl.FileReadID, transport.KindRequest)
	require.NotNil(t, req)
	full := &dsdl.FileReadResponse{Data: testImage(dsdl.FileReadMaxData)}

	wrongTID := *req
	wrongTID.TransferID = req.TransferID + 1
	h.peer.respond(&wrongTID, dsdl.TypeFileRead, full)
	h.peer.pump()
	h.settle()
	assert.Equal(t, uint64(0), h.engine.Firmware().Offset)

	other := newTestPeer(t, h.bus, h.clock, 11)
	other.respond(req, dsdl.TypeFileRead, full)
	other.pump()
	h.settle()
	assert.Equal(t, uint64(0), h.engine.Firmware().Offset)

	h.peer.respond(req, dsdl.TypeFileRead, full)
	h.peer.pump()
	h.settle()
	assert.Equal(t, uint64(dsdl.FileReadMaxData), h.engine.Firmware().Offset)
	assert.Equal(t, FirmwareRequesting, h.engine.Firmware().Phase)
}

func TestFirmwareRetriesUnanswered(t *testing.T) {
	h := newHarness(t, Options{Parameters: testParameters(5)})
	beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "fw.bin"})
	h.settle()
	require.Equal(t, 1, h.peer.count(dsdl.FileReadID, transport.KindRequest))

	h.clock.Advance(FirmwareReadInterval / 2)
	h.settle()
	assert.Equal(t, 1, h.peer.count(dsdl.FileReadID, transport.KindRequest))

	h.clock.Advance(FirmwareReadInterval / 2)
	h.settle()
	assert.Equal(t, 2, h.peer.count(dsdl.FileReadID, transport.KindRequest))
	var req dsdl.FileReadRequest
	h.decodeLast(dsdl.TypeFileRead, transport.KindRequest, &req)
	assert.Equal(t, uint64(0), req.Offset)
}

func TestFirmwareErrorResponseFails(t *testing.T) {
	image := &memImage{}
	h := newHarness(t, Options{Parameters: testParameters(5), Image: image})
	beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "missing.bin"})
	h.settle()

	req := h.peer.last(dsdl.FileReadID, transport.KindRequest)
	require.NotNil(t, req)
	h.peer.respond(req, dsdl.TypeFileRead, &dsdl.FileReadResponse{Error: dsdl.FileNotFound})
	h.peer.pump()
	h.settle()

	fw := h.engine.Firmware()
	assert.Equal(t, FirmwareFailed, fw.Phase)
	assert.True(t, errors.Is(fw.Err, ErrFileRead))
	assert.Equal(t, 1, image.aborted)
	assert.False(t, image.committed)

	h.clock.Advance(FirmwareReadInterval)
	h.settle()
	assert.Equal(t, 1, h.peer.count(dsdl.FileReadID, transport.KindRequest))

	// a failed update can be started again
	resp := beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "fw.bin"})
	assert.Equal(t, dsdl.FirmwareOK, resp.Error)
}

func TestFirmwareHandoffRestart(t *testing.T) {
	store := &handoff.MemStore{}
	restarts := 0
	h := newHarness(t, Options{
		Parameters: testParameters(5),
		Handoff:    store,
		Restarter: RestartFunc(func() error {
			restarts++
			return nil
		}),
	})
	resp := beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "fw.bin"})
	assert.Equal(t, dsdl.FirmwareOK, resp.Error)
	assert.Equal(t, 1, restarts)
	assert.Equal(t, FirmwareIdle, h.engine.Firmware().Phase)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, &handoff.Handoff{ServerNodeID: 10, MyNodeID: 5, Path: "fw.bin"}, saved)
}

func TestFirmwareHandoffRestartFailure(t *testing.T) {
	store := &handoff.MemStore{}
	h := newHarness(t, Options{
		Parameters: testParameters(5),
		Handoff:    store,
		Restarter:  RestartFunc(func() error { return errors.New("no reset") }),
	})
	beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "fw.bin"})
	assert.Equal(t, FirmwareRequesting, h.engine.Firmware().Phase)
	_, err := store.Load()
	assert.Equal(t, handoff.ErrNoHandoff, err)
}

type stuckStore struct {
	*handoff.MemStore
	clears int
}

func (s *stuckStore) Clear() error {
	s.clears++
	return errors.New("region locked")
}

func TestFirmwareHandoffClearFailure(t *testing.T) {
	store := &stuckStore{MemStore: &handoff.MemStore{}}
	h := newHarness(t, Options{
		Parameters: testParameters(5),
		Handoff:    store,
		Restarter:  RestartFunc(func() error { return errors.New("no reset") }),
	})
	resp := beginUpdate(h, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "fw.bin"})
	assert.Equal(t, dsdl.FirmwareOK, resp.Error)
	assert.Equal(t, 1, store.clears)
	fw := h.engine.Firmware()
	assert.Equal(t, FirmwareRequesting, fw.Phase)
	assert.Equal(t, "fw.bin", fw.Path)

	// a stale handoff at the next boot still resumes the pull
	next := newHarness(t, Options{Handoff: store})
	assert.Equal(t, FirmwareRequesting, next.engine.Firmware().Phase)
	assert.Equal(t, uint8(5), next.engine.NodeID())
}

func TestFileImage(t *testing.T) {
	dir, err := ioutil.TempDir("", "canode-image")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "fw.bin")
	img := &FileImage{Path: path}
	require.NoError(t, img.WriteChunk(0, []byte("hello ")))
	require.NoError(t, img.WriteChunk(6, []byte("world")))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, img.Commit(11))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	require.NoError(t, img.WriteChunk(0, []byte("again")))
	require.NoError(t, img.Commit(5))
	data, err = ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "again", string(data))
}

func TestFileImageAbort(t *testing.T) {
	dir, err := ioutil.TempDir("", "canode-image")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "fw.bin")
	img := &FileImage{Path: path}
	require.NoError(t, img.Abort())

	require.NoError(t, img.WriteChunk(0, []byte("partial")))
	_, err = os.Stat(path + ".part")
	require.NoError(t, err)
	require.NoError(t, img.Abort())
	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// the next transfer starts a fresh file
	require.NoError(t, img.WriteChunk(0, []byte("fresh")))
	require.NoError(t, img.Commit(5))
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}
