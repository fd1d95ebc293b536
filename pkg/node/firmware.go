package node

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/transport"
)

// FirmwareReadInterval is the minimal spacing of read requests, it
// gives the server time to answer before the read is repeated.
const FirmwareReadInterval = 750 * time.Millisecond

// FirmwarePhase tags FirmwareState.
type FirmwarePhase int

// Firmware transfer phases.
const (
	FirmwareIdle FirmwarePhase = iota
	FirmwareRequesting
	FirmwareCompleted
	FirmwareFailed
)

func (p FirmwarePhase) String() string {
	switch p {
	case FirmwareIdle:
		return "idle"
	case FirmwareRequesting:
		return "requesting"
	case FirmwareCompleted:
		return "completed"
	case FirmwareFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ErrFileRead wraps an error code returned by the file server.
var ErrFileRead = errors.New("node: remote file read failed")

// FirmwareState is a snapshot of the transfer. Offset only grows
// while Requesting. Completed carries the image size in Offset,
// Failed carries Err.
type FirmwareState struct {
	Phase        FirmwarePhase
	ServerNodeID uint8
	Path         string
	Offset       uint64
	Err          error
}

type firmware struct {
	state       FirmwareState
	lastRequest time.Time
	tid         transport.TransferID
	inflight    transport.TransferID
	awaiting    bool
}

func (f *firmware) begin(server uint8, path string) {
	f.state = FirmwareState{Phase: FirmwareRequesting, ServerNodeID: server, Path: path}
	f.lastRequest = time.Time{}
	f.awaiting = false
}

// Firmware returns the firmware transfer state.
func (e *Engine) Firmware() FirmwareState {
	return e.fw.state
}

func (e *Engine) firmwareStep(now time.Time) {
	f := &e.fw
	if f.state.Phase != FirmwareRequesting {
		return
	}
	if !f.lastRequest.IsZero() && now.Sub(f.lastRequest) < FirmwareReadInterval {
		return
	}
	f.lastRequest = now
	req := dsdl.FileReadRequest{Offset: f.state.Offset, Path: f.state.Path}
	tid := f.tid
	_, err := e.tr.RequestOrRespond(f.state.ServerNodeID, dsdl.FileReadSignature, dsdl.FileReadID,
		&f.tid, transport.PriorityHigh, transport.KindRequest, req.Encode())
	if err != nil {
		glog.Warningf("firmware read at %d: %v", f.state.Offset, err)
		return
	}
	f.inflight, f.awaiting = tid, true
	glog.V(3).Infof("firmware read %s at %d", f.state.Path, f.state.Offset)
}

func (e *Engine) handleFileReadResponse(xfer *transport.RxTransfer) {
	f := &e.fw
	if f.state.Phase != FirmwareRequesting || !f.awaiting ||
		xfer.TransferID != f.inflight || xfer.Source != f.state.ServerNodeID {
		glog.V(2).Infof("file read response from %d tid %d: not for us", xfer.Source, xfer.TransferID)
		return
	}
	var resp dsdl.FileReadResponse
	if err := resp.Decode(xfer.Payload); err != nil {
		glog.V(2).Infof("file read response: %v", err)
		return
	}
	f.awaiting = false
	if resp.Error != dsdl.FileOK {
		e.firmwareFailed(fmt.Errorf("%w: %s at %d: error %d", ErrFileRead, f.state.Path, f.state.Offset, resp.Error))
		return
	}
	if sink := e.opts.Image; sink != nil && len(resp.Data) > 0 {
		if err := sink.WriteChunk(f.state.Offset, resp.Data); err != nil {
			e.firmwareFailed(fmt.Errorf("write image at %d: %w", f.state.Offset, err))
			return
		}
	}
	f.state.Offset += uint64(len(resp.Data))
	if len(resp.Data) < dsdl.FileReadMaxData {
		if sink := e.opts.Image; sink != nil {
			if err := sink.Commit(f.state.Offset); err != nil {
				e.firmwareFailed(fmt.Errorf("commit image: %w", err))
				return
			}
		}
		f.state.Phase = FirmwareCompleted
		glog.Infof("firmware update complete: %d bytes", f.state.Offset)
		return
	}
	f.lastRequest = time.Time{}
}

func (e *Engine) firmwareFailed(err error) {
	e.fw.state.Phase = FirmwareFailed
	e.fw.state.Err = err
	glog.Warningf("firmware update aborted: %v", err)
	if a, ok := e.opts.Image.(ImageAborter); ok {
		if err := a.Abort(); err != nil {
			glog.Warningf("discard partial image: %v", err)
		}
	}
}
