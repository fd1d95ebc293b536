package node

import (
	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/transport"
)

// accept admits the management types, then defers to the
// application filter.
func (e *Engine) accept(typeID uint16, kind transport.TransferKind, source uint8) (uint64, bool) {
	switch kind {
	case transport.KindBroadcast:
		if typeID == dsdl.AllocationID {
			return dsdl.AllocationSignature, true
		}
	case transport.KindRequest:
		switch typeID {
		case dsdl.GetNodeInfoID:
			return dsdl.GetNodeInfoSignature, true
		case dsdl.ParamGetSetID:
			return dsdl.ParamGetSetSignature, true
		case dsdl.ParamExecuteOpcodeID:
			return dsdl.ParamExecuteOpcodeSignature, true
		case dsdl.RestartNodeID:
			return dsdl.RestartNodeSignature, true
		case dsdl.BeginFirmwareUpdateID:
			return dsdl.BeginFirmwareUpdateSignature, true
		}
	case transport.KindResponse:
		if typeID == dsdl.FileReadID {
			return dsdl.FileReadSignature, true
		}
	}
	if f := e.opts.Accept; f != nil {
		return f.Accept(typeID, kind, source)
	}
	return 0, false
}

func (e *Engine) handleTransfer(tr *transport.Transport, xfer *transport.RxTransfer) {
	if h := e.opts.OnReceive; h != nil {
		h.HandleTransfer(tr, xfer)
	}
	switch xfer.Kind {
	case transport.KindBroadcast:
		if xfer.TypeID == dsdl.AllocationID {
			e.handleAllocation(xfer, e.clock.Now())
		}
	case transport.KindRequest:
		switch xfer.TypeID {
		case dsdl.GetNodeInfoID:
			e.handleGetNodeInfo(xfer)
		case dsdl.ParamGetSetID:
			e.handleParamGetSet(xfer)
		case dsdl.ParamExecuteOpcodeID:
			e.handleParamExecuteOpcode(xfer)
		case dsdl.RestartNodeID:
			e.handleRestartNode(xfer)
		case dsdl.BeginFirmwareUpdateID:
			e.handleBeginFirmwareUpdate(xfer)
		}
	case transport.KindResponse:
		if xfer.TypeID == dsdl.FileReadID {
			e.handleFileReadResponse(xfer)
		}
	}
}

func (e *Engine) respond(xfer *transport.RxTransfer, typ dsdl.Type, msg dsdl.Message) {
	tid := xfer.TransferID
	_, err := e.tr.RequestOrRespond(xfer.Source, typ.Signature, typ.ID, &tid, xfer.Priority, transport.KindResponse, msg.Encode())
	if err != nil {
		glog.Warningf("respond %s to %d: %v", typ.Name, xfer.Source, err)
	}
}
