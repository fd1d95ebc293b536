package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/canode/pkg/can"
	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/transport"
)

func drain(t *testing.T, tr *transport.Transport) (frames []can.Frame) {
	for {
		f, ok := tr.PeekTx()
		if !ok {
			return
		}
		tr.PopTx()
		frames = append(frames, f)
	}
}

func TestMonitorDecodesAnyDestination(t *testing.T) {
	var records []*Record
	m := New(func(r *Record) { records = append(records, r) })

	src := transport.New(nil, nil)
	require.NoError(t, src.SetLocalNodeID(10))
	var tid transport.TransferID
	status := &dsdl.NodeStatus{UptimeSec: 7, Health: dsdl.HealthOK}
	feed := func() {
		for _, f := range drain(t, src) {
			m.HandleFrame(f, "node-10", 1000)
		}
	}
	_, err := src.Broadcast(dsdl.NodeStatusSignature, dsdl.NodeStatusID, &tid, transport.PriorityLow, status.Encode())
	require.NoError(t, err)
	feed()
	req := &dsdl.FileReadRequest{Offset: 256, Path: "firmware/app.bin"}
	_, err = src.RequestOrRespond(42, dsdl.FileReadSignature, dsdl.FileReadID, &tid, transport.PriorityMedium, transport.KindRequest, req.Encode())
	require.NoError(t, err)
	feed()
	require.Len(t, records, 2)

	assert.Equal(t, dsdl.TypeNodeStatus, records[0].Type)
	assert.Equal(t, status, records[0].Message)
	assert.Contains(t, records[0].String(), "node-10: uavcan.protocol.NodeStatus 10 tid=0")

	assert.Equal(t, dsdl.TypeFileRead, records[1].Type)
	assert.Equal(t, uint8(42), records[1].Transfer.Destination)
	assert.Equal(t, req, records[1].Message)
	assert.Contains(t, records[1].String(), "10->42 request")
}

func TestMonitorIgnoresUnknownTypes(t *testing.T) {
	var records []*Record
	m := New(func(r *Record) { records = append(records, r) })
	src := transport.New(nil, nil)
	require.NoError(t, src.SetLocalNodeID(10))
	var tid transport.TransferID
	_, err := src.Broadcast(0x1234, 20000, &tid, transport.PriorityLow, []byte{1, 2, 3})
	require.NoError(t, err)
	for _, f := range drain(t, src) {
		m.HandleFrame(f, "", 1000)
	}
	assert.Empty(t, records)
}

func TestMonitorTap(t *testing.T) {
	var records []*Record
	m := New(func(r *Record) { records = append(records, r) })
	src := transport.New(nil, nil)
	require.NoError(t, src.SetLocalNodeID(5))
	var tid transport.TransferID
	status := &dsdl.NodeStatus{UptimeSec: 1}
	_, err := src.Broadcast(dsdl.NodeStatusSignature, dsdl.NodeStatusID, &tid, transport.PriorityLow, status.Encode())
	require.NoError(t, err)
	frames := drain(t, src)
	require.Len(t, frames, 1)
	pkt, err := can.EncodeFrame(frames[0], "bridge", 99)
	require.NoError(t, err)
	env, err := can.DecodeFrame(pkt)
	require.NoError(t, err)

	hub := can.NewHub()
	hub.Tap = m.Tap
	hub.Publish(nil, pkt)
	require.Len(t, records, 1)
	assert.Equal(t, "bridge", records[0].Origin)
	assert.Equal(t, env.Origin, records[0].Origin)
}
