package peer

import (
	"context"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/canode/pkg/can"
	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/node"
	"github.com/robotalks/canode/pkg/node/params"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type memImage struct {
	data      []byte
	committed bool
}

func (m *memImage) WriteChunk(offset uint64, data []byte) error {
	m.data = append(m.data[:offset], data...)
	return nil
}

func (m *memImage) Commit(size uint64) error {
	m.committed = true
	return nil
}

type bench struct {
	t       *testing.T
	clock   *fakeClock
	bus     *can.VirtualBus
	manager *Manager
	engines []*node.Engine
}

func newBench(t *testing.T) *bench {
	b := &bench{
		t:     t,
		clock: &fakeClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		bus:   can.NewVirtualBus(),
	}
	m, err := NewManager(b.bus.Attach("manager"), 127)
	require.NoError(t, err)
	m.Now = b.clock.Now
	m.Allocator = NewAllocator()
	b.manager = m
	return b
}

func (b *bench) addNode(opts node.Options) *node.Engine {
	opts.Driver = b.bus.Attach("node")
	opts.Clock = b.clock
	opts.Rand = rand.New(rand.NewSource(int64(len(b.engines) + 1)))
	e, err := node.New(opts)
	require.NoError(b.t, err)
	require.NoError(b.t, e.Init())
	b.engines = append(b.engines, e)
	return e
}

// run advances the clock in 10ms steps, cycling every engine until
// its inbox is drained and polling the manager.
func (b *bench) run(d time.Duration) {
	for end := b.clock.now.Add(d); b.clock.now.Before(end); b.clock.now = b.clock.now.Add(10 * time.Millisecond) {
		for i := 0; i < 64; i++ {
			for _, e := range b.engines {
				e.Cycle()
			}
			b.manager.Poll()
		}
	}
}

func result(t *testing.T, cmd *Command) Result {
	select {
	case r := <-cmd.ResultChan():
		return r
	default:
		t.Fatal("command pending")
	}
	return Result{}
}

func testUniqueID(seed byte) (id node.UniqueID) {
	for i := range id {
		id[i] = seed + byte(i)
	}
	return
}

func TestManagerAllocatesNodes(t *testing.T) {
	b := newBench(t)
	first := b.addNode(node.Options{Identity: node.Identity{UniqueID: testUniqueID(1), PreferredNodeID: 42}})
	second := b.addNode(node.Options{Identity: node.Identity{UniqueID: testUniqueID(100), PreferredNodeID: 42}})

	b.run(10 * time.Second)
	require.NotZero(t, first.NodeID())
	require.NotZero(t, second.NodeID())
	assert.NotEqual(t, first.NodeID(), second.NodeID())
	assert.Contains(t, []uint8{42, 43}, first.NodeID())

	allocations := b.manager.Allocator.Allocations()
	require.Len(t, allocations, 2)

	nodes := b.manager.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, dsdl.ModeOperational, nodes[0].Status.Mode)
}

func TestManagerParamRequests(t *testing.T) {
	b := newBench(t)
	e := b.addNode(node.Options{
		Parameters: []params.Parameter{
			{Name: "NODEID", Kind: params.Integer, Value: 20, Min: 0, Max: 127},
			{Name: "PARM_1", Kind: params.Integer, Value: 3, Min: 0, Max: 100},
		},
	})
	require.Equal(t, uint8(20), e.NodeID())

	cmd := b.manager.Do(20, dsdl.TypeParamGetSet, &dsdl.ParamGetSetRequest{Name: "PARM_1", Value: dsdl.IntegerValue(69)})
	b.run(100 * time.Millisecond)
	var resp dsdl.ParamGetSetResponse
	require.NoError(t, result(t, cmd).Decode(&resp))
	assert.Equal(t, "PARM_1", resp.Name)
	assert.Equal(t, int64(69), resp.Value.Integer)

	v, err := e.GetParameter("PARM_1")
	require.NoError(t, err)
	assert.Equal(t, float32(69), v)

	cmd = b.manager.Do(20, dsdl.TypeGetNodeInfo, &dsdl.GetNodeInfoRequest{})
	b.run(100 * time.Millisecond)
	var info dsdl.GetNodeInfoResponse
	require.NoError(t, result(t, cmd).Decode(&info))
}

func TestManagerCommandExpires(t *testing.T) {
	b := newBench(t)
	cmd := b.manager.Do(99, dsdl.TypeGetNodeInfo, &dsdl.GetNodeInfoRequest{})
	b.run(DefaultCommandExpiration / 2)
	select {
	case <-cmd.ResultChan():
		t.Fatal("command completed early")
	default:
	}
	b.run(DefaultCommandExpiration)
	r := result(t, cmd)
	assert.Equal(t, context.DeadlineExceeded, r.Err)
	assert.Equal(t, context.DeadlineExceeded, r.Decode(&dsdl.GetNodeInfoResponse{}))
}

func TestCommandWaitContext(t *testing.T) {
	b := newBench(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := b.manager.Do(99, dsdl.TypeGetNodeInfo, &dsdl.GetNodeInfoRequest{}).Wait(ctx)
	assert.Equal(t, context.Canceled, r.Err)
}

func TestManagerServesFirmware(t *testing.T) {
	dir, err := ioutil.TempDir("", "canode-peer")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	content := make([]byte, 700)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fw"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "fw", "image.bin"), content, 0644))

	b := newBench(t)
	b.manager.Files = &FileServer{Root: dir}
	image := &memImage{}
	e := b.addNode(node.Options{
		Parameters: []params.Parameter{{Name: "NODEID", Kind: params.Integer, Value: 20, Min: 0, Max: 127}},
		Image:      image,
	})

	cmd := b.manager.Do(20, dsdl.TypeBeginFirmwareUpdate, &dsdl.BeginFirmwareUpdateRequest{ImagePath: "fw/image.bin"})
	b.run(time.Second)
	var resp dsdl.BeginFirmwareUpdateResponse
	require.NoError(t, result(t, cmd).Decode(&resp))
	assert.Equal(t, dsdl.FirmwareOK, resp.Error)

	fw := e.Firmware()
	assert.Equal(t, node.FirmwareCompleted, fw.Phase)
	assert.Equal(t, uint8(127), fw.ServerNodeID)
	assert.True(t, image.committed)
	assert.Equal(t, content, image.data)
}

func TestAllocator(t *testing.T) {
	now := time.Now()
	uid := testUniqueID(1)
	tests := []struct {
		name      string
		used      []uint8
		preferred uint8
		expect    uint8
	}{
		{"preferred free", nil, 42, 42},
		{"preferred used", []uint8{42, 43}, 42, 44},
		{"upper range used", []uint8{124, 125}, 124, 123},
		{"any", nil, 0, DefaultMaxAllocatedNodeID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAllocator()
			for _, id := range tc.used {
				a.MarkUsed(id)
			}
			reply := allocate(t, a, tc.preferred, uid, now)
			assert.Equal(t, tc.expect, reply.NodeID)
			assert.Equal(t, uid[:], reply.UniqueID)

			// same unique ID gets the same node ID
			reply = allocate(t, a, tc.preferred+1, uid, now)
			assert.Equal(t, tc.expect, reply.NodeID)
		})
	}
}

func allocate(t *testing.T, a *Allocator, preferred uint8, uid node.UniqueID, now time.Time) *dsdl.Allocation {
	parts := [][]byte{uid[0:6], uid[6:12], uid[12:16]}
	var reply *dsdl.Allocation
	for i, part := range parts {
		var ok bool
		reply, ok = a.HandleRequest(&dsdl.Allocation{NodeID: preferred, FirstPartOfUniqueID: i == 0, UniqueID: part}, now)
		require.True(t, ok)
		if i < len(parts)-1 {
			assert.Zero(t, reply.NodeID)
			assert.Len(t, reply.UniqueID, 6*(i+1))
		}
	}
	return reply
}

func TestAllocatorIgnoresStrayFollowups(t *testing.T) {
	now := time.Now()
	uid := testUniqueID(1)
	a := NewAllocator()
	_, ok := a.HandleRequest(&dsdl.Allocation{UniqueID: uid[6:12]}, now)
	assert.False(t, ok)

	_, ok = a.HandleRequest(&dsdl.Allocation{FirstPartOfUniqueID: true, UniqueID: uid[0:6]}, now)
	require.True(t, ok)
	_, ok = a.HandleRequest(&dsdl.Allocation{UniqueID: uid[6:12]}, now.Add(AllocationFollowupTimeout+time.Millisecond))
	assert.False(t, ok)

	_, ok = a.HandleRequest(&dsdl.Allocation{FirstPartOfUniqueID: true}, now)
	assert.False(t, ok)
}

func TestAllocatorFull(t *testing.T) {
	a := NewAllocator()
	a.MaxNodeID = 2
	a.MarkUsed(1)
	a.MarkUsed(2)
	uid := testUniqueID(1)
	for i, part := range [][]byte{uid[0:6], uid[6:12]} {
		_, ok := a.HandleRequest(&dsdl.Allocation{FirstPartOfUniqueID: i == 0, UniqueID: part}, time.Now())
		require.True(t, ok)
	}
	_, ok := a.HandleRequest(&dsdl.Allocation{UniqueID: uid[12:16]}, time.Now())
	assert.False(t, ok)
	assert.Empty(t, a.Allocations())
}

func TestFileServer(t *testing.T) {
	dir, err := ioutil.TempDir("", "canode-files")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	content := make([]byte, 300)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "a.bin"), content, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	s := &FileServer{Root: dir}
	tests := []struct {
		name   string
		path   string
		offset uint64
		code   int16
		size   int
	}{
		{"first chunk", "a.bin", 0, dsdl.FileOK, dsdl.FileReadMaxData},
		{"last chunk", "a.bin", 256, dsdl.FileOK, 44},
		{"past end", "a.bin", 400, dsdl.FileOK, 0},
		{"escaping root", "../../a.bin", 0, dsdl.FileOK, dsdl.FileReadMaxData},
		{"missing", "b.bin", 0, dsdl.FileNotFound, 0},
		{"directory", "sub", 0, dsdl.FileIsDirectory, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, code := s.Read(tc.path, tc.offset)
			assert.Equal(t, tc.code, code)
			assert.Len(t, data, tc.size)
		})
	}
}

func TestNewManagerRejectsNodeID(t *testing.T) {
	_, err := NewManager(can.NewVirtualBus().Attach("m"), 0)
	assert.Equal(t, ErrInvalidNodeID, err)
}
