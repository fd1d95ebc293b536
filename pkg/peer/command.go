package peer

import (
	"container/list"
	"context"
	"time"

	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/transport"
)

// DefaultCommandExpiration is how long a request waits for its response.
const DefaultCommandExpiration = time.Second

// Result is the outcome of a request.
type Result struct {
	Transfer *transport.RxTransfer
	Err      error
}

// Decode decodes the response payload into msg.
func (r Result) Decode(msg dsdl.Message) error {
	if r.Err != nil {
		return r.Err
	}
	return msg.Decode(r.Transfer.Payload)
}

type commandKey struct {
	node   uint8
	typeID uint16
	tid    transport.TransferID
}

// Command is a request waiting for its response. The result is
// delivered exactly once: the response, a send error or
// context.DeadlineExceeded after the expiration.
type Command struct {
	key      commandKey
	expireAt time.Time
	elem     *list.Element
	result   chan Result
}

func newCommand(key commandKey, expireAt time.Time) *Command {
	return &Command{key: key, expireAt: expireAt, result: make(chan Result, 1)}
}

// ResultChan returns the chan receiving the result.
func (c *Command) ResultChan() <-chan Result {
	return c.result
}

// Wait blocks for the result or ctx.
func (c *Command) Wait(ctx context.Context) Result {
	select {
	case r := <-c.result:
		return r
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

func (c *Command) done(r Result) {
	c.result <- r
	close(c.result)
}
