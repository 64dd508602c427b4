// Package comm is the communication context of a group of cooperating
// workers. Every worker (rank) runs on its own goroutine and talks to the
// others only through collective operations. Every rank must call the same
// collectives in the same order.
package comm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash"
	"golang.org/x/sync/errgroup"
)

// ErrAborted is returned by a collective when another rank of the group failed.
var ErrAborted = errors.New("communication group aborted")

// Comm is a group of Size ranks.
type Comm struct {
	size int
	// mailbox[src][dst] carries one collective round from src to dst
	mailbox [][]chan any
}

// Rank is one member of a Comm, the handle passed to collective operations.
type Rank struct {
	comm *Comm
	id   int
	ctx  context.Context
}

func newComm(size int) *Comm {
	c := &Comm{size: size, mailbox: make([][]chan any, size)}
	for i := range c.mailbox {
		c.mailbox[i] = make([]chan any, size)
		for j := range c.mailbox[i] {
			c.mailbox[i][j] = make(chan any, 1)
		}
	}
	return c
}

// Run starts size ranks, each calling fn, and waits for all of them. The
// first error cancels the group: ranks blocked in a collective return
// ErrAborted. Run returns the first error.
func Run(size int, fn func(r *Rank) error) error {
	return RunContext(context.Background(), size, fn)
}

func RunContext(ctx context.Context, size int, fn func(r *Rank) error) error {
	if size < 1 {
		return fmt.Errorf("[comm.Run] group size:%d must >= 1", size)
	}
	c := newComm(size)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < size; i++ {
		r := &Rank{comm: c, id: i, ctx: gctx}
		g.Go(func() error {
			if err := fn(r); err != nil {
				return fmt.Errorf("rank %d: %w", r.id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Rank) ID() int {
	return r.id
}

func (r *Rank) Size() int {
	return r.comm.size
}

func (r *Rank) Context() context.Context {
	return r.ctx
}

func (r *Rank) send(dst int, v any) error {
	select {
	case r.comm.mailbox[r.id][dst] <- v:
		return nil
	case <-r.ctx.Done():
		return ErrAborted
	}
}

func (r *Rank) recv(src int) (any, error) {
	select {
	case v := <-r.comm.mailbox[src][r.id]:
		return v, nil
	case <-r.ctx.Done():
		return nil, ErrAborted
	}
}

// Alltoall send send[dst] to every rank dst and return recv where recv[src]
// is what rank src sent to this rank, in rank order. len(send) must be Size.
func Alltoall[T any](r *Rank, send [][]T) ([][]T, error) {
	if len(send) != r.Size() {
		return nil, fmt.Errorf("[Alltoall] len(send):%d != group size:%d", len(send), r.Size())
	}
	for dst, s := range send {
		if err := r.send(dst, s); err != nil {
			return nil, err
		}
	}
	recv := make([][]T, r.Size())
	for src := range recv {
		v, err := r.recv(src)
		if err != nil {
			return nil, err
		}
		recv[src] = v.([]T)
	}
	return recv, nil
}

// Gather collect v of every rank on root, in rank order; other ranks get nil.
func Gather[T any](r *Rank, root int, v T) ([]T, error) {
	send := make([][]T, r.Size())
	send[root] = []T{v}
	recv, err := Alltoall(r, send)
	if err != nil {
		return nil, err
	}
	if r.id != root {
		return nil, nil
	}
	all := make([]T, 0, r.Size())
	for _, s := range recv {
		all = append(all, s...)
	}
	return all, nil
}

func allgather[T any](r *Rank, v T) ([]T, error) {
	send := make([][]T, r.Size())
	for i := range send {
		send[i] = []T{v}
	}
	recv, err := Alltoall(r, send)
	if err != nil {
		return nil, err
	}
	all := make([]T, len(recv))
	for i, s := range recv {
		all[i] = s[0]
	}
	return all, nil
}

// AllreduceSum return the sum of v over all ranks, on every rank.
func AllreduceSum(r *Rank, v uint64) (uint64, error) {
	all, err := allgather(r, v)
	if err != nil {
		return 0, err
	}
	var sum uint64
	for _, x := range all {
		sum += x
	}
	return sum, nil
}

// AllreduceOr return true on every rank if v is true on any rank.
func AllreduceOr(r *Rank, v bool) (bool, error) {
	all, err := allgather(r, v)
	if err != nil {
		return false, err
	}
	for _, x := range all {
		if x {
			return true, nil
		}
	}
	return false, nil
}

// Barrier return once every rank has entered it.
func Barrier(r *Rank) error {
	_, err := allgather(r, struct{}{})
	return err
}

// Owner return the rank holding word in a group of size ranks.
func Owner(word uint64, size int) int {
	if size == 1 {
		return 0
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], word)
	return int(xxhash.Sum64(b[:]) % uint64(size))
}
