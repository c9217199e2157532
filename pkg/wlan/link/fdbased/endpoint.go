// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

// Package fdbased provides a radio endpoint backed by a boundary-preserving
// file descriptor, such as an AF_PACKET socket bound to a monitor mode
// interface or one end of a seqpacket socket pair.
//
// The endpoint reads frames in bursts with recvmmsg. Every frame of a burst
// goes through Dispatcher.ReceiveToBatch and the packets completed by the
// burst are handed to the radio's NetworkDispatcher in one bulk delivery.
package fdbased

import (
	"fmt"
	"time"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
	"gvisor.dev/wlan/pkg/log"
	"gvisor.dev/wlan/pkg/sync"
	"gvisor.dev/wlan/pkg/wlan"
	"gvisor.dev/wlan/pkg/wlan/link/rawfile"
	"gvisor.dev/wlan/pkg/wlan/stack"
)

const (
	// DefaultMaxFrameSize is the receive buffer size used when none is
	// configured. It holds the largest A-MSDU a VHT radio can receive plus
	// a generous radiotap header.
	DefaultMaxFrameSize = 11454 + 512

	// MaxMsgsPerRecv is the maximum number of frames we want to retrieve
	// in a single recvmmsg call.
	MaxMsgsPerRecv = 8
)

// Options specify the details about the fd-based endpoint to be created.
type Options struct {
	// FD is the file descriptor frames are read from. The endpoint makes it
	// non-blocking but does not take ownership of it.
	FD int

	// MaxFrameSize is the size of each receive buffer. Frames that do not
	// fit are dropped.
	MaxFrameSize int

	// MsgsPerRecv is the number of frames read per system call. Defaults to
	// MaxMsgsPerRecv.
	MsgsPerRecv int

	// Flags describe how every frame read from FD was captured, typically
	// stack.FlagRadiotap for monitor mode sockets.
	Flags stack.RxFlags

	// MinFrameSize, if non-zero, attaches a socket filter that discards
	// shorter frames in the kernel.
	MinFrameSize uint32

	// ExpireInterval, if non-zero, is how often the dispatch goroutine
	// discards stale fragments with Dispatcher.ExpireFragments. It runs
	// even when no frames arrive.
	ExpireInterval time.Duration

	// Clock provides the time passed to ExpireFragments. It must be the
	// clock of the Dispatcher. Defaults to the system clock.
	Clock wlan.Clock

	// ClosedFunc is called with the error that stopped the dispatch loop,
	// or nil if the peer closed its end. It is not called by Stop.
	ClosedFunc func(error)
}

// Endpoint reads radio frames from a file descriptor and feeds them to the
// receive path of one radio.
type Endpoint struct {
	// fd is the file descriptor frames are read from.
	fd int

	// stopFd is an eventfd used to signal the dispatch loop to stop.
	stopFd int

	flags  stack.RxFlags
	closed func(error)

	expireInterval time.Duration
	clock          wlan.Clock

	// Truncated is the number of frames dropped because they did not fit in
	// a receive buffer.
	Truncated wlan.StatCounter

	// Bursts is the number of recvmmsg calls that returned frames.
	Bursts wlan.StatCounter

	// dispatcher and hw are set by Attach.
	dispatcher *stack.Dispatcher
	hw         *stack.Hardware

	wg sync.WaitGroup

	// The fields below are owned by the dispatch goroutine.
	rd         *recvMMsgDispatcher
	batch      stack.PacketBufferList
	nextExpiry time.Time
}

// New creates a new fd-based endpoint.
func New(opts *Options) (*Endpoint, error) {
	if err := unix.SetNonblock(opts.FD, true); err != nil {
		return nil, fmt.Errorf("unix.SetNonblock(%d) failed: %v", opts.FD, err)
	}
	if opts.MinFrameSize > 0 {
		if err := AttachLengthFilter(opts.FD, opts.MinFrameSize); err != nil {
			return nil, err
		}
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("unix.Eventfd failed: %v", err)
	}

	maxFrameSize := opts.MaxFrameSize
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	msgs := opts.MsgsPerRecv
	if msgs <= 0 {
		msgs = MaxMsgsPerRecv
	}
	clock := opts.Clock
	if clock == nil {
		clock = wlan.StdClock{}
	}
	return &Endpoint{
		fd:             opts.FD,
		stopFd:         efd,
		flags:          opts.Flags,
		closed:         opts.ClosedFunc,
		expireInterval: opts.ExpireInterval,
		clock:          clock,
		rd:             newRecvMMsgDispatcher(msgs, maxFrameSize),
	}, nil
}

// Attach launches the goroutine that reads frames from the file descriptor
// and runs them through d on behalf of hw.
func (e *Endpoint) Attach(d *stack.Dispatcher, hw *stack.Hardware) {
	e.dispatcher = d
	e.hw = hw
	e.nextExpiry = e.clock.Now().Add(e.expireInterval)
	e.wg.Add(1)
	go func() { // S/R-SAFE: endpoints are not saved.
		defer e.wg.Done()
		e.dispatchLoop()
	}()
}

// IsAttached returns true if the dispatch loop was started.
func (e *Endpoint) IsAttached() bool {
	return e.dispatcher != nil
}

// Stop signals the dispatch loop to stop and waits for it to exit. Packets
// completed by the burst in flight are still delivered.
func (e *Endpoint) Stop() {
	var one [8]byte
	one[0] = 1
	if _, err := unix.Write(e.stopFd, one[:]); err != nil {
		log.Warningf("fdbased: signalling stop: %v", err)
	}
	e.Wait()
}

// Wait waits for the dispatch loop to exit.
func (e *Endpoint) Wait() {
	e.wg.Wait()
}

// Close releases the stop eventfd. The endpoint must be stopped.
func (e *Endpoint) Close() error {
	return unix.Close(e.stopFd)
}

// dispatchLoop reads frames from the file descriptor in a loop until it is
// stopped or the descriptor fails.
func (e *Endpoint) dispatchLoop() {
	for {
		cont, err := e.dispatch()
		if err == rawfile.ErrStopped {
			return
		}
		if err == unix.ETIMEDOUT {
			continue
		}
		if err != nil || !cont {
			if e.closed != nil {
				e.closed(err)
			}
			return
		}
	}
}

// dispatch reads one burst of frames and delivers the packets they complete.
func (e *Endpoint) dispatch() (bool, error) {
	d := e.rd
	d.allocateBuffers()

	timeout := -1
	if e.expireInterval > 0 {
		timeout = int(e.expireInterval / time.Millisecond)
		if timeout < 1 {
			timeout = 1
		}
	}
	nMsgs, err := rawfile.BlockingRecvMMsgUntilStopped(e.stopFd, e.fd, d.msgHdrs, timeout)
	if err == unix.ETIMEDOUT {
		e.expire()
	}
	if err != nil {
		return false, err
	}
	e.Bursts.Increment()

	cont := true
	for k := 0; k < nMsgs; k++ {
		n := int(d.msgHdrs[k].Len)
		if n == 0 {
			// A zero length read on a connected socket means the peer
			// closed its end.
			cont = false
			break
		}
		if d.msgHdrs[k].Msg.Flags&unix.MSG_TRUNC != 0 {
			e.Truncated.Increment()
			continue
		}
		f := stack.NewFrame(d.takeBuffer(k, n), stack.RxInfo{Flags: e.flags}, nil)
		e.dispatcher.ReceiveToBatch(e.hw, nil, f, &e.batch)
	}
	d.reset(nMsgs)

	stack.DeliverBatch(e.hw.NetworkDispatcher(), &e.batch)
	e.expire()
	return cont, nil
}

// expire discards stale fragments if the expiry interval has passed. It runs
// on the dispatch goroutine, which serializes it with the receive calls.
func (e *Endpoint) expire() {
	if e.expireInterval <= 0 {
		return
	}
	now := e.clock.Now()
	if now.Before(e.nextExpiry) {
		return
	}
	e.nextExpiry = now.Add(e.expireInterval)
	if n := e.dispatcher.ExpireFragments(e.hw, now); n > 0 {
		log.Debugf("fdbased: hw %d: expired %d pending reassemblies", e.hw.ID(), n)
	}
}

// recvMMsgDispatcher holds the buffers and message headers passed to
// recvmmsg.
type recvMMsgDispatcher struct {
	maxFrameSize int

	// bufs holds one receive buffer per message. A buffer handed to a
	// frame is replaced before the next read.
	bufs [][]byte

	// iovecs holds one iovec per message, pointing at the corresponding
	// buffer above.
	iovecs []unix.Iovec

	// msgHdrs is an array of MMsgHdr objects where each MMsgHdr references
	// one iovec above. This array is passed as the parameter to recvmmsg
	// call to retrieve potentially more than one frame per syscall.
	msgHdrs []rawfile.MMsgHdr
}

func newRecvMMsgDispatcher(msgs, maxFrameSize int) *recvMMsgDispatcher {
	d := &recvMMsgDispatcher{
		maxFrameSize: maxFrameSize,
		bufs:         make([][]byte, msgs),
		iovecs:       make([]unix.Iovec, msgs),
		msgHdrs:      make([]rawfile.MMsgHdr, msgs),
	}
	for i := range d.msgHdrs {
		d.msgHdrs[i].Msg.Iov = &d.iovecs[i]
		d.msgHdrs[i].Msg.SetIovlen(1)
	}
	return d
}

func (d *recvMMsgDispatcher) allocateBuffers() {
	for k, b := range d.bufs {
		if b != nil {
			continue
		}
		b = make([]byte, d.maxFrameSize)
		d.bufs[k] = b
		d.iovecs[k] = rawfile.IovecFromBytes(b)
	}
}

// takeBuffer detaches the first n bytes of buffer k. The frame owns them
// from here on.
func (d *recvMMsgDispatcher) takeBuffer(k, n int) []byte {
	b := d.bufs[k][:n:n]
	d.bufs[k] = nil
	return b
}

func (d *recvMMsgDispatcher) reset(nMsgs int) {
	for k := 0; k < nMsgs; k++ {
		d.msgHdrs[k].Len = 0
		d.msgHdrs[k].Msg.Flags = 0
	}
}

// LengthFilter returns a classic BPF program accepting frames of at least
// minSize bytes.
func LengthFilter(minSize uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadExtension{Num: bpf.ExtLen},
		bpf.JumpIf{Cond: bpf.JumpGreaterOrEqual, Val: minSize, SkipFalse: 1},
		bpf.RetConstant{Val: 0x40000},
		bpf.RetConstant{Val: 0},
	}
}

// AttachLengthFilter attaches LengthFilter(minSize) to the socket fd.
func AttachLengthFilter(fd int, minSize uint32) error {
	raw, err := bpf.Assemble(LengthFilter(minSize))
	if err != nil {
		return fmt.Errorf("assembling length filter: %v", err)
	}
	filter := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog); err != nil {
		return fmt.Errorf("attaching length filter to fd %d: %v", fd, err)
	}
	return nil
}
