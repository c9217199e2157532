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

// Package rawfile contains the system call wrappers used to read radio
// frames from host file descriptors on Linux.
package rawfile

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MaxIovs is UIO_MAXIOV, the maximum number of iovecs that may be passed to a
// host system call in a single array.
const MaxIovs = 1024

// ErrStopped is returned by the blocking calls when the stop eventfd becomes
// readable.
var ErrStopped = errors.New("rawfile: stopped")

// IovecFromBytes returns a unix.Iovec representing bs.
//
// Preconditions: len(bs) > 0.
func IovecFromBytes(bs []byte) unix.Iovec {
	iov := unix.Iovec{
		Base: &bs[0],
	}
	iov.SetLen(len(bs))
	return iov
}

// MMsgHdr represents the mmsg_hdr structure required by recvmmsg() on linux.
type MMsgHdr struct {
	Msg unix.Msghdr
	Len uint32
	_   [4]byte
}

// SizeofMMsgHdr is the size of a MMsgHdr in bytes.
const SizeofMMsgHdr = unsafe.Sizeof(MMsgHdr{})

// BlockingRecvMMsgUntilStopped reads from a file descriptor that is set up as
// non-blocking and stores the received messages in a slice of MMsgHdr
// structures. If no data is available, it will block in a poll() syscall until
// the file descriptor becomes readable or stop is signalled (efd becomes
// readable), in which case ErrStopped is returned. If timeout is
// non-negative, the poll gives up after timeout milliseconds with
// unix.ETIMEDOUT.
func BlockingRecvMMsgUntilStopped(efd int, fd int, msgHdrs []MMsgHdr, timeout int) (int, error) {
	for {
		n, _, e := unix.Syscall6(unix.SYS_RECVMMSG, uintptr(fd), uintptr(unsafe.Pointer(&msgHdrs[0])), uintptr(len(msgHdrs)), unix.MSG_DONTWAIT, 0, 0)
		if e == 0 {
			return int(n), nil
		}
		if e != unix.EWOULDBLOCK && e != unix.EINTR {
			return 0, e
		}

		stopped, err := BlockingPollUntilStopped(efd, fd, unix.POLLIN, timeout)
		if stopped {
			return 0, ErrStopped
		}
		if err != nil && err != unix.EINTR {
			return 0, err
		}
	}
}

// BlockingPollUntilStopped polls for events on fd or until a stop is signalled
// on the event fd efd. Returns true if stopped, i.e., efd has event POLLIN.
// A hang up or error condition on fd is reported as ECONNRESET and an expired
// timeout as ETIMEDOUT. A negative timeout waits forever.
func BlockingPollUntilStopped(efd int, fd int, events int16, timeout int) (bool, error) {
	pevents := [...]unix.PollFd{
		{
			Fd:     int32(efd),
			Events: unix.POLLIN,
		},
		{
			Fd:     int32(fd),
			Events: events,
		},
	}
	n, err := unix.Poll(pevents[:], timeout)
	if err != nil {
		return pevents[0].Revents&unix.POLLIN != 0, err
	}
	if n == 0 {
		return false, unix.ETIMEDOUT
	}

	stopped := pevents[0].Revents&unix.POLLIN != 0
	if pevents[1].Revents&unix.POLLIN == 0 && pevents[1].Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
		return stopped, unix.ECONNRESET
	}
	return stopped, nil
}

// NonBlockingWrite writes the given buffer to a file descriptor. It fails if
// partial data is written.
func NonBlockingWrite(fd int, buf []byte) error {
	var ptr unsafe.Pointer
	if len(buf) > 0 {
		ptr = unsafe.Pointer(&buf[0])
	}

	_, _, e := unix.RawSyscall(unix.SYS_WRITE, uintptr(fd), uintptr(ptr), uintptr(len(buf)))
	if e != 0 {
		return e
	}
	return nil
}
