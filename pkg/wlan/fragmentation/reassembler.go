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

package fragmentation

import (
	"time"
)

// State is the state of a Reassembler.
type State int

const (
	// Idle means no reassembly is pending.
	Idle State = iota

	// Awaiting means a reassembly is pending and waits for the next
	// fragment.
	Awaiting
)

func (s State) String() string {
	if s == Awaiting {
		return "awaiting"
	}
	return "idle"
}

// Reassembler reassembles the MSDUs of one (transmitter, TID) pair. The zero
// value is Idle and ready for use.
//
// Reassembler is not safe for concurrent use; callers serialize per radio.
type Reassembler struct {
	state        State
	sequence     uint16
	nextFragment uint8
	size         int
	protected    bool
	hasPN        bool
	lastPN       uint64
	creationTime time.Time
	parts        [][]byte
	refs         []Fragment
}

// State returns the current state.
func (r *Reassembler) State() State {
	return r.state
}

// Pending returns the sequence number and next expected fragment number of
// the pending reassembly. It is only meaningful while Awaiting.
func (r *Reassembler) Pending() (sequence uint16, nextFragment uint8) {
	return r.sequence, r.nextFragment
}

// Size returns the number of body bytes buffered.
func (r *Reassembler) Size() int {
	return r.size
}

// Process handles the body of one data frame.
//
// On success with done set, the returned Result holds the completed MSDU and
// owns ref. On success without done, the fragment was buffered and r owns
// ref. On error the frame was dropped and the caller keeps ref; any pending
// reassembly the frame invalidated has been discarded.
func (r *Reassembler) Process(p *Params, now time.Time, info FrameInfo, body []byte, ref Fragment) (Result, bool, error) {
	if r.state == Awaiting {
		if r.continues(info) {
			return r.extend(p, info, body, ref)
		}

		// Anything else ends the pending reassembly.
		r.Discard()
		p.Stats.Desync.Increment()
		if info.IsFragment() {
			if p.Policy == DesyncDropBoth || info.Fragment != 0 {
				return Result{}, false, ErrDesync
			}
		}
	}

	if !info.IsFragment() {
		return Result{Parts: [][]byte{body}, Refs: []Fragment{ref}}, true, nil
	}
	if info.Fragment != 0 {
		return Result{}, false, ErrNoReassembly
	}
	if len(body) > p.MaxSize {
		p.Stats.Overflow.Increment()
		return Result{}, false, ErrOverflow
	}
	r.state = Awaiting
	r.sequence = info.Sequence
	r.nextFragment = 1
	r.protected = info.Protected
	r.hasPN = info.HasPN
	r.lastPN = info.PN
	r.creationTime = now
	r.size = len(body)
	r.parts = append(r.parts, body)
	r.refs = append(r.refs, ref)
	p.Stats.Fragments.Increment()
	return Result{}, false, nil
}

// continues returns true if info is the next fragment of the pending
// reassembly. Plaintext and encrypted fragments never mix, and decrypted
// fragments must carry consecutive packet numbers.
func (r *Reassembler) continues(info FrameInfo) bool {
	if !info.IsFragment() || info.Sequence != r.sequence || info.Fragment != r.nextFragment {
		return false
	}
	if info.Protected != r.protected || info.HasPN != r.hasPN {
		return false
	}
	return !info.HasPN || info.PN == r.lastPN+1
}

func (r *Reassembler) extend(p *Params, info FrameInfo, body []byte, ref Fragment) (Result, bool, error) {
	if r.size+len(body) > p.MaxSize {
		r.Discard()
		p.Stats.Overflow.Increment()
		return Result{}, false, ErrOverflow
	}
	r.size += len(body)
	r.parts = append(r.parts, body)
	r.refs = append(r.refs, ref)
	r.nextFragment++
	r.lastPN = info.PN
	p.Stats.Fragments.Increment()
	if info.More {
		return Result{}, false, nil
	}

	res := Result{Parts: r.parts, Refs: r.refs}
	r.parts = nil
	r.refs = nil
	r.reset()
	p.Stats.Reassembled.Increment()
	return res, true, nil
}

// Discard drops the pending reassembly, if any, releasing its fragments.
// It returns true if a reassembly was pending.
func (r *Reassembler) Discard() bool {
	if r.state == Idle {
		return false
	}
	for i, ref := range r.refs {
		ref.DecRef()
		r.refs[i] = nil
		r.parts[i] = nil
	}
	r.parts = r.parts[:0]
	r.refs = r.refs[:0]
	r.reset()
	return true
}

func (r *Reassembler) reset() {
	r.state = Idle
	r.sequence = 0
	r.nextFragment = 0
	r.size = 0
	r.protected = false
	r.hasPN = false
	r.lastPN = 0
	r.creationTime = time.Time{}
}

// tooOld returns true if a pending reassembly started more than timeout
// before now.
func (r *Reassembler) tooOld(now time.Time, timeout time.Duration) bool {
	return r.state == Awaiting && now.Sub(r.creationTime) >= timeout
}

// Expire discards the pending reassembly if it is older than p.Timeout.
func (r *Reassembler) Expire(p *Params, now time.Time) bool {
	if !r.tooOld(now, p.Timeout) {
		return false
	}
	r.Discard()
	p.Stats.Expired.Increment()
	return true
}
