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

package wlan

import (
	"testing"
)

func TestParseAddress(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{in: "02:00:00:00:00:01", want: Address{2, 0, 0, 0, 0, 1}},
		{in: "ff-ff-ff-ff-ff-ff", want: BroadcastAddress},
		{in: "02:00:00:00:00:00:00:01", wantErr: true},
		{in: "nonsense", wantErr: true},
	} {
		got, err := ParseAddress(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseAddress(%q) err = %v, wantErr %t", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAddress(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestAddressText(t *testing.T) {
	a := Address{0x02, 0, 0, 0, 0, 0xaa}
	b, err := a.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() = %v", err)
	}
	if got, want := string(b), "02:00:00:00:00:aa"; got != want {
		t.Errorf("MarshalText() = %q, want %q", got, want)
	}
	var got Address
	if err := got.UnmarshalText(b); err != nil {
		t.Fatalf("UnmarshalText(%q) = %v", b, err)
	}
	if got != a {
		t.Errorf("UnmarshalText(%q) = %s, want %s", b, got, a)
	}
	if err := got.UnmarshalText([]byte("bogus")); err == nil {
		t.Errorf("UnmarshalText(bogus) succeeded")
	}
}

func TestAddressClasses(t *testing.T) {
	unicast := Address{0x02, 0, 0, 0, 0, 1}
	multicast := Address{0x01, 0x00, 0x5e, 0, 0, 1}
	if unicast.IsGroup() {
		t.Errorf("%s.IsGroup() = true", unicast)
	}
	if !multicast.IsGroup() || multicast.IsBroadcast() {
		t.Errorf("%s: IsGroup() = %t, IsBroadcast() = %t; want true, false", multicast, multicast.IsGroup(), multicast.IsBroadcast())
	}
	if !BroadcastAddress.IsGroup() || !BroadcastAddress.IsBroadcast() {
		t.Errorf("broadcast address not classified as broadcast group address")
	}
	if !multicast.Less(unicast) || unicast.Less(multicast) || unicast.Less(unicast) {
		t.Errorf("Less ordering is wrong for %s and %s", multicast, unicast)
	}
}

func TestStatsFillIn(t *testing.T) {
	s := Stats{}.FillIn()
	if s.Rx.Frames == nil || s.Rx.Dropped.BadFCS == nil || s.Rx.Reassembly.Subframes == nil {
		t.Fatalf("FillIn left nil counters: %+v", s.Rx)
	}
	s.Rx.Dropped.BadFCS.Increment()
	s.Rx.Dropped.NoKey.IncrementBy(2)
	if got, want := s.Rx.Dropped.TotalDropped(), uint64(3); got != want {
		t.Errorf("TotalDropped() = %d, want %d", got, want)
	}
	if got, want := s.Rx.Dropped.NoKey.String(), "2"; got != want {
		t.Errorf("NoKey.String() = %q, want %q", got, want)
	}
}
