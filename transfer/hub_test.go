// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transfer

import (
	"bytes"
	"testing"
	"time"
)

func TestHubRoundTagMatching(t *testing.T) {
	hub := NewHub()
	guest := hub.Join(Guest, 0)
	host := hub.Join(Host, 0)

	// two rounds sent ahead, each receive must match its own tag
	err := guest.Send("test_var", "0", Host, Broadcast, []byte("round-0"))
	checkErr(err, t)
	err = guest.Send("test_var", "1", Host, Broadcast, []byte("round-1"))
	checkErr(err, t)

	got, err := host.Recv("test_var", "1", Guest, SingleIdx)
	checkErr(err, t)
	if !bytes.Equal(got, []byte("round-1")) {
		t.Errorf("tag 1 received %s", got)
	}
	got, err = host.Recv("test_var", "0", Guest, SingleIdx)
	checkErr(err, t)
	if !bytes.Equal(got, []byte("round-0")) {
		t.Errorf("tag 0 received %s", got)
	}
}

func TestHubWrongTagTimesOut(t *testing.T) {
	hub := NewHub()
	hub.SetRecvTimeout(50 * time.Millisecond)
	guest := hub.Join(Guest, 0)
	host := hub.Join(Host, 0)

	err := guest.Send("test_var", "0", Host, Broadcast, []byte("round-0"))
	checkErr(err, t)

	// a receiver blocked on the next round's tag must never match
	if _, err := host.Recv("test_var", "1", Guest, SingleIdx); err == nil {
		t.Error("expected timeout receiving unsent tag")
	}
}

func TestHubSenderIdentity(t *testing.T) {
	hub := NewHub()
	hub.SetRecvTimeout(50 * time.Millisecond)
	guest := hub.Join(Guest, 0)
	host := hub.Join(Host, 0)
	arbiter := hub.Join(Arbiter, 0)

	err := guest.Send("test_var", "0", Arbiter, Broadcast, []byte("from-guest"))
	checkErr(err, t)
	err = host.Send("test_var", "0", Arbiter, Broadcast, []byte("from-host"))
	checkErr(err, t)

	got, err := arbiter.Recv("test_var", "0", Host, SingleIdx)
	checkErr(err, t)
	if !bytes.Equal(got, []byte("from-host")) {
		t.Errorf("expected host message, got %s", got)
	}
	got, err = arbiter.Recv("test_var", "0", Guest, SingleIdx)
	checkErr(err, t)
	if !bytes.Equal(got, []byte("from-guest")) {
		t.Errorf("expected guest message, got %s", got)
	}
}

func TestHubBacklogKeepsOrder(t *testing.T) {
	hub := NewHub()
	guest := hub.Join(Guest, 0)
	host := hub.Join(Host, 0)

	// same name and tag far beyond any internal buffering, the receiver
	// must still see arrival order
	const n = 64
	for i := 0; i < n; i++ {
		err := guest.Send("test_var", "0", Host, Broadcast, []byte{byte(i)})
		checkErr(err, t)
	}
	for i := 0; i < n; i++ {
		got, err := host.Recv("test_var", "0", Guest, SingleIdx)
		checkErr(err, t)
		if got[0] != byte(i) {
			t.Fatalf("message %d delivered as %d", i, got[0])
		}
	}
}

func TestHubNoSuchParty(t *testing.T) {
	hub := NewHub()
	guest := hub.Join(Guest, 0)

	if err := guest.Send("test_var", "0", Host, Broadcast, []byte("x")); err == nil {
		t.Error("expected error sending to a role nobody joined")
	}
}

func TestSendRecvJSON(t *testing.T) {
	hub := NewHub()
	guest := hub.Join(Guest, 0)
	host := hub.Join(Host, 0)

	sent := map[string][]float64{"dist": {1.5, 2.5}}
	err := SendJSON(guest, "test_var", "3", Host, Broadcast, sent)
	checkErr(err, t)

	var got map[string][]float64
	err = RecvJSON(host, "test_var", "3", Guest, SingleIdx, &got)
	checkErr(err, t)
	if len(got["dist"]) != 2 || got["dist"][0] != 1.5 {
		t.Errorf("round-tripped %v", got)
	}
}

func checkErr(err error, t *testing.T) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}
