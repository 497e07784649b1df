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

// Package transfer is the point-to-point messaging primitive every federated
// protocol in this repository is built on. A party sends a named value tagged
// with the current round to a role instance, and the counterparty blocks
// receiving the exact same (name, tag) from the expected sender. Matching sent
// and received tags across parties within one logical round is a correctness
// requirement of every protocol above this layer.
package transfer

import (
	"encoding/json"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/heteroml/hetero/errcodes"
)

// Role is the federated role a party is bound to
type Role string

const (
	// Guest holds labels or is the designated decision-maker
	Guest Role = "guest"
	// Host holds auxiliary features only and never decides termination
	Host Role = "host"
	// Arbiter is the trusted third party doing aggregation or decryption
	Arbiter Role = "arbiter"
)

const (
	// Broadcast addresses every registered instance of the destination role
	Broadcast = -1
	// SingleIdx addresses the only instance when exactly one exists
	SingleIdx = 0
)

// Channel is the secure channel bound to one party.
// Send is fire-and-forget and must not block on the counterparty.
// Recv blocks until a message with the matching (name, tag) arrives from the
// expected sender. Implementations surface stalls as an ErrCodeRecvTimeout
// error rather than blocking forever, the protocol layer performs no retry.
type Channel interface {
	Send(name, tag string, to Role, idx int, payload []byte) error
	Recv(name, tag string, from Role, idx int) ([]byte, error)
}

// SendJSON marshals v and sends it through c
func SendJSON(c Channel, name, tag string, to Role, idx int, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to marshal %s", name)
	}
	return c.Send(name, tag, to, idx, payload)
}

// RecvJSON blocks on c and unmarshals the arrived payload into out
func RecvJSON(c Channel, name, tag string, from Role, idx int, out interface{}) error {
	payload, err := c.Recv(name, tag, from, idx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to unmarshal %s", name)
	}
	return nil
}
