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
	"fmt"
	"sync"
	"time"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/heteroml/hetero/errcodes"
)

// DefaultRecvTimeout bounds how long a blocked Recv waits for its counterparty
var DefaultRecvTimeout = 30 * time.Second

type party struct {
	role Role
	idx  int
}

// Hub routes messages between parties running in the same process.
// It backs tests and local simulations, every party joins once and gets a
// Channel bound to its role instance.
type Hub struct {
	mu      sync.Mutex
	timeout time.Duration
	parties map[party]*Conn
}

// NewHub creates an empty hub with the default receive timeout
func NewHub() *Hub {
	return &Hub{
		timeout: DefaultRecvTimeout,
		parties: make(map[party]*Conn),
	}
}

// SetRecvTimeout overrides the receive timeout for all joined parties
func (h *Hub) SetRecvTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = d
}

// Join registers a party and returns the channel bound to it.
// Joining the same (role, idx) twice returns the existing channel.
func (h *Hub) Join(role Role, idx int) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := party{role: role, idx: idx}
	if c, ok := h.parties[p]; ok {
		return c
	}
	c := &Conn{
		hub:   h,
		self:  p,
		inbox: make(map[string]*mailbox),
	}
	h.parties[p] = c
	return c
}

func (h *Hub) instances(role Role, idx int) []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets []*Conn
	for p, c := range h.parties {
		if p.role != role {
			continue
		}
		if idx == Broadcast || p.idx == idx {
			targets = append(targets, c)
		}
	}
	return targets
}

// Conn is one party's endpoint on a Hub
type Conn struct {
	hub  *Hub
	self party

	mu    sync.Mutex
	inbox map[string]*mailbox
}

// Send delivers payload to every matching instance of the destination role.
// It never blocks on a slow receiver.
func (c *Conn) Send(name, tag string, to Role, idx int, payload []byte) error {
	targets := c.hub.instances(to, idx)
	if len(targets) == 0 {
		return errorx.New(errcodes.ErrCodeNoSuchParty, "no %s[%d] joined the hub", to, idx)
	}
	for _, t := range targets {
		t.queue(edgeKey(name, tag, c.self)).push(payload)
	}
	return nil
}

// Recv blocks until the expected message arrives or the hub timeout elapses
func (c *Conn) Recv(name, tag string, from Role, idx int) ([]byte, error) {
	payload, ok := c.queue(edgeKey(name, tag, party{role: from, idx: idx})).pop(c.hub.timeout)
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeRecvTimeout,
			"%s[%d] timed out waiting for %s tag[%s] from %s[%d]",
			c.self.role, c.self.idx, name, tag, from, idx)
	}
	return payload, nil
}

func (c *Conn) queue(key string) *mailbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.inbox[key]
	if !ok {
		m = newMailbox()
		c.inbox[key] = m
	}
	return m
}

// mailbox buffers one edge's payloads in arrival order. push never blocks
// however far the receiver lags, so senders stay fire-and-forget and same-key
// messages keep FIFO order regardless of backlog size.
type mailbox struct {
	mu     sync.Mutex
	queue  [][]byte
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(payload []byte) {
	m.mu.Lock()
	m.queue = append(m.queue, payload)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// pop returns the oldest payload, waiting up to timeout for one to arrive
func (m *mailbox) pop(timeout time.Duration) ([]byte, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			payload := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return payload, true
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-deadline.C:
			return nil, false
		}
	}
}

// edgeKey identifies one logical message flow, receivers match on the
// variable name, the round tag and the sender identity
func edgeKey(name, tag string, from party) string {
	return fmt.Sprintf("%s.%s@%s-%d", name, tag, from.role, from.idx)
}
