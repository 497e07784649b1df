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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/heteroml/hetero/errcodes"
)

var logger = logrus.WithField("module", "transfer")

// MqttConf configures the broker connection of one party
type MqttConf struct {
	Broker   string // broker url, like tcp://127.0.0.1:1883
	ClientID string
	Username string
	Password string
	Qos      byte
	Timeout  time.Duration // bounds connect, publish and Recv waits
}

// envelope is the wire form of one transfer, the receiver routes on
// Name, Tag and the sender identity
type envelope struct {
	Name    string `json:"name"`
	Tag     string `json:"tag"`
	From    Role   `json:"from"`
	FromIdx int    `json:"from_idx"`
	Payload []byte `json:"payload"`
}

// MqttChannel is the networked Channel implementation. Every party
// subscribes to its own topic under the task prefix and publishes to the
// counterparty's. Instance counts per role are fixed at construction so
// broadcast sends know the fan-out.
type MqttChannel struct {
	client  mqtt.Client
	taskID  string
	self    party
	qos     byte
	timeout time.Duration
	counts  map[Role]int

	mu    sync.Mutex
	inbox map[string]*mailbox
}

// NewMqttChannel connects to the broker and binds the party to its topic.
// counts lists how many instances of each role participate in the task.
func NewMqttChannel(conf MqttConf, taskID string, role Role, idx int, counts map[Role]int) (*MqttChannel, error) {
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultRecvTimeout
	}
	if conf.ClientID == "" {
		conf.ClientID = fmt.Sprintf("hetero-%s-%d-%s", role, idx, uuid.NewString())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(conf.ClientID).
		SetUsername(conf.Username).
		SetPassword(conf.Password).
		SetConnectTimeout(conf.Timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if ok := token.WaitTimeout(conf.Timeout); !ok {
		return nil, errorx.New(errcodes.ErrCodeConnect, "timed out connecting to broker %s", conf.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeConnect, "failed to connect to broker %s", conf.Broker)
	}

	c := &MqttChannel{
		client:  client,
		taskID:  taskID,
		self:    party{role: role, idx: idx},
		qos:     conf.Qos,
		timeout: conf.Timeout,
		counts:  counts,
		inbox:   make(map[string]*mailbox),
	}

	topic := c.topic(role, idx)
	subToken := client.Subscribe(topic, c.qos, c.onMessage)
	if ok := subToken.WaitTimeout(conf.Timeout); !ok {
		client.Disconnect(250)
		return nil, errorx.New(errcodes.ErrCodeConnect, "timed out subscribing to %s", topic)
	}
	if err := subToken.Error(); err != nil {
		client.Disconnect(250)
		return nil, errorx.NewCode(err, errcodes.ErrCodeConnect, "failed to subscribe to %s", topic)
	}

	logger.Infof("party %s[%d] joined task[%s] via %s", role, idx, taskID, conf.Broker)
	return c, nil
}

// Send publishes payload to every matching instance of the destination role
func (c *MqttChannel) Send(name, tag string, to Role, idx int, payload []byte) error {
	indexes := []int{idx}
	if idx == Broadcast {
		n := c.counts[to]
		if n == 0 {
			return errorx.New(errcodes.ErrCodeNoSuchParty, "no %s instances registered for task[%s]", to, c.taskID)
		}
		indexes = indexes[:0]
		for i := 0; i < n; i++ {
			indexes = append(indexes, i)
		}
	}

	data, err := json.Marshal(envelope{
		Name:    name,
		Tag:     tag,
		From:    c.self.role,
		FromIdx: c.self.idx,
		Payload: payload,
	})
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to marshal envelope %s", name)
	}

	for _, i := range indexes {
		token := c.client.Publish(c.topic(to, i), c.qos, false, data)
		if ok := token.WaitTimeout(c.timeout); !ok {
			return errorx.New(errcodes.ErrCodeRecvTimeout, "timed out publishing %s to %s[%d]", name, to, i)
		}
		if err := token.Error(); err != nil {
			return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to publish %s to %s[%d]", name, to, i)
		}
	}
	return nil
}

// Recv blocks until the expected message arrives or the timeout elapses
func (c *MqttChannel) Recv(name, tag string, from Role, idx int) ([]byte, error) {
	payload, ok := c.queue(edgeKey(name, tag, party{role: from, idx: idx})).pop(c.timeout)
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeRecvTimeout,
			"%s[%d] timed out waiting for %s tag[%s] from %s[%d]",
			c.self.role, c.self.idx, name, tag, from, idx)
	}
	return payload, nil
}

// Close disconnects from the broker
func (c *MqttChannel) Close() {
	c.client.Unsubscribe(c.topic(c.self.role, c.self.idx))
	c.client.Disconnect(250)
}

func (c *MqttChannel) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Payload(), &env); err != nil {
		logger.WithError(err).Warnf("dropped malformed message on %s", msg.Topic())
		return
	}

	c.queue(edgeKey(env.Name, env.Tag, party{role: env.From, idx: env.FromIdx})).push(env.Payload)
}

func (c *MqttChannel) queue(key string) *mailbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.inbox[key]
	if !ok {
		m = newMailbox()
		c.inbox[key] = m
	}
	return m
}

func (c *MqttChannel) topic(role Role, idx int) string {
	return fmt.Sprintf("hetero/%s/%s/%d", c.taskID, role, idx)
}
