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

package config

import (
	"github.com/spf13/viper"
)

var (
	logConf   *Log
	partyConf *PartyConf
)

// PartyConf describes one party process of a federated task
type PartyConf struct {
	// Role is guest, host or arbiter
	Role string
	// Index distinguishes multiple instances of one role, 0 when single
	Index int
	// TaskID scopes the message topics of one run
	TaskID string
	// SampleFile is the party's local CSV feature file
	SampleFile string

	Mqtt   *MqttConf
	Kmeans *KmeansConf
}

// MqttConf configures the broker connection carrying party messages
type MqttConf struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Qos      int
	// Timeout bounds connect, subscribe and publish, in seconds
	Timeout int
	// RecvTimeout bounds a blocking receive, in seconds
	RecvTimeout int
}

// KmeansConf holds the clustering parameters of a daemon run
type KmeansConf struct {
	K           int
	MaxRound    int
	Tol         float64
	JitterBound float64
}

type Log struct {
	Level string
	Path  string
}

// InitConfig parses configuration file
func InitConfig(configPath string) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	logConf = new(Log)
	err := v.Sub("log").Unmarshal(logConf)
	if err != nil {
		return err
	}
	partyConf = new(PartyConf)
	err = v.Sub("party").Unmarshal(partyConf)
	if err != nil {
		return err
	}
	return nil
}

func GetPartyConf() *PartyConf {
	return partyConf
}

func GetLogConf() *Log {
	return logConf
}
