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

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"

	"github.com/heteroml/hetero/config"
	"github.com/heteroml/hetero/errcodes"
	"github.com/heteroml/hetero/mpc/kmeans"
	"github.com/heteroml/hetero/transfer"
	"github.com/heteroml/hetero/util/csv"
	"github.com/heteroml/hetero/util/logging"
)

// init reads config file
func init() {
	err := config.InitConfig("conf/config.toml")
	if err != nil {
		appExit(err)
	}

	logConf := config.GetLogConf()
	logStd, err := logging.InitLog(logConf, "hetero.log", true)
	if err != nil {
		appExit(err)
	}
	// writes the standard output to the log file
	logrus.SetOutput(logStd.Writer)
	logrus.SetLevel(logStd.Level)
	logrus.SetFormatter(logStd.Format)
}

// main is where execution of the program begins
func main() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, os.Kill, syscall.SIGTERM)
	go func() {
		<-quit
		logrus.Info("interrupted, exiting")
		os.Exit(0)
	}()

	partyConf := config.GetPartyConf()
	if partyConf.Mqtt == nil || partyConf.Kmeans == nil {
		appExit(errorx.New(errcodes.ErrCodeConfig, "missing config: party.mqtt or party.kmeans"))
	}

	ch, err := joinTask(partyConf)
	if err != nil {
		appExit(err)
	}
	defer ch.Close()

	kconf := kmeans.Config{
		K:           partyConf.Kmeans.K,
		MaxRound:    partyConf.Kmeans.MaxRound,
		Tol:         partyConf.Kmeans.Tol,
		JitterBound: partyConf.Kmeans.JitterBound,
	}

	role := transfer.Role(partyConf.Role)
	switch role {
	case transfer.Arbiter:
		arbiter, err := kmeans.NewArbiter(kconf, ch)
		if err != nil {
			appExit(err)
		}
		result, err := arbiter.Fit()
		if err != nil {
			appExit(err)
		}
		logrus.Infof("kmeans arbiter finished, converged %v, rounds %d, tol %v",
			result.Converged, result.Rounds, result.Tol)
	case transfer.Guest, transfer.Host:
		samples, err := csv.ReadSamples(partyConf.SampleFile)
		if err != nil {
			appExit(err)
		}
		client, err := kmeans.NewClient(kconf, ch, role)
		if err != nil {
			appExit(err)
		}
		result, err := client.Fit(samples)
		if err != nil {
			appExit(err)
		}
		logrus.Infof("kmeans %s finished, converged %v, rounds %d, centroids %v",
			role, result.Converged, result.Rounds, result.Centroids)
	default:
		appExit(errorx.New(errcodes.ErrCodeConfig, "unknown party role %q", partyConf.Role))
	}
}

// joinTask binds the configured party to its task topics on the broker
func joinTask(partyConf *config.PartyConf) (*transfer.MqttChannel, error) {
	mqttConf := transfer.MqttConf{
		Broker:   partyConf.Mqtt.Broker,
		ClientID: partyConf.Mqtt.ClientID,
		Username: partyConf.Mqtt.Username,
		Password: partyConf.Mqtt.Password,
		Qos:      byte(partyConf.Mqtt.Qos),
		Timeout:  time.Duration(partyConf.Mqtt.Timeout) * time.Second,
	}
	if partyConf.Mqtt.RecvTimeout > 0 {
		mqttConf.Timeout = time.Duration(partyConf.Mqtt.RecvTimeout) * time.Second
	}

	counts := map[transfer.Role]int{
		transfer.Guest:   1,
		transfer.Host:    1,
		transfer.Arbiter: 1,
	}
	return transfer.NewMqttChannel(mqttConf, partyConf.TaskID, transfer.Role(partyConf.Role), partyConf.Index, counts)
}

// appExit quits main function when an exception occurs
func appExit(err error) {
	logrus.WithError(err).Error("party exits")
	os.Exit(-1)
}
