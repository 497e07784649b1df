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

package kmeans

import (
	"strconv"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/heteroml/hetero/errcodes"
	"github.com/heteroml/hetero/transfer"
)

// Arbiter coordinates a run. It joins the two parties' distance tables,
// assigns clusters through the configured strategy, and alone decides stop
// from the combined tolerance. It never sees raw features.
type Arbiter struct {
	conf   Config
	ch     transfer.Channel
	assign AssignStrategy
	nRound int
}

// NewArbiter creates the coordinator, defaulting to nearest-centroid
// assignment
func NewArbiter(conf Config, ch transfer.Channel) (*Arbiter, error) {
	if err := conf.check(); err != nil {
		return nil, err
	}
	assign := conf.Assign
	if assign == nil {
		assign = NearestAssign{}
	}
	return &Arbiter{conf: conf, ch: ch, assign: assign}, nil
}

// Fit drives the arbiter until the combined tolerance drops below the
// threshold or the round budget runs out
func (a *Arbiter) Fit() (*Result, error) {
	logger.Infof("start kmeans arbiter fit, k %d, max round %d", a.conf.K, a.conf.MaxRound)

	var assignment []int
	var sig tolSignal
	for a.nRound < a.conf.MaxRound {
		tag := strconv.Itoa(a.nRound)

		var guestDist, hostDist [][]float64
		if err := transfer.RecvJSON(a.ch, varClientDist, tag, transfer.Guest, transfer.SingleIdx, &guestDist); err != nil {
			return nil, err
		}
		if err := transfer.RecvJSON(a.ch, varClientDist, tag, transfer.Host, transfer.SingleIdx, &hostDist); err != nil {
			return nil, err
		}
		summed, err := sumDistances(guestDist, hostDist)
		if err != nil {
			return nil, err
		}

		assignment, err = a.assign.CentroidAssign(summed)
		if err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(a.ch, varAssignment, tag, transfer.Guest, transfer.Broadcast, assignment); err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(a.ch, varAssignment, tag, transfer.Host, transfer.Broadcast, assignment); err != nil {
			return nil, err
		}

		var guestTol, hostTol float64
		if err := transfer.RecvJSON(a.ch, varClientTol, tag, transfer.Guest, transfer.SingleIdx, &guestTol); err != nil {
			return nil, err
		}
		if err := transfer.RecvJSON(a.ch, varClientTol, tag, transfer.Host, transfer.SingleIdx, &hostTol); err != nil {
			return nil, err
		}

		sig = tolSignal{Tol: guestTol + hostTol, Stop: guestTol+hostTol < a.conf.Tol}
		if err := transfer.SendJSON(a.ch, varTolSignal, tag, transfer.Guest, transfer.Broadcast, sig); err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(a.ch, varTolSignal, tag, transfer.Host, transfer.Broadcast, sig); err != nil {
			return nil, err
		}
		logger.Infof("kmeans round %d, combined tol %v, stop %v", a.nRound, sig.Tol, sig.Stop)

		a.nRound++
		if sig.Stop {
			logger.Infof("converge reached at round %d", a.nRound)
			break
		}
	}

	return &Result{
		Converged:  sig.Stop,
		Rounds:     a.nRound,
		Tol:        sig.Tol,
		Assignment: assignment,
	}, nil
}

// sumDistances joins the two parties' tables element-wise. Both parties
// computed squared distances over disjoint feature columns of the same
// aligned samples, so the sum is the squared distance over the full vector.
func sumDistances(guest, host [][]float64) ([][]float64, error) {
	if len(guest) != len(host) {
		return nil, errorx.New(errcodes.ErrCodeParam,
			"distance table sample counts differ, guest %d host %d", len(guest), len(host))
	}
	summed := make([][]float64, len(guest))
	for i := range guest {
		if len(guest[i]) != len(host[i]) {
			return nil, errorx.New(errcodes.ErrCodeParam,
				"distance row %d lengths differ, guest %d host %d", i, len(guest[i]), len(host[i]))
		}
		row := make([]float64, len(guest[i]))
		for j := range row {
			row[j] = guest[i][j] + host[i][j]
		}
		summed[i] = row
	}
	return summed, nil
}
