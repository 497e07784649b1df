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

package ftl

import (
	"strconv"

	"github.com/heteroml/hetero/mpc/encryption"
	"github.com/heteroml/hetero/transfer"
)

// plainGuest runs the unencrypted variant, components cross the wire in
// fixed-point plaintext and the guest alone computes loss and decides stop
type plainGuest struct {
	party
}

func (g *plainGuest) Fit(x [][]float64, y []float64) (*Result, error) {
	logger.Infof("start plain ftl guest fit, max iter %d", g.conf.MaxIter)

	if err := g.model.SetBatch(x, y); err != nil {
		return nil, err
	}

	var history []float64
	isStop := false
	for g.nIter < g.conf.MaxIter {
		tag := strconv.Itoa(g.nIter)

		if err := g.model.ComputeComponents(); err != nil {
			return nil, err
		}
		comp, err := g.model.SendComponents()
		if err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(g.ch, varGuestComponents, tag, transfer.Host, transfer.Broadcast, comp); err != nil {
			return nil, err
		}

		var hostComp Components
		if err := transfer.RecvJSON(g.ch, varHostComponents, tag, transfer.Host, transfer.SingleIdx, &hostComp); err != nil {
			return nil, err
		}
		if err := g.model.ReceiveComponents(hostComp); err != nil {
			return nil, err
		}

		lossV, err := g.model.SendLoss()
		if err != nil {
			return nil, err
		}
		loss := encryption.DecodeFloat(lossV)
		history = append(history, loss)
		logger.Infof("ftl iteration %d, loss %v", g.nIter, loss)

		if g.converge.IsConverge(loss) {
			isStop = true
		}
		if err := transfer.SendJSON(g.ch, varStopFlag, tag, transfer.Host, transfer.Broadcast, isStop); err != nil {
			return nil, err
		}

		if err := g.model.ComputeGradients(); err != nil {
			return nil, err
		}

		g.nIter++
		if isStop {
			logger.Infof("converge reached at iteration %d", g.nIter)
			break
		}
	}

	return &Result{
		Converged:   isStop,
		Rounds:      g.nIter,
		Loss:        history[len(history)-1],
		LossHistory: history,
	}, nil
}

func (g *plainGuest) Predict(x [][]float64, y []float64) ([]float64, error) {
	return g.predictAsGuest(x, y)
}

// plainHost mirrors plainGuest without labels or loss, the guest's stop
// flag is the only termination authority
type plainHost struct {
	party
}

func (h *plainHost) Fit(x [][]float64) (*Result, error) {
	logger.Infof("start plain ftl host fit, max iter %d", h.conf.MaxIter)

	if err := h.model.SetBatch(x, nil); err != nil {
		return nil, err
	}

	isStop := false
	for h.nIter < h.conf.MaxIter {
		tag := strconv.Itoa(h.nIter)

		if err := h.model.ComputeComponents(); err != nil {
			return nil, err
		}
		comp, err := h.model.SendComponents()
		if err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(h.ch, varHostComponents, tag, transfer.Guest, transfer.Broadcast, comp); err != nil {
			return nil, err
		}

		var guestComp Components
		if err := transfer.RecvJSON(h.ch, varGuestComponents, tag, transfer.Guest, transfer.SingleIdx, &guestComp); err != nil {
			return nil, err
		}
		if err := h.model.ReceiveComponents(guestComp); err != nil {
			return nil, err
		}

		if err := transfer.RecvJSON(h.ch, varStopFlag, tag, transfer.Guest, transfer.SingleIdx, &isStop); err != nil {
			return nil, err
		}

		if err := h.model.ComputeGradients(); err != nil {
			return nil, err
		}

		h.nIter++
		if isStop {
			logger.Infof("converge reached at iteration %d", h.nIter)
			break
		}
	}

	return &Result{Converged: isStop, Rounds: h.nIter}, nil
}

func (h *plainHost) Predict(x [][]float64) ([]float64, error) {
	return h.predictAsHost(x)
}
