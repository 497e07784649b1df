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

package boosting

import (
	"strconv"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/heteroml/hetero/errcodes"
	"github.com/heteroml/hetero/mpc/encryption"
	"github.com/heteroml/hetero/transfer"
)

// Host is a feature-only party of hetero boosting. It mirrors the guest's
// round loop but never computes a stop condition, it blocks on the guest's
// flag instead.
type Host struct {
	conf   Config
	family Family
	ch     transfer.Channel

	boosterDim int
	meta       Meta
	models     [][]byte
}

// NewHost creates the host orchestrator
func NewHost(conf Config, family Family, ch transfer.Channel) (*Host, error) {
	if err := conf.check(false); err != nil {
		return nil, err
	}
	return &Host{conf: conf, family: family, ch: ch}, nil
}

// Models returns the trained ensemble parameter list
func (h *Host) Models() (Meta, [][]byte) { return h.meta, h.models }

// BoosterDim returns the dimension received from the guest during Fit
func (h *Host) BoosterDim() int { return h.boosterDim }

// SetModels restores a trained ensemble into a fresh host so Predict can
// replay its contribution without refitting
func (h *Host) SetModels(meta Meta, models [][]byte, boosterDim int) error {
	if boosterDim <= 0 {
		return errorx.New(errcodes.ErrCodeParam, "booster dim must be positive, got %d", boosterDim)
	}
	if len(models) == 0 || len(models)%boosterDim != 0 {
		return errorx.New(errcodes.ErrCodeParam,
			"model count %d does not fill whole rounds of dim %d", len(models), boosterDim)
	}
	h.meta = meta
	h.models = models
	h.boosterDim = boosterDim
	return nil
}

// Fit trains the host side of the ensemble. The booster dimension comes from
// the guest, and every round ends blocking on the guest's stop flag.
func (h *Host) Fit(data [][]float64) (*Result, error) {
	logger.Infof("begin to fit a hetero boosting model on host, rounds[%d]", h.conf.BoostingRound)

	var boosterDim int
	if err := transfer.RecvJSON(h.ch, varBoosterDim, "", transfer.Guest, transfer.SingleIdx, &boosterDim); err != nil {
		return nil, err
	}
	h.boosterDim = boosterDim
	logger.Infof("booster dim is %d", boosterDim)

	enc, err := encryption.NewEncrypter(h.conf.EncryptMethod, h.conf.KeyLength)
	if err != nil {
		return nil, err
	}

	stopped := false
	rounds := 0

	for epoch := 0; epoch < h.conf.BoostingRound; epoch++ {
		for classIdx := 0; classIdx < boosterDim; classIdx++ {
			b, err := h.family.FitBooster(&TrainView{
				Round:     epoch,
				ClassIdx:  classIdx,
				Data:      data,
				Encrypter: enc,
			})
			if err != nil {
				return nil, err
			}

			meta, param, err := b.Model()
			if err != nil {
				return nil, err
			}
			h.meta = meta
			h.models = append(h.models, param)
		}

		runValidation(h.conf.Validation, epoch)

		if err := transfer.RecvJSON(h.ch, varStopFlag, strconv.Itoa(epoch),
			transfer.Guest, transfer.SingleIdx, &stopped); err != nil {
			return nil, err
		}
		rounds = epoch + 1
		if stopped {
			logger.Infof("received stop flag at round %d", epoch)
			break
		}
	}

	return &Result{Converged: stopped, Rounds: rounds}, nil
}

// Predict replays the stored ensemble for its side effects, the host
// contributes to the guest's aggregate and produces no user-visible output
func (h *Host) Predict(data [][]float64) error {
	logger.Infof("predicting with %d boosters", len(h.models))

	return replay(h.family, h.meta, h.models, h.boosterDim, data,
		func(int, []float64) {})
}
