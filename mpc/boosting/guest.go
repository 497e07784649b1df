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

// Guest is the label-holding party of hetero boosting. It owns the booster
// dimension, the loss history and the stop decision.
type Guest struct {
	conf   Config
	family Family
	ch     transfer.Channel

	classes    []float64
	boosterDim int
	initScore  []float64
	meta       Meta
	models     [][]byte
}

// NewGuest creates the guest orchestrator
func NewGuest(conf Config, family Family, ch transfer.Channel) (*Guest, error) {
	if err := conf.check(true); err != nil {
		return nil, err
	}
	return &Guest{conf: conf, family: family, ch: ch}, nil
}

// Classes returns the sorted original class labels, in remap order
func (g *Guest) Classes() []float64 { return g.classes }

// Models returns the trained ensemble parameter list
func (g *Guest) Models() (Meta, [][]byte) { return g.meta, g.models }

// BoosterDim returns the per-round sub-model count fixed during Fit
func (g *Guest) BoosterDim() int { return g.boosterDim }

// InitScore returns the per-dimension starting score of the ensemble
func (g *Guest) InitScore() []float64 { return g.initScore }

// SetModels restores a trained ensemble into a fresh guest, so Predict can
// replay a persisted model without refitting. initScore carries one entry
// per dimension.
func (g *Guest) SetModels(meta Meta, models [][]byte, boosterDim int, initScore []float64) error {
	if boosterDim <= 0 {
		return errorx.New(errcodes.ErrCodeParam, "booster dim must be positive, got %d", boosterDim)
	}
	if len(models) == 0 || len(models)%boosterDim != 0 {
		return errorx.New(errcodes.ErrCodeParam,
			"model count %d does not fill whole rounds of dim %d", len(models), boosterDim)
	}
	if len(initScore) != boosterDim {
		return errorx.New(errcodes.ErrCodeParam,
			"init score needs %d entries, got %d", boosterDim, len(initScore))
	}
	g.meta = meta
	g.models = models
	g.boosterDim = boosterDim
	g.initScore = initScore
	return nil
}

// Fit trains the ensemble against all host instances.
// data rows align with y, one label per sample.
func (g *Guest) Fit(data [][]float64, y []float64) (*Result, error) {
	logger.Infof("begin to fit a hetero boosting model, rounds[%d]", g.conf.BoostingRound)

	classes, mapped, boosterDim, err := checkLabel(g.conf.TaskType, y)
	if err != nil {
		return nil, err
	}
	g.classes = classes
	g.boosterDim = boosterDim

	// hosts block on the dimension before their first round
	if err := transfer.SendJSON(g.ch, varBoosterDim, "", transfer.Host, transfer.Broadcast, boosterDim); err != nil {
		return nil, err
	}

	if g.conf.InitScoreFunc != nil {
		g.initScore = g.conf.InitScoreFunc(mapped, boosterDim)
	} else {
		g.initScore = defaultInitScore(mapped, boosterDim)
	}

	yHat := make([][]float64, len(mapped))
	for i := range yHat {
		yHat[i] = append([]float64(nil), g.initScore...)
	}

	enc, err := encryption.NewEncrypter(g.conf.EncryptMethod, g.conf.KeyLength)
	if err != nil {
		return nil, err
	}

	stopper := newEarlyStopper(g.conf.EarlyStoppingRounds)
	var history []float64
	stopped := false

	for epoch := 0; epoch < g.conf.BoostingRound; epoch++ {
		for classIdx := 0; classIdx < boosterDim; classIdx++ {
			b, err := g.family.FitBooster(&TrainView{
				Round:     epoch,
				ClassIdx:  classIdx,
				Data:      data,
				Labels:    mapped,
				YHat:      yHat,
				Encrypter: enc,
			})
			if err != nil {
				return nil, err
			}

			meta, param, err := b.Model()
			if err != nil {
				return nil, err
			}
			g.meta = meta
			g.models = append(g.models, param)

			for i, w := range b.SampleWeights() {
				yHat[i][classIdx] += w
			}
		}

		loss := g.conf.LossFunc(yHat, mapped)
		history = append(history, loss)
		logger.Infof("round %d loss is %v", epoch, loss)

		runValidation(g.conf.Validation, epoch)

		stopped = stopper.shouldStop(loss)
		if err := transfer.SendJSON(g.ch, varStopFlag, strconv.Itoa(epoch),
			transfer.Host, transfer.Broadcast, stopped); err != nil {
			return nil, err
		}
		if stopped {
			logger.Infof("early stopping triggered at round %d", epoch)
			break
		}
	}

	best := bestLoss(history)
	logger.Infof("finished fitting, best loss is %v", best)

	return &Result{
		Converged:   stopped,
		Rounds:      len(history),
		BestLoss:    best,
		LossHistory: history,
	}, nil
}

// Predict replays the stored ensemble over data in the training order and
// converts the accumulated scores into a labeled prediction
func (g *Guest) Predict(data [][]float64) ([]float64, error) {
	logger.Infof("predicting with %d boosters", len(g.models))

	yHat := make([][]float64, len(data))
	for i := range yHat {
		yHat[i] = append([]float64(nil), g.initScore...)
	}

	err := replay(g.family, g.meta, g.models, g.boosterDim, data,
		func(dim int, scores []float64) {
			for i, s := range scores {
				yHat[i][dim] += s
			}
		})
	if err != nil {
		return nil, err
	}

	if g.conf.ScoreToPrediction != nil {
		return g.conf.ScoreToPrediction(yHat), nil
	}
	return defaultScoreToPrediction(yHat), nil
}

// defaultScoreToPrediction takes the single dimension directly, or the
// arg-max dimension for multi-class ensembles
func defaultScoreToPrediction(yHat [][]float64) []float64 {
	out := make([]float64, len(yHat))
	for i, row := range yHat {
		if len(row) == 1 {
			out[i] = row[0]
			continue
		}
		bestDim := 0
		for d, v := range row {
			if v > row[bestDim] {
				bestDim = d
			}
		}
		out[i] = float64(bestDim)
	}
	return out
}
