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

// Package boosting drives per-round, per-class-dimension training of a
// booster ensemble across a guest (label holder, decides termination) and one
// or more hosts (feature-only parties). The concrete booster algorithm is
// supplied by a Family implementation, orchestration never looks inside a
// sub-model.
package boosting

import (
	"math"
	"sort"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"

	"github.com/heteroml/hetero/errcodes"
	"github.com/heteroml/hetero/mpc/encryption"
)

var logger = logrus.WithField("module", "mpc.boosting")

// transfer variable names
const (
	varBoosterDim = "boosting_booster_dim"
	varStopFlag   = "boosting_stop_flag"
)

// TaskType selects between classification and regression label handling
type TaskType string

const (
	Classification TaskType = "classification"
	Regression     TaskType = "regression"
)

// Meta is the structural metadata record shared by all sub-models of one
// ensemble, opaque to orchestration
type Meta []byte

// Booster is one trained sub-model produced for a (round, class) slot
type Booster interface {
	// Model returns the shared structural metadata and this sub-model's parameters
	Model() (Meta, []byte, error)

	// SampleWeights returns the per-sample score contribution of this sub-model,
	// added into the running prediction at its class dimension
	SampleWeights() []float64

	// Predict scores data, used when replaying the ensemble
	Predict(data [][]float64) ([]float64, error)
}

// TrainView is what a Family sees when fitting one booster.
// Labels and YHat are nil on the host side.
type TrainView struct {
	Round     int
	ClassIdx  int
	Data      [][]float64
	Labels    []float64
	YHat      [][]float64
	Encrypter encryption.Encrypter
}

// Family is the extension point every concrete booster algorithm implements
type Family interface {
	FitBooster(view *TrainView) (Booster, error)
	LoadBooster(meta Meta, param []byte, round, classIdx int) (Booster, error)
}

// Config carries the orchestration parameters shared by both roles.
// LossFunc, InitScoreFunc and ScoreToPrediction are guest-side delegates.
type Config struct {
	TaskType      TaskType
	BoostingRound int

	// EarlyStoppingRounds stops training after this many rounds without loss
	// improvement, zero or negative disables the check
	EarlyStoppingRounds int

	EncryptMethod string
	KeyLength     int

	LossFunc          func(yHat [][]float64, y []float64) float64
	InitScoreFunc     func(y []float64, numClasses int) []float64
	ScoreToPrediction func(yHat [][]float64) []float64

	// Validation runs once per round, a failure is logged and never aborts
	// the protocol
	Validation func(round int) error
}

func (c *Config) check(needLoss bool) error {
	if c.BoostingRound <= 0 {
		return errorx.New(errcodes.ErrCodeParam, "boosting round must be positive, got %d", c.BoostingRound)
	}
	if needLoss && c.LossFunc == nil {
		return errorx.New(errcodes.ErrCodeParam, "loss function is required on the guest")
	}
	return nil
}

// Result reports how a fit ended, callers can tell an early stop from an
// exhausted round budget
type Result struct {
	Converged   bool
	Rounds      int
	BestLoss    float64
	LossHistory []float64
}

// checkLabel validates the guest's labels and derives the booster dimension.
// A classification label set that is not a zero-based contiguous integer
// range is remapped to one, the sorted original classes are retained so
// downstream result formatting can reverse the mapping.
func checkLabel(taskType TaskType, y []float64) (classes []float64, mapped []float64, boosterDim int, err error) {
	if len(y) == 0 {
		return nil, nil, 0, errorx.New(errcodes.ErrCodeLabelCheck, "empty label set")
	}
	if taskType == Regression {
		return nil, y, 1, nil
	}

	seen := make(map[float64]bool)
	for _, v := range y {
		seen[v] = true
	}
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Float64s(classes)

	rangeFromZero := true
	for _, v := range classes {
		if v != math.Trunc(v) || v < 0 || int(v) >= len(classes) {
			rangeFromZero = false
			break
		}
	}

	mapped = y
	if !rangeFromZero {
		classIdx := make(map[float64]float64, len(classes))
		for i, v := range classes {
			classIdx[v] = float64(i)
		}
		mapped = make([]float64, len(y))
		for i, v := range y {
			mapped[i] = classIdx[v]
		}
		logger.Infof("remapped %d classes to a zero-based range", len(classes))
	}

	boosterDim = 1
	if len(classes) > 2 {
		boosterDim = len(classes)
	}
	return classes, mapped, boosterDim, nil
}

// defaultInitScore starts every dimension at the label mean, the usual
// choice when the family does not supply its own initializer
func defaultInitScore(y []float64, boosterDim int) []float64 {
	var sum float64
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(len(y))

	score := make([]float64, boosterDim)
	for i := range score {
		score[i] = mean
	}
	return score
}

// earlyStopper keeps the rounds-without-improvement counter for the guest's
// stop decision
type earlyStopper struct {
	rounds    int
	best      float64
	sinceBest int
	started   bool
}

func newEarlyStopper(rounds int) *earlyStopper {
	return &earlyStopper{rounds: rounds}
}

func (e *earlyStopper) shouldStop(loss float64) bool {
	if e.rounds <= 0 {
		return false
	}
	if !e.started || loss < e.best {
		e.best = loss
		e.sinceBest = 0
		e.started = true
		return false
	}
	e.sinceBest++
	return e.sinceBest >= e.rounds
}

// replay reconstructs every stored booster in the exact (round, dim)
// nesting order used during training and accumulates its scores into yHat
func replay(family Family, meta Meta, models [][]byte, boosterDim int,
	data [][]float64, visit func(dim int, scores []float64)) error {

	rounds := len(models) / boosterDim
	for round := 0; round < rounds; round++ {
		for dim := 0; dim < boosterDim; dim++ {
			b, err := family.LoadBooster(meta, models[round*boosterDim+dim], round, dim)
			if err != nil {
				return err
			}
			scores, err := b.Predict(data)
			if err != nil {
				return err
			}
			visit(dim, scores)
		}
	}
	return nil
}

func runValidation(validation func(round int) error, round int) {
	if validation == nil {
		return
	}
	if err := validation(round); err != nil {
		logger.WithError(err).Warnf("validation callback failed at round %d", round)
	}
}

func bestLoss(history []float64) float64 {
	best := math.Inf(1)
	for _, l := range history {
		if l < best {
			best = l
		}
	}
	return best
}
