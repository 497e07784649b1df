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

// Package convergence provides the stopping-condition functions evaluated by
// the deciding role after each protocol round.
package convergence

import "math"

// ConvergeFunc decides whether training has converged.
// Implementations are stateful across calls, they retain the previous loss.
type ConvergeFunc interface {
	IsConverge(loss float64) bool
}

// DiffConverge reports convergence once the absolute difference between two
// consecutive losses drops below eps. The first call never converges.
type DiffConverge struct {
	eps     float64
	preLoss float64
	hasPre  bool
}

// NewDiffConverge creates a difference-based converge function
func NewDiffConverge(eps float64) *DiffConverge {
	return &DiffConverge{eps: eps}
}

// IsConverge compares loss with the previous round's loss
func (d *DiffConverge) IsConverge(loss float64) bool {
	if !d.hasPre {
		d.preLoss = loss
		d.hasPre = true
		return false
	}
	converged := math.Abs(loss-d.preLoss) < d.eps
	d.preLoss = loss
	return converged
}
