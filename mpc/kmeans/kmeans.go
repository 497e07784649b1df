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

// Package kmeans orchestrates vertically-partitioned k-means clustering among
// a guest, a host and an arbiter. Guest and host run identical client logic
// over their own feature columns, the arbiter sums their per-sample distance
// contributions, assigns clusters and owns the stop decision. Samples are
// identified by their ordinal position, which both parties must keep aligned.
package kmeans

import (
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"

	"github.com/heteroml/hetero/errcodes"
)

var logger = logrus.WithField("module", "mpc.kmeans")

// transfer variable names
const (
	varClientDist = "kmeans_client_dist"
	varAssignment = "kmeans_cluster_assignment"
	varClientTol  = "kmeans_client_tolerance"
	varTolSignal  = "kmeans_tolerance_signal"
)

// DefaultJitterBound bounds the per-round random perturbation a client adds
// uniformly to its distance table
const DefaultJitterBound = 1e-3

// Config holds the protocol parameters, shared by clients and the arbiter
type Config struct {
	K        int
	MaxRound int

	// Tol is the convergence threshold compared against the combined
	// centroid movement of both parties
	Tol float64

	// JitterBound overrides DefaultJitterBound when positive
	JitterBound float64

	// Assign overrides the nearest-centroid assignment on the arbiter
	Assign AssignStrategy
}

func (c *Config) check() error {
	if c.K <= 0 {
		return errorx.New(errcodes.ErrCodeParam, "cluster number must be positive, got %d", c.K)
	}
	if c.MaxRound <= 0 {
		return errorx.New(errcodes.ErrCodeParam, "max round must be positive, got %d", c.MaxRound)
	}
	if c.Tol <= 0 {
		return errorx.New(errcodes.ErrCodeParam, "tolerance must be positive, got %v", c.Tol)
	}
	if c.JitterBound <= 0 {
		c.JitterBound = DefaultJitterBound
	}
	return nil
}

// tolSignal is the arbiter's per-round verdict, the combined tolerance and
// the authoritative stop flag derived from it
type tolSignal struct {
	Tol  float64 `json:"tol"`
	Stop bool    `json:"stop"`
}

// Result reports how a run ended on any of the three roles. Assignment and
// Centroids are filled on the roles that hold them.
type Result struct {
	Converged  bool
	Rounds     int
	Tol        float64
	Assignment []int
	Centroids  [][]float64
}

// AssignStrategy turns the summed distance table into a cluster assignment,
// one centroid index per sample
type AssignStrategy interface {
	CentroidAssign(dist [][]float64) ([]int, error)
}

// NearestAssign assigns every sample to its minimum-distance centroid
type NearestAssign struct{}

func (NearestAssign) CentroidAssign(dist [][]float64) ([]int, error) {
	assignment := make([]int, len(dist))
	for i, row := range dist {
		if len(row) == 0 {
			return nil, errorx.New(errcodes.ErrCodeParam, "empty distance row for sample %d", i)
		}
		best := 0
		for j, d := range row {
			if d < row[best] {
				best = j
			}
		}
		assignment[i] = best
	}
	return assignment, nil
}

// squaredDistance is the squared euclidean distance between two vectors.
// Squared distances over disjoint feature columns sum to the squared
// distance over the full feature vector, which is what lets the arbiter
// combine the two parties' tables by addition.
func squaredDistance(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
