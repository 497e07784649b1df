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
	"math/rand"
	"strconv"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/heteroml/hetero/errcodes"
	"github.com/heteroml/hetero/transfer"
)

// Client is the guest or host side of a run. The two roles execute the same
// logic, they differ only in the channel binding they were created with.
type Client struct {
	conf      Config
	ch        transfer.Channel
	role      transfer.Role
	centroids [][]float64
	nRound    int
}

// NewClient creates a guest or host client
func NewClient(conf Config, ch transfer.Channel, role transfer.Role) (*Client, error) {
	if err := conf.check(); err != nil {
		return nil, err
	}
	if role != transfer.Guest && role != transfer.Host {
		return nil, errorx.New(errcodes.ErrCodeParam, "kmeans client role must be guest or host, got %s", role)
	}
	return &Client{conf: conf, ch: ch, role: role}, nil
}

// Fit clusters the party's local feature columns. Unless SetCentroids was
// called, k distinct random samples seed the centroids. Sample order must be
// aligned with the counterparty's.
func (c *Client) Fit(data [][]float64) (*Result, error) {
	logger.Infof("start kmeans %s fit, k %d, max round %d", c.role, c.conf.K, c.conf.MaxRound)

	if len(data) < c.conf.K {
		return nil, errorx.New(errcodes.ErrCodeParam,
			"sample count %d is less than cluster number %d", len(data), c.conf.K)
	}
	if c.centroids == nil {
		c.centroids = initialCentroids(data, c.conf.K)
	}

	var assignment []int
	var sig tolSignal
	for c.nRound < c.conf.MaxRound {
		tag := strconv.Itoa(c.nRound)

		// one fresh jitter per round, added uniformly so nearest-centroid
		// order is preserved while absolute distances stay hidden
		jitter := rand.Float64() * c.conf.JitterBound
		dist := make([][]float64, len(data))
		for i, sample := range data {
			row := make([]float64, c.conf.K)
			for j, centroid := range c.centroids {
				row[j] = squaredDistance(sample, centroid) + jitter
			}
			dist[i] = row
		}
		if err := transfer.SendJSON(c.ch, varClientDist, tag, transfer.Arbiter, transfer.Broadcast, dist); err != nil {
			return nil, err
		}

		if err := transfer.RecvJSON(c.ch, varAssignment, tag, transfer.Arbiter, transfer.SingleIdx, &assignment); err != nil {
			return nil, err
		}
		if len(assignment) != len(data) {
			return nil, errorx.New(errcodes.ErrCodeParam,
				"assignment length %d does not match sample count %d", len(assignment), len(data))
		}

		newCentroids := recomputeCentroids(data, assignment, c.centroids)
		localTol := centroidMovement(c.centroids, newCentroids)
		c.centroids = newCentroids

		if err := transfer.SendJSON(c.ch, varClientTol, tag, transfer.Arbiter, transfer.Broadcast, localTol); err != nil {
			return nil, err
		}
		if err := transfer.RecvJSON(c.ch, varTolSignal, tag, transfer.Arbiter, transfer.SingleIdx, &sig); err != nil {
			return nil, err
		}
		logger.Infof("kmeans round %d, local tol %v, combined tol %v", c.nRound, localTol, sig.Tol)

		c.nRound++
		if sig.Stop {
			logger.Infof("converge reached at round %d", c.nRound)
			break
		}
	}

	return &Result{
		Converged:  sig.Stop,
		Rounds:     c.nRound,
		Tol:        sig.Tol,
		Assignment: assignment,
		Centroids:  c.centroids,
	}, nil
}

// SetCentroids seeds the run with caller-chosen centroids instead of random
// samples
func (c *Client) SetCentroids(centroids [][]float64) error {
	if len(centroids) != c.conf.K {
		return errorx.New(errcodes.ErrCodeParam,
			"centroid count %d does not match cluster number %d", len(centroids), c.conf.K)
	}
	c.centroids = centroids
	return nil
}

// Centroids returns the party's local centroid columns after a fit
func (c *Client) Centroids() [][]float64 {
	return c.centroids
}

// initialCentroids copies k distinct random samples as the starting centroids
func initialCentroids(data [][]float64, k int) [][]float64 {
	perm := rand.Perm(len(data))
	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		row := data[perm[i]]
		centroids[i] = append([]float64(nil), row...)
	}
	return centroids
}

// recomputeCentroids replaces each centroid with the mean of its assigned
// samples, an empty cluster keeps its previous centroid
func recomputeCentroids(data [][]float64, assignment []int, prev [][]float64) [][]float64 {
	k := len(prev)
	dim := len(prev[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, sample := range data {
		j := assignment[i]
		counts[j]++
		for d, v := range sample {
			sums[j][d] += v
		}
	}

	centroids := make([][]float64, k)
	for j := 0; j < k; j++ {
		if counts[j] == 0 {
			centroids[j] = append([]float64(nil), prev[j]...)
			continue
		}
		row := make([]float64, dim)
		for d := range row {
			row[d] = sums[j][d] / float64(counts[j])
		}
		centroids[j] = row
	}
	return centroids
}

// centroidMovement is the summed squared movement of every centroid between
// two rounds, the party's local tolerance contribution
func centroidMovement(prev, cur [][]float64) float64 {
	var tol float64
	for j := range prev {
		tol += squaredDistance(prev[j], cur[j])
	}
	return tol
}
