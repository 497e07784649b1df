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

package simulate

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heteroml/hetero/mpc/kmeans"
	"github.com/heteroml/hetero/transfer"
	"github.com/heteroml/hetero/util/csv"
)

var (
	clusterNum int
	maxRound   int
	tolerance  float64
)

// kmeansCmd runs guest, host and arbiter of one hetero k-means task in-process
var kmeansCmd = &cobra.Command{
	Use:   "kmeans",
	Short: "cluster two vertically-partitioned sample files",
	Run: func(cmd *cobra.Command, args []string) {
		guestData, err := csv.ReadSamples(guestFile)
		if err != nil {
			fmt.Printf("ReadSamples failed: %v\n", err)
			return
		}
		hostData, err := csv.ReadSamples(hostFile)
		if err != nil {
			fmt.Printf("ReadSamples failed: %v\n", err)
			return
		}
		if len(guestData) != len(hostData) {
			fmt.Printf("sample counts differ, guest %d host %d\n", len(guestData), len(hostData))
			return
		}

		taskID := uuid.NewString()
		fmt.Printf("TaskID: %s\n", taskID)

		conf := kmeans.Config{K: clusterNum, MaxRound: maxRound, Tol: tolerance}
		hub := transfer.NewHub()

		var wg sync.WaitGroup
		results := make(map[transfer.Role]*kmeans.Result)
		errs := make(map[transfer.Role]error)
		var mu sync.Mutex

		run := func(role transfer.Role, fit func(ch transfer.Channel) (*kmeans.Result, error)) {
			defer wg.Done()
			r, err := fit(hub.Join(role, 0))
			mu.Lock()
			results[role], errs[role] = r, err
			mu.Unlock()
		}

		wg.Add(3)
		go run(transfer.Arbiter, func(ch transfer.Channel) (*kmeans.Result, error) {
			arbiter, err := kmeans.NewArbiter(conf, ch)
			if err != nil {
				return nil, err
			}
			return arbiter.Fit()
		})
		go run(transfer.Guest, func(ch transfer.Channel) (*kmeans.Result, error) {
			client, err := kmeans.NewClient(conf, ch, transfer.Guest)
			if err != nil {
				return nil, err
			}
			return client.Fit(guestData)
		})
		go run(transfer.Host, func(ch transfer.Channel) (*kmeans.Result, error) {
			client, err := kmeans.NewClient(conf, ch, transfer.Host)
			if err != nil {
				return nil, err
			}
			return client.Fit(hostData)
		})
		wg.Wait()

		for _, role := range []transfer.Role{transfer.Guest, transfer.Host, transfer.Arbiter} {
			if errs[role] != nil {
				fmt.Printf("%s failed: %v\n", role, errs[role])
				return
			}
		}

		arbiterResult := results[transfer.Arbiter]
		fmt.Printf("Converged: %v\nRounds: %d\nTolerance: %v\nAssignment: %v\n",
			arbiterResult.Converged, arbiterResult.Rounds, arbiterResult.Tol, arbiterResult.Assignment)
		fmt.Printf("GuestCentroids: %v\nHostCentroids: %v\n",
			results[transfer.Guest].Centroids, results[transfer.Host].Centroids)
	},
}

func init() {
	rootCmd.AddCommand(kmeansCmd)

	kmeansCmd.Flags().IntVarP(&clusterNum, "clusters", "k", 2, "number of clusters")
	kmeansCmd.Flags().IntVarP(&maxRound, "rounds", "r", 50, "max protocol rounds")
	kmeansCmd.Flags().Float64VarP(&tolerance, "tol", "t", 1e-4, "combined convergence tolerance")
}
