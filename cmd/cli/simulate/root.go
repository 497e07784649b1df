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
	"github.com/spf13/cobra"
)

var (
	guestFile string
	hostFile  string
)

// rootCmd represents local protocol simulation commands, all three parties
// run in one process over an in-memory channel
var rootCmd = &cobra.Command{
	Use:   "simulate",
	Short: "run a federated protocol with all parties in-process",
}

func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&guestFile, "guest", "g", "", "guest sample csv file")
	rootCmd.PersistentFlags().StringVarP(&hostFile, "host", "o", "", "host sample csv file")
	rootCmd.MarkPersistentFlagRequired("guest")
	rootCmd.MarkPersistentFlagRequired("host")
}
