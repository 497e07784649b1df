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

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/heteroml/hetero/cmd/cli/simulate"
)

// rootCmd is the client command of the hetero federated learning toolkit
var rootCmd = &cobra.Command{
	Use:   "hetero-cli",
	Short: "hetero-cli is a client tool for hetero federated learning protocols",
}

func main() {
	rootCmd.AddCommand(simulate.RootCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(-1)
	}
}
