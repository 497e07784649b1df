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

package csv

import (
	"bytes"
	"encoding/csv"
	"os"
	"strconv"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/heteroml/hetero/errcodes"
)

// ReadRowsFromFile read all rows from csv file content
func ReadRowsFromFile(fileContent []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(fileContent))
	return r.ReadAll()
}

// ReadSamples reads a party's local feature file as float rows. A first row
// that fails to parse is treated as a header and skipped.
func ReadSamples(path string) ([][]float64, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeNotFound, "failed to read sample file %s", path)
	}
	rows, err := ReadRowsFromFile(content)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to parse sample file %s", path)
	}
	if len(rows) == 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "empty sample file %s", path)
	}

	start := 0
	if _, err := strconv.ParseFloat(rows[0][0], 64); err != nil {
		start = 1
	}
	samples := make([][]float64, 0, len(rows)-start)
	for _, row := range rows[start:] {
		sample := make([]float64, len(row))
		for i, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding,
					"invalid number %q in sample file %s", cell, path)
			}
			sample[i] = v
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
