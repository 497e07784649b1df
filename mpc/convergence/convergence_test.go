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

package convergence

import (
	"testing"
)

func TestDiffConverge(t *testing.T) {
	c := NewDiffConverge(0.05)

	// strictly decreasing, then flat: converge only once the step shrinks
	// below eps, never before
	losses := []float64{10, 8, 5, 3, 2.5, 2.2, 2.19, 2.19}
	expected := []bool{false, false, false, false, false, false, true, true}

	for i, loss := range losses {
		if got := c.IsConverge(loss); got != expected[i] {
			t.Errorf("step %d loss %v: IsConverge = %v, want %v", i, loss, got, expected[i])
		}
	}
}

func TestDiffConvergeFirstCall(t *testing.T) {
	c := NewDiffConverge(100)
	// no previous loss to compare against, even a generous eps must not stop
	if c.IsConverge(1) {
		t.Error("converged on the first loss")
	}
	if !c.IsConverge(1) {
		t.Error("flat loss within eps did not converge")
	}
}
