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
	"encoding/json"
	"testing"

	"github.com/heteroml/hetero/mpc/encryption"
	"github.com/heteroml/hetero/transfer"
)

// fakeBooster contributes a constant weight so losses shrink predictably
type fakeBooster struct {
	round    int
	classIdx int
	samples  int
	weight   float64
}

type fakeParam struct {
	Round    int     `json:"round"`
	ClassIdx int     `json:"class_idx"`
	Weight   float64 `json:"weight"`
}

func (b *fakeBooster) Model() (Meta, []byte, error) {
	param, err := json.Marshal(fakeParam{Round: b.round, ClassIdx: b.classIdx, Weight: b.weight})
	return Meta(`{"family":"fake"}`), param, err
}

func (b *fakeBooster) SampleWeights() []float64 {
	ws := make([]float64, b.samples)
	for i := range ws {
		ws[i] = b.weight
	}
	return ws
}

func (b *fakeBooster) Predict(data [][]float64) ([]float64, error) {
	ws := make([]float64, len(data))
	for i := range ws {
		ws[i] = b.weight
	}
	return ws, nil
}

// fakeFamily records the fitting and loading order the orchestrator drives
type fakeFamily struct {
	fitOrder  [][2]int
	loadOrder [][2]int
	labels    []float64
}

func (f *fakeFamily) FitBooster(view *TrainView) (Booster, error) {
	f.fitOrder = append(f.fitOrder, [2]int{view.Round, view.ClassIdx})
	if view.Labels != nil {
		f.labels = view.Labels
	}
	return &fakeBooster{
		round:    view.Round,
		classIdx: view.ClassIdx,
		samples:  len(view.Data),
		weight:   0.1,
	}, nil
}

func (f *fakeFamily) LoadBooster(meta Meta, param []byte, round, classIdx int) (Booster, error) {
	f.loadOrder = append(f.loadOrder, [2]int{round, classIdx})
	var p fakeParam
	if err := json.Unmarshal(param, &p); err != nil {
		return nil, err
	}
	return &fakeBooster{round: p.Round, classIdx: p.ClassIdx, weight: p.Weight}, nil
}

func squaredLoss(yHat [][]float64, y []float64) float64 {
	var s float64
	for i := range y {
		d := yHat[i][0] - y[i]
		s += d * d
	}
	return s / float64(len(y))
}

func testConfig(rounds int) Config {
	return Config{
		TaskType:      Classification,
		BoostingRound: rounds,
		EncryptMethod: encryption.MethodPaillier,
		KeyLength:     128,
		LossFunc:      squaredLoss,
	}
}

func TestTwoClassTwoRounds(t *testing.T) {
	hub := transfer.NewHub()

	guestData := [][]float64{{0.1}, {0.9}, {0.2}, {0.8}}
	guestY := []float64{0, 1, 0, 1}
	hostData := [][]float64{{1.0}, {2.0}, {3.0}, {4.0}}

	guest, err := NewGuest(testConfig(2), &fakeFamily{}, hub.Join(transfer.Guest, 0))
	checkErr(err, t)
	hostFamily := &fakeFamily{}
	host, err := NewHost(testConfig(2), hostFamily, hub.Join(transfer.Host, 0))
	checkErr(err, t)

	hostResC := make(chan *Result, 1)
	hostErrC := make(chan error, 1)
	go func() {
		r, err := host.Fit(hostData)
		hostResC <- r
		hostErrC <- err
	}()

	res, err := guest.Fit(guestData, guestY)
	checkErr(err, t)
	checkErr(<-hostErrC, t)
	hostRes := <-hostResC

	_, models := guest.Models()
	if len(models) != 2 {
		t.Errorf("model list length %d, want 2", len(models))
	}
	if len(res.LossHistory) != 2 {
		t.Errorf("loss history length %d, want 2", len(res.LossHistory))
	}
	// no early stopping configured, both sides run the full budget
	if res.Converged || hostRes.Converged {
		t.Error("stop flag was raised without early stopping")
	}
	if hostRes.Rounds != 2 {
		t.Errorf("host rounds %d, want 2", hostRes.Rounds)
	}
}

func TestLabelRemap(t *testing.T) {
	// non-contiguous classes must be remapped to a zero-based range
	classes, mapped, boosterDim, err := checkLabel(Classification, []float64{9, 2, 5, 2, 9})
	checkErr(err, t)

	if len(classes) != 3 || classes[0] != 2 || classes[1] != 5 || classes[2] != 9 {
		t.Errorf("classes %v", classes)
	}
	if boosterDim != 3 {
		t.Errorf("booster dim %d, want 3", boosterDim)
	}
	expected := []float64{2, 0, 1, 0, 2}
	for i, v := range mapped {
		if v != expected[i] {
			t.Errorf("mapped[%d] = %v, want %v", i, v, expected[i])
		}
	}
}

func TestLabelAlreadyContiguous(t *testing.T) {
	classes, mapped, boosterDim, err := checkLabel(Classification, []float64{0, 1, 1, 0})
	checkErr(err, t)
	if len(classes) != 2 || boosterDim != 1 {
		t.Errorf("classes %v, dim %d", classes, boosterDim)
	}
	for i, v := range mapped {
		if v != []float64{0, 1, 1, 0}[i] {
			t.Errorf("contiguous labels were rewritten: %v", mapped)
		}
	}
}

func TestEmptyLabels(t *testing.T) {
	if _, _, _, err := checkLabel(Classification, nil); err == nil {
		t.Error("expected error for empty label set")
	}
}

func TestReplayOrder(t *testing.T) {
	hub := transfer.NewHub()

	conf := testConfig(2)
	conf.TaskType = Regression

	family := &fakeFamily{}
	guest, err := NewGuest(conf, family, hub.Join(transfer.Guest, 0))
	checkErr(err, t)
	host, err := NewHost(testConfig(2), &fakeFamily{}, hub.Join(transfer.Host, 0))
	checkErr(err, t)

	hostErrC := make(chan error, 1)
	go func() {
		_, err := host.Fit([][]float64{{1}, {2}})
		hostErrC <- err
	}()
	_, err = guest.Fit([][]float64{{1}, {2}}, []float64{1.0, 2.0})
	checkErr(err, t)
	checkErr(<-hostErrC, t)

	_, err = guest.Predict([][]float64{{1}, {2}})
	checkErr(err, t)

	// predict must walk rounds and dimensions in the training nesting order
	if len(family.loadOrder) != len(family.fitOrder) {
		t.Fatalf("replayed %d boosters, trained %d", len(family.loadOrder), len(family.fitOrder))
	}
	for i := range family.fitOrder {
		if family.loadOrder[i] != family.fitOrder[i] {
			t.Errorf("replay slot %d is %v, trained %v", i, family.loadOrder[i], family.fitOrder[i])
		}
	}
}

func TestRestoreEnsemble(t *testing.T) {
	hub := transfer.NewHub()

	conf := testConfig(2)
	conf.TaskType = Regression

	data := [][]float64{{1}, {2}}

	trained, err := NewGuest(conf, &fakeFamily{}, hub.Join(transfer.Guest, 0))
	checkErr(err, t)
	host, err := NewHost(testConfig(2), &fakeFamily{}, hub.Join(transfer.Host, 0))
	checkErr(err, t)

	hostErrC := make(chan error, 1)
	go func() {
		_, err := host.Fit(data)
		hostErrC <- err
	}()
	_, err = trained.Fit(data, []float64{1.0, 2.0})
	checkErr(err, t)
	checkErr(<-hostErrC, t)

	want, err := trained.Predict(data)
	checkErr(err, t)

	// a fresh guest loaded with the stored ensemble must predict identically
	meta, models := trained.Models()
	restored, err := NewGuest(conf, &fakeFamily{}, hub.Join(transfer.Guest, 1))
	checkErr(err, t)
	checkErr(restored.SetModels(meta, models, trained.BoosterDim(), trained.InitScore()), t)

	got, err := restored.Predict(data)
	checkErr(err, t)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("restored prediction[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	hostMeta, hostModels := host.Models()
	hostFamily := &fakeFamily{}
	restoredHost, err := NewHost(testConfig(2), hostFamily, hub.Join(transfer.Host, 1))
	checkErr(err, t)
	checkErr(restoredHost.SetModels(hostMeta, hostModels, host.BoosterDim()), t)
	checkErr(restoredHost.Predict(data), t)
	if len(hostFamily.loadOrder) != len(hostModels) {
		t.Errorf("restored host replayed %d boosters, stored %d", len(hostFamily.loadOrder), len(hostModels))
	}
}

func TestRestoreReplayOrder(t *testing.T) {
	// a restored multi-class ensemble replays rounds and dimensions in the
	// same nesting order training produced them
	var models [][]byte
	for round := 0; round < 2; round++ {
		for dim := 0; dim < 3; dim++ {
			param, err := json.Marshal(fakeParam{Round: round, ClassIdx: dim, Weight: 0.1})
			checkErr(err, t)
			models = append(models, param)
		}
	}

	family := &fakeFamily{}
	guest, err := NewGuest(testConfig(2), family, transfer.NewHub().Join(transfer.Guest, 0))
	checkErr(err, t)
	checkErr(guest.SetModels(Meta(`{"family":"fake"}`), models, 3, []float64{0, 0, 0}), t)

	_, err = guest.Predict([][]float64{{1}, {2}})
	checkErr(err, t)

	expected := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	if len(family.loadOrder) != len(expected) {
		t.Fatalf("replayed %d boosters, want %d", len(family.loadOrder), len(expected))
	}
	for i, slot := range expected {
		if family.loadOrder[i] != slot {
			t.Errorf("replay slot %d is %v, want %v", i, family.loadOrder[i], slot)
		}
	}
}

func TestRestoreValidation(t *testing.T) {
	hub := transfer.NewHub()
	param := []byte(`{"round":0,"class_idx":0,"weight":0.1}`)

	guest, err := NewGuest(testConfig(1), &fakeFamily{}, hub.Join(transfer.Guest, 0))
	checkErr(err, t)
	if err := guest.SetModels(Meta(`{}`), [][]byte{param, param, param}, 2, []float64{0, 0}); err == nil {
		t.Error("expected error for model count not filling whole rounds")
	}
	if err := guest.SetModels(Meta(`{}`), [][]byte{param, param}, 2, []float64{0}); err == nil {
		t.Error("expected error for init score shorter than dim")
	}

	host, err := NewHost(testConfig(1), &fakeFamily{}, hub.Join(transfer.Host, 0))
	checkErr(err, t)
	if err := host.SetModels(Meta(`{}`), [][]byte{param}, 0); err == nil {
		t.Error("expected error for non-positive booster dim")
	}
}

func TestEarlyStopping(t *testing.T) {
	stopper := newEarlyStopper(2)

	losses := []float64{10, 8, 8.5, 8.2}
	expected := []bool{false, false, false, true}
	for i, loss := range losses {
		if got := stopper.shouldStop(loss); got != expected[i] {
			t.Errorf("step %d loss %v: shouldStop = %v, want %v", i, loss, got, expected[i])
		}
	}
}

func checkErr(err error, t *testing.T) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}
