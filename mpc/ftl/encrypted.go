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

package ftl

import (
	"math/big"
	"strconv"

	"github.com/PaddlePaddle/PaddleDTX/crypto/common/math/homomorphism/paillier"

	"github.com/heteroml/hetero/mpc/convergence"
	"github.com/heteroml/hetero/mpc/encryption"
	"github.com/heteroml/hetero/transfer"
)

// encryptGuest runs the centralized encrypted variant. Both parties compute
// under one arbiter-issued public key, gradients and loss travel to the
// arbiter as ciphertexts, and the arbiter alone sees plaintext loss and
// decides stop.
type encryptGuest struct {
	party
	model EncryptedModel
}

func (g *encryptGuest) Fit(x [][]float64, y []float64) (*Result, error) {
	logger.Infof("start encrypted ftl guest fit, max iter %d", g.conf.MaxIter)

	var pub paillier.PublicKey
	if err := transfer.RecvJSON(g.ch, varPaillierPubKey, "", transfer.Arbiter, transfer.SingleIdx, &pub); err != nil {
		return nil, err
	}
	g.model.SetPublicKey(&pub)

	if err := g.model.SetBatch(x, y); err != nil {
		return nil, err
	}

	isStop := false
	for g.nIter < g.conf.MaxIter {
		tag := strconv.Itoa(g.nIter)

		if err := g.model.ComputeComponents(); err != nil {
			return nil, err
		}
		comp, err := g.model.SendComponents()
		if err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(g.ch, varGuestComponents, tag, transfer.Host, transfer.Broadcast, comp); err != nil {
			return nil, err
		}
		var hostComp Components
		if err := transfer.RecvJSON(g.ch, varHostComponents, tag, transfer.Host, transfer.SingleIdx, &hostComp); err != nil {
			return nil, err
		}
		if err := g.model.ReceiveComponents(hostComp); err != nil {
			return nil, err
		}

		if err := g.model.ComputeGradients(); err != nil {
			return nil, err
		}
		encGrads, err := g.model.SendGradients()
		if err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(g.ch, varEncGuestGrads, tag, transfer.Arbiter, transfer.Broadcast, encGrads); err != nil {
			return nil, err
		}
		var decGrads Gradients
		if err := transfer.RecvJSON(g.ch, varDecGuestGrads, tag, transfer.Arbiter, transfer.SingleIdx, &decGrads); err != nil {
			return nil, err
		}
		if err := g.model.ReceiveGradients(decGrads); err != nil {
			return nil, err
		}

		encLoss, err := g.model.SendLoss()
		if err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(g.ch, varEncLoss, tag, transfer.Arbiter, transfer.Broadcast, encLoss); err != nil {
			return nil, err
		}

		if err := transfer.RecvJSON(g.ch, varStopFlag, tag, transfer.Arbiter, transfer.SingleIdx, &isStop); err != nil {
			return nil, err
		}

		g.nIter++
		if isStop {
			logger.Infof("converge reached at iteration %d", g.nIter)
			break
		}
	}

	return &Result{Converged: isStop, Rounds: g.nIter}, nil
}

func (g *encryptGuest) Predict(x [][]float64, y []float64) ([]float64, error) {
	return g.predictAsGuest(x, y)
}

// encryptHost is the host side of the centralized encrypted variant
type encryptHost struct {
	party
	model EncryptedModel
}

func (h *encryptHost) Fit(x [][]float64) (*Result, error) {
	logger.Infof("start encrypted ftl host fit, max iter %d", h.conf.MaxIter)

	var pub paillier.PublicKey
	if err := transfer.RecvJSON(h.ch, varPaillierPubKey, "", transfer.Arbiter, transfer.SingleIdx, &pub); err != nil {
		return nil, err
	}
	h.model.SetPublicKey(&pub)

	if err := h.model.SetBatch(x, nil); err != nil {
		return nil, err
	}

	isStop := false
	for h.nIter < h.conf.MaxIter {
		tag := strconv.Itoa(h.nIter)

		if err := h.model.ComputeComponents(); err != nil {
			return nil, err
		}
		comp, err := h.model.SendComponents()
		if err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(h.ch, varHostComponents, tag, transfer.Guest, transfer.Broadcast, comp); err != nil {
			return nil, err
		}
		var guestComp Components
		if err := transfer.RecvJSON(h.ch, varGuestComponents, tag, transfer.Guest, transfer.SingleIdx, &guestComp); err != nil {
			return nil, err
		}
		if err := h.model.ReceiveComponents(guestComp); err != nil {
			return nil, err
		}

		if err := h.model.ComputeGradients(); err != nil {
			return nil, err
		}
		encGrads, err := h.model.SendGradients()
		if err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(h.ch, varEncHostGrads, tag, transfer.Arbiter, transfer.Broadcast, encGrads); err != nil {
			return nil, err
		}
		var decGrads Gradients
		if err := transfer.RecvJSON(h.ch, varDecHostGrads, tag, transfer.Arbiter, transfer.SingleIdx, &decGrads); err != nil {
			return nil, err
		}
		if err := h.model.ReceiveGradients(decGrads); err != nil {
			return nil, err
		}

		if err := transfer.RecvJSON(h.ch, varStopFlag, tag, transfer.Arbiter, transfer.SingleIdx, &isStop); err != nil {
			return nil, err
		}

		h.nIter++
		if isStop {
			logger.Infof("converge reached at iteration %d", h.nIter)
			break
		}
	}

	return &Result{Converged: isStop, Rounds: h.nIter}, nil
}

func (h *encryptHost) Predict(x [][]float64) ([]float64, error) {
	return h.predictAsHost(x)
}

// Arbiter holds the Paillier private key of the centralized variant. It
// issues the public key, decrypts both parties' gradients and the guest's
// loss each round, and owns the convergence decision.
type Arbiter struct {
	conf     Config
	ch       transfer.Channel
	enc      encryption.Encrypter
	nIter    int
	converge convergence.ConvergeFunc
}

// NewArbiter generates the key pair for a centralized encrypted run
func NewArbiter(conf Config, ch transfer.Channel) (*Arbiter, error) {
	if err := conf.check(); err != nil {
		return nil, err
	}
	enc, err := encryption.NewEncrypter(encryption.MethodPaillier, conf.KeyLength)
	if err != nil {
		return nil, err
	}
	return &Arbiter{
		conf:     conf,
		ch:       ch,
		enc:      enc,
		converge: conf.convergeFunc(),
	}, nil
}

// Fit drives the arbiter's side of the run until convergence or the round
// budget runs out
func (a *Arbiter) Fit() (*Result, error) {
	logger.Infof("start encrypted ftl arbiter fit, max iter %d", a.conf.MaxIter)

	pub := a.enc.PublicKey()
	if err := transfer.SendJSON(a.ch, varPaillierPubKey, "", transfer.Guest, transfer.Broadcast, pub); err != nil {
		return nil, err
	}
	if err := transfer.SendJSON(a.ch, varPaillierPubKey, "", transfer.Host, transfer.Broadcast, pub); err != nil {
		return nil, err
	}

	var history []float64
	isStop := false
	for a.nIter < a.conf.MaxIter {
		tag := strconv.Itoa(a.nIter)

		if err := a.decryptFor(varEncGuestGrads, varDecGuestGrads, tag, transfer.Guest); err != nil {
			return nil, err
		}
		if err := a.decryptFor(varEncHostGrads, varDecHostGrads, tag, transfer.Host); err != nil {
			return nil, err
		}

		var encLoss big.Int
		if err := transfer.RecvJSON(a.ch, varEncLoss, tag, transfer.Guest, transfer.SingleIdx, &encLoss); err != nil {
			return nil, err
		}
		loss := encryption.DecodeFloat(a.enc.Decrypt(&encLoss))
		history = append(history, loss)
		logger.Infof("ftl iteration %d, loss %v", a.nIter, loss)

		if a.converge.IsConverge(loss) {
			isStop = true
		}
		if err := transfer.SendJSON(a.ch, varStopFlag, tag, transfer.Guest, transfer.Broadcast, isStop); err != nil {
			return nil, err
		}
		if err := transfer.SendJSON(a.ch, varStopFlag, tag, transfer.Host, transfer.Broadcast, isStop); err != nil {
			return nil, err
		}

		a.nIter++
		if isStop {
			logger.Infof("converge reached at iteration %d", a.nIter)
			break
		}
	}

	return &Result{
		Converged:   isStop,
		Rounds:      a.nIter,
		Loss:        history[len(history)-1],
		LossHistory: history,
	}, nil
}

// decryptFor answers one party's gradient decryption request
func (a *Arbiter) decryptFor(encVar, decVar, tag string, from transfer.Role) error {
	var encGrads Gradients
	if err := transfer.RecvJSON(a.ch, encVar, tag, from, transfer.SingleIdx, &encGrads); err != nil {
		return err
	}
	decGrads := make(Gradients, len(encGrads))
	for i, cs := range encGrads {
		decGrads[i] = a.enc.DecryptVector(cs)
	}
	return transfer.SendJSON(a.ch, decVar, tag, from, transfer.Broadcast, decGrads)
}
