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

// Package ftl orchestrates hetero feature transfer learning between a guest
// and a host, in three escalating variants: plaintext component exchange,
// centralized encryption with an arbiter decrypting gradients and loss, and
// decentralized dual-key encryption where each party blinds its values with
// one-time masks before the counterparty decrypts them. The local sub-model
// is an external collaborator behind the LocalModel interface.
package ftl

import (
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"

	"github.com/heteroml/hetero/errcodes"
	"github.com/heteroml/hetero/mpc/convergence"
	"github.com/heteroml/hetero/transfer"
)

var logger = logrus.WithField("module", "mpc.ftl")

// protocol variant names
const (
	SchemeCentralized   = "centralized"
	SchemeDecentralized = "decentralized"
)

// transfer variable names
const (
	varGuestComponents = "ftl_guest_components"
	varHostComponents  = "ftl_host_components"
	varStopFlag        = "ftl_stop_flag"

	varPaillierPubKey = "ftl_paillier_pubkey"
	varEncGuestGrads  = "ftl_enc_guest_gradients"
	varDecGuestGrads  = "ftl_dec_guest_gradients"
	varEncHostGrads   = "ftl_enc_host_gradients"
	varDecHostGrads   = "ftl_dec_host_gradients"
	varEncLoss        = "ftl_enc_loss"

	varGuestPubKey         = "ftl_guest_pubkey"
	varHostPubKey          = "ftl_host_pubkey"
	varMaskedEncGuestGrads = "ftl_masked_enc_guest_gradients"
	varMaskedDecGuestGrads = "ftl_masked_dec_guest_gradients"
	varMaskedEncHostGrads  = "ftl_masked_enc_host_gradients"
	varMaskedDecHostGrads  = "ftl_masked_dec_host_gradients"
	varMaskedEncLoss       = "ftl_masked_enc_loss"
	varMaskedDecLoss       = "ftl_masked_dec_loss"

	varHostProb = "ftl_host_prob"
	varPredProb = "ftl_pred_prob"
)

// Components are the intermediate local-model outputs exchanged between
// parties, a list of flattened tensors in fixed-point form, ciphertexts in
// the encrypted variants
type Components [][]*big.Int

// Gradients are the per-parameter gradient tensors, same representation
type Gradients [][]*big.Int

// LocalModel is the single-party sub-model the orchestrator drives.
// Values crossing this interface are fixed-point big integers, encrypted or
// not depending on the variant, the model owns its own encoding.
type LocalModel interface {
	SetBatch(x [][]float64, y []float64) error

	ComputeComponents() error
	SendComponents() (Components, error)
	ReceiveComponents(Components) error

	ComputeGradients() error
	SendGradients() (Gradients, error)
	ReceiveGradients(Gradients) error

	// SendLoss returns the current loss, a ciphertext in encrypted variants
	SendLoss() (*big.Int, error)

	GetParams() ([]byte, error)
	SetParams([]byte) error

	// Predict produces final scores from the counterparty's probabilities,
	// the host side passes nil to produce its local contribution
	Predict(peerProb []float64) ([]float64, error)
}

// EncryptedModel is a LocalModel that computes under homomorphic encryption
type EncryptedModel interface {
	LocalModel

	SetPublicKey(*paillier.PublicKey)
	SetPeerPublicKey(*paillier.PublicKey)
	SetPrivateKey(*paillier.PrivateKey)
}

// Config selects the protocol variant and its round bounds
type Config struct {
	MaxIter int

	// LocalIterations is the inner sub-loop length of the decentralized
	// variant, every other variant ignores it
	LocalIterations int

	// Eps is the convergence threshold of the default difference-based
	// converge function
	Eps float64

	Encrypted bool
	Scheme    string // centralized or decentralized, only when Encrypted
	KeyLength int

	// Converge overrides the default converge function when set
	Converge convergence.ConvergeFunc
}

func (c *Config) check() error {
	if c.MaxIter <= 0 {
		return errorx.New(errcodes.ErrCodeParam, "max iter must be positive, got %d", c.MaxIter)
	}
	if c.LocalIterations <= 0 {
		c.LocalIterations = 1
	}
	return nil
}

func (c *Config) convergeFunc() convergence.ConvergeFunc {
	if c.Converge != nil {
		return c.Converge
	}
	return convergence.NewDiffConverge(c.Eps)
}

// Result reports how a fit ended. Rounds counts completed outer rounds, and
// Converged distinguishes a convergence stop from an exhausted budget.
type Result struct {
	Converged   bool
	Rounds      int
	Loss        float64
	LossHistory []float64
}

// Guest is the label-holding party of an FTL run
type Guest interface {
	Fit(x [][]float64, y []float64) (*Result, error)
	Predict(x [][]float64, y []float64) ([]float64, error)
}

// Host is the feature-only party of an FTL run
type Host interface {
	Fit(x [][]float64) (*Result, error)
	Predict(x [][]float64) ([]float64, error)
}

// NewGuest selects the guest variant from the configuration.
// An unrecognized scheme is a fatal configuration error raised before any
// round executes.
func NewGuest(conf Config, model LocalModel, ch transfer.Channel) (Guest, error) {
	if err := conf.check(); err != nil {
		return nil, err
	}
	if !conf.Encrypted {
		logger.Debug("create plain ftl guest")
		return &plainGuest{party: newParty(conf, model, ch)}, nil
	}

	em, ok := model.(EncryptedModel)
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeParam, "encrypted ftl requires an EncryptedModel")
	}
	switch conf.Scheme {
	case SchemeCentralized:
		logger.Debug("create centralized encrypted ftl guest")
		return &encryptGuest{party: newParty(conf, model, ch), model: em}, nil
	case SchemeDecentralized:
		logger.Debug("create decentralized encrypted ftl guest")
		return &decentralizedGuest{party: newParty(conf, model, ch), model: em}, nil
	default:
		return nil, errorx.New(errcodes.ErrCodeFTLScheme, "ftl scheme[%s] not supported", conf.Scheme)
	}
}

// NewHost selects the host variant from the configuration
func NewHost(conf Config, model LocalModel, ch transfer.Channel) (Host, error) {
	if err := conf.check(); err != nil {
		return nil, err
	}
	if !conf.Encrypted {
		logger.Debug("create plain ftl host")
		return &plainHost{party: newParty(conf, model, ch)}, nil
	}

	em, ok := model.(EncryptedModel)
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeParam, "encrypted ftl requires an EncryptedModel")
	}
	switch conf.Scheme {
	case SchemeCentralized:
		logger.Debug("create centralized encrypted ftl host")
		return &encryptHost{party: newParty(conf, model, ch), model: em}, nil
	case SchemeDecentralized:
		logger.Debug("create decentralized encrypted ftl host")
		return &decentralizedHost{party: newParty(conf, model, ch), model: em}, nil
	default:
		return nil, errorx.New(errcodes.ErrCodeFTLScheme, "ftl scheme[%s] not supported", conf.Scheme)
	}
}

// party is the loop-carried state shared by every variant
type party struct {
	conf     Config
	model    LocalModel
	ch       transfer.Channel
	nIter    int
	converge convergence.ConvergeFunc
}

func newParty(conf Config, model LocalModel, ch transfer.Channel) party {
	return party{
		conf:     conf,
		model:    model,
		ch:       ch,
		converge: conf.convergeFunc(),
	}
}

// predictAsGuest runs the shared prediction flow of the guest side, every
// variant predicts the same way
func (p *party) predictAsGuest(x [][]float64, y []float64) ([]float64, error) {
	logger.Info("start guest predict")

	var hostProb []float64
	if err := transfer.RecvJSON(p.ch, varHostProb, "", transfer.Host, transfer.SingleIdx, &hostProb); err != nil {
		return nil, err
	}

	if err := p.model.SetBatch(x, y); err != nil {
		return nil, err
	}
	pred, err := p.model.Predict(hostProb)
	if err != nil {
		return nil, err
	}

	if err := transfer.SendJSON(p.ch, varPredProb, "", transfer.Host, transfer.Broadcast, pred); err != nil {
		return nil, err
	}
	return pred, nil
}

// predictAsHost contributes the host's probabilities and waits for the
// guest's final predictions
func (p *party) predictAsHost(x [][]float64) ([]float64, error) {
	logger.Info("start host predict")

	if err := p.model.SetBatch(x, nil); err != nil {
		return nil, err
	}
	prob, err := p.model.Predict(nil)
	if err != nil {
		return nil, err
	}
	if err := transfer.SendJSON(p.ch, varHostProb, "", transfer.Guest, transfer.Broadcast, prob); err != nil {
		return nil, err
	}

	var pred []float64
	if err := transfer.RecvJSON(p.ch, varPredProb, "", transfer.Guest, transfer.SingleIdx, &pred); err != nil {
		return nil, err
	}
	return pred, nil
}

// decryptLists decrypts a list of ciphertext vectors with priv
func decryptLists(priv *paillier.PrivateKey, lists Gradients) Gradients {
	out := make(Gradients, len(lists))
	for i, cs := range lists {
		vs := make([]*big.Int, len(cs))
		for j, c := range cs {
			vs[j] = priv.DecryptSupNegNum(c)
		}
		out[i] = vs
	}
	return out
}
