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

	"github.com/heteroml/hetero/mpc/encryption"
	"github.com/heteroml/hetero/transfer"
)

// decentralizedGuest runs the dual-key variant with no arbiter. Each party
// generates its own Paillier key pair and encrypts outgoing values under
// the counterparty's public key, so recovering a plaintext always means
// blinding it with a one-time mask, letting the counterparty decrypt, and
// removing the mask locally. An inner sub-loop of LocalIterations gradient
// updates reuses the peer components exchanged at the top of the outer round,
// refreshing only its own components between local steps. The last local step
// skips the refresh, the next round recomputes before sending anyway.
type decentralizedGuest struct {
	party
	model EncryptedModel
}

func (g *decentralizedGuest) Fit(x [][]float64, y []float64) (*Result, error) {
	logger.Infof("start decentralized ftl guest fit, max iter %d, local iterations %d",
		g.conf.MaxIter, g.conf.LocalIterations)

	pub, priv, err := encryption.GenerateKeyPair(g.conf.KeyLength)
	if err != nil {
		return nil, err
	}
	if err := transfer.SendJSON(g.ch, varGuestPubKey, "", transfer.Host, transfer.Broadcast, pub); err != nil {
		return nil, err
	}
	var hostPub paillier.PublicKey
	if err := transfer.RecvJSON(g.ch, varHostPubKey, "", transfer.Host, transfer.SingleIdx, &hostPub); err != nil {
		return nil, err
	}
	g.model.SetPublicKey(pub)
	g.model.SetPeerPublicKey(&hostPub)
	g.model.SetPrivateKey(priv)

	if err := g.model.SetBatch(x, y); err != nil {
		return nil, err
	}

	var history []float64
	var loss float64
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

		for localIter := 0; localIter < g.conf.LocalIterations; localIter++ {
			if err := g.model.ComputeGradients(); err != nil {
				return nil, err
			}
			encGrads, err := g.model.SendGradients()
			if err != nil {
				return nil, err
			}
			maskedGrads, gradMasks, err := encryption.AddMaskLists(&hostPub, encGrads)
			if err != nil {
				return nil, err
			}
			if err := transfer.SendJSON(g.ch, varMaskedEncGuestGrads, tag, transfer.Host, transfer.Broadcast, maskedGrads); err != nil {
				return nil, err
			}

			// loss crosses the wire only on the first local iteration, later
			// ones reuse stale components so their loss would be meaningless
			var lossMask *big.Int
			if localIter == 0 {
				encLoss, err := g.model.SendLoss()
				if err != nil {
					return nil, err
				}
				var maskedLoss *big.Int
				maskedLoss, lossMask, err = encryption.AddMask(&hostPub, encLoss)
				if err != nil {
					return nil, err
				}
				if err := transfer.SendJSON(g.ch, varMaskedEncLoss, tag, transfer.Host, transfer.Broadcast, maskedLoss); err != nil {
					return nil, err
				}
			}

			var hostMaskedEnc Gradients
			if err := transfer.RecvJSON(g.ch, varMaskedEncHostGrads, tag, transfer.Host, transfer.SingleIdx, &hostMaskedEnc); err != nil {
				return nil, err
			}
			hostMaskedDec := decryptLists(priv, hostMaskedEnc)
			if err := transfer.SendJSON(g.ch, varMaskedDecHostGrads, tag, transfer.Host, transfer.Broadcast, hostMaskedDec); err != nil {
				return nil, err
			}

			var maskedDecGrads Gradients
			if err := transfer.RecvJSON(g.ch, varMaskedDecGuestGrads, tag, transfer.Host, transfer.SingleIdx, &maskedDecGrads); err != nil {
				return nil, err
			}
			decGrads, err := encryption.RemoveMaskLists(maskedDecGrads, gradMasks)
			if err != nil {
				return nil, err
			}
			if err := g.model.ReceiveGradients(decGrads); err != nil {
				return nil, err
			}

			if localIter == 0 {
				var maskedDecLoss big.Int
				if err := transfer.RecvJSON(g.ch, varMaskedDecLoss, tag, transfer.Host, transfer.SingleIdx, &maskedDecLoss); err != nil {
					return nil, err
				}
				loss = encryption.DecodeFloat(encryption.RemoveMask(&maskedDecLoss, lossMask))
			}

			if localIter != g.conf.LocalIterations-1 {
				if err := g.model.ComputeComponents(); err != nil {
					return nil, err
				}
			}
		}

		history = append(history, loss)
		logger.Infof("ftl iteration %d, loss %v", g.nIter, loss)

		if g.converge.IsConverge(loss) {
			isStop = true
		}
		if err := transfer.SendJSON(g.ch, varStopFlag, tag, transfer.Host, transfer.Broadcast, isStop); err != nil {
			return nil, err
		}

		g.nIter++
		if isStop {
			logger.Infof("converge reached at iteration %d", g.nIter)
			break
		}
	}

	return &Result{
		Converged:   isStop,
		Rounds:      g.nIter,
		Loss:        loss,
		LossHistory: history,
	}, nil
}

func (g *decentralizedGuest) Predict(x [][]float64, y []float64) ([]float64, error) {
	return g.predictAsGuest(x, y)
}

// decentralizedHost mirrors decentralizedGuest, serving the guest's loss
// decryption on the first local iteration and deferring to the guest's
// stop flag
type decentralizedHost struct {
	party
	model EncryptedModel
}

func (h *decentralizedHost) Fit(x [][]float64) (*Result, error) {
	logger.Infof("start decentralized ftl host fit, max iter %d, local iterations %d",
		h.conf.MaxIter, h.conf.LocalIterations)

	pub, priv, err := encryption.GenerateKeyPair(h.conf.KeyLength)
	if err != nil {
		return nil, err
	}
	if err := transfer.SendJSON(h.ch, varHostPubKey, "", transfer.Guest, transfer.Broadcast, pub); err != nil {
		return nil, err
	}
	var guestPub paillier.PublicKey
	if err := transfer.RecvJSON(h.ch, varGuestPubKey, "", transfer.Guest, transfer.SingleIdx, &guestPub); err != nil {
		return nil, err
	}
	h.model.SetPublicKey(pub)
	h.model.SetPeerPublicKey(&guestPub)
	h.model.SetPrivateKey(priv)

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

		for localIter := 0; localIter < h.conf.LocalIterations; localIter++ {
			if err := h.model.ComputeGradients(); err != nil {
				return nil, err
			}
			encGrads, err := h.model.SendGradients()
			if err != nil {
				return nil, err
			}
			maskedGrads, gradMasks, err := encryption.AddMaskLists(&guestPub, encGrads)
			if err != nil {
				return nil, err
			}
			if err := transfer.SendJSON(h.ch, varMaskedEncHostGrads, tag, transfer.Guest, transfer.Broadcast, maskedGrads); err != nil {
				return nil, err
			}

			var guestMaskedEnc Gradients
			if err := transfer.RecvJSON(h.ch, varMaskedEncGuestGrads, tag, transfer.Guest, transfer.SingleIdx, &guestMaskedEnc); err != nil {
				return nil, err
			}
			guestMaskedDec := decryptLists(priv, guestMaskedEnc)
			if err := transfer.SendJSON(h.ch, varMaskedDecGuestGrads, tag, transfer.Guest, transfer.Broadcast, guestMaskedDec); err != nil {
				return nil, err
			}

			if localIter == 0 {
				var maskedEncLoss big.Int
				if err := transfer.RecvJSON(h.ch, varMaskedEncLoss, tag, transfer.Guest, transfer.SingleIdx, &maskedEncLoss); err != nil {
					return nil, err
				}
				maskedDecLoss := priv.DecryptSupNegNum(&maskedEncLoss)
				if err := transfer.SendJSON(h.ch, varMaskedDecLoss, tag, transfer.Guest, transfer.Broadcast, maskedDecLoss); err != nil {
					return nil, err
				}
			}

			var maskedDecGrads Gradients
			if err := transfer.RecvJSON(h.ch, varMaskedDecHostGrads, tag, transfer.Guest, transfer.SingleIdx, &maskedDecGrads); err != nil {
				return nil, err
			}
			decGrads, err := encryption.RemoveMaskLists(maskedDecGrads, gradMasks)
			if err != nil {
				return nil, err
			}
			if err := h.model.ReceiveGradients(decGrads); err != nil {
				return nil, err
			}

			if localIter != h.conf.LocalIterations-1 {
				if err := h.model.ComputeComponents(); err != nil {
					return nil, err
				}
			}
		}

		if err := transfer.RecvJSON(h.ch, varStopFlag, tag, transfer.Guest, transfer.SingleIdx, &isStop); err != nil {
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

func (h *decentralizedHost) Predict(x [][]float64) ([]float64, error) {
	return h.predictAsHost(x)
}
