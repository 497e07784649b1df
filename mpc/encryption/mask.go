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

package encryption

import (
	cryptoRand "crypto/rand"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/heteroml/hetero/errcodes"
)

// maskBits sizes the one-time additive masks. Masked plaintexts stay far
// below the Paillier modulus, so addition never wraps.
const maskBits = 128

var maskBound = new(big.Int).Lsh(big.NewInt(1), maskBits)

// AddMask blinds a ciphertext with a freshly drawn one-time additive mask,
// homomorphically, so the holder of the decryption key sees only v+mask.
// The caller must remove the returned mask exactly once after the decrypted
// value comes back.
func AddMask(pub *paillier.PublicKey, cipher *big.Int) (masked, mask *big.Int, err error) {
	mask, err = cryptoRand.Int(cryptoRand.Reader, maskBound)
	if err != nil {
		return nil, nil, errorx.NewCode(err, errcodes.ErrCodeMask, "failed to draw mask")
	}
	return pub.CypherPlainAdd(cipher, mask), mask, nil
}

// RemoveMask recovers the true plaintext from a masked decrypted value
func RemoveMask(plain, mask *big.Int) *big.Int {
	return new(big.Int).Sub(plain, mask)
}

// AddMaskVector blinds every ciphertext in cs, each with its own mask
func AddMaskVector(pub *paillier.PublicKey, cs []*big.Int) (masked, masks []*big.Int, err error) {
	masked = make([]*big.Int, len(cs))
	masks = make([]*big.Int, len(cs))
	for i, c := range cs {
		masked[i], masks[i], err = AddMask(pub, c)
		if err != nil {
			return nil, nil, err
		}
	}
	return masked, masks, nil
}

// RemoveMaskVector reverses AddMaskVector on the decrypted values
func RemoveMaskVector(plains, masks []*big.Int) ([]*big.Int, error) {
	if len(plains) != len(masks) {
		return nil, errorx.New(errcodes.ErrCodeMask,
			"mask count %d does not match value count %d", len(masks), len(plains))
	}
	out := make([]*big.Int, len(plains))
	for i, p := range plains {
		out[i] = RemoveMask(p, masks[i])
	}
	return out, nil
}

// AddMaskLists blinds a list of ciphertext vectors, one mask per value
func AddMaskLists(pub *paillier.PublicKey, lists [][]*big.Int) (masked, masks [][]*big.Int, err error) {
	masked = make([][]*big.Int, len(lists))
	masks = make([][]*big.Int, len(lists))
	for i, cs := range lists {
		masked[i], masks[i], err = AddMaskVector(pub, cs)
		if err != nil {
			return nil, nil, err
		}
	}
	return masked, masks, nil
}

// RemoveMaskLists reverses AddMaskLists on the decrypted vectors
func RemoveMaskLists(plains, masks [][]*big.Int) ([][]*big.Int, error) {
	if len(plains) != len(masks) {
		return nil, errorx.New(errcodes.ErrCodeMask,
			"mask list count %d does not match value list count %d", len(masks), len(plains))
	}
	out := make([][]*big.Int, len(plains))
	for i, p := range plains {
		v, err := RemoveMaskVector(p, masks[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
