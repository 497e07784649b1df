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

// Package encryption wraps the additively homomorphic primitives used by the
// federated protocols: the Paillier cryptosystem for scalar and vector
// encryption, a fixed-point codec so losses can be exchanged as integers, and
// one-time additive masks for blinding values before a counterparty decrypts
// them.
package encryption

import (
	"math"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/heteroml/hetero/errcodes"
)

// supported encryption method names
const (
	MethodPaillier = "paillier"
)

// DefaultKeyLength is the prime bit length used when the caller passes 0
var DefaultKeyLength = paillier.DefaultPrimeLength

// Encrypter is the encryption helper attached to a protocol run.
// Values may be negative, implementations must be sign-aware.
type Encrypter interface {
	PublicKey() *paillier.PublicKey
	Encrypt(m *big.Int) (*big.Int, error)
	Decrypt(c *big.Int) *big.Int
	EncryptVector(ms []*big.Int) ([]*big.Int, error)
	DecryptVector(cs []*big.Int) []*big.Int
}

// NewEncrypter creates an encryption helper for the named method.
// An unrecognized method is a fatal configuration error, raised before any
// protocol round executes.
func NewEncrypter(method string, keyLength int) (Encrypter, error) {
	switch method {
	case MethodPaillier:
		if keyLength <= 0 {
			keyLength = DefaultKeyLength
		}
		priv, err := paillier.GeneratePrivateKey(keyLength)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeEncrypt, "failed to generate paillier key")
		}
		return &paillierEncrypter{priv: priv}, nil
	default:
		return nil, errorx.New(errcodes.ErrCodeEncryptMethod, "encryption method[%s] not supported", method)
	}
}

// GenerateKeyPair generates a fresh Paillier key pair, used by the
// decentralized FTL variant where each party owns its own keys
func GenerateKeyPair(keyLength int) (*paillier.PublicKey, *paillier.PrivateKey, error) {
	if keyLength <= 0 {
		keyLength = DefaultKeyLength
	}
	priv, err := paillier.GeneratePrivateKey(keyLength)
	if err != nil {
		return nil, nil, errorx.NewCode(err, errcodes.ErrCodeEncrypt, "failed to generate key pair")
	}
	return &priv.PublicKey, priv, nil
}

type paillierEncrypter struct {
	priv *paillier.PrivateKey
}

func (p *paillierEncrypter) PublicKey() *paillier.PublicKey {
	return &p.priv.PublicKey
}

func (p *paillierEncrypter) Encrypt(m *big.Int) (*big.Int, error) {
	c, err := p.priv.EncryptSupNegNum(m)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncrypt, "failed to encrypt value")
	}
	return c, nil
}

func (p *paillierEncrypter) Decrypt(c *big.Int) *big.Int {
	return p.priv.DecryptSupNegNum(c)
}

func (p *paillierEncrypter) EncryptVector(ms []*big.Int) ([]*big.Int, error) {
	cs := make([]*big.Int, len(ms))
	for i, m := range ms {
		c, err := p.Encrypt(m)
		if err != nil {
			return nil, err
		}
		cs[i] = c
	}
	return cs, nil
}

func (p *paillierEncrypter) DecryptVector(cs []*big.Int) []*big.Int {
	ms := make([]*big.Int, len(cs))
	for i, c := range cs {
		ms[i] = p.Decrypt(c)
	}
	return ms
}

// EncryptVector encrypts every element under pub, for parties that hold only
// the counterparty's public key
func EncryptVector(pub *paillier.PublicKey, ms []*big.Int) ([]*big.Int, error) {
	cs := make([]*big.Int, len(ms))
	for i, m := range ms {
		c, err := pub.EncryptSupNegNum(m)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeEncrypt, "failed to encrypt element %d", i)
		}
		cs[i] = c
	}
	return cs, nil
}

// DecryptVector decrypts every element with priv
func DecryptVector(priv *paillier.PrivateKey, cs []*big.Int) []*big.Int {
	ms := make([]*big.Int, len(cs))
	for i, c := range cs {
		ms[i] = priv.DecryptSupNegNum(c)
	}
	return ms
}

// floatPrecision is the number of decimal digits kept by the fixed-point
// codec, matching the accuracy kept by vertical learners on floats
const floatPrecision = 8

var floatScale = new(big.Float).SetFloat64(math.Pow10(floatPrecision))

// EncodeFloat converts f into the fixed-point integer form exchanged and
// encrypted by the protocols
func EncodeFloat(f float64) *big.Int {
	scaled := new(big.Float).Mul(new(big.Float).SetFloat64(f), floatScale)
	v, _ := scaled.Int(nil)
	return v
}

// DecodeFloat reverses EncodeFloat
func DecodeFloat(v *big.Int) float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(v), floatScale)
	r, _ := f.Float64()
	return r
}
