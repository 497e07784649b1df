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
	"math/big"
	"testing"
)

// testKeyLength keeps key generation fast in tests
const testKeyLength = 128

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewEncrypter(MethodPaillier, testKeyLength)
	checkErr(err, t)

	for _, v := range []int64{0, 1, -1, 123456789, -987654321} {
		m := big.NewInt(v)
		c, err := enc.Encrypt(m)
		checkErr(err, t)
		if got := enc.Decrypt(c); got.Cmp(m) != 0 {
			t.Errorf("decrypt(encrypt(%d)) = %s", v, got)
		}
	}
}

func TestEncryptDecryptVector(t *testing.T) {
	enc, err := NewEncrypter(MethodPaillier, testKeyLength)
	checkErr(err, t)

	ms := []*big.Int{big.NewInt(7), big.NewInt(-42), big.NewInt(0)}
	cs, err := enc.EncryptVector(ms)
	checkErr(err, t)
	got := enc.DecryptVector(cs)
	for i := range ms {
		if got[i].Cmp(ms[i]) != 0 {
			t.Errorf("element %d: got %s want %s", i, got[i], ms[i])
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	if _, err := NewEncrypter("rsa", testKeyLength); err == nil {
		t.Error("expected error for unsupported method")
	}
}

func TestPeerKeyEncryption(t *testing.T) {
	pub, priv, err := GenerateKeyPair(testKeyLength)
	checkErr(err, t)

	ms := []*big.Int{big.NewInt(31), big.NewInt(-17)}
	cs, err := EncryptVector(pub, ms)
	checkErr(err, t)
	got := DecryptVector(priv, cs)
	for i := range ms {
		if got[i].Cmp(ms[i]) != 0 {
			t.Errorf("element %d: got %s want %s", i, got[i], ms[i])
		}
	}
}

func TestFloatCodec(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 0.5, -2.25, 1234.56789} {
		got := DecodeFloat(EncodeFloat(f))
		if diff := got - f; diff > 1e-7 || diff < -1e-7 {
			t.Errorf("codec round trip of %v gave %v", f, got)
		}
	}
}

func TestMaskRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair(512)
	checkErr(err, t)

	v := big.NewInt(424242)
	c, err := pub.EncryptSupNegNum(v)
	checkErr(err, t)

	masked, mask, err := AddMask(pub, c)
	checkErr(err, t)

	// the decrypting party sees only the blinded value
	blinded := priv.DecryptSupNegNum(masked)
	if blinded.Cmp(v) == 0 {
		t.Error("mask left the plaintext unblinded")
	}

	// unmasking restores the value exactly
	if got := RemoveMask(blinded, mask); got.Cmp(v) != 0 {
		t.Errorf("mask round trip gave %s, want %s", got, v)
	}
}

func TestMaskFreshness(t *testing.T) {
	pub, _, err := GenerateKeyPair(512)
	checkErr(err, t)

	c, err := pub.EncryptSupNegNum(big.NewInt(5))
	checkErr(err, t)

	_, mask1, err := AddMask(pub, c)
	checkErr(err, t)
	_, mask2, err := AddMask(pub, c)
	checkErr(err, t)
	if mask1.Cmp(mask2) == 0 {
		t.Error("two maskings of one value drew the same mask")
	}
}

func TestMaskLists(t *testing.T) {
	pub, priv, err := GenerateKeyPair(512)
	checkErr(err, t)

	vs := [][]*big.Int{
		{big.NewInt(1), big.NewInt(2)},
		{big.NewInt(3)},
	}
	cs := make([][]*big.Int, len(vs))
	for i, row := range vs {
		cs[i], err = EncryptVector(pub, row)
		checkErr(err, t)
	}

	masked, masks, err := AddMaskLists(pub, cs)
	checkErr(err, t)

	blinded := make([][]*big.Int, len(masked))
	for i, row := range masked {
		blinded[i] = DecryptVector(priv, row)
	}
	got, err := RemoveMaskLists(blinded, masks)
	checkErr(err, t)
	for i, row := range vs {
		for j, v := range row {
			if got[i][j].Cmp(v) != 0 {
				t.Errorf("list %d element %d: got %s want %s", i, j, got[i][j], v)
			}
		}
	}

	// mismatched mask shape must be rejected
	if _, err := RemoveMaskLists(blinded[:1], masks); err == nil {
		t.Error("expected error on mask list length mismatch")
	}
}

func checkErr(err error, t *testing.T) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}
