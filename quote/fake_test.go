// Copyright 2024 The tpmquote Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package quote

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"errors"
	"testing"

	"github.com/google/go-tpm/tpmutil"
)

// fakeTSS is an in-memory TPM 1.2 stand-in. It signs real
// TPM_QUOTE_INFO structures with a throwaway RSA key, so quotes it
// produces can be checked end to end.
type fakeTSS struct {
	pcrs [][]byte
	key  *rsa.PrivateKey

	// shortMask mimics stacks that hash the composite with a
	// sizeOfSelect one byte below the requested mask length.
	shortMask bool
	// corruptComposite makes the reported digest match no encoding.
	corruptComposite bool
	// noSignature returns an empty validation blob.
	noSignature bool

	closed bool
}

func newFakeTSS(t *testing.T, npcrs int) *fakeTSS {
	t.Helper()
	// A small key keeps the tests quick.
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	pcrs := make([][]byte, npcrs)
	for i := range pcrs {
		v := sha1.Sum([]byte{byte(i)})
		pcrs[i] = v[:]
	}
	return &fakeTSS{pcrs: pcrs, key: key}
}

func fakeSession(f *fakeTSS) *Session {
	return &Session{tss: f}
}

func (f *fakeTSS) maxPCRs() (int, error) {
	return len(f.pcrs), nil
}

func (f *fakeTSS) pcrValues() ([][]byte, error) {
	return f.pcrs, nil
}

func (f *fakeTSS) loadAIK(blob []byte) (aikHandle, error) {
	if len(blob) == 0 {
		return nil, &TPMError{Op: "Tspi_Context_LoadKeyByBlob", Err: errors.New("empty key blob")}
	}
	return &fakeAIK{tss: f}, nil
}

func (f *fakeTSS) close() error {
	f.closed = true
	return nil
}

type fakeAIK struct {
	tss    *fakeTSS
	closed bool
}

func (k *fakeAIK) close() error {
	k.closed = true
	return nil
}

func (k *fakeAIK) quote(sel Selection, challenge []byte) (*rawQuote, error) {
	f := k.tss
	values := make([]Digest, 0, sel.Count())
	for _, i := range sel.Indices() {
		var d Digest
		copy(d[:], f.pcrs[i])
		values = append(values, d)
	}

	encSel := sel
	if f.shortMask {
		encSel = sel.shorten()
	}
	buf, err := encodeComposite(encSel, values)
	if err != nil {
		return nil, err
	}
	composite := Digest(sha1.Sum(buf))
	if f.corruptComposite {
		composite[0] ^= 0xff
	}

	info, err := tpmutil.Pack(&struct {
		Version [4]byte
		Fixed   [4]byte
		Digest  Digest
		Nonce   Digest
	}{
		Version: [4]byte{1, 1, 0, 0},
		Fixed:   [4]byte{'Q', 'U', 'O', 'T'},
		Digest:  composite,
		Nonce:   sha1.Sum(challenge),
	})
	if err != nil {
		return nil, err
	}
	digest := sha1.Sum(info)
	sig, err := rsa.SignPKCS1v15(rand.Reader, f.key, crypto.SHA1, digest[:])
	if err != nil {
		return nil, err
	}
	if f.noSignature {
		sig = nil
	}

	return &rawQuote{
		CompositeDigest: composite,
		QuoteInfo:       info,
		Signature:       sig,
		PCRs:            f.pcrs,
	}, nil
}
