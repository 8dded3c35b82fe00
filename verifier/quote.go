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

// Package verifier checks quote files offline against an AIK public key.
package verifier

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	tpm1 "github.com/google/go-tpm/tpm"
	"github.com/google/go-tpm/tpmutil"

	"github.com/xapi-project/tpmquote/quote"
)

// Results describes the outcome of verifying a quote file.
type Results struct {
	// Succeeded is true only when the signature covers the quote's
	// own composite digest bound to the expected challenge.
	Succeeded bool
	// SignatureMismatch is set when the signature check failed. With
	// this quote format the composite digest and the challenge are
	// reconstructed locally, so a mismatch in either surfaces here.
	SignatureMismatch bool
	// CompositeDigest is the SHA-1 digest of the quote's composite
	// preimage, recomputed locally.
	CompositeDigest []byte
	// PCRs are the PCR values carried in the quote.
	PCRs []quote.Digest
}

// VerifyQuote checks that quoteData was signed by the given AIK over
// exactly the PCR values it carries, bound to challenge. public is
// either a TPM_PUBKEY blob (as produced at AIK enrollment) or a
// PEM-encoded PKIX RSA public key. The challenge is the raw nonce; its
// SHA-1 digest is the external data the TPM bound into the signature.
func VerifyQuote(public, quoteData, challenge []byte) (*Results, error) {
	q, err := quote.ParseQuote(quoteData)
	if err != nil {
		return nil, err
	}
	pub, err := parseAIKPublic(public)
	if err != nil {
		return nil, err
	}

	composite := sha1.Sum(q.Composite)
	nonce := sha1.Sum(challenge)
	// TPM_QUOTE_INFO over the reconstructed composite digest and the
	// expected external data.
	info, err := tpmutil.Pack(&struct {
		Version [4]byte
		Fixed   [4]byte
		Digest  [sha1.Size]byte
		Nonce   [sha1.Size]byte
	}{
		Version: [4]byte{1, 1, 0, 0},
		Fixed:   [4]byte{'Q', 'U', 'O', 'T'},
		Digest:  composite,
		Nonce:   nonce,
	})
	if err != nil {
		return nil, err
	}
	digest := sha1.Sum(info)
	verifyErr := rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], q.Signature)

	return &Results{
		Succeeded:         verifyErr == nil,
		SignatureMismatch: verifyErr != nil,
		CompositeDigest:   composite[:],
		PCRs:              q.PCRs,
	}, nil
}

func parseAIKPublic(public []byte) (*rsa.PublicKey, error) {
	if b, _ := pem.Decode(public); b != nil {
		pub, err := x509.ParsePKIXPublicKey(b.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing public key: %v", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("expected *rsa.PublicKey, got %T", pub)
		}
		return rsaPub, nil
	}
	pub, err := tpm1.UnmarshalPubRSAPublicKey(public)
	if err != nil {
		return nil, fmt.Errorf("parsing TPM_PUBKEY: %v", err)
	}
	return pub, nil
}
