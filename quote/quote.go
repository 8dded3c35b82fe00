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

// Package quote produces signed TPM 1.2 PCR quotes.
//
// A quote is the TPM's attestation, signed by an Attestation Identity Key
// (AIK), of the current values of its Platform Configuration Registers,
// bound to a caller-supplied challenge. The TPM signs the SHA-1 digest of
// a serialized TPM_PCR_COMPOSITE structure; this package rebuilds that
// structure byte for byte, checks its digest against the one the TPM
// reported, and serializes the result in a positional binary form that
// can be verified offline (see the verifier package).
package quote

import (
	"errors"
	"fmt"
)

// Config holds the secrets used to authenticate the TPM session.
type Config struct {
	// OwnerSecret authenticates to the TPM owner.
	OwnerSecret string
	// SRKSecret authenticates use of the storage root key. When nil,
	// the TSS well-known secret (DigestSize zero bytes) is used.
	SRKSecret []byte
}

func (c *Config) srkSecret() []byte {
	if c == nil || c.SRKSecret == nil {
		return make([]byte, DigestSize)
	}
	return c.SRKSecret
}

// tssBackend is the interface to the TPM 1.2 access layer. On Linux it
// is implemented on top of tcsd via go-tspi (see trousers_linux.go);
// tests substitute an in-memory fake.
type tssBackend interface {
	maxPCRs() (int, error)
	pcrValues() ([][]byte, error)
	loadAIK(blob []byte) (aikHandle, error)
	close() error
}

// aikHandle is a loaded attestation identity key, scoped to its session.
type aikHandle interface {
	quote(sel Selection, challenge []byte) (*rawQuote, error)
	close() error
}

// rawQuote is what the TPM hands back from a quote operation, before
// any cross-checking.
type rawQuote struct {
	// CompositeDigest is the TPM's account of the SHA-1 digest of the
	// TPM_PCR_COMPOSITE it signed, taken from TPM_QUOTE_INFO.
	CompositeDigest Digest
	// QuoteInfo is the raw TPM_QUOTE_INFO structure.
	QuoteInfo []byte
	// Signature is the detached signature over TPM_QUOTE_INFO.
	Signature []byte
	// PCRs holds the value of every PCR at quote time, by index.
	PCRs [][]byte
}

// openTSSImpl is set by the platform backend at init time.
var openTSSImpl func(*Config) (tssBackend, error)

// Session is an authenticated connection to the TPM access daemon.
// Handles obtained through it are scoped to the session and released
// when it is closed.
type Session struct {
	tss tssBackend
}

// Open establishes a TPM session using the secrets in cfg, which may be
// nil for defaults.
func Open(cfg *Config) (*Session, error) {
	if openTSSImpl == nil {
		return nil, errors.New("tpm access is not supported by this build (requires linux, cgo and the tspi build tag)")
	}
	tss, err := openTSSImpl(cfg)
	if err != nil {
		return nil, err
	}
	return &Session{tss: tss}, nil
}

// Close tears the session down, releasing any TPM object handles loaded
// through it.
func (s *Session) Close() error {
	return s.tss.close()
}

// MaxPCRs reports how many PCR registers the TPM implements.
func (s *Session) MaxPCRs() (int, error) {
	return s.tss.maxPCRs()
}

// PCRValues reads the current value of every PCR, in index order.
func (s *Session) PCRValues() ([]Digest, error) {
	vals, err := s.tss.pcrValues()
	if err != nil {
		return nil, err
	}
	out := make([]Digest, len(vals))
	for i, v := range vals {
		if len(v) != DigestSize {
			return nil, &TPMError{Op: "PcrRead", Err: fmt.Errorf("PCR %d value is %d bytes, want %d", i, len(v), DigestSize)}
		}
		copy(out[i][:], v)
	}
	return out, nil
}

// AIK is an attestation identity key loaded into a session.
type AIK struct {
	aik aikHandle
}

// LoadAIK loads an AIK from the opaque blob produced at enrollment.
func (s *Session) LoadAIK(blob []byte) (*AIK, error) {
	k, err := s.tss.loadAIK(blob)
	if err != nil {
		return nil, err
	}
	return &AIK{aik: k}, nil
}

// Close unloads the key.
func (k *AIK) Close() error {
	return k.aik.close()
}

// Quote is a verified PCR quote.
type Quote struct {
	// Selection is the PCR selection exactly as serialized in the
	// composite preimage. It may be one mask byte shorter than the
	// selection that was requested; see Session.Quote.
	Selection Selection
	// PCRs are the attested PCR values, in ascending index order of
	// the requested selection.
	PCRs []Digest
	// Composite is the serialized TPM_PCR_COMPOSITE whose SHA-1
	// digest the TPM signed.
	Composite []byte
	// Signature is the detached AIK signature over TPM_QUOTE_INFO.
	Signature []byte
}

// Quote asks the TPM to quote every PCR it implements, bound to
// challenge.
//
// The challenge may be of any length; its SHA-1 digest becomes the
// anti-replay external data bound into the signature. Pass
// DefaultChallenge() when the caller supplied none.
//
// The composite digest reported by the TPM is checked against a locally
// serialized TPM_PCR_COMPOSITE before anything is returned. Some TSS
// stacks hash the composite with a selection mask one byte shorter than
// the capability-derived length; on a first mismatch the check is
// repeated with the shortened mask and the quote records that encoding.
// A second mismatch returns an IntegrityError and no quote.
func (s *Session) Quote(k *AIK, challenge []byte) (*Quote, error) {
	max, err := s.MaxPCRs()
	if err != nil {
		return nil, err
	}
	sel, err := SelectAll(max)
	if err != nil {
		return nil, err
	}

	raw, err := k.aik.quote(sel, challenge)
	if err != nil {
		return nil, err
	}
	if len(raw.Signature) == 0 {
		return nil, &TPMError{Op: "Quote", Err: errors.New("no signature returned")}
	}

	values := make([]Digest, 0, sel.Count())
	for _, i := range sel.Indices() {
		if i >= len(raw.PCRs) {
			return nil, &TPMError{Op: "Quote", Err: fmt.Errorf("no value for selected PCR %d", i)}
		}
		v := raw.PCRs[i]
		if len(v) != DigestSize {
			return nil, &TPMError{Op: "Quote", Err: fmt.Errorf("PCR %d value is %d bytes, want %d", i, len(v), DigestSize)}
		}
		var d Digest
		copy(d[:], v)
		values = append(values, d)
	}

	composite, finalSel, err := verifyComposite(sel, values, raw.CompositeDigest)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Selection: finalSel,
		PCRs:      values,
		Composite: composite,
		Signature: raw.Signature,
	}, nil
}
