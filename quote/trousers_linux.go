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

//go:build linux && !gofuzz && cgo && tspi
// +build linux,!gofuzz,cgo,tspi

package quote

import (
	"encoding/binary"
	"fmt"

	"github.com/google/go-tspi/tspi"
	"github.com/google/go-tspi/tspiconst"
)

func init() {
	openTSSImpl = openTrousers
}

// trousersTSS talks to a TPM 1.2 device through tcsd.
type trousersTSS struct {
	ctx *tspi.Context
	tpm *tspi.TPM
	srk *tspi.Key
}

func openTrousers(cfg *Config) (tssBackend, error) {
	ctx, err := tspi.NewContext()
	if err != nil {
		return nil, &TPMError{Op: "Tspi_Context_Create", Err: err}
	}
	if err := ctx.Connect(); err != nil {
		ctx.Close()
		return nil, &TPMError{Op: "Tspi_Context_Connect", Err: err}
	}
	t := &trousersTSS{ctx: ctx, tpm: ctx.GetTPM()}

	var owner []byte
	if cfg != nil {
		owner = []byte(cfg.OwnerSecret)
	}
	policy, err := t.tpm.GetPolicy(tspiconst.TSS_POLICY_USAGE)
	if err != nil {
		ctx.Close()
		return nil, &TPMError{Op: "Tspi_GetPolicyObject", Err: err}
	}
	if err := policy.SetSecret(tspiconst.TSS_SECRET_MODE_PLAIN, owner); err != nil {
		ctx.Close()
		return nil, &TPMError{Op: "Tspi_Policy_SetSecret", Err: err}
	}

	srk, err := ctx.LoadKeyByUUID(tspiconst.TSS_PS_TYPE_SYSTEM, tspi.TSS_UUID_SRK)
	if err != nil {
		ctx.Close()
		return nil, &TPMError{Op: "Tspi_Context_LoadKeyByUUID", Err: err}
	}
	srkPolicy, err := srk.GetPolicy(tspiconst.TSS_POLICY_USAGE)
	if err != nil {
		ctx.Close()
		return nil, &TPMError{Op: "Tspi_GetPolicyObject", Err: err}
	}
	if err := srkPolicy.SetSecret(tspiconst.TSS_SECRET_MODE_SHA1, cfg.srkSecret()); err != nil {
		ctx.Close()
		return nil, &TPMError{Op: "Tspi_Policy_SetSecret", Err: err}
	}
	t.srk = srk
	return t, nil
}

func (t *trousersTSS) maxPCRs() (int, error) {
	buf, err := t.ctx.GetCapability(tspiconst.TSS_TPMCAP_PROPERTY, 4, tspiconst.TSS_TPMCAP_PROP_PCR)
	if err != nil {
		return 0, &TPMError{Op: "Tspi_TPM_GetCapability", Err: err}
	}
	if len(buf) < 4 {
		return 0, &TPMError{Op: "Tspi_TPM_GetCapability", Err: fmt.Errorf("short property response (%d bytes)", len(buf))}
	}
	// tcsd reports the property in host byte order.
	return int(binary.NativeEndian.Uint32(buf)), nil
}

func (t *trousersTSS) pcrValues() ([][]byte, error) {
	values, err := t.tpm.GetPCRValues()
	if err != nil {
		return nil, &TPMError{Op: "Tspi_TPM_PcrRead", Err: err}
	}
	return values, nil
}

func (t *trousersTSS) loadAIK(blob []byte) (aikHandle, error) {
	key, err := t.ctx.LoadKeyByBlob(t.srk, blob)
	if err != nil {
		return nil, &TPMError{Op: "Tspi_Context_LoadKeyByBlob", Err: err}
	}
	return &trousersAIK{tss: t, key: key}, nil
}

func (t *trousersTSS) close() error {
	return t.ctx.Close()
}

type trousersAIK struct {
	tss *trousersTSS
	key *tspi.Key
}

// Key handles are freed with the context when the session closes.
func (k *trousersAIK) close() error {
	return nil
}

func (k *trousersAIK) quote(sel Selection, challenge []byte) (*rawQuote, error) {
	pcrs, err := k.tss.ctx.CreatePCRs(tspiconst.TSS_PCRS_STRUCT_INFO)
	if err != nil {
		return nil, &TPMError{Op: "Tspi_Context_CreateObject", Err: err}
	}
	defer pcrs.Close()
	if err := pcrs.SetPCRs(sel.Indices()); err != nil {
		return nil, &TPMError{Op: "Tspi_PcrComposite_SelectPcrIndex", Err: err}
	}

	// go-tspi derives the external data by hashing the challenge, the
	// same derivation ChallengeDigest performs.
	info, validation, err := k.tss.tpm.GetQuote(k.key, pcrs, challenge)
	if err != nil {
		return nil, &TPMError{Op: "Tspi_TPM_Quote", Err: err}
	}
	// TPM_QUOTE_INFO: 4-byte version, "QUOT", composite digest,
	// external data.
	if len(info) < 8+DigestSize {
		return nil, &TPMError{Op: "Tspi_TPM_Quote", Err: fmt.Errorf("TPM_QUOTE_INFO is %d bytes, want at least %d", len(info), 8+DigestSize)}
	}
	values, err := k.tss.tpm.GetPCRValues()
	if err != nil {
		return nil, &TPMError{Op: "Tspi_TPM_PcrRead", Err: err}
	}

	var composite Digest
	copy(composite[:], info[8:8+DigestSize])
	return &rawQuote{
		CompositeDigest: composite,
		QuoteInfo:       info,
		Signature:       validation,
		PCRs:            values,
	}, nil
}
