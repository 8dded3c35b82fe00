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
	"crypto/sha1"
	"fmt"

	"github.com/google/go-tpm/tpmutil"
)

// encodeComposite serializes TPM_PCR_COMPOSITE: the PCR selection, then
// a 4-byte big-endian length and the concatenated PCR values. This
// exact byte sequence is the preimage of the composite hash the TPM
// signs.
func encodeComposite(sel Selection, values []Digest) ([]byte, error) {
	data := make([]byte, 0, len(values)*DigestSize)
	for _, v := range values {
		data = append(data, v[:]...)
	}
	return tpmutil.Pack(&struct {
		Mask tpmutil.U16Bytes
		Data tpmutil.U32Bytes
	}{Mask: sel.mask, Data: data})
}

// verifyComposite checks the TPM-reported composite digest against a
// locally serialized TPM_PCR_COMPOSITE over the same selection and
// values. On a mismatch it retries once with the selection mask
// truncated by its final byte: TrouSerS has been seen to hash the
// composite with a sizeOfSelect one byte below the capability-derived
// mask length. A quote is only usable if one of the two encodings
// matches; verifyComposite returns the matching preimage and the
// selection as serialized in it, or an IntegrityError.
func verifyComposite(sel Selection, values []Digest, reported Digest) ([]byte, Selection, error) {
	buf, err := encodeComposite(sel, values)
	if err != nil {
		return nil, Selection{}, fmt.Errorf("serializing TPM_PCR_COMPOSITE: %v", err)
	}
	computed := Digest(sha1.Sum(buf))
	if computed == reported {
		return buf, sel, nil
	}

	if sel.SizeOfSelect() > 1 {
		short := sel.shorten()
		sbuf, err := encodeComposite(short, values)
		if err != nil {
			return nil, Selection{}, fmt.Errorf("serializing TPM_PCR_COMPOSITE: %v", err)
		}
		if Digest(sha1.Sum(sbuf)) == reported {
			return sbuf, short, nil
		}
	}

	return nil, Selection{}, &IntegrityError{Reported: reported, Computed: computed}
}
