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
	"bytes"
	"fmt"
	"math/bits"

	"github.com/google/go-tpm/tpmutil"
)

// Selection is a TPM_PCR_SELECTION bitmask over PCR indices: bit i%8 of
// mask byte i/8 selects PCR i.
type Selection struct {
	mask []byte
}

// SelectAll returns a selection of every PCR index in [0, max).
func SelectAll(max int) (Selection, error) {
	if max <= 0 {
		return Selection{}, &TPMError{Op: "GetCapability", Err: fmt.Errorf("TPM reports %d PCRs", max)}
	}
	s := Selection{mask: make([]byte, (max+7)/8)}
	for i := 0; i < max; i++ {
		s.mask[i/8] |= 1 << (i % 8)
	}
	return s, nil
}

// SizeOfSelect is the length in bytes of the bitmask, the sizeOfSelect
// field of TPM_PCR_SELECTION.
func (s Selection) SizeOfSelect() int {
	return len(s.mask)
}

// Mask returns a copy of the selection bitmask.
func (s Selection) Mask() []byte {
	return append([]byte(nil), s.mask...)
}

// Count reports how many PCRs the selection includes.
func (s Selection) Count() int {
	n := 0
	for _, b := range s.mask {
		n += bits.OnesCount8(b)
	}
	return n
}

// Contains reports whether PCR index i is selected.
func (s Selection) Contains(i int) bool {
	if i < 0 || i/8 >= len(s.mask) {
		return false
	}
	return s.mask[i/8]&(1<<(i%8)) != 0
}

// Indices returns the selected PCR indices in ascending order.
func (s Selection) Indices() []int {
	out := make([]int, 0, s.Count())
	for i := 0; i < 8*len(s.mask); i++ {
		if s.Contains(i) {
			out = append(out, i)
		}
	}
	return out
}

// Encode serializes the selection as the TPM does: a 2-byte big-endian
// mask length followed by the mask bytes.
func (s Selection) Encode() ([]byte, error) {
	return tpmutil.Pack(tpmutil.U16Bytes(s.mask))
}

// Equal reports whether two selections carry the same mask.
func (s Selection) Equal(o Selection) bool {
	return bytes.Equal(s.mask, o.mask)
}

// shorten drops the final mask byte. Some TSS stacks hash the composite
// with a sizeOfSelect one byte below the requested one; see
// verifyComposite.
func (s Selection) shorten() Selection {
	return Selection{mask: s.mask[:len(s.mask)-1]}
}
