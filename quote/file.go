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
	"io"
	"os"
	"path/filepath"

	"github.com/google/go-tpm/tpmutil"
)

// Quote file layout, in order (lengths big-endian):
//
//	2 bytes   PCR bitmask length
//	L bytes   PCR bitmask (bit i of byte i/8 selects PCR i)
//	4 bytes   PCR value block length, DigestSize per quoted PCR
//	...       PCR values, ascending index order
//	rest      detached quote signature
//
// There is no magic or version field; the format is positional.

// Encode serializes the quote in the quote file layout.
func (q *Quote) Encode() []byte {
	out := make([]byte, 0, len(q.Composite)+len(q.Signature))
	out = append(out, q.Composite...)
	return append(out, q.Signature...)
}

// ParseQuote decodes a quote file. The PCR value block may describe
// more values than the bitmask selects when the quote was serialized
// with a shortened mask (see Session.Quote); the extra values are
// retained.
func ParseQuote(data []byte) (*Quote, error) {
	var composite struct {
		Mask tpmutil.U16Bytes
		Data tpmutil.U32Bytes
	}
	r := bytes.NewReader(data)
	if err := tpmutil.UnpackBuf(r, &composite); err != nil {
		return nil, fmt.Errorf("malformed TPM_PCR_COMPOSITE: %v", err)
	}
	if len(composite.Mask) == 0 {
		return nil, fmt.Errorf("malformed TPM_PCR_COMPOSITE: empty PCR bitmask")
	}
	if len(composite.Data)%DigestSize != 0 {
		return nil, fmt.Errorf("PCR value block is %d bytes, not a multiple of %d", len(composite.Data), DigestSize)
	}
	sel := Selection{mask: append([]byte(nil), composite.Mask...)}
	count := len(composite.Data) / DigestSize
	if count < sel.Count() {
		return nil, fmt.Errorf("PCR value block holds %d values but the bitmask selects %d", count, sel.Count())
	}
	sig, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("quote carries no signature")
	}

	values := make([]Digest, count)
	for i := range values {
		copy(values[i][:], composite.Data[i*DigestSize:])
	}
	preimage := append([]byte(nil), data[:len(data)-len(sig)]...)
	return &Quote{
		Selection: sel,
		PCRs:      values,
		Composite: preimage,
		Signature: sig,
	}, nil
}

// ReadQuoteFile loads and decodes a quote file.
func ReadQuoteFile(path string) (*Quote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Op: "read quote", Path: path, Err: err}
	}
	return ParseQuote(data)
}

// WriteFile writes the quote file at path. Content goes to a temporary
// file in the destination directory first and is renamed into place
// only once fully written, so a failed run never leaves a partial
// quote behind.
func (q *Quote) WriteFile(path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return &FileError{Op: "write quote", Path: path, Err: err}
	}
	tmp := f.Name()

	_, err = f.Write(q.Encode())
	if err == nil {
		err = f.Chmod(0644)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return &FileError{Op: "write quote", Path: path, Err: err}
	}
	return nil
}
