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

import "fmt"

// FileError reports a failure to read or write one of the files
// involved in producing a quote: the challenge, the AIK blob or the
// quote file itself.
type FileError struct {
	Op   string // logical step, e.g. "read challenge"
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// TPMError reports a failed TPM access operation.
type TPMError struct {
	Op  string // the failing operation, e.g. "Tspi_TPM_Quote"
	Err error  // the underlying status
}

func (e *TPMError) Error() string {
	return fmt.Sprintf("tpm %s failed: %v", e.Op, e.Err)
}

func (e *TPMError) Unwrap() error {
	return e.Err
}

// IntegrityError means the composite digest reported by the TPM matched
// neither encoding of the locally reconstructed TPM_PCR_COMPOSITE. The
// reported PCR values cannot be tied to the signature, so the quote
// must not be written anywhere.
type IntegrityError struct {
	Reported Digest // digest the TPM signed
	Computed Digest // digest of the local reconstruction, full-length mask
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("inconsistent PCR composite hash in quote: TPM reported %x, computed %x", e.Reported, e.Computed)
}
