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
	"os"
)

// DigestSize is the size of every digest a TPM 1.2 works with: PCR
// values, composite hashes and quote external data are all SHA-1.
const DigestSize = sha1.Size

// Digest is a SHA-1 digest.
type Digest [DigestSize]byte

// DefaultChallenge returns the fixed challenge used when the caller
// supplies no nonce: DigestSize zero bytes.
func DefaultChallenge() []byte {
	return make([]byte, DigestSize)
}

// ReadChallenge loads the anti-replay challenge from path, or returns
// DefaultChallenge() when path is empty.
func ReadChallenge(path string) ([]byte, error) {
	if path == "" {
		return DefaultChallenge(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Op: "read challenge", Path: path, Err: err}
	}
	return data, nil
}

// ChallengeDigest reduces a challenge to the external data the TPM
// binds into the quote signature.
func ChallengeDigest(challenge []byte) Digest {
	return sha1.Sum(challenge)
}
