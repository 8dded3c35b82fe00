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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xapi-project/tpmquote/quote"
	"github.com/xapi-project/tpmquote/verifier"
)

var verifyFlags struct {
	aikPub    string
	quoteFile string
	challenge string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a quote file against an AIK public key",
	Long: `Verify recomputes the composite digest of a quote file and checks
the AIK signature over it and the challenge, without any TPM access.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFlags.aikPub, "aik-pub", "", "path to the AIK public key, TPM_PUBKEY blob or PEM (required)")
	verifyCmd.Flags().StringVar(&verifyFlags.quoteFile, "quote", "", "path to the quote file (required)")
	verifyCmd.Flags().StringVar(&verifyFlags.challenge, "challenge", "", "path to the challenge (nonce) file")
	verifyCmd.MarkFlagRequired("aik-pub")
	verifyCmd.MarkFlagRequired("quote")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	challenge, err := quote.ReadChallenge(verifyFlags.challenge)
	if err != nil {
		return err
	}
	pub, err := os.ReadFile(verifyFlags.aikPub)
	if err != nil {
		return &quote.FileError{Op: "read AIK public key", Path: verifyFlags.aikPub, Err: err}
	}
	data, err := os.ReadFile(verifyFlags.quoteFile)
	if err != nil {
		return &quote.FileError{Op: "read quote", Path: verifyFlags.quoteFile, Err: err}
	}

	res, err := verifier.VerifyQuote(pub, data, challenge)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return fmt.Errorf("quote signature does not cover these PCR values and challenge")
	}
	fmt.Printf("Quote OK: %d PCR values, composite digest %x\n", len(res.PCRs), res.CompositeDigest)
	return nil
}
