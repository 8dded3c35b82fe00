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
)

var quoteFlags struct {
	aik       string
	out       string
	challenge string
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Generate a signed quote over all PCRs",
	Long: `Quote asks the TPM to sign the current value of every PCR with the
given AIK, bound to the challenge file (or an all-zero challenge when
none is given). The reported composite digest is cross-checked against
a local reconstruction before the quote file is written; nothing is
written if the check fails.`,
	RunE: runQuote,
}

func init() {
	quoteCmd.Flags().StringVar(&quoteFlags.aik, "aik", "", "path to the AIK key blob (required)")
	quoteCmd.Flags().StringVar(&quoteFlags.out, "out", "", "path of the quote file to write (required)")
	quoteCmd.Flags().StringVar(&quoteFlags.challenge, "challenge", "", "path to the challenge (nonce) file")
	quoteCmd.MarkFlagRequired("aik")
	quoteCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	challenge, err := quote.ReadChallenge(quoteFlags.challenge)
	if err != nil {
		return err
	}
	blob, err := os.ReadFile(quoteFlags.aik)
	if err != nil {
		return &quote.FileError{Op: "read AIK blob", Path: quoteFlags.aik, Err: err}
	}

	s, err := quote.Open(&quote.Config{OwnerSecret: ownerSecret})
	if err != nil {
		return err
	}
	defer s.Close()

	k, err := s.LoadAIK(blob)
	if err != nil {
		return err
	}
	defer k.Close()

	q, err := s.Quote(k, challenge)
	if err != nil {
		return err
	}
	if err := q.WriteFile(quoteFlags.out); err != nil {
		return err
	}

	fmt.Printf("Wrote %s: %d PCR values, %d byte signature\n", quoteFlags.out, len(q.PCRs), len(q.Signature))
	return nil
}
