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

// Binary tpmquote generates and verifies TPM 1.2 PCR quotes.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var ownerSecret string

var rootCmd = &cobra.Command{
	Use:          "tpmquote",
	Short:        "Generate and verify TPM 1.2 PCR quotes",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ownerSecret, "owner-secret", "", "TPM owner secret used to authenticate the session")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
