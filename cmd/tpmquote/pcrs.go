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

	"github.com/spf13/cobra"

	"github.com/xapi-project/tpmquote/quote"
)

var pcrsCmd = &cobra.Command{
	Use:   "pcrs",
	Short: "Print the current PCR values",
	RunE:  runPCRs,
}

func init() {
	rootCmd.AddCommand(pcrsCmd)
}

func runPCRs(cmd *cobra.Command, args []string) error {
	s, err := quote.Open(&quote.Config{OwnerSecret: ownerSecret})
	if err != nil {
		return err
	}
	defer s.Close()

	values, err := s.PCRValues()
	if err != nil {
		return err
	}
	for i, v := range values {
		fmt.Printf("PCR[%02d] %x\n", i, v)
	}
	return nil
}
