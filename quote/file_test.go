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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestQuoteFileRoundTrip(t *testing.T) {
	f := newFakeTSS(t, 24)
	q, err := generateTestQuote(t, f, DefaultChallenge())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}

	got, err := ParseQuote(q.Encode())
	if err != nil {
		t.Fatalf("ParseQuote failed: %v", err)
	}
	if diff := cmp.Diff(q, got); diff != "" {
		t.Errorf("round trip mismatch (-generated +parsed):\n%s", diff)
	}
}

func TestQuoteFileRoundTripShortMask(t *testing.T) {
	f := newFakeTSS(t, 24)
	f.shortMask = true
	q, err := generateTestQuote(t, f, DefaultChallenge())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}

	got, err := ParseQuote(q.Encode())
	if err != nil {
		t.Fatalf("ParseQuote failed: %v", err)
	}
	if diff := cmp.Diff(q, got); diff != "" {
		t.Errorf("round trip mismatch (-generated +parsed):\n%s", diff)
	}
	if got.Selection.Count() != 16 || len(got.PCRs) != 24 {
		t.Errorf("parsed quote selects %d PCRs and carries %d values, want 16 and 24",
			got.Selection.Count(), len(got.PCRs))
	}
}

func TestParseQuoteMalformed(t *testing.T) {
	sel, err := SelectAll(8)
	if err != nil {
		t.Fatal(err)
	}
	unsigned := referenceComposite(t, sel.Mask(), testValues(8))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated mask", []byte{0x00, 0x03, 0xff}},
		{"empty mask", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xab}},
		{"ragged value block", append(append([]byte{0x00, 0x01, 0xff}, 0x00, 0x00, 0x00, 0x07), []byte{1, 2, 3, 4, 5, 6, 7, 0xab}...)},
		{"missing signature", unsigned},
		{"fewer values than selected", append([]byte{0x00, 0x01, 0xff, 0x00, 0x00, 0x00, 0x00}, 0xab)},
	}
	for _, tt := range tests {
		if _, err := ParseQuote(tt.data); err == nil {
			t.Errorf("ParseQuote(%s) succeeded, want error", tt.name)
		}
	}
}

func TestWriteQuoteFile(t *testing.T) {
	f := newFakeTSS(t, 8)
	q, err := generateTestQuote(t, f, DefaultChallenge())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "quote.bin")
	if err := q.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(2 + 1 + 4 + 8*DigestSize + len(q.Signature)); fi.Size() != want {
		t.Errorf("quote file is %d bytes, want %d", fi.Size(), want)
	}

	got, err := ReadQuoteFile(path)
	if err != nil {
		t.Fatalf("ReadQuoteFile failed: %v", err)
	}
	if diff := cmp.Diff(q, got); diff != "" {
		t.Errorf("file round trip mismatch (-written +read):\n%s", diff)
	}

	// No temp files may survive a successful write.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("destination directory holds %d entries, want just the quote file", len(entries))
	}
}

func TestNoOutputOnIntegrityFailure(t *testing.T) {
	f := newFakeTSS(t, 24)
	f.corruptComposite = true

	dir := t.TempDir()
	path := filepath.Join(dir, "quote.bin")
	q, err := generateTestQuote(t, f, DefaultChallenge())
	if err == nil {
		// Mirrors how callers must sequence the pipeline: writing
		// is unreachable unless the quote verified.
		q.WriteFile(path)
		t.Fatal("Quote succeeded with a corrupt composite digest")
	}
	if _, serr := os.Stat(path); !os.IsNotExist(serr) {
		t.Errorf("quote file exists after integrity failure: %v", serr)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("destination directory holds %d entries after integrity failure, want none", len(entries))
	}
}

func TestWriteQuoteFileBadDestination(t *testing.T) {
	f := newFakeTSS(t, 8)
	q, err := generateTestQuote(t, f, DefaultChallenge())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "no-such-dir", "quote.bin")
	werr := q.WriteFile(path)
	if werr == nil {
		t.Fatal("WriteFile succeeded into a missing directory")
	}
	var ferr *FileError
	if !errors.As(werr, &ferr) {
		t.Fatalf("WriteFile error = %v, want *FileError", werr)
	}
	if ferr.Path != path {
		t.Errorf("FileError.Path = %q, want %q", ferr.Path, path)
	}
}
