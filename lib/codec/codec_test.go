// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type record struct {
	Name  string   `cbor:"name"`
	PID   int      `cbor:"pid"`
	Paths []string `cbor:"paths,omitempty"`
}

func TestRoundTrip(t *testing.T) {
	in := record{
		Name:  "compositor",
		PID:   4321,
		Paths: []string{"/run/dillinger/compositor.sock"},
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out record
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || out.PID != in.PID {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if len(out.Paths) != 1 || out.Paths[0] != in.Paths[0] {
		t.Errorf("Paths = %v, want %v", out.Paths, in.Paths)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	value := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same value produced different encodings")
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{
		"name":    "audio",
		"pid":     99,
		"novelty": "ignored by older readers",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out record
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != "audio" || out.PID != 99 {
		t.Errorf("decoded %+v, want name=audio pid=99", out)
	}
}
