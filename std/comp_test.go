package std

import (
	"bytes"
	"testing"
)

func TestPipelineRoundTrip(t *testing.T) {
	sealer, err := NewSealer("it's a secret")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	cases := []struct {
		name string
		p    *Pipeline
	}{
		{"plain", NewPipeline(false, nil, 1000)},
		{"comp", NewPipeline(true, nil, 1000)},
		{"sealed", NewPipeline(false, sealer, 1000)},
		{"comp+sealed", NewPipeline(true, sealer, 1000)},
	}

	payload := bytes.Repeat([]byte("reliable datagram "), 16)
	for _, tc := range cases {
		encoded, err := tc.p.Encode(payload)
		if err != nil {
			t.Fatalf("%s: Encode: %v", tc.name, err)
		}
		decoded, err := tc.p.Decode(encoded)
		if err != nil {
			t.Fatalf("%s: Decode: %v", tc.name, err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Fatalf("%s: round trip mismatch", tc.name)
		}
	}
}

func TestPipelineLimit(t *testing.T) {
	p := NewPipeline(false, nil, 16)
	if _, err := p.Encode(make([]byte, 64)); err == nil {
		t.Fatal("expected error for payload over the packet size")
	}
}

func TestPipelineCompressionShrinks(t *testing.T) {
	p := NewPipeline(true, nil, 1000)
	payload := bytes.Repeat([]byte{'a'}, 900)
	encoded, err := p.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(encoded) >= len(payload) {
		t.Fatalf("expected compression to shrink %d bytes, got %d", len(payload), len(encoded))
	}
}
