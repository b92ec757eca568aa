package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHash_IsZero(t *testing.T) {
	var zero Hash
	if !zero.IsZero() {
		t.Error("zero-value Hash should be zero")
	}
	if (Hash{0x01}).IsZero() {
		t.Error("non-zero Hash should not be zero")
	}
}

func TestHash_String(t *testing.T) {
	var h Hash
	if s := h.String(); s != strings.Repeat("0", 64) {
		t.Errorf("zero hash String() = %s, want all zeros", s)
	}
	h[0] = 0xab
	h[31] = 0xcd
	s := h.String()
	if !strings.HasPrefix(s, "ab") || !strings.HasSuffix(s, "cd") {
		t.Errorf("String() = %s, want ab...cd", s)
	}
}

func TestHash_BytesIsCopy(t *testing.T) {
	h := Hash{0x01, 0x02, 0x03}
	b := h.Bytes()
	b[0] = 0xFF
	if h[0] == 0xFF {
		t.Error("Bytes() should return a copy, not a reference")
	}
}

func TestHash_Compare(t *testing.T) {
	lo := Hash{0x00, 0xff}
	hi := Hash{0x01}
	if lo.Compare(hi) != -1 || hi.Compare(lo) != 1 || lo.Compare(lo) != 0 {
		t.Error("Compare() should order by leading bytes")
	}
}

func TestHexToHash(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
		{name: "all zeros", input: strings.Repeat("0", 64)},
		{name: "too short", input: "abcd", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 66), wantErr: true},
		{name: "not hex", input: strings.Repeat("z", 64), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HexToHash(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("HexToHash() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHash_JSONRoundtrip(t *testing.T) {
	h := Hash{0xde, 0xad, 0xbe, 0xef}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Hash
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != h {
		t.Errorf("roundtrip = %s, want %s", got, h)
	}
}
