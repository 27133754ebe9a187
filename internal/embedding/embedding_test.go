package embedding

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestEmbedding_Dimensions(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
		want   int
	}{
		{"empty", nil, 0},
		{"three", []float32{1, 2, 3}, 3},
		{"zero vector", ZeroVector(768), 768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Embedding{Vector: tt.vector}
			if got := e.Dimensions(); got != tt.want {
				t.Errorf("Dimensions() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestZeroVector(t *testing.T) {
	v := ZeroVector(5)
	if len(v) != 5 {
		t.Fatalf("len = %d, want 5", len(v))
	}
	for i, x := range v {
		if x != 0 {
			t.Errorf("v[%d] = %v, want 0", i, x)
		}
	}
}

func TestTruncate(t *testing.T) {
	short := "abstract"
	if got := truncate(short); got != short {
		t.Errorf("truncate(short) = %q", got)
	}

	long := strings.Repeat("é", MaxInputChars+10)
	got := truncate(long)
	if n := utf8.RuneCountInString(got); n != MaxInputChars {
		t.Errorf("truncate(long) has %d runes, want %d", n, MaxInputChars)
	}
	if !utf8.ValidString(got) {
		t.Error("truncate() split a rune")
	}
}
