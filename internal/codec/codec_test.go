package codec

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestCanonicalJSONKeyOrder(t *testing.T) {
	type payload struct {
		Zeta  int            `json:"zeta"`
		Alpha int            `json:"alpha"`
		Extra map[string]int `json:"extra"`
	}
	p := payload{Zeta: 1, Alpha: 2, Extra: map[string]int{"b": 1, "a": 2}}

	b, err := CanonicalJSON(p)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}

	// JCS sorts object keys lexicographically regardless of struct field
	// declaration order or map iteration order.
	want := `{"alpha":2,"extra":{"a":2,"b":1},"zeta":1}`
	if string(b) != want {
		t.Fatalf("CanonicalJSON = %s, want %s", b, want)
	}
}

func TestCanonicalJSONNoTrailingNewline(t *testing.T) {
	b, err := CanonicalJSON(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if len(b) == 0 || b[len(b)-1] == '\n' {
		t.Fatalf("CanonicalJSON left a trailing newline: %q", b)
	}
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	v := map[string]any{"b": 2, "a": 1, "c": []int{3, 2, 1}}
	a, err := CanonicalJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	b, err := CanonicalJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatalf("CanonicalJSON not deterministic: %s vs %s", a, b)
	}
}

func TestQuantizeHalfUp(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.123456785, 1.12345679},
		{1.0, 1.0},
		{0.0, 0.0},
		{-1.123456785, -1.12345679},
	}
	for _, c := range cases {
		got, err := Quantize(c.in)
		if err != nil {
			t.Fatalf("Quantize(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Quantize(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestQuantizeRejectsNonFinite(t *testing.T) {
	for _, in := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := Quantize(in); err == nil {
			t.Errorf("Quantize(%v) returned nil error, want DATA_INVALID", in)
		}
	}
}

func TestWriteFileAtomicNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	if err := WriteFileAtomic(path, []byte("hello")); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("ReadFile = %q, want hello", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "out.json" {
			t.Errorf("leftover temp entry in output dir: %s", e.Name())
		}
	}
}

func TestWriteJSONLAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.jsonl")

	rows := []any{
		map[string]any{"seq": 1},
		map[string]any{"seq": 2},
	}
	if err := WriteJSONLAtomic(path, rows); err != nil {
		t.Fatalf("WriteJSONLAtomic: %v", err)
	}

	seen := 0
	blanks, err := ScanJSONL(path, func(lineNo int, line []byte) error {
		seen++
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("line %d: %v", lineNo, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanJSONL: %v", err)
	}
	if blanks != 0 {
		t.Errorf("blanks = %d, want 0", blanks)
	}
	if seen != 2 {
		t.Errorf("scanned %d lines, want 2", seen)
	}
}

func TestWriteJSONLAtomicEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.jsonl")

	if err := WriteJSONLAtomic(path, nil); err != nil {
		t.Fatalf("WriteJSONLAtomic: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 0 {
		t.Fatalf("expected empty file, got %d bytes", len(b))
	}
}

func TestScanJSONLSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blanks.jsonl")
	content := "{\"a\":1}\n\n  \n{\"a\":2}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	seen := 0
	blanks, err := ScanJSONL(path, func(lineNo int, line []byte) error {
		seen++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if blanks != 2 {
		t.Errorf("blanks = %d, want 2", blanks)
	}
	if seen != 2 {
		t.Errorf("seen = %d, want 2", seen)
	}
}
