package fsio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Encoding
	}{
		{"plain utf8", []byte("hello\nworld\n"), EncodingUTF8},
		{"utf8 bom", append(bomUTF8, []byte("hello")...), EncodingUTF8BOM},
		{"utf16le bom", append(bomUTF16LE, 'h', 0), EncodingUTF16LE},
		{"invalid utf8 falls back to legacy", []byte{0x80, 0x81, 0xfd, 0xfe, 0xff}, EncodingLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectEncoding(tt.data); got != tt.want {
				t.Errorf("DetectEncoding(%v) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestSafeWriteAtomicity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")

	if err := SafeWrite(path, []byte("v1"), 0644); err != nil {
		t.Fatalf("SafeWrite: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "v1" {
		t.Fatalf("content = %q, want v1", got)
	}

	if err := SafeWrite(path, []byte("v2"), 0644); err != nil {
		t.Fatalf("SafeWrite: %v", err)
	}
	got, _ = os.ReadFile(path)
	if string(got) != "v2" {
		t.Fatalf("content = %q, want v2", got)
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want 1: %v", len(entries), entries)
	}
}

func TestIsBinary(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "text.txt")
	os.WriteFile(textPath, []byte("hello world\n"), 0644)
	isBin, err := IsBinary(textPath)
	if err != nil || isBin {
		t.Errorf("IsBinary(text) = %v, %v; want false, nil", isBin, err)
	}

	binPath := filepath.Join(dir, "bin.dat")
	os.WriteFile(binPath, []byte{0x00, 0x01, 0x02, 'h', 'i'}, 0644)
	isBin, err = IsBinary(binPath)
	if err != nil || !isBin {
		t.Errorf("IsBinary(bin) = %v, %v; want true, nil", isBin, err)
	}
}

func TestCRC32CDeterministic(t *testing.T) {
	a := CRC32C([]byte("a\nb\nc\n"))
	b := CRC32C([]byte("a\nb\nc\n"))
	if a != b {
		t.Fatal("CRC32C not deterministic")
	}
	c := CRC32C([]byte("a\nB\nc\n"))
	if a == c {
		t.Fatal("CRC32C should differ for different content")
	}
}

func TestLineCount(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"a\n", 1},
		{"a\nb\nc\n", 3},
		{"a\nb\nc", 3},
	}
	for _, tt := range tests {
		if got := LineCount(tt.content); got != tt.want {
			t.Errorf("LineCount(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}
