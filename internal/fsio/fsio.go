// Package fsio provides the encoding-detection and atomic-write
// primitives shared by every component that touches file bytes
// (spec §4.B). Text encoding is detected by BOM, then by UTF-8
// validity heuristic, falling back to a single configured legacy
// encoding; writes go through a sibling temp file and atomic rename
// so a successful write either fully replaces the target or leaves it
// unchanged.
package fsio

import (
	"bytes"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
)

// Encoding identifies the text encoding a file was detected to use.
type Encoding string

const (
	EncodingUTF8       Encoding = "utf-8"
	EncodingUTF8BOM    Encoding = "utf-8-bom"
	EncodingUTF16LE    Encoding = "utf-16le"
	EncodingUTF16BE    Encoding = "utf-16be"
	EncodingLegacy     Encoding = "legacy" // single configured fallback, treated as Latin-1/Windows-1252 byte-for-byte
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// crc32cTable is the Castagnoli polynomial table used throughout the
// core for file and range fingerprints (spec calls this "CRC32C").
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the Castagnoli CRC32 checksum of b.
func CRC32C(b []byte) uint32 {
	return crc32.Checksum(b, crc32cTable)
}

// CRCRange computes the CRC32C of lines[start-1:end] (1-based,
// inclusive), the same byte-range a Line Access Token binds. Callers
// are expected to have already bounds-checked start/end against
// len(lines); a zero-width range (end == start-1) hashes the empty
// string, matching an insert-only LAT.
func CRCRange(lines []string, start, end int) uint32 {
	return CRC32C([]byte(strings.Join(lines[start-1:end], "")))
}

// DetectEncoding classifies raw file bytes by BOM first, then by a
// UTF-8 validity heuristic; bytes that are neither BOM-tagged nor
// valid UTF-8 are classified as EncodingLegacy.
func DetectEncoding(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return EncodingUTF16BE
	case utf8.Valid(data):
		return EncodingUTF8
	default:
		return EncodingLegacy
	}
}

// StripBOM returns data with its leading UTF-8 BOM removed when enc is
// EncodingUTF8BOM; for every other encoding, UTF-16 included, data is
// returned unchanged.
func StripBOM(data []byte, enc Encoding) []byte {
	switch enc {
	case EncodingUTF8BOM:
		return bytes.TrimPrefix(data, bomUTF8)
	default:
		return data
	}
}

// ReadText reads path, detects its encoding, and returns its content
// with a UTF-8 BOM stripped. Nothing is transcoded: legacy-encoded
// bytes are passed through verbatim (this system treats "legacy" as an
// opaque byte-for-byte fallback, per spec §4.B), and UTF-16 content is
// returned as its raw bytes with the BOM still in place.
func ReadText(path string) (content string, enc Encoding, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", ntserr.IOFailure(path, err)
	}
	enc = DetectEncoding(data)
	data = StripBOM(data, enc)
	return string(data), enc, nil
}

// SafeWrite writes content to path via a sibling temp file followed
// by an atomic rename, guaranteeing the target is either fully
// replaced or left unchanged even if the process dies mid-write.
func SafeWrite(path string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ntserr.IOFailure(path, err)
	}

	tmp, err := os.CreateTemp(dir, ".nts-write-*")
	if err != nil {
		return ntserr.IOFailure(path, err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ntserr.IOFailure(path, err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ntserr.IOFailure(path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ntserr.IOFailure(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ntserr.IOFailure(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return ntserr.IOFailure(path, err)
	}
	return nil
}

// IsBinary sniffs the first 8 KiB of path for a NUL byte, the
// standard heuristic for "this is not text" (grounded on go-git's
// convert.IsBinary, simplified to the NUL-byte rule spec §4.B calls
// for).
func IsBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, ntserr.IOFailure(path, err)
	}
	defer f.Close()

	buf := make([]byte, 8192)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, ntserr.IOFailure(path, err)
	}
	return bytes.IndexByte(buf[:n], 0) != -1, nil
}

// LineCount returns the number of lines in content, counting a
// trailing partial line (one not terminated by \n) as a line. Used
// throughout the Edit Engine and LAT issuer for bounds checks.
func LineCount(content string) int {
	if content == "" {
		return 0
	}
	n := bytes.Count([]byte(content), []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// SplitLinesKeepEnds splits content into lines, preserving the
// original EOL style per line (so output can echo it), without
// losing a trailing unterminated line.
func SplitLinesKeepEnds(content string) []string {
	if content == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, content[start:i+1])
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}
