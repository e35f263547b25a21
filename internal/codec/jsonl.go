package codec

import (
	"bufio"
	"os"
)

// ScanJSONLFunc is called once per non-blank line of a JSONL file. Returning
// a non-nil error stops the scan and propagates the error.
type ScanJSONLFunc func(lineNo int, line []byte) error

// ScanJSONL streams path line by line, skipping blank lines but reporting
// them via blankLines so callers can implement the "drop malformed/blank
// lines, count them" contract (spec.md §4.K) without buffering the file.
func ScanJSONL(path string, fn ScanJSONLFunc) (blankLines int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(trimSpace(line)) == 0 {
			blankLines++
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if err := fn(lineNo, cp); err != nil {
			return blankLines, err
		}
	}
	if err := sc.Err(); err != nil {
		return blankLines, err
	}
	return blankLines, nil
}

func trimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j {
		switch b[i] {
		case ' ', '\t', '\r', '\n':
			i++
			continue
		}
		break
	}
	for j > i {
		switch b[j-1] {
		case ' ', '\t', '\r', '\n':
			j--
			continue
		}
		break
	}
	return b[i:j]
}
