package stock

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// maxExpand caps a single "value:count" line.
const maxExpand = 10000

// ParseImport turns an operator upload into queue values.
//
// Each non-empty trimmed line is one value. A line "value:count" whose part
// after the last ':' is an integer expands to count copies of value; a count
// of zero or less adds nothing. Lines like "login:password" stay whole.
func ParseImport(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		value, count := splitCount(line)
		for i := 0; i < count; i++ {
			out = append(out, value)
		}
	}
	return out, sc.Err()
}

// ParseImportString is ParseImport for in-memory text.
func ParseImportString(s string) []string {
	out, _ := ParseImport(strings.NewReader(s))
	return out
}

func splitCount(line string) (string, int) {
	i := strings.LastIndexByte(line, ':')
	if i <= 0 {
		return line, 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[i+1:]))
	if err != nil {
		return line, 1
	}
	value := strings.TrimSpace(line[:i])
	if value == "" {
		return line, 1
	}
	if n < 0 {
		n = 0
	}
	if n > maxExpand {
		n = maxExpand
	}
	return value, n
}
