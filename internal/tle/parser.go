package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const lineLength = 69

// Parse reads NORAD element sets from r. Both the three-line form (a name
// line before each pair) and bare two-line pairs are accepted, and may be
// mixed. Records with a bad checksum, mismatched catalog numbers or an
// unreadable epoch are skipped with a warning.
func Parse(r io.Reader, logger *slog.Logger) ([]ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var sets []ElementSet
	for i := 0; i < len(lines); {
		var name string
		if !isElementLine(lines[i], '1') {
			name = strings.TrimSpace(strings.TrimPrefix(lines[i], "0 "))
			i++
		}
		if i+1 >= len(lines) || !isElementLine(lines[i], '1') || !isElementLine(lines[i+1], '2') {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			// Resynchronise on the next line.
			if name == "" {
				i++
			}
			continue
		}
		line1, line2 := lines[i], lines[i+1]
		i += 2

		es, err := parsePair(name, line1, line2)
		if err != nil {
			logger.Warn("skipping TLE entry", "name", name, "error", err)
			continue
		}
		sets = append(sets, es)
	}

	return sets, nil
}

func isElementLine(line string, n byte) bool {
	return len(line) >= 2 && line[0] == n && line[1] == ' '
}

func parsePair(name, line1, line2 string) (ElementSet, error) {
	if len(line1) != lineLength || len(line2) != lineLength {
		return ElementSet{}, fmt.Errorf("line lengths %d/%d, expected %d", len(line1), len(line2), lineLength)
	}
	if !ValidChecksum(line1) {
		return ElementSet{}, fmt.Errorf("line 1 checksum mismatch")
	}
	if !ValidChecksum(line2) {
		return ElementSet{}, fmt.Errorf("line 2 checksum mismatch")
	}

	// Catalog number, cols 3-7.
	noradStr := strings.TrimSpace(line1[2:7])
	if other := strings.TrimSpace(line2[2:7]); other != noradStr {
		return ElementSet{}, fmt.Errorf("catalog number %q on line 1, %q on line 2", noradStr, other)
	}
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return ElementSet{}, fmt.Errorf("invalid NORAD ID %q: %w", noradStr, err)
	}

	// Epoch, cols 19-32.
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return ElementSet{}, err
	}

	return ElementSet{
		NORADID: noradID,
		Name:    name,
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
	}, nil
}

// ValidChecksum reports whether the last column of an element line matches
// the modulo-10 sum of its digits, with each minus sign counting as 1.
func ValidChecksum(line string) bool {
	if len(line) < lineLength {
		return false
	}
	sum := 0
	for i := 0; i < lineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	last := line[lineLength-1]
	return last >= '0' && last <= '9' && int(last-'0') == sum%10
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
