package phone

import (
	"bytes"
	"encoding/csv"
	"io"
	"regexp"
	"strings"
)

// Only Twilio's magic test range is ever dialed. Anything that looks like a
// real subscriber number is refused before a record is created.
const TestPrefix = "+1500"

var (
	indianNumberRegex = regexp.MustCompile(`^(?:\+91|0)?([6-9]\d{9})$`)
	nonDialCharRegex  = regexp.MustCompile(`[^\d\+]`)
	ansiEscapeRegex   = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)
	splitRegex        = regexp.MustCompile(`[,\n; ]+`)
)

// ValidationResult is the verdict of the allow-list gate for one candidate.
type ValidationResult struct {
	Number string
	Valid  bool
	Reason string
}

// Normalize strips separators and canonicalizes prefixes so that the gate
// always sees one consistent representation. It never fails; garbage in,
// garbage (still a string) out, for Validate to reject.
func Normalize(raw string) string {
	number := nonDialCharRegex.ReplaceAllString(strings.TrimSpace(raw), "")
	if strings.HasPrefix(number, "00") {
		number = "+" + number[2:]
	}
	if strings.HasPrefix(number, "0") && !strings.HasPrefix(number, "+") {
		number = number[1:]
	}
	if strings.HasPrefix(number, "91") && len(number) == 12 {
		number = "+" + number
	}
	if strings.HasPrefix(number, "+") && len(number) > 1 {
		return number
	}
	if len(number) == 10 {
		return "+91" + number
	}
	return number
}

// Validate applies the allow-list gate to an already-normalized candidate.
// Numbers matching a real regional pattern get a distinct safety reason so the
// operator can tell "refused on purpose" apart from "unparseable".
func Validate(number string) ValidationResult {
	if strings.HasPrefix(number, TestPrefix) {
		return ValidationResult{Number: number, Valid: true}
	}

	if m := indianNumberRegex.FindStringSubmatch(number); m != nil {
		return ValidationResult{
			Number: "+91" + m[1],
			Valid:  false,
			Reason: "Indian numbers detected. Autodialer only places calls to Twilio test numbers (starting with +1500...) for safety.",
		}
	}

	return ValidationResult{
		Number: number,
		Valid:  false,
		Reason: "Invalid phone number format. Provide Twilio test numbers e.g. +15005550006.",
	}
}

// ParseText splits a textarea block into normalized candidate numbers.
func ParseText(value string) []string {
	var out []string
	for _, token := range splitRegex.Split(strings.TrimSpace(value), -1) {
		if strings.TrimSpace(token) == "" {
			continue
		}
		if n := Normalize(token); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ParseCSV extracts the first column of each row as a candidate number.
// Rows that fail to parse are ignored; an upload is best-effort by design.
func ParseCSV(content []byte) []string {
	if len(content) == 0 {
		return nil
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1

	var out []string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(row) == 0 {
			continue
		}
		if n := Normalize(row[0]); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// UniquePreserveOrder deduplicates numbers keeping the first occurrence.
func UniquePreserveOrder(numbers []string) []string {
	seen := make(map[string]struct{}, len(numbers))
	var out []string
	for _, n := range numbers {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Limit truncates the batch to at most max entries, keeping the earliest.
func Limit(numbers []string, max int) []string {
	if max <= 0 || len(numbers) <= max {
		return numbers
	}
	return numbers[:max]
}

// StripANSI removes terminal escape sequences from provider error text
// before it is persisted.
func StripANSI(value string) string {
	if value == "" {
		return value
	}
	return ansiEscapeRegex.ReplaceAllString(value, "")
}
