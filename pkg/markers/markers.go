// Package markers reads and writes the payment facts embedded in a contract's
// notes text.
//
// A partial payment is written as [PARTIAL_PAID:<index>:<amount>] where index
// is the 0-based installment index. Markers are only ever appended; several
// markers for the same index add up.
package markers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	partialPrefix = "PARTIAL_PAID"
	// Historical flags a contract imported as pre-existing debt.
	Historical = "[HISTORICAL_CONTRACT]"
)

var (
	markerRe = regexp.MustCompile(`\[PARTIAL_PAID:([^:\]]*):([^\]]*)\]`)
	anyRe    = regexp.MustCompile(`\[(PARTIAL_PAID:[^\]]*|HISTORICAL_CONTRACT)\]`)
	// stripRe also takes the spaces or tabs that join a marker to the text.
	stripRe  = regexp.MustCompile(`[ \t]*\[(PARTIAL_PAID:[^\]]*|HISTORICAL_CONTRACT)\]`)
)

// Decode returns the cumulative amount paid per installment index. Fragments
// that do not parse are skipped.
func Decode(notes string) map[int]decimal.Decimal {
	paid := make(map[int]decimal.Decimal)
	for _, m := range markerRe.FindAllStringSubmatch(notes, -1) {
		idx, err := strconv.Atoi(strings.TrimSpace(m[1]))
		if err != nil || idx < 0 {
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(m[2]))
		if err != nil || amount.IsNegative() {
			continue
		}
		paid[idx] = paid[idx].Add(amount)
	}
	return paid
}

// Encode renders a single marker.
func Encode(index int, amount decimal.Decimal) string {
	return fmt.Sprintf("[%s:%d:%s]", partialPrefix, index, amount.String())
}

// Append adds a marker to the end of notes without touching existing text.
func Append(notes string, index int, amount decimal.Decimal) string {
	return join(notes, Encode(index, amount))
}

// IsHistorical reports whether notes carry the historical contract marker.
func IsHistorical(notes string) bool {
	return strings.Contains(notes, Historical)
}

// MarkHistorical adds the historical marker once.
func MarkHistorical(notes string) string {
	if IsHistorical(notes) {
		return notes
	}
	return join(notes, Historical)
}

// Strip returns notes with every marker removed, for display. Line breaks
// in the free text are kept.
func Strip(notes string) string {
	return strings.TrimSpace(stripRe.ReplaceAllString(notes, ""))
}

// Replace swaps the free text of notes for text while keeping every marker
// notes already carries. Markers present in text itself are dropped.
func Replace(notes, text string) string {
	out := Strip(text)
	for _, m := range anyRe.FindAllString(notes, -1) {
		out = join(out, m)
	}
	return out
}

func join(notes, marker string) string {
	if notes == "" {
		return marker
	}
	if strings.HasSuffix(notes, "\n") || strings.HasSuffix(notes, " ") {
		return notes + marker
	}
	return notes + " " + marker
}
