package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const monthNames = `jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec`

// datePattern finds the first date token in a line:
// DD/MM/YY[YY] (any of / - .), YYYY/MM/DD, or DD Mon[ YY[YY]].
var datePattern = regexp.MustCompile(
	`(?i)\b(\d{2}[/\-.]\d{2}[/\-.]\d{2,4}|\d{4}[/\-.]\d{2}[/\-.]\d{2}|\d{2}\s?(?:` + monthNames + `)\s?\d{2,4}|\d{2}\s?(?:` + monthNames + `))\b`,
)

var (
	monthDatePattern = regexp.MustCompile(`(?i)^(\d{2})\s?([a-z]{3})\s?(\d{2,4})?$`)
	fullDatePattern  = regexp.MustCompile(`^(?:\d{2}[/\-.]\d{2}[/\-.]\d{2,4}|\d{4}[/\-.]\d{2}[/\-.]\d{2})$`)
)

var monthIndex = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// YearAssumedWarning is emitted once per date whose year had to be guessed.
const YearAssumedWarning = "Year missing or unclear; assumed current year."

// NormalizedDate is an ISO date plus whether its year was inferred.
type NormalizedDate struct {
	Date    string
	Guessed bool
}

// DateNormalizer turns raw date tokens into ISO dates. Now supplies the
// current year for tokens without one; nil means time.Now.
type DateNormalizer struct {
	Now func() time.Time
}

func (n DateNormalizer) currentYear() int {
	if n.Now != nil {
		return n.Now().Year()
	}
	return time.Now().Year()
}

// FindDate returns the first date token in line and the byte offset just past it.
func FindDate(line string) (string, int, bool) {
	loc := datePattern.FindStringSubmatchIndex(line)
	if loc == nil {
		return "", 0, false
	}
	return line[loc[2]:loc[3]], loc[1], true
}

// IsDate reports whether s, trimmed, is exactly one date token.
func IsDate(s string) bool {
	s = strings.TrimSpace(s)
	return fullDatePattern.MatchString(s) || isMonthDate(s)
}

func isMonthDate(s string) bool {
	m := monthDatePattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	_, ok := monthIndex[strings.ToLower(m[2])]
	return ok
}

// Normalize converts a token found by FindDate into YYYY-MM-DD.
func (n DateNormalizer) Normalize(raw string) NormalizedDate {
	trimmed := strings.Join(strings.Fields(raw), " ")
	if m := monthDatePattern.FindStringSubmatch(trimmed); m != nil {
		return n.normalizeMonthName(m[1], m[2], m[3])
	}

	cleaned := strings.NewReplacer(".", "/", "-", "/").Replace(trimmed)
	parts := strings.Split(cleaned, "/")
	if len(parts) != 3 {
		return NormalizedDate{Date: trimmed}
	}
	if len(parts[0]) == 4 {
		return NormalizedDate{Date: parts[0] + "-" + parts[1] + "-" + parts[2]}
	}

	year, guessed := parts[2], false
	switch len(year) {
	case 2:
		year = "20" + year
	case 3:
		y, _ := strconv.Atoi(year)
		year, guessed = strconv.Itoa(2000+y%100), true
	}
	return NormalizedDate{Date: year + "-" + parts[1] + "-" + parts[0], Guessed: guessed}
}

func (n DateNormalizer) normalizeMonthName(dayText, monthText, yearText string) NormalizedDate {
	current := n.currentYear()
	day, _ := strconv.Atoi(dayText)
	month := monthIndex[strings.ToLower(monthText)]

	guessed := false
	year, err := strconv.Atoi(yearText)
	switch {
	case err != nil:
		year, guessed = current, true
	case year < 100:
		year += 2000
	case year < 1000:
		year, guessed = 2000+year%100, true
	}
	// OCR regularly corrupts years into the future.
	if year > current+1 {
		year, guessed = current, true
	}

	return NormalizedDate{Date: fmt.Sprintf("%04d-%02d-%02d", year, month, day), Guessed: guessed}
}
