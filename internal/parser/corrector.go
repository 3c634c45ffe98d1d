package parser

import (
	"strings"
	"sync"
)

// Substitution replaces a glyph OCR confuses with a digit, but only where the
// glyph touches a digit, so ordinary words are left alone.
type Substitution struct {
	From rune
	To   rune
}

// Profile is a bank-specific set of OCR substitutions. Key is matched
// case-insensitively as a substring of the bank name.
type Profile struct {
	Key   string
	Rules []Substitution
}

// DefaultProfiles are the correction profiles known out of the box.
var DefaultProfiles = []Profile{
	{
		Key: "absa",
		Rules: []Substitution{
			{From: 'O', To: '0'},
			{From: 'I', To: '1'},
			{From: 'S', To: '5'},
		},
	},
}

// Corrector cleans raw OCR text before it is split into lines.
type Corrector struct {
	mu       sync.RWMutex
	profiles []Profile
}

// NewCorrector returns a corrector loaded with profiles.
func NewCorrector(profiles ...Profile) *Corrector {
	c := &Corrector{}
	for _, p := range profiles {
		c.Register(p)
	}
	return c
}

// Register adds a profile. Later registrations win over earlier ones with the same key.
func (c *Corrector) Register(p Profile) {
	p.Key = strings.ToLower(strings.TrimSpace(p.Key))
	if p.Key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.profiles {
		if c.profiles[i].Key == p.Key {
			c.profiles[i] = p
			return
		}
	}
	c.profiles = append(c.profiles, p)
}

// ProfileFor returns the profile whose key appears in bankName.
func (c *Corrector) ProfileFor(bankName string) (Profile, bool) {
	name := strings.ToLower(bankName)
	if strings.TrimSpace(name) == "" {
		return Profile{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.profiles {
		if strings.Contains(name, p.Key) {
			return p, true
		}
	}
	return Profile{}, false
}

// Correct re-joins digit runs split across line breaks, then applies the
// profile matching bankName, if any.
func (c *Corrector) Correct(text, bankName string) string {
	out := joinSplitDigits(text)
	if c == nil {
		return out
	}
	if p, ok := c.ProfileFor(bankName); ok {
		out = applyRules(out, p.Rules)
	}
	return out
}

// joinSplitDigits drops any run of line breaks that sits between two digits.
func joinSplitDigits(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '\n' || r == '\r') && i > 0 && isASCIIDigit(runes[i-1]) {
			j := i
			for j < len(runes) && (runes[j] == '\n' || runes[j] == '\r') {
				j++
			}
			if j < len(runes) && isASCIIDigit(runes[j]) {
				i = j - 1
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func applyRules(text string, rules []Substitution) string {
	if len(rules) == 0 {
		return text
	}
	lookup := make(map[rune]rune, len(rules))
	for _, r := range rules {
		lookup[r.From] = r.To
	}

	// Neighbours are judged on the uncorrected text.
	src := []rune(text)
	out := make([]rune, len(src))
	copy(out, src)
	for i, r := range src {
		to, ok := lookup[r]
		if !ok {
			continue
		}
		before := i > 0 && isASCIIDigit(src[i-1])
		after := i+1 < len(src) && isASCIIDigit(src[i+1])
		if before || after {
			out[i] = to
		}
	}
	return string(out)
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
