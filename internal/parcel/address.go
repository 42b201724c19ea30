package parcel

import (
	"regexp"
	"strings"
	"unicode"

	"parcelworks/internal/model"
)

var zipRe = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)

// ParseAddress splits a raw portal address blob into street, city,
// state, and ZIP. Portals render addresses as one to three lines in no
// consistent order, so the parser peels off the unambiguous pieces
// first (ZIP, then a trailing two-letter state) and splits what is left
// on commas. Fields it cannot find stay empty; nothing is guessed.
func ParseAddress(raw string) model.Address {
	var addr model.Address

	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", ",")
	s = strings.TrimSpace(s)
	if s == "" {
		return addr
	}

	if loc := zipRe.FindStringIndex(s); loc != nil {
		addr.Zip = s[loc[0]:loc[1]]
		s = strings.TrimSpace(s[:loc[0]] + s[loc[1]:])
	}

	s = strings.TrimRight(s, " ,")
	if state, rest, ok := trailingState(s); ok {
		addr.State = state
		s = rest
	}

	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	switch {
	case len(parts) >= 2:
		addr.Street = parts[0]
		addr.City = parts[len(parts)-1]
	case len(parts) == 1:
		// A single remaining token is the city: portals always render
		// the locality line, while the street line is the one omitted.
		addr.City = parts[0]
	}

	return addr
}

// trailingState strips a two-letter alphabetic token off the end of s,
// returning the token upper-cased and the remainder.
func trailingState(s string) (state, rest string, ok bool) {
	idx := strings.LastIndexAny(s, " ,")
	token := s[idx+1:]
	if len(token) != 2 || !isAlpha(token) {
		return "", s, false
	}
	if idx < 0 {
		return strings.ToUpper(token), "", true
	}
	return strings.ToUpper(token), s[:idx], true
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}
