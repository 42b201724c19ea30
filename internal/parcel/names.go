package parcel

import (
	"regexp"
	"strings"
)

// Owner-name handling for document file naming. County records mix
// personal names ("SMITH, JANE A"), businesses ("ACME HOLDINGS LLC"),
// and public bodies ("CITY OF SPRINGVILLE"); the stub is the shortest
// piece that still identifies the owner in a directory listing.

// entityWords mark an owner as an organization when they appear
// anywhere in the name as a whole word.
var entityWords = map[string]bool{
	"LLC": true, "INC": true, "CORP": true, "CO": true, "COMPANY": true,
	"TRUST": true, "BANK": true, "CITY": true, "TOWN": true, "COUNTY": true,
	"SCHOOL": true, "CHURCH": true, "ASSOCIATION": true, "AUTHORITY": true,
}

// entitySuffixes are legal-form tokens dropped from the end of an
// organization name. Leading words like CITY or COUNTY are part of the
// identity and stay.
var entitySuffixes = map[string]bool{
	"LLC": true, "L.L.C": true, "INC": true, "CORP": true, "CO": true,
	"COMPANY": true, "TRUST": true, "LTD": true,
}

var unsafeFileChars = regexp.MustCompile(`[^\w\-.]+`)
var canonicalKeyRe = regexp.MustCompile(`\d{2}-\d{2}-\d{2}-`)

// OwnerStub reduces an owner name to a filename-safe stub: surname for
// personal names, suffix-stripped name for organizations, UNKNOWN when
// empty.
func OwnerStub(owner string) string {
	name := strings.ToUpper(strings.TrimSpace(owner))
	if name == "" {
		return "UNKNOWN"
	}

	fields := strings.Fields(name)
	if isEntity(fields) {
		kept := fields
		for len(kept) > 1 && entitySuffixes[trimToken(kept[len(kept)-1])] {
			kept = kept[:len(kept)-1]
		}
		stub := strings.Trim(strings.Join(kept, " "), " .,&")
		if stub == "" {
			stub = name
		}
		return SafeFileName(stub)
	}

	if i := strings.Index(name, ","); i >= 0 {
		if surname := strings.TrimSpace(name[:i]); surname != "" {
			return SafeFileName(surname)
		}
	}
	return SafeFileName(fields[len(fields)-1])
}

func isEntity(fields []string) bool {
	for _, f := range fields {
		if entityWords[trimToken(f)] {
			return true
		}
	}
	return false
}

func trimToken(tok string) string {
	return strings.Trim(tok, ".,&")
}

// SafeFileName collapses everything outside [word, dash, dot] into
// single underscores and caps the length so stubs plus parcel ids stay
// inside filesystem limits.
func SafeFileName(s string) string {
	out := unsafeFileChars.ReplaceAllString(strings.TrimSpace(s), "_")
	out = strings.Trim(out, "_")
	if len(out) > 180 {
		out = out[:180]
	}
	return out
}

// DocumentFileName names a downloaded property record card.
func DocumentFileName(owner, parcelID string) string {
	return OwnerStub(owner) + "_" + SafeFileName(parcelID) + ".pdf"
}

// CanonicalKey normalizes a parcel identifier for joining: county
// exports prefix the state code and taxing-unit digits, so the key
// starts at the first section-township-range group (dd-dd-dd-). An
// identifier without that shape passes through unchanged.
func CanonicalKey(id string) string {
	if loc := canonicalKeyRe.FindStringIndex(id); loc != nil {
		return id[loc[0]:]
	}
	return id
}
