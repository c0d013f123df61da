// Package validation provides input validation shared by the config layers.
package validation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// ObjectNameRules returns the rules for storage object names. Names become
// file names on the dir medium.
func ObjectNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    64,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateObjectName validates a storage object name.
func ValidateObjectName(name string) error {
	return ValidateName(name, ObjectNameRules())
}

// =============================================================================
// OID Validation
// =============================================================================

// ValidateOID checks a numeric SNMP object identifier such as
// "1.3.6.1.4.1.2021.13.16.2.1.3.1". A leading dot is accepted.
func ValidateOID(oid string) error {
	s := strings.TrimPrefix(oid, ".")
	if s == "" {
		return fmt.Errorf("OID is empty")
	}

	arcs := strings.Split(s, ".")
	if len(arcs) < 2 {
		return fmt.Errorf("OID %q needs at least two arcs", oid)
	}
	for i, arc := range arcs {
		if arc == "" {
			return fmt.Errorf("OID %q has an empty arc at position %d", oid, i)
		}
		if _, err := strconv.ParseUint(arc, 10, 32); err != nil {
			return fmt.Errorf("OID %q has a non-numeric arc %q", oid, arc)
		}
	}
	if first := arcs[0]; first != "0" && first != "1" && first != "2" {
		return fmt.Errorf("OID %q must start with 0, 1 or 2", oid)
	}
	return nil
}

// NormalizeOID returns oid without its leading dot.
func NormalizeOID(oid string) string {
	return strings.TrimPrefix(oid, ".")
}
