package retention

import (
	"fmt"
	"strings"
)

// Rule expires blobs of a MIME type glob, optionally restricted to blobs
// owned by at least one of Pubkeys.
type Rule struct {
	// Type is a glob over MIME types; '*' matches any run of characters.
	Type string

	// Pubkeys restricts the rule to blobs with one of these owners. Empty
	// matches every blob of the type.
	Pubkeys []string

	Expiration Expiration
}

// ParseRule builds a Rule from its configured form.
func ParseRule(typ, expiration string, pubkeys []string) (Rule, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return Rule{}, fmt.Errorf("rule type is required")
	}

	exp, err := ParseExpiration(expiration)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", typ, err)
	}

	var keys []string
	for _, pk := range pubkeys {
		if pk = strings.TrimSpace(pk); pk != "" {
			keys = append(keys, pk)
		}
	}

	return Rule{Type: typ, Pubkeys: keys, Expiration: exp}, nil
}

func (r Rule) String() string {
	if len(r.Pubkeys) == 0 {
		return fmt.Sprintf("type=%s expiration=%s", r.Type, r.Expiration)
	}
	return fmt.Sprintf("type=%s pubkeys=%d expiration=%s", r.Type, len(r.Pubkeys), r.Expiration)
}
