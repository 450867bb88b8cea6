package config

import (
	"fmt"
	"sort"
)

// AliasIndex is the inverse of the canonical-command -> aliases table:
// a single map from any invocable token (canonical name or alias) to the
// canonical command name. Built once at startup so resolution is O(1)
// and duplicate alias registration is a construction-time error rather
// than a silent first-match.
type AliasIndex struct {
	byToken map[string]string
}

// BuildAliasIndex inverts the alias table. It fails if an alias string is
// registered under two different canonical commands, or if an alias
// collides with a canonical command name.
func BuildAliasIndex(aliases map[string][]string) (*AliasIndex, error) {
	idx := &AliasIndex{byToken: make(map[string]string)}

	// Canonical names always resolve to themselves.
	for canonical := range aliases {
		idx.byToken[canonical] = canonical
	}

	// Deterministic iteration so error messages are stable.
	canonicals := make([]string, 0, len(aliases))
	for canonical := range aliases {
		canonicals = append(canonicals, canonical)
	}

	sort.Strings(canonicals)

	for _, canonical := range canonicals {
		for _, alias := range aliases[canonical] {
			if existing, ok := idx.byToken[alias]; ok && existing != canonical {
				return nil, fmt.Errorf("config: alias %q registered under both %q and %q", alias, existing, canonical)
			}

			idx.byToken[alias] = canonical
		}
	}

	return idx, nil
}

// Resolve maps a token to its canonical command name. ok is false when the
// token matches neither a canonical name nor an alias.
func (idx *AliasIndex) Resolve(token string) (canonical string, ok bool) {
	canonical, ok = idx.byToken[token]
	return canonical, ok
}

// AliasesFor returns the alias strings (excluding the canonical name
// itself) registered for a canonical command, in sorted order.
func (idx *AliasIndex) AliasesFor(canonical string) []string {
	var out []string

	for token, target := range idx.byToken {
		if target == canonical && token != canonical {
			out = append(out, token)
		}
	}

	sort.Strings(out)

	return out
}
