package services

import "strings"

// scopeSet parses a space-delimited scope string into a set.
func scopeSet(scopes string) map[string]bool {
	set := make(map[string]bool)
	for s := range strings.FieldsSeq(scopes) {
		set[s] = true
	}
	return set
}

// scopeSubset reports whether every scope in requested is present in granted.
// An empty requested string is a subset of anything.
func scopeSubset(requested, granted string) bool {
	grantedSet := scopeSet(granted)
	for s := range strings.FieldsSeq(requested) {
		if !grantedSet[s] {
			return false
		}
	}
	return true
}

// hasScope reports whether the space-delimited scope string contains name.
func hasScope(scopes, name string) bool {
	for s := range strings.FieldsSeq(scopes) {
		if s == name {
			return true
		}
	}
	return false
}
