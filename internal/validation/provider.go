// Package validation checks identifiers taken from request paths.
package validation

import "regexp"

// Provider names are lowercase, start with a letter and may contain digits,
// "_" and "-". Length 1..32.
var providerNameRe = regexp.MustCompile(`^[a-z](?:[a-z0-9_-]{0,31})$`)

// ValidProviderName reports whether name can identify a registered provider.
func ValidProviderName(name string) bool {
	return providerNameRe.MatchString(name)
}
