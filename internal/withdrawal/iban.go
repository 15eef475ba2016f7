package withdrawal

import "strings"

// NormalizeIBAN strips spaces and uppercases so equivalent user inputs
// persist and validate identically.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
}
