package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	RgxEmail = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+\\/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")

	RgxPhoneNumber = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

	// Turkish IBAN: "TR" followed by 24 digits, 26 characters in total.
	RgxIBAN = regexp.MustCompile(`^TR\d{24}$`)

	RgxOtpCode = regexp.MustCompile(`^\d{6}$`)
)

func NotBlank(value string) bool {
	return strings.TrimSpace(value) != ""
}

func MinRunes(value string, n int) bool {
	return utf8.RuneCountInString(value) >= n
}

func MaxRunes(value string, n int) bool {
	return utf8.RuneCountInString(value) <= n
}

func Matches(value string, rx *regexp.Regexp) bool {
	return rx.MatchString(value)
}

func IsEmail(value string) bool {
	return len(value) <= 254 && RgxEmail.MatchString(value)
}
