package user

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/learninghub/core"
)

// strong password policy, applied to accounts created from the admin CLI
var (
	pwdMinLen     = 8
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceText    = "password must not contain whitespace"
	pwdNotAllNumText  = "password cannot be entirely numeric"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimText = "password cannot be similar to user attributes"

	commonPasswords = map[string]struct{}{
		"password": {}, "password1": {}, "password123": {}, "p@ssw0rd": {}, "passw0rd!": {},
		"qwerty123": {}, "qwerty123!": {}, "welcome1": {}, "welcome123!": {}, "admin123": {},
		"admin@123": {}, "letmein1!": {}, "iloveyou1": {}, "12345678": {}, "abc12345": {},
	}
	pwdNoCommonText = "password is too common"
)

// CheckPasswordStrength applies the strong password policy to pwd:
//   - minLen: 8
//   - no whitespace
//   - not all numeric
//   - complexity: 1 upper, 1 lower, 1 digit, 1 special
//   - not similar to any of attrs (email, full name...)
//   - not a common password
func CheckPasswordStrength(pwd string, attrs ...string) error {
	reportErr := func(text string) error {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: text})
	}

	var (
		digitCount                             int
		hasUpper, hasLower, hasDig, hasSpecial bool
	)

	runes := []rune(pwd)
	if len(runes) < pwdMinLen {
		return reportErr(pwdMinLenText)
	}
	for _, char := range runes {
		if unicode.IsSpace(char) {
			return reportErr(pwdNoSpaceText)
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == len(runes) {
		return reportErr(pwdNotAllNumText)
	}

	hasDig = digitCount > 0
	hasSpecial = specialRegex.MatchString(pwd)
	if !(hasUpper && hasLower && hasDig && hasSpecial) {
		return reportErr(pwdComplexityText)
	}

	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if similarity(lpwd, strings.ToLower(attr)) >= pwdMaxSim {
			return reportErr(pwdAttrSimText)
		}
	}

	if _, ok := commonPasswords[lpwd]; ok {
		return reportErr(pwdNoCommonText)
	}
	return nil
}

func similarity(pwd, attr string) float64 {
	if attr == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(pwd, ""), strings.Split(attr, "")).QuickRatio()
}
