// Package validate holds field rules shared by the banklink protocols.
package validate

import (
	"strconv"
)

var referenceWeights = [3]int{7, 3, 1}

// ReferenceCode appends the 7-3-1 check digit to base. It reports false for
// empty or non numeric input.
func ReferenceCode(base string) (string, bool) {
	if !IsDigits(base) {
		return "", false
	}
	sum := 0
	for i, mod := len(base)-1, 0; i >= 0; i, mod = i-1, mod+1 {
		sum += int(base[i]-'0') * referenceWeights[mod%3]
	}
	check := ((sum+9)/10)*10 - sum
	return base + strconv.Itoa(check), true
}

// ValidReference reports whether the last digit of code is its check digit.
func ValidReference(code string) bool {
	if len(code) < 2 {
		return false
	}
	expected, ok := ReferenceCode(code[:len(code)-1])
	return ok && expected == code
}

// IsDigits reports whether value is a non empty string of ASCII digits.
func IsDigits(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}
