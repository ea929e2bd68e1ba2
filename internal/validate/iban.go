package validate

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// ibanFormats describes BBAN structure per country: F is numeric, A alphanumeric
// and U uppercase letters, each followed by a two digit run length.
var ibanFormats = map[string]struct {
	length int
	format string
}{
	"AD": {24, "F04F04A12"},
	"AT": {20, "F05F11"},
	"BE": {16, "F03F07F02"},
	"BG": {22, "U04F04F02A08"},
	"CH": {21, "F05A12"},
	"CY": {28, "F03F05A16"},
	"CZ": {24, "F04F06F10"},
	"DE": {22, "F08F10"},
	"DK": {18, "F04F09F01"},
	"EE": {20, "F02F02F11F01"},
	"ES": {24, "F04F04F01F01F10"},
	"FI": {18, "F06F07F01"},
	"FO": {18, "F04F09F01"},
	"FR": {27, "F05F05A11F02"},
	"GB": {22, "U04F06F08"},
	"GI": {23, "U04A15"},
	"GL": {18, "F04F09F01"},
	"GR": {27, "F03F04A16"},
	"HR": {21, "F07F10"},
	"HU": {28, "F03F04F01F15F01"},
	"IE": {22, "U04F06F08"},
	"IS": {26, "F04F02F06F10"},
	"IT": {27, "U01F05F05A12"},
	"LI": {21, "F05A12"},
	"LT": {20, "F05F11"},
	"LU": {20, "F03A13"},
	"LV": {21, "U04A13"},
	"MC": {27, "F05F05A11F02"},
	"MT": {31, "U04F05A18"},
	"NL": {18, "U04F10"},
	"NO": {15, "F04F06F01"},
	"PL": {28, "F08F16"},
	"PT": {25, "F04F04F11F02"},
	"RO": {24, "U04A16"},
	"SE": {24, "F03F16F01"},
	"SI": {19, "F05F08F02"},
	"SK": {24, "F04F06F10"},
	"SM": {27, "U01F05F05A12"},
}

var (
	bbanPatterns = map[string]*regexp.Regexp{}
	patternsOnce sync.Once
	separators   = regexp.MustCompile(`[^A-Za-z0-9]`)
)

func compilePatterns() {
	for country, spec := range ibanFormats {
		var b strings.Builder
		b.WriteString("^")
		for i := 0; i+3 <= len(spec.format); i += 3 {
			class := "[0-9]"
			switch spec.format[i] {
			case 'A':
				class = "[0-9A-Za-z]"
			case 'U':
				class = "[A-Z]"
			}
			count, err := strconv.Atoi(spec.format[i+1 : i+3])
			if err != nil {
				panic(fmt.Sprintf("iban: bad format %q for %s", spec.format, country))
			}
			fmt.Fprintf(&b, "%s{%d}", class, count)
		}
		b.WriteString("$")
		bbanPatterns[country] = regexp.MustCompile(b.String())
	}
}

// IBANLength is the full IBAN length for a country, zero if unknown.
func IBANLength(country string) int {
	return ibanFormats[strings.ToUpper(country)].length
}

// ElectronicFormat strips separators and uppercases an account number.
func ElectronicFormat(value string) string {
	return strings.ToUpper(separators.ReplaceAllString(value, ""))
}

// PrintFormat groups an IBAN in blocks of four.
func PrintFormat(iban string) string {
	iban = ElectronicFormat(iban)
	var parts []string
	for len(iban) > 4 {
		parts = append(parts, iban[:4])
		iban = iban[4:]
	}
	parts = append(parts, iban)
	return strings.Join(parts, " ")
}

// IsValidBBAN checks the structure of a domestic account number.
func IsValidBBAN(country, bban string) bool {
	patternsOnce.Do(compilePatterns)
	pattern, ok := bbanPatterns[strings.ToUpper(country)]
	if !ok {
		return false
	}
	return pattern.MatchString(ElectronicFormat(bban))
}

// IsValidIBAN checks country structure and the mod 97 checksum.
func IsValidIBAN(value string) bool {
	value = ElectronicFormat(value)
	if len(value) < 5 {
		return false
	}
	country := value[:2]
	if IBANLength(country) != len(value) {
		return false
	}
	if !IsValidBBAN(country, value[4:]) {
		return false
	}
	return mod97(value[4:]+value[:4]) == 1
}

// FromBBAN builds an IBAN for a valid domestic account number.
func FromBBAN(country, bban string) (string, error) {
	country = strings.ToUpper(country)
	if !IsValidBBAN(country, bban) {
		return "", fmt.Errorf("invalid BBAN %q for %s", bban, country)
	}
	bban = ElectronicFormat(bban)
	check := 98 - mod97(bban+country+"00")
	return fmt.Sprintf("%s%02d%s", country, check, bban), nil
}

func mod97(value string) int64 {
	var digits strings.Builder
	for _, c := range value {
		switch {
		case c >= '0' && c <= '9':
			digits.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			fmt.Fprintf(&digits, "%d", c-'A'+10)
		}
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return -1
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64()
}
