package protocol

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"pangalink/entity"
	"pangalink/internal/validate"
)

// validator collects the outcome of the field rules of a single message.
// Rules return an error message or an empty string, and may add warnings.
type validator struct {
	bank     *entity.Bank
	now      time.Time
	errors   []entity.Issue
	warnings []entity.Issue
}

func newValidator(bank *entity.Bank, now time.Time) *validator {
	return &validator{bank: bank, now: now}
}

func (v *validator) fail(field, value, message string) {
	v.errors = append(v.errors, entity.Issue{Field: field, Value: value, Message: message})
}

func (v *validator) warn(field, value, message string) {
	v.warnings = append(v.warnings, entity.Issue{Field: field, Value: value, Message: message})
}

func (v *validator) result() entity.Result {
	return entity.NewResult(v.errors, v.warnings)
}

// record stores a rule outcome. A valid value longer than the bank limit
// declared under limitKey gets a warning. It reports whether the value passed
// without remarks.
func (v *validator) record(field, value, message, limitKey string) bool {
	if message != "" {
		v.fail(field, value, message)
		return false
	}
	limit := v.bank.MaxLength(limitKey)
	if n := utf8.RuneCountInString(value); limit > 0 && n > limit {
		v.warn(field, value, fmt.Sprintf("field %s is %d characters long, allowed is %d", field, n, limit))
		return false
	}
	return true
}

// pattern applies the bank specific regular expression of a field.
func (v *validator) pattern(field, value string) {
	expr, ok := v.bank.FieldRegex[field]
	if !ok || expr == "" {
		return
	}
	re, err := regexp.Compile(expr)
	if err != nil || !re.MatchString(value) {
		v.fail(field, value, fmt.Sprintf("field %s contains invalid characters", field))
	}
}

// account checks a receiver account number. When it is not an IBAN the
// domestic number is reconstructed to suggest the IBAN it should be.
func (v *validator) account(field, value string) string {
	if validate.IsValidIBAN(value) {
		return ""
	}
	country := v.bank.CountryCode()
	message := fmt.Sprintf("account number %s (%q) does not match the IBAN format", field, value)
	if clen := validate.IBANLength(country) - 6; clen > 0 {
		runes := []rune(value)
		if len(runes) > clen {
			runes = runes[len(runes)-clen:]
		}
		bban := v.bank.BBANPrefix() + strings.Repeat("0", clen-len(runes)) + string(runes)
		if iban, err := validate.FromBBAN(country, bban); err == nil {
			message = fmt.Sprintf("account number %s (%q) does not match the IBAN format (should be %q)", field, value, iban)
		}
	}
	if v.bank.ForceIban {
		return message
	}
	v.warn(field, value, message)
	return ""
}

// reference checks the 7-3-1 check digit of an optional reference number.
func (v *validator) reference(field, value string) string {
	if value == "" {
		return ""
	}
	if len(value) < 2 || !validate.IsDigits(value) {
		return fmt.Sprintf("reference number %s (%q) must be a number of at least two digits", field, value)
	}
	expected, _ := validate.ReferenceCode(value[:len(value)-1])
	if expected != value {
		return fmt.Sprintf("reference number %s is invalid: expected %q, actual %q", field, expected, value)
	}
	return ""
}

var amountPattern = regexp.MustCompile(`^\d*(\.\d{1,2})?$`)

func (v *validator) amount(field, value string) string {
	if value == "" {
		return fmt.Sprintf("payment amount %s must be set", field)
	}
	if !amountPattern.MatchString(value) {
		return fmt.Sprintf("payment amount %s (%q) must be formatted as \"123.45\"", field, value)
	}
	return ""
}

// charset checks a charset declaration against the bank profile.
func (v *validator) charset(field, value, fallback string) string {
	allowed := v.bank.AllowedCharsets
	def := v.bank.DefaultCharset
	if def == "" {
		def = fallback
	}
	if len(allowed) == 0 {
		allowed = []string{def}
	}
	for _, c := range allowed {
		if strings.EqualFold(c, value) {
			return ""
		}
	}
	return fmt.Sprintf("charset parameter %s (%q) can be %s", field, value, choices(allowed, def))
}

// choices renders "a, b or c", marking the default value.
func choices(list []string, def string) string {
	marked := make([]string, len(list))
	for i, item := range list {
		marked[i] = item
		if def != "" && item == def {
			marked[i] += " (default)"
		}
	}
	if len(marked) < 2 {
		return strings.Join(marked, "")
	}
	return strings.Join(marked[:len(marked)-1], ", ") + " or " + marked[len(marked)-1]
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
