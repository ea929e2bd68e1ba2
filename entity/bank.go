// Package entity defines data models for the pangalink banklink simulator.
package entity

import "strings"

// Protocol families
const (
	FamilyIPizza  = "ipizza"
	FamilySolo    = "solo"
	FamilyAAB     = "aab"
	FamilySamlink = "samlink"
	FamilyEC      = "ec"
)

// Bank is a static bank profile. One profile exists per supported bank and it
// is never modified after startup.
type Bank struct {
	Key             string            `yaml:"key" json:"key"`
	Name            string            `yaml:"name" json:"name"`
	Type            string            `yaml:"type" json:"type"`
	ID              string            `yaml:"id" json:"id"`
	AccountNr       string            `yaml:"account_nr" json:"account_nr"`
	Prefix          string            `yaml:"prefix" json:"prefix"`
	Country         string            `yaml:"country" json:"country"`
	DefaultCharset  string            `yaml:"default_charset" json:"default_charset"`
	AllowedCharsets []string          `yaml:"allowed_charsets" json:"allowed_charsets"`
	CharsetField    string            `yaml:"charset_field" json:"charset_field"`
	ForceCharset    string            `yaml:"force_charset" json:"force_charset,omitempty"`
	ReturnAddress   string            `yaml:"return_address" json:"return_address"`
	CancelAddress   string            `yaml:"cancel_address" json:"cancel_address"`
	RejectAddress   string            `yaml:"reject_address" json:"reject_address"`
	ReturnMethod    string            `yaml:"return_method" json:"return_method"`
	FieldLength     map[string]int    `yaml:"field_length" json:"field_length,omitempty"`
	FieldRegex      map[string]string `yaml:"field_regex" json:"field_regex,omitempty"`
	AllowedServices []string          `yaml:"allowed_services" json:"allowed_services,omitempty"`
	UseVKPank       bool              `yaml:"use_vk_pank" json:"use_vk_pank"`
	UseVKTimeLimit  bool              `yaml:"use_vk_time_limit" json:"use_vk_time_limit"`
	ForceIban       bool              `yaml:"force_iban" json:"force_iban"`
	DisallowQuery   bool              `yaml:"disallow_query_params" json:"disallow_query_params"`
	AllowGet        bool              `yaml:"allow_get" json:"allow_get"`
	UTF8Length      string            `yaml:"utf8_length" json:"utf8_length,omitempty"`
}

// AllowsCharset reports whether the bank accepts the charset, case-insensitively.
func (b *Bank) AllowsCharset(charset string) bool {
	for _, c := range b.AllowedCharsets {
		if strings.EqualFold(c, charset) {
			return true
		}
	}
	return false
}

// AllowsService reports whether the service code is enabled for the bank.
// An empty list enables every service the protocol knows.
func (b *Bank) AllowsService(service string) bool {
	if len(b.AllowedServices) == 0 {
		return true
	}
	for _, s := range b.AllowedServices {
		if s == service {
			return true
		}
	}
	return false
}

// MaxLength returns the declared length limit for a field, zero if none.
func (b *Bank) MaxLength(field string) int {
	if b.FieldLength == nil {
		return 0
	}
	return b.FieldLength[field]
}

// ResponseMethod is the HTTP method used to return the customer to the merchant.
func (b *Bank) ResponseMethod() string {
	if b.ReturnMethod == "" {
		return "POST"
	}
	return strings.ToUpper(b.ReturnMethod)
}

// BBANPrefix is the prefix used when reconstructing a domestic account number.
func (b *Bank) BBANPrefix() string {
	if b.Prefix == "" {
		return "99"
	}
	return b.Prefix
}

// CountryCode of the bank, EE when not set.
func (b *Bank) CountryCode() string {
	if b.Country == "" {
		return "EE"
	}
	return b.Country
}
