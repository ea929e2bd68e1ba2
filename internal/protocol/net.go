package protocol

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pangalink/entity"
	"pangalink/internal/codec"
	"pangalink/internal/signature"
	"pangalink/internal/validate"
)

// Solo, AAB and Samlink messages share one engine: fields are named by a
// family prefix plus a base name, and the MAC is a keyed digest over values
// joined with "&".
const (
	netServiceIn  = "PAYMENT-IN"
	netServiceOut = "PAYMENT-OUT"
	soloPrefix    = "SOLOPMT_"
)

type netRule func(m *netMessage, v *validator) string

type netProfile struct {
	// prefix of request field names; Solo decides per message
	prefix          string
	versions        []string
	versionDigits   int
	defaultVersion  string
	currencies      []string
	languages       map[string]string
	defaultLanguage string
	// languageField is empty for families with a fixed language
	languageField   string
	defaultLangCode string
	uidField        string
	receiverName    string
	receiverAccount string
	fields          []string
	rules           []string
	in              map[string][]string
	out             map[string][]string
	returnKey       func(prefix, name string) string
	paidPrefix      string
	// callback is sent only when the project asks for it
	callback bool
}

var soloProfile = &netProfile{
	prefix:         soloPrefix,
	versions:       []string{"0002", "0003", "0004"},
	versionDigits:  4,
	defaultVersion: "0002",
	currencies:     []string{"EUR", "LVL", "LTL"},
	languages: map[string]string{
		"1": "FIN", "2": "SWE", "3": "ENG", "4": "EST", "5": "RUS", "6": "LAT", "7": "LIT",
	},
	defaultLanguage: "EST",
	languageField:   "LANGUAGE",
	defaultLangCode: "4",
	uidField:        "RCV_ID",
	receiverName:    "RCV_NAME",
	receiverAccount: "RCV_ACCOUNT",
	fields: []string{"VERSION", "STAMP", "RCV_ID", "RCV_ACCOUNT", "RCV_NAME", "LANGUAGE", "AMOUNT", "REF", "TAX_CODE",
		"DATE", "MSG", "RETURN", "CANCEL", "REJECT", "MAC", "CONFIRM", "KEYVERS", "CUR"},
	rules: []string{"VERSION", "MAC", "STAMP", "RCV_ID", "RCV_ACCOUNT", "LANGUAGE", "AMOUNT", "REF", "TAX_CODE", "DATE",
		"MSG", "RETURN", "CANCEL", "REJECT", "CONFIRM", "KEYVERS", "CUR"},
	in: map[string][]string{
		"0002": {"VERSION", "STAMP", "RCV_ID", "AMOUNT", "REF", "DATE", "CUR"},
		"0003": {"VERSION", "STAMP", "RCV_ID", "AMOUNT", "REF", "DATE", "CUR"},
		"0004": {"VERSION", "STAMP", "RCV_ID", "AMOUNT", "REF", "TAX_CODE", "DATE", "CUR"},
	},
	out: map[string][]string{
		"0002": {"VERSION", "STAMP", "REF", "PAID"},
		"0003": {"VERSION", "STAMP", "REF", "PAID"},
		"0004": {"VERSION", "STAMP", "REF", "PAYER_NAME", "PAYER_ACCOUNT", "TAX_CODE", "MSG", "PAID"},
	},
	returnKey: func(prefix, name string) string {
		return prefix + "RETURN_" + name
	},
	paidPrefix: "PEPM",
	callback:   true,
}

var aabProfile = &netProfile{
	prefix:          "AAB_",
	versions:        []string{"0002"},
	versionDigits:   4,
	defaultVersion:  "0002",
	currencies:      []string{"EUR"},
	languages:       map[string]string{"1": "FIN", "2": "SWE"},
	defaultLanguage: "FIN",
	languageField:   "LANGUAGE",
	defaultLangCode: "1",
	uidField:        "RCV_ID",
	receiverName:    "RCV_NAME",
	receiverAccount: "RCV_ACCOUNT",
	fields: []string{"VERSION", "STAMP", "RCV_ID", "RCV_ACCOUNT", "RCV_NAME", "LANGUAGE", "AMOUNT", "REF", "TAX_CODE",
		"DATE", "MSG", "RETURN", "CANCEL", "REJECT", "MAC", "CONFIRM", "KEYVERS", "CUR"},
	rules: []string{"VERSION", "MAC", "STAMP", "RCV_ID", "LANGUAGE", "AMOUNT", "REF", "TAX_CODE", "DATE", "MSG", "RETURN",
		"CANCEL", "REJECT", "CONFIRM", "KEYVERS", "CUR"},
	in: map[string][]string{
		"0002": {"VERSION", "STAMP", "RCV_ID", "AMOUNT", "REF", "DATE", "CUR"},
	},
	out: map[string][]string{
		"0002": {"VERSION", "STAMP", "REF", "PAID"},
	},
	returnKey: func(_, name string) string {
		return "AAB-RETURN-" + strings.ReplaceAll(name, "_", "-")
	},
}

var samlinkProfile = &netProfile{
	prefix:          "NET_",
	versions:        []string{"002"},
	versionDigits:   3,
	defaultVersion:  "002",
	currencies:      []string{"EUR"},
	defaultLanguage: "FIN",
	uidField:        "SELLER_ID",
	receiverName:    "SELLER_NAME",
	receiverAccount: "SELLER_ACCOUNT",
	fields: []string{"VERSION", "STAMP", "SELLER_ID", "AMOUNT", "REF", "TAX_CODE", "DATE", "MSG", "RETURN", "CANCEL",
		"REJECT", "MAC", "CONFIRM", "CUR", "LOGON"},
	rules: []string{"VERSION", "MAC", "STAMP", "SELLER_ID", "AMOUNT", "REF", "DATE", "MSG", "RETURN", "CANCEL", "REJECT",
		"CONFIRM", "CUR"},
	in: map[string][]string{
		"002": {"VERSION", "STAMP", "SELLER_ID", "AMOUNT", "REF", "DATE", "CUR"},
	},
	out: map[string][]string{
		"002": {"VERSION", "STAMP", "REF", "PAID"},
	},
	returnKey: func(_, name string) string {
		return "NET_RETURN_" + name
	},
}

func netProfileOf(bank *entity.Bank) *netProfile {
	switch bank.Type {
	case entity.FamilyAAB:
		return aabProfile
	case entity.FamilySamlink:
		return samlinkProfile
	}
	return soloProfile
}

var netRules = map[string]netRule{
	"VERSION":     (*netMessage).validateVersion,
	"MAC":         (*netMessage).validateMAC,
	"STAMP":       (*netMessage).validateStamp,
	"RCV_ID":      (*netMessage).validateClientID,
	"SELLER_ID":   (*netMessage).validateClientID,
	"RCV_ACCOUNT": (*netMessage).validateAccount,
	"LANGUAGE":    (*netMessage).validateLanguage,
	"AMOUNT":      (*netMessage).validateAmount,
	"REF":         (*netMessage).validateReference,
	"TAX_CODE":    (*netMessage).validateTaxCode,
	"DATE":        (*netMessage).validateDate,
	"MSG":         (*netMessage).validateMessage,
	"RETURN":      (*netMessage).validateAddress,
	"CANCEL":      (*netMessage).validateAddress,
	"REJECT":      (*netMessage).validateAddress,
	"CONFIRM":     (*netMessage).validateConfirm,
	"KEYVERS":     (*netMessage).validateKeyVersion,
	"CUR":         (*netMessage).validateCurrency,
}

type netMessage struct {
	base
	profile *netProfile
	prefix  string
	service string
	// field is the base name the current rule runs for
	field string
}

func newNet(bank *entity.Bank, fields entity.Fields, charset string) *netMessage {
	m := &netMessage{base: newBase(bank, fields), profile: netProfileOf(bank), service: netServiceIn}
	m.prefix = m.profile.prefix
	if bank.Type == entity.FamilySolo {
		m.version = firstNonEmpty(m.get(soloPrefix+"VERSION"), m.get("VERSION"), m.profile.defaultVersion)
		// the oldest version always uses prefixed names
		if m.get(soloPrefix+"VERSION") == "" && m.version != "0002" {
			m.prefix = ""
		}
	} else {
		m.version = firstNonEmpty(m.get(m.key("VERSION")), m.profile.defaultVersion)
	}
	m.language = m.profile.defaultLanguage
	if m.profile.languageField != "" {
		code := m.get(m.key(m.profile.languageField))
		if bank.Type == entity.FamilySolo {
			code = firstNonEmpty(m.get(soloPrefix+m.profile.languageField), m.get(m.profile.languageField))
		}
		code = firstNonEmpty(strings.TrimSpace(code), m.profile.defaultLangCode)
		if language, ok := m.profile.languages[code]; ok {
			m.language = language
		}
	}
	m.charset = charset
	if m.charset == "" {
		m.charset = bank.DefaultCharset
	}
	return m
}

func netSignatureOrder(bank *entity.Bank) map[string][]string {
	profile := netProfileOf(bank)
	order := make(map[string][]string, len(profile.in))
	for version, names := range profile.in {
		list := make([]string, len(names))
		for i, name := range names {
			list[i] = profile.prefix + name
		}
		order[version] = list
	}
	return order
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// key is the request field name of a base name.
func (m *netMessage) key(name string) string {
	return m.prefix + name
}

func (m *netMessage) value(name string) string {
	return m.get(m.key(name))
}

func (m *netMessage) UID() string {
	return m.value(m.profile.uidField)
}

func (m *netMessage) Service() string {
	return m.service
}

func (m *netMessage) Type() string {
	return entity.TypePayment
}

func (m *netMessage) Amount() string {
	return firstNonEmpty(m.value("AMOUNT"), "0")
}

func (m *netMessage) Currency() string {
	return firstNonEmpty(m.value("CUR"), "EUR")
}

func (m *netMessage) ReferenceCode() string {
	return m.value("REF")
}

func (m *netMessage) Message() string {
	return m.value("MSG")
}

func (m *netMessage) ReceiverName() string {
	return m.value(m.profile.receiverName)
}

func (m *netMessage) ReceiverAccount() string {
	return m.value(m.profile.receiverAccount)
}

func (m *netMessage) SuccessTarget() string {
	return m.value(m.bank.ReturnAddress)
}

func (m *netMessage) CancelTarget() string {
	return firstNonEmpty(m.value(m.bank.CancelAddress), m.SuccessTarget())
}

func (m *netMessage) RejectTarget() string {
	return firstNonEmpty(m.value(m.bank.RejectAddress), m.SuccessTarget())
}

func (m *netMessage) Display() Display {
	return Display{
		EditSenderName:      true,
		EditSenderAccount:   true,
		ShowReceiverName:    m.ReceiverName() != "",
		ShowReceiverAccount: m.ReceiverAccount() != "",
	}
}

func (m *netMessage) ValidateClient(ctx context.Context, projects ProjectSource) (entity.Result, error) {
	return m.resolveProject(ctx, projects, m.key(m.profile.uidField))
}

// fieldNames reports Solo fields sent with the wrong prefix for the version.
func (m *netMessage) fieldNames(v *validator) {
	if m.bank.Type != entity.FamilySolo {
		return
	}
	for _, name := range m.profile.fields {
		switch {
		case m.prefix != "" && m.has(name):
			v.fail(name, m.get(name), fmt.Sprintf("parameter %s name must start with %s prefix", name, soloPrefix))
		case m.prefix == "" && m.has(soloPrefix+name):
			v.fail(soloPrefix+name, m.get(soloPrefix+name), fmt.Sprintf("parameter %s name must not contain %s prefix", soloPrefix+name, soloPrefix))
		}
	}
}

func (m *netMessage) ValidateRequest() entity.Result {
	v := newValidator(m.bank, m.now())
	m.fieldNames(v)
	if len(v.errors) > 3 {
		return v.result()
	}
	for _, name := range m.profile.rules {
		rule, ok := netRules[name]
		if !ok {
			continue
		}
		m.field = name
		limitKey := m.key(name)
		if m.bank.Type == entity.FamilySolo {
			limitKey = name
		}
		v.record(m.key(name), m.value(name), rule(m, v), limitKey)
	}
	return v.result()
}

// calculateHash joins the signature fields of the service with the project secret.
func (m *netMessage) calculateHash() bool {
	var names []string
	var key func(string) string
	if m.service == netServiceOut {
		names, key = m.profile.out[m.version], m.outKey
	} else {
		names, key = m.profile.in[m.version], m.key
	}
	if names == nil || m.project == nil {
		m.source = ""
		return false
	}
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = m.get(key(name))
	}
	m.source = signature.Joined(values, m.project.Secret)
	return true
}

func (m *netMessage) outKey(name string) string {
	return m.profile.returnKey(m.prefix, name)
}

func (m *netMessage) digest() (string, error) {
	if !m.calculateHash() {
		return "", fmt.Errorf("no signature order for version %q", m.version)
	}
	return signature.NewEncryptor(codec.UTF8).Digest(m.project.Algorithm(), m.source)
}

func (m *netMessage) ValidateSignature() (entity.Result, error) {
	if err := m.requireProject(); err != nil {
		return entity.Result{}, err
	}
	field := m.key("MAC")
	if !m.calculateHash() {
		return entity.Fail(entity.Issue{
			Field:   m.key("VERSION"),
			Value:   m.version,
			Message: fmt.Sprintf("signature source can not be computed for version %q", m.version),
		}), nil
	}
	mac, err := m.digest()
	if err != nil {
		return entity.Result{}, err
	}
	if mac != m.get(field) {
		return entity.Fail(entity.Issue{
			Field:    field,
			Value:    m.get(field),
			Message:  fmt.Sprintf("signature %s verification failed", field),
			Download: true,
		}), nil
	}
	return entity.Ok(), nil
}

func (m *netMessage) Sign() error {
	if err := m.requireProject(); err != nil {
		return err
	}
	mac, err := m.digest()
	if err != nil {
		return err
	}
	m.set(m.outKey("MAC"), mac)
	return nil
}

func (m *netMessage) SignClient() error {
	if err := m.requireProject(); err != nil {
		return err
	}
	mac, err := m.digest()
	if err != nil {
		return err
	}
	m.set(m.key("MAC"), mac)
	return nil
}

// response lists the non empty response fields in signature order, then the MAC.
func (m *netMessage) response() entity.Fields {
	var fields entity.Fields
	for _, name := range m.profile.out[m.version] {
		if value := m.get(m.outKey(name)); value != "" {
			fields = append(fields, entity.Field{Key: m.outKey(name), Value: value})
		}
	}
	if mac := m.get(m.outKey("MAC")); mac != "" {
		fields = append(fields, entity.Field{Key: m.outKey("MAC"), Value: mac})
	}
	return fields
}

func (m *netMessage) algorithm() string {
	if m.project == nil {
		return entity.AlgorithmMD5
	}
	return m.project.Algorithm()
}

func (m *netMessage) validateVersion(_ *validator) string {
	field, value := m.key("VERSION"), m.value("VERSION")
	if value == "" {
		return fmt.Sprintf("service version %s is missing", field)
	}
	if len(value) != m.profile.versionDigits || !validate.IsDigits(value) {
		return fmt.Sprintf("service version %s (%q) must be a %d digit number", field, value, m.profile.versionDigits)
	}
	if !contains(m.profile.versions, value) {
		return fmt.Sprintf("service version %s (%q) is not supported, allowed values are: %s", field, value, strings.Join(m.profile.versions, ", "))
	}
	return ""
}

var upperHex = regexp.MustCompile(`^[A-F0-9]+$`)

// validateMAC checks the digest shape. A length belonging to another
// algorithm is named in the message.
func (m *netMessage) validateMAC(_ *validator) string {
	field, value := m.key("MAC"), m.value("MAC")
	if value == "" {
		return fmt.Sprintf("signature %s must be set", field)
	}
	if !upperHex.MatchString(value) {
		return fmt.Sprintf("signature %s must be hex encoded using uppercase letters and digits", field)
	}
	algorithm := m.algorithm()
	if len(value) == signature.DigestLength(algorithm) {
		return ""
	}
	if other := signature.AlgorithmByLength(len(value)); other != "" {
		return fmt.Sprintf("signature %s must be in %s format, but it looks like %s",
			field, signature.DisplayName(algorithm), signature.DisplayName(other))
	}
	return ""
}

func (m *netMessage) validateStamp(_ *validator) string {
	field, value := m.key("STAMP"), m.value("STAMP")
	if value == "" {
		return fmt.Sprintf("payment code %s must be set", field)
	}
	if !validate.IsDigits(value) {
		return fmt.Sprintf("payment code %s must be numeric", field)
	}
	return ""
}

func (m *netMessage) validateClientID(_ *validator) string {
	field := m.key(m.profile.uidField)
	if m.get(field) == "" {
		return fmt.Sprintf("client id %s must be set", field)
	}
	return ""
}

func (m *netMessage) validateAccount(v *validator) string {
	field, value := m.key("RCV_ACCOUNT"), m.value("RCV_ACCOUNT")
	if value == "" {
		return ""
	}
	return v.account(field, value)
}

func (m *netMessage) validateLanguage(_ *validator) string {
	field, value := m.key("LANGUAGE"), m.value("LANGUAGE")
	if value == "" {
		return fmt.Sprintf("language %s must be set", field)
	}
	if len(value) != 1 || !validate.IsDigits(value) {
		return fmt.Sprintf("language %s must be a single digit", field)
	}
	return ""
}

func (m *netMessage) validateAmount(v *validator) string {
	return v.amount(m.key("AMOUNT"), m.value("AMOUNT"))
}

func (m *netMessage) validateReference(v *validator) string {
	return v.reference(m.key("REF"), m.value("REF"))
}

func (m *netMessage) validateTaxCode(_ *validator) string {
	if m.value("TAX_CODE") == "" && m.version == "0004" {
		return fmt.Sprintf("tax code %s must be set for version 0004", m.key("TAX_CODE"))
	}
	return ""
}

func (m *netMessage) validateDate(_ *validator) string {
	field, value := m.key("DATE"), m.value("DATE")
	if value == "" {
		return fmt.Sprintf("due date %s must be set", field)
	}
	if strings.ToUpper(value) != "EXPRESS" {
		return fmt.Sprintf("the only allowed value of due date %s is EXPRESS", field)
	}
	return ""
}

const netMessageLimit = 210

func (m *netMessage) validateMessage(_ *validator) string {
	field, value := m.key("MSG"), m.value("MSG")
	if value == "" {
		return fmt.Sprintf("payment description %s must be set", field)
	}
	if n := len([]rune(value)); n > netMessageLimit {
		return fmt.Sprintf("payment description %s can be at most %d characters long (currently %d)", field, netMessageLimit, n)
	}
	return ""
}

// validateAddress serves RETURN, CANCEL and REJECT.
func (m *netMessage) validateAddress(_ *validator) string {
	field, value := m.key(m.field), m.value(m.field)
	if value == "" {
		return fmt.Sprintf("return address %s must be set", field)
	}
	if !validate.URL(value) {
		return fmt.Sprintf("return address %s must be a valid URL", field)
	}
	return ""
}

func (m *netMessage) validateConfirm(_ *validator) string {
	field, value := m.key("CONFIRM"), m.value("CONFIRM")
	if value == "" {
		return fmt.Sprintf("payment confirmation %s must be set", field)
	}
	if strings.ToUpper(value) != "YES" {
		return fmt.Sprintf("the only allowed value of payment confirmation %s is YES, otherwise the payment result is never reported", field)
	}
	return ""
}

func (m *netMessage) validateKeyVersion(_ *validator) string {
	field, value := m.key("KEYVERS"), m.value("KEYVERS")
	if value == "" {
		return fmt.Sprintf("key version %s must be set", field)
	}
	if len(value) != 4 || !validate.IsDigits(value) {
		return fmt.Sprintf("key version %s must be a four digit number, for example \"0001\"", field)
	}
	return ""
}

func (m *netMessage) validateCurrency(_ *validator) string {
	field, value := m.key("CUR"), m.value("CUR")
	if value == "" {
		return fmt.Sprintf("currency %s must be set", field)
	}
	if !contains(m.profile.currencies, value) {
		return fmt.Sprintf("currency %s has unknown value %s, allowed are %s", field, value, strings.Join(m.profile.currencies, ", "))
	}
	return ""
}

// paidCode is the payment confirmation code: a family prefix, the date and
// the zero padded transaction number.
func paidCode(prefix string, nr int64, now time.Time) string {
	return prefix + now.Format(validate.LayoutPaidDate) + signature.Lpad(strconv.FormatInt(nr, 10), 12, '0')
}

// netForm builds the signed GET response of a completed Solo, AAB or Samlink payment.
func netForm(ctx context.Context, bank *entity.Bank, project *entity.Project, payment *entity.Payment, env *Env) (*entity.Form, error) {
	nr, err := env.transactionNumber(ctx, project)
	if err != nil {
		return nil, err
	}
	now := env.now()
	response := newNet(bank, payment.Fields, payment.Charset)
	response.service = netServiceOut
	response.project = project

	paid := ""
	if payment.State == entity.StatePayed {
		paid = paidCode(response.profile.paidPrefix, nr, now)
	}
	values := map[string]string{
		"VERSION":       response.value("VERSION"),
		"STAMP":         response.value("STAMP"),
		"REF":           response.value("REF"),
		"PAYER_NAME":    payment.SenderName,
		"PAYER_ACCOUNT": payment.SenderAccount,
		"TAX_CODE":      response.value("TAX_CODE"),
		"MSG":           response.value("MSG"),
		"PAID":          paid,
	}
	for _, name := range response.profile.out[response.version] {
		response.set(response.outKey(name), values[name])
	}
	if err = response.Sign(); err != nil {
		return nil, fmt.Errorf("sign response: %w", err)
	}

	fields := response.response()
	query, err := encodeQuery(fields, payment.Charset)
	if err != nil {
		return nil, err
	}
	method := "GET"
	url := codec.AppendQuery(target(payment), query)

	if response.profile.callback && project.SoloAutoResponse {
		if validate.IsLoopbackHost(url) {
			payment.AutoResponse = deniedCallback(method, url, nil, now)
		} else if payment.State == entity.StatePayed {
			payment.AutoResponse = sendCallback(ctx, env, method, url, nil, payment.Charset)
		}
	}

	payment.ResponseFields = fields
	payment.ResponseHash = response.source
	payment.ReturnMethod = method
	return &entity.Form{
		Method:  method,
		Url:     url,
		Payload: fields,
		Query:   query,
		Charset: payment.Charset,
	}, nil
}
