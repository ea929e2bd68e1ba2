package protocol

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pangalink/entity"
	"pangalink/internal/signature"
	"pangalink/internal/validate"
)

// EC card payment messages. Field values are concatenated in fixed widths
// and signed with RSA-SHA1, the signature travels hex encoded.
const (
	ecActionRequest  = "gaf"
	ecActionResponse = "afb"
	ecCharsetField   = "charEncoding"
)

var ecVersions = []string{"002", "004"}

// ecFieldWidths: positive widths pad left with zeros, negative pad right with spaces.
var ecFieldWidths = map[string]int{
	"action":       -3,
	"ver":          3,
	"id":           -10,
	"ecuno":        12,
	"eamount":      12,
	"cur":          -3,
	"lang":         -2,
	"datetime":     -14,
	"receipt_no":   6,
	"respcode":     3,
	"msgdata":      -40,
	"actiontext":   -40,
	"charEncoding": -16,
	"feedBackUrl":  -128,
	"delivery":     -1,
	"auto":         -1,
}

var ecActionFields = map[string][]string{
	ecActionRequest: {"action", "ver", "id", "ecuno", "eamount", "cur", "datetime", "mac", "lang", "charEncoding",
		"feedBackUrl", "delivery"},
	ecActionResponse: {"action", "ver", "id", "ecuno", "receipt_no", "eamount", "cur", "respcode", "datetime", "msgdata",
		"actiontext", "mac", "charEncoding", "auto"},
}

// ecSignatureFields is keyed by version, then by action.
var ecSignatureFields = map[string]map[string][]string{
	"002": {
		ecActionRequest:  {"ver", "id", "ecuno", "eamount", "cur", "datetime"},
		ecActionResponse: {"ver", "id", "ecuno", "receipt_no", "eamount", "cur", "respcode", "datetime", "msgdata", "actiontext"},
	},
	"004": {
		ecActionRequest:  {"ver", "id", "ecuno", "eamount", "cur", "datetime", "feedBackUrl", "delivery"},
		ecActionResponse: {"ver", "id", "ecuno", "receipt_no", "eamount", "cur", "respcode", "datetime", "msgdata", "actiontext"},
	},
}

var ecLanguages = map[string]string{
	"ET": "EST",
	"EN": "ENG",
	"FI": "FIN",
	"DE": "GER",
}

type ecRule func(m *ec, v *validator) string

var ecRules = map[string]ecRule{
	"id":           (*ec).validateID,
	"ecuno":        (*ec).validateEcuno,
	"eamount":      (*ec).validateAmount,
	"cur":          (*ec).validateCurrency,
	"datetime":     (*ec).validateDatetime,
	"lang":         (*ec).validateLanguage,
	"mac":          (*ec).validateMAC,
	"charEncoding": (*ec).validateCharEncoding,
	"feedBackUrl":  (*ec).validateFeedBackURL,
	"delivery":     (*ec).validateDelivery,
}

type ec struct {
	base
}

func newEC(bank *entity.Bank, fields entity.Fields, charset string) *ec {
	m := &ec{base: newBase(bank, fields)}
	m.version = ecVersion(m.get("ver"))
	m.language = "EST"
	if language, ok := ecLanguages[strings.ToUpper(m.get("lang"))]; ok {
		m.language = language
	}
	m.charset = charset
	if m.charset == "" {
		m.charset = ecCharset(bank, m.values)
	}
	return m
}

func ecVersion(ver string) string {
	if ver == "" {
		ver = "2"
	}
	return signature.Lpad(ver, 3, '0')
}

// ecCharset: only version 004 messages may declare a charset.
func ecCharset(bank *entity.Bank, fields map[string]string) string {
	if ecVersion(strings.TrimSpace(fields["ver"])) != "004" {
		return bank.DefaultCharset
	}
	field := bank.CharsetField
	if field == "" {
		field = ecCharsetField
	}
	if value := strings.TrimSpace(fields[field]); value != "" {
		return value
	}
	return bank.DefaultCharset
}

func ecSignatureOrder() map[string][]string {
	order := make(map[string][]string, len(ecSignatureFields))
	for version, actions := range ecSignatureFields {
		order[version] = append([]string(nil), actions[ecActionRequest]...)
	}
	return order
}

func (m *ec) UID() string {
	return m.get("id")
}

func (m *ec) Service() string {
	return m.get("action")
}

func (m *ec) Type() string {
	return entity.TypePayment
}

// Amount converts cents to the decimal amount, "1336" becomes "13.36".
func (m *ec) Amount() string {
	cents, err := strconv.ParseFloat(m.get("eamount"), 64)
	if err != nil {
		return "0"
	}
	return strconv.FormatFloat(cents/100, 'f', -1, 64)
}

func (m *ec) Currency() string {
	return strings.ToUpper(firstNonEmpty(m.get("cur"), "EUR"))
}

func (m *ec) ReferenceCode() string {
	return ""
}

func (m *ec) Message() string {
	return ""
}

func (m *ec) ReceiverName() string {
	return ""
}

func (m *ec) ReceiverAccount() string {
	return ""
}

// SuccessTarget is the feedback URL of the message for version 004 and the
// address configured on the project otherwise.
func (m *ec) SuccessTarget() string {
	projectURL := ""
	if m.project != nil {
		projectURL = m.project.EcUrl
	}
	if m.version == "004" {
		return firstNonEmpty(m.get("feedBackUrl"), projectURL)
	}
	return projectURL
}

func (m *ec) CancelTarget() string {
	return m.SuccessTarget()
}

func (m *ec) RejectTarget() string {
	return m.SuccessTarget()
}

func (m *ec) Display() Display {
	return Display{EditSenderName: true}
}

func (m *ec) ValidateClient(ctx context.Context, projects ProjectSource) (entity.Result, error) {
	return m.resolveProject(ctx, projects, "id")
}

func (m *ec) ValidateRequest() entity.Result {
	v := newValidator(m.bank, m.now())
	ver := m.get("ver")
	switch {
	case ver == "":
		v.fail("ver", ver, "version ver must be set")
		return v.result()
	case ecSignatureFields[m.version] == nil:
		v.fail("ver", ver, fmt.Sprintf("version ver (%q) is not supported, allowed values are: %s", ver, strings.Join(ecVersions, ", ")))
		return v.result()
	case m.version == "002":
		v.warn("ver", ver, "version 002 is deprecated, use 004")
	}
	action := m.get("action")
	if _, ok := ecSignatureFields[m.version][action]; !ok {
		v.fail("action", action, fmt.Sprintf("action (%q) is not supported", action))
		return v.result()
	}
	for _, field := range ecActionFields[action] {
		rule, ok := ecRules[field]
		if !ok {
			continue
		}
		v.record(field, m.get(field), rule(m, v), field)
	}
	return v.result()
}

// calculateHash pads the signature fields of the action to their widths.
// A missing field contributes an empty value.
func (m *ec) calculateHash() bool {
	order, ok := ecSignatureFields[m.version][m.get("action")]
	if !ok {
		m.source = ""
		return false
	}
	values := make([]signature.PaddedValue, len(order))
	for i, field := range order {
		values[i] = signature.PaddedValue{Value: m.get(field), Width: ecFieldWidths[field]}
	}
	m.source = signature.Padded(values)
	return true
}

func (m *ec) ValidateSignature() (entity.Result, error) {
	if err := m.requireProject(); err != nil {
		return entity.Result{}, err
	}
	if !m.calculateHash() {
		return entity.Fail(entity.Issue{
			Field:   "ver",
			Value:   m.get("ver"),
			Message: fmt.Sprintf("signature source can not be computed for version %q", m.version),
		}), nil
	}
	failed := entity.Fail(entity.Issue{
		Field:    "mac",
		Value:    m.get("mac"),
		Message:  "signature mac verification failed",
		Download: true,
	})
	mac, err := signature.DecodeHex(strings.ToLower(m.get("mac")))
	if err != nil {
		return failed, nil
	}
	err = signature.NewEncryptor(m.charset).VerifyRSA(m.source, mac, m.project.UserCertificate.Certificate)
	if errors.Is(err, signature.ErrVerification) {
		return failed, nil
	}
	if err != nil {
		return entity.Result{}, fmt.Errorf("verify mac: %w", err)
	}
	return entity.Ok(), nil
}

func (m *ec) sign(keyPEM string) error {
	if !m.calculateHash() {
		return fmt.Errorf("no signature order for version %q", m.version)
	}
	mac, err := signature.NewEncryptor(m.charset).SignRSA(m.source, keyPEM)
	if err != nil {
		return err
	}
	m.set("mac", strings.ToUpper(signature.EncodeHex(mac)))
	return nil
}

func (m *ec) Sign() error {
	if err := m.requireProject(); err != nil {
		return err
	}
	return m.sign(m.project.BankCertificate.ClientKey)
}

func (m *ec) SignClient() error {
	if err := m.requireProject(); err != nil {
		return err
	}
	return m.sign(m.project.UserCertificate.ClientKey)
}

func (m *ec) validateID(_ *validator) string {
	if m.get("id") == "" {
		return "client id must be set"
	}
	return ""
}

func (m *ec) validateEcuno(_ *validator) string {
	value := m.get("ecuno")
	if value == "" {
		return "transaction number ecuno must be set"
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || !validate.IsDigits(value) {
		return "transaction number ecuno must be numeric"
	}
	if n < 100000 {
		return "transaction number ecuno must be at least 100000"
	}
	if len(value) > 12 {
		return "transaction number ecuno can be at most 12 digits long"
	}
	return ""
}

func (m *ec) validateAmount(_ *validator) string {
	value := m.get("eamount")
	if value == "" {
		return "payment amount eamount must be set"
	}
	if !validate.IsDigits(value) {
		return "payment amount eamount must be given in cents"
	}
	return ""
}

var ecCurrencyPattern = regexp.MustCompile(`(?i)^[A-Z]{3}$`)

func (m *ec) validateCurrency(_ *validator) string {
	value := m.get("cur")
	if value == "" {
		return "currency cur must be set"
	}
	if !ecCurrencyPattern.MatchString(value) {
		return fmt.Sprintf("currency cur (%q) must be a three letter code", value)
	}
	return ""
}

func (m *ec) validateDatetime(_ *validator) string {
	value := m.get("datetime")
	if value == "" {
		return "request time datetime must be set"
	}
	if len(value) != 14 || !validate.IsDigits(value) {
		return fmt.Sprintf("request time datetime (%q) must be formatted as YYYYMMDDhhmmss", value)
	}
	return ""
}

func (m *ec) validateLanguage(_ *validator) string {
	value := m.get("lang")
	if value == "" {
		return ""
	}
	if _, ok := ecLanguages[strings.ToUpper(value)]; !ok {
		return fmt.Sprintf("language lang (%q) is not supported, allowed values are: et, en, fi, de", value)
	}
	return ""
}

func (m *ec) validateMAC(_ *validator) string {
	value := m.get("mac")
	if value == "" {
		return "signature mac must be set"
	}
	mac, err := signature.DecodeHex(strings.ToLower(value))
	if err != nil {
		return "signature mac must be hex encoded"
	}
	if len(mac)%128 != 0 {
		return fmt.Sprintf("signature mac has invalid length, it matches a %d bit key, allowed are 1024, 2048 and 4096 bit keys", len(mac)*8)
	}
	return ""
}

func (m *ec) validateCharEncoding(v *validator) string {
	value := m.get(ecCharsetField)
	if m.version == "002" {
		if value != "" {
			return "charset charEncoding is not allowed with version 002"
		}
		return ""
	}
	if value == "" {
		return ""
	}
	return v.charset(ecCharsetField, value, m.bank.DefaultCharset)
}

func (m *ec) validateFeedBackURL(_ *validator) string {
	value := m.get("feedBackUrl")
	if m.version == "002" {
		if value != "" {
			return "feedBackUrl is not allowed with version 002"
		}
		return ""
	}
	if value == "" {
		return "return address feedBackUrl must be set"
	}
	if !validate.URL(value) {
		return "return address feedBackUrl must be a valid URL"
	}
	return ""
}

func (m *ec) validateDelivery(_ *validator) string {
	value := m.get("delivery")
	if m.version == "002" {
		if value != "" {
			return "delivery is not allowed with version 002"
		}
		return ""
	}
	if value == "" {
		return "delivery must be set"
	}
	if value != "S" && value != "T" {
		return fmt.Sprintf("delivery (%q) can be S or T", value)
	}
	return ""
}

// ecForm builds the signed afb response of a completed card payment.
func ecForm(ctx context.Context, bank *entity.Bank, project *entity.Project, payment *entity.Payment, env *Env) (*entity.Form, error) {
	nr, err := env.transactionNumber(ctx, project)
	if err != nil {
		return nil, err
	}
	now := env.now()
	request := payment.Fields.Map()
	payed := payment.State == entity.StatePayed

	receipt, respcode, actiontext := "0", "111", "Tehing katkestatud"
	if payed {
		receipt, respcode, actiontext = strconv.FormatInt(nr, 10), "000", "OK, tehing autoriseeritud"
	}
	fields := entity.Fields{
		{Key: "action", Value: ecActionResponse},
		{Key: "ver", Value: strings.TrimLeft(request["ver"], "0")},
		{Key: "id", Value: request["id"]},
		{Key: "ecuno", Value: request["ecuno"]},
		{Key: "receipt_no", Value: receipt},
		{Key: "eamount", Value: request["eamount"]},
		{Key: "cur", Value: request["cur"]},
		{Key: "respcode", Value: respcode},
		{Key: "datetime", Value: request["datetime"]},
		{Key: "msgdata", Value: payment.SenderName},
		{Key: "actiontext", Value: actiontext},
	}
	if value := request[ecCharsetField]; value != "" {
		fields.Set(ecCharsetField, value)
	}

	response := newEC(bank, fields, payment.Charset)
	response.project = project
	if err = response.Sign(); err != nil {
		return nil, fmt.Errorf("sign response: %w", err)
	}
	fields = response.Fields()
	fields.Set("auto", "Y")

	const method = "POST"
	url := payment.CancelTarget
	if payed {
		url = payment.SuccessTarget
	}
	if validate.IsLoopbackHost(url) {
		payment.AutoResponse = deniedCallback(method, url, fields, now)
	} else if payed {
		payment.AutoResponse = sendCallback(ctx, env, method, url, fields, payment.Charset)
	}
	fields.Set("auto", "N")

	payment.ResponseFields = fields
	payment.ResponseHash = response.source
	payment.ReturnMethod = method
	return &entity.Form{
		Method:  method,
		Url:     url,
		Payload: fields,
		Charset: payment.Charset,
	}, nil
}
