package protocol

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pangalink/entity"
	"pangalink/internal/codec"
	"pangalink/internal/signature"
	"pangalink/internal/validate"
)

const ipizzaVersion = "008"

var (
	ipizzaCurrencies = []string{"EUR", "LVL", "LTL"}
	ipizzaLanguages  = []string{"EST", "ENG", "RUS", "LAT", "LIT", "FIN", "SWE"}
	// services of the 2014 protocol revision
	ipizzaNewServices = []string{"1011", "1012", "4011", "4012"}
)

const ipizzaDefaultLanguage = "EST"

var ipizzaServiceTypes = map[string]string{
	"1001": entity.TypePayment,
	"1002": entity.TypePayment,
	"1011": entity.TypePayment,
	"1012": entity.TypePayment,
	"4001": entity.TypeIdentification,
	"4002": entity.TypeIdentification,
	"4011": entity.TypeIdentification,
	"4012": entity.TypeIdentification,
}

// ipizzaServiceFields lists the accepted fields of each request service.
var ipizzaServiceFields = map[string][]string{
	"1001": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_STAMP", "VK_AMOUNT", "VK_CURR", "VK_ACC", "VK_PANK", "VK_NAME",
		"VK_REF", "VK_MSG", "VK_MAC", "VK_RETURN", "VK_ENCODING", "VK_CHARSET", "VK_CANCEL", "VK_LANG", "VK_TIME_LIMIT"},
	"1002": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_STAMP", "VK_AMOUNT", "VK_CURR", "VK_REF", "VK_MSG", "VK_MAC",
		"VK_RETURN", "VK_ENCODING", "VK_CHARSET", "VK_CANCEL", "VK_LANG"},
	"1011": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_STAMP", "VK_AMOUNT", "VK_CURR", "VK_ACC", "VK_NAME", "VK_REF",
		"VK_MSG", "VK_RETURN", "VK_CANCEL", "VK_DATETIME", "VK_MAC", "VK_ENCODING", "VK_LANG"},
	"1012": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_STAMP", "VK_AMOUNT", "VK_CURR", "VK_REF", "VK_MSG", "VK_RETURN",
		"VK_CANCEL", "VK_DATETIME", "VK_MAC", "VK_ENCODING", "VK_LANG"},
	"4011": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_REPLY", "VK_RETURN", "VK_DATETIME", "VK_RID", "VK_MAC",
		"VK_ENCODING", "VK_LANG"},
	"4012": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_REC_ID", "VK_NONCE", "VK_RETURN", "VK_DATETIME", "VK_RID",
		"VK_MAC", "VK_ENCODING", "VK_LANG"},
}

// ipizzaBlockedFields must not be sent with the service.
var ipizzaBlockedFields = map[string][]string{
	"1002": {"VK_ACC", "VK_NAME"},
	"4011": {"VK_NONCE", "VK_REC_ID"},
	"4012": {"VK_REPLY"},
}

var ipizzaSignatureFields = map[string][]string{
	"1001": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_STAMP", "VK_AMOUNT", "VK_CURR", "VK_ACC", "VK_PANK", "VK_NAME", "VK_REF", "VK_MSG"},
	"1002": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_STAMP", "VK_AMOUNT", "VK_CURR", "VK_REF", "VK_MSG"},
	"1011": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_STAMP", "VK_AMOUNT", "VK_CURR", "VK_ACC", "VK_NAME", "VK_REF",
		"VK_MSG", "VK_RETURN", "VK_CANCEL", "VK_DATETIME"},
	"1012": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_STAMP", "VK_AMOUNT", "VK_CURR", "VK_REF", "VK_MSG", "VK_RETURN",
		"VK_CANCEL", "VK_DATETIME"},
	"1101": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_REC_ID", "VK_STAMP", "VK_T_NO", "VK_AMOUNT", "VK_CURR",
		"VK_REC_ACC", "VK_REC_NAME", "VK_SND_ACC", "VK_SND_NAME", "VK_REF", "VK_MSG", "VK_T_DATE"},
	"1111": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_REC_ID", "VK_STAMP", "VK_T_NO", "VK_AMOUNT", "VK_CURR",
		"VK_REC_ACC", "VK_REC_NAME", "VK_SND_ACC", "VK_SND_NAME", "VK_REF", "VK_MSG", "VK_T_DATETIME"},
	"1901": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_REC_ID", "VK_STAMP", "VK_REF", "VK_MSG"},
	"1911": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_REC_ID", "VK_STAMP", "VK_REF", "VK_MSG"},
	"1902": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_REC_ID", "VK_STAMP", "VK_REF", "VK_MSG", "VK_ERROR_CODE"},
	"3012": {"VK_SERVICE", "VK_VERSION", "VK_USER", "VK_DATETIME", "VK_SND_ID", "VK_REC_ID", "VK_USER_NAME", "VK_USER_ID",
		"VK_COUNTRY", "VK_OTHER", "VK_TOKEN", "VK_RID"},
	"3013": {"VK_SERVICE", "VK_VERSION", "VK_DATETIME", "VK_SND_ID", "VK_REC_ID", "VK_NONCE", "VK_USER_NAME", "VK_USER_ID",
		"VK_COUNTRY", "VK_OTHER", "VK_TOKEN", "VK_RID"},
	"4011": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_REPLY", "VK_RETURN", "VK_DATETIME", "VK_RID"},
	"4012": {"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_REC_ID", "VK_NONCE", "VK_RETURN", "VK_DATETIME", "VK_RID"},
}

type responseCodes struct {
	ok, fail, reject string
}

var ipizzaResponses = map[string]responseCodes{
	"1001": {ok: "1101", fail: "1901", reject: "1902"},
	"1002": {ok: "1101", fail: "1901", reject: "1902"},
	"1011": {ok: "1111", fail: "1911", reject: "1911"},
	"1012": {ok: "1111", fail: "1911", reject: "1911"},
	"4011": {ok: "3012"},
	"4012": {ok: "3013"},
}

type ipizzaRule func(m *ipizza, v *validator) string

var ipizzaRules = map[string]ipizzaRule{
	"VK_SERVICE":    (*ipizza).validateService,
	"VK_VERSION":    (*ipizza).validateVersion,
	"VK_SND_ID":     (*ipizza).validateSenderID,
	"VK_REC_ID":     (*ipizza).validateReceiverID,
	"VK_STAMP":      (*ipizza).validateStamp,
	"VK_AMOUNT":     (*ipizza).validateAmount,
	"VK_CURR":       (*ipizza).validateCurrency,
	"VK_ACC":        (*ipizza).validateAccount,
	"VK_NAME":       (*ipizza).validateName,
	"VK_DATETIME":   (*ipizza).validateDatetime,
	"VK_TIME_LIMIT": (*ipizza).validateTimeLimit,
	"VK_PANK":       (*ipizza).validateBankCode,
	"VK_REF":        (*ipizza).validateReference,
	"VK_MSG":        (*ipizza).validateMessage,
	"VK_RETURN":     (*ipizza).validateReturn,
	"VK_CANCEL":     (*ipizza).validateCancel,
	"VK_ENCODING":   (*ipizza).validateEncoding,
	"VK_CHARSET":    (*ipizza).validateCharset,
	"VK_LANG":       (*ipizza).validateLanguage,
	"VK_MAC":        (*ipizza).validateMAC,
	"VK_REPLY":      (*ipizza).validateReply,
	"VK_RID":        (*ipizza).validateRID,
	"VK_NONCE":      (*ipizza).validateNonce,
}

type ipizza struct {
	base
}

func newIPizza(bank *entity.Bank, fields entity.Fields, charset string) *ipizza {
	m := &ipizza{base: newBase(bank, fields)}
	m.version = ipizzaVersion
	m.language = strings.ToUpper(m.get("VK_LANG"))
	if m.language == "" || !contains(ipizzaLanguages, m.language) {
		m.language = ipizzaDefaultLanguage
	}
	m.charset = charset
	if m.charset == "" {
		m.charset = ipizzaCharset(bank, m.values)
	}
	return m
}

// ipizzaCharset looks at the charset field of the bank first, then at both
// legacy charset fields.
func ipizzaCharset(bank *entity.Bank, fields map[string]string) string {
	for _, key := range []string{bank.CharsetField, "VK_CHARSET", "VK_ENCODING"} {
		if key == "" {
			continue
		}
		if value := strings.TrimSpace(fields[key]); value != "" {
			return value
		}
	}
	return bank.DefaultCharset
}

func ipizzaSignatureOrder(bank *entity.Bank) map[string][]string {
	order := make(map[string][]string)
	for service := range ipizzaServiceFields {
		if !bank.AllowsService(service) {
			continue
		}
		var list []string
		for _, key := range ipizzaSignatureFields[service] {
			if key == "VK_PANK" && !bank.UseVKPank {
				continue
			}
			list = append(list, key)
		}
		order[service] = list
	}
	return order
}

func (m *ipizza) UID() string {
	return m.get("VK_SND_ID")
}

func (m *ipizza) Service() string {
	return m.get("VK_SERVICE")
}

func (m *ipizza) Type() string {
	return ipizzaServiceTypes[m.Service()]
}

func (m *ipizza) Amount() string {
	if amount := m.get("VK_AMOUNT"); amount != "" {
		return amount
	}
	return "0"
}

func (m *ipizza) Currency() string {
	if currency := m.get("VK_CURR"); currency != "" {
		return currency
	}
	return "EUR"
}

func (m *ipizza) ReferenceCode() string {
	return m.get("VK_REF")
}

func (m *ipizza) Message() string {
	return m.get("VK_MSG")
}

// ReceiverName for service 1002 comes from the merchant contract.
func (m *ipizza) ReceiverName() string {
	if m.Service() != "1002" {
		return m.get("VK_NAME")
	}
	if m.project == nil {
		return ""
	}
	if m.project.IpizzaReceiverName != "" {
		return m.project.IpizzaReceiverName
	}
	return m.project.Name
}

func (m *ipizza) ReceiverAccount() string {
	if m.Service() != "1002" {
		return m.get("VK_ACC")
	}
	if m.project != nil && m.project.IpizzaReceiverAccount != "" {
		return m.project.IpizzaReceiverAccount
	}
	return m.bank.AccountNr
}

func (m *ipizza) Nonce() string {
	return m.get("VK_NONCE")
}

func (m *ipizza) RID() string {
	return m.get("VK_RID")
}

func (m *ipizza) SuccessTarget() string {
	return m.get(m.bank.ReturnAddress)
}

func (m *ipizza) CancelTarget() string {
	if value := m.get(m.bank.CancelAddress); value != "" {
		return value
	}
	return m.SuccessTarget()
}

func (m *ipizza) RejectTarget() string {
	if value := m.get(m.bank.RejectAddress); value != "" {
		return value
	}
	return m.SuccessTarget()
}

func (m *ipizza) Display() Display {
	service := m.Service()
	return Display{
		EditSenderName:      true,
		EditSenderAccount:   true,
		ShowReceiverName:    true,
		ShowReceiverAccount: true,
		ShowAuthForm:        service == "4011" || service == "4012",
		EditAuthUser:        service == "4011",
	}
}

func (m *ipizza) ValidateClient(ctx context.Context, projects ProjectSource) (entity.Result, error) {
	return m.resolveProject(ctx, projects, "VK_SND_ID")
}

func (m *ipizza) ValidateRequest() entity.Result {
	v := newValidator(m.bank, m.now())
	service := m.Service()
	if message := m.validateService(v); message != "" {
		v.fail("VK_SERVICE", service, message)
		return v.result()
	}
	for _, field := range ipizzaServiceFields[service] {
		rule, ok := ipizzaRules[field]
		if !ok {
			continue
		}
		value := m.get(field)
		if v.record(field, value, rule(m, v), field) {
			v.pattern(field, value)
		}
	}
	for _, field := range ipizzaBlockedFields[service] {
		if value := m.get(field); value != "" {
			v.warn(field, value, fmt.Sprintf("field %s is not allowed with service %s", field, service))
		}
	}
	return v.result()
}

// calculateHash builds the signature source for the current service.
func (m *ipizza) calculateHash() bool {
	order, ok := ipizzaSignatureFields[m.Service()]
	if !ok {
		m.source = ""
		return false
	}
	values := make([]string, 0, len(order))
	for _, key := range order {
		if key == "VK_PANK" && !m.bank.UseVKPank {
			continue
		}
		values = append(values, m.get(key))
	}
	countBytes := m.bank.UTF8Length == "bytes" && codec.IsUTF8(m.charset)
	m.source = signature.LengthPrefixed(values, countBytes)
	return true
}

func (m *ipizza) ValidateSignature() (entity.Result, error) {
	if err := m.requireProject(); err != nil {
		return entity.Result{}, err
	}
	if !m.calculateHash() {
		return entity.Fail(entity.Issue{
			Field:   "VK_SERVICE",
			Value:   m.Service(),
			Message: fmt.Sprintf("signature source can not be computed for service %q", m.Service()),
		}), nil
	}
	failed := entity.Fail(entity.Issue{
		Field:    "VK_MAC",
		Message:  "signature VK_MAC verification failed",
		Download: true,
	})
	mac, err := signature.DecodeBase64(m.get("VK_MAC"))
	if err != nil {
		return failed, nil
	}
	err = signature.NewEncryptor(m.charset).VerifyRSA(m.source, mac, m.project.UserCertificate.Certificate)
	if errors.Is(err, signature.ErrVerification) {
		return failed, nil
	}
	if err != nil {
		return entity.Result{}, fmt.Errorf("verify VK_MAC: %w", err)
	}
	return entity.Ok(), nil
}

func (m *ipizza) sign(keyPEM string) error {
	if !m.calculateHash() {
		return fmt.Errorf("no signature order for service %q", m.Service())
	}
	mac, err := signature.NewEncryptor(m.charset).SignRSA(m.source, keyPEM)
	if err != nil {
		return err
	}
	m.set("VK_MAC", signature.EncodeBase64(mac))
	return nil
}

func (m *ipizza) Sign() error {
	if err := m.requireProject(); err != nil {
		return err
	}
	return m.sign(m.project.BankCertificate.ClientKey)
}

func (m *ipizza) SignClient() error {
	if err := m.requireProject(); err != nil {
		return err
	}
	return m.sign(m.project.UserCertificate.ClientKey)
}

func (m *ipizza) validateService(_ *validator) string {
	value := m.Service()
	if value == "" {
		return "service code VK_SERVICE is missing"
	}
	if len(value) != 4 || !validate.IsDigits(value) {
		return fmt.Sprintf("service code VK_SERVICE (%q) must be a four digit number", value)
	}
	if _, ok := ipizzaServiceFields[value]; ok && m.bank.AllowsService(value) {
		return ""
	}
	if contains(ipizzaNewServices, value) {
		return fmt.Sprintf("service code VK_SERVICE (%q) is not supported by this project, create a new project to use the updated banklink protocol", value)
	}
	allowed := m.bank.AllowedServices
	if len(allowed) == 0 {
		allowed = []string{"1001", "1002", "1011", "1012", "4011", "4012"}
	}
	return fmt.Sprintf("service code VK_SERVICE (%q) is not supported, allowed values are: %s", value, strings.Join(allowed, ", "))
}

func (m *ipizza) validateVersion(_ *validator) string {
	value := m.get("VK_VERSION")
	if value == "" {
		return "crypto algorithm VK_VERSION is missing"
	}
	if value != ipizzaVersion {
		return fmt.Sprintf("crypto algorithm VK_VERSION (%q) must be %s", value, ipizzaVersion)
	}
	return ""
}

func (m *ipizza) validateSenderID(_ *validator) string {
	if m.get("VK_SND_ID") == "" {
		return "client id VK_SND_ID must be set"
	}
	return ""
}

func (m *ipizza) validateReceiverID(v *validator) string {
	value := m.get("VK_REC_ID")
	if strings.ToUpper(value) != m.bank.ID {
		v.warn("VK_REC_ID", value, fmt.Sprintf("bank id VK_REC_ID (%q) does not match %s", value, m.bank.ID))
	}
	return ""
}

func (m *ipizza) validateStamp(_ *validator) string {
	value := m.get("VK_STAMP")
	if value == "" {
		return "request id VK_STAMP must be set"
	}
	if !validate.IsDigits(value) {
		return fmt.Sprintf("request id VK_STAMP (%q) must be numeric", value)
	}
	return ""
}

func (m *ipizza) validateAmount(v *validator) string {
	return v.amount("VK_AMOUNT", m.get("VK_AMOUNT"))
}

func (m *ipizza) validateCurrency(_ *validator) string {
	value := m.get("VK_CURR")
	if value == "" {
		return "currency VK_CURR must be set"
	}
	if !contains(ipizzaCurrencies, value) {
		return fmt.Sprintf("currency VK_CURR (%q) must be one of: %s", value, strings.Join(ipizzaCurrencies, ", "))
	}
	return ""
}

func (m *ipizza) validateAccount(v *validator) string {
	value := m.get("VK_ACC")
	if value == "" {
		return "receiver account VK_ACC must be set"
	}
	return v.account("VK_ACC", value)
}

func (m *ipizza) validateName(_ *validator) string {
	if m.get("VK_NAME") == "" {
		return "receiver name VK_NAME must be set"
	}
	return ""
}

var (
	ipizzaDatetimePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[+-]\d{4}$`)
	ipizzaTimeLimitPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
)

func (m *ipizza) validateDatetime(v *validator) string {
	value := m.get("VK_DATETIME")
	if value == "" {
		return "timestamp VK_DATETIME must be set"
	}
	t, err := validate.ParseLocal(validate.LayoutDateTime, value)
	if !ipizzaDatetimePattern.MatchString(value) || err != nil {
		return fmt.Sprintf("timestamp VK_DATETIME must be formatted as %q", v.now.Format(validate.LayoutDateTime))
	}
	if !validate.WithinDrift(t, v.now) {
		v.warn("VK_DATETIME", value, fmt.Sprintf("timestamp VK_DATETIME (%q) must be within 5 minutes of server time (%q)",
			value, v.now.Format(validate.LayoutDateTime)))
	}
	return ""
}

func (m *ipizza) validateTimeLimit(v *validator) string {
	if !m.bank.UseVKTimeLimit {
		return ""
	}
	value := m.get("VK_TIME_LIMIT")
	if value == "" {
		return ""
	}
	t, err := validate.ParseLocal(validate.LayoutTimeLimit, value)
	if !ipizzaTimeLimitPattern.MatchString(value) || err != nil {
		return fmt.Sprintf("time limit VK_TIME_LIMIT must be formatted as %q", v.now.Format(validate.LayoutTimeLimit))
	}
	if t.Before(v.now.Add(-validate.MaxDrift)) {
		v.warn("VK_TIME_LIMIT", value, fmt.Sprintf("time limit VK_TIME_LIMIT (%q) is behind server time (%q)",
			value, v.now.Format(validate.LayoutTimeLimit)))
	}
	return ""
}

func (m *ipizza) validateBankCode(_ *validator) string {
	if m.bank.UseVKPank && m.get("VK_PANK") == "" {
		return "bank code VK_PANK must be set"
	}
	return ""
}

func (m *ipizza) validateReference(v *validator) string {
	return v.reference("VK_REF", m.get("VK_REF"))
}

func (m *ipizza) validateMessage(_ *validator) string {
	return ""
}

func (m *ipizza) validateReturn(v *validator) string {
	value := m.get("VK_RETURN")
	if value == "" {
		return "return address VK_RETURN must be set"
	}
	if keys := validate.ReservedQueryKeys(value, "VK_"); len(keys) > 0 {
		return fmt.Sprintf("return address VK_RETURN must not contain VK_ query parameters, found: %s", strings.Join(keys, ", "))
	}
	if m.bank.DisallowQuery && validate.HasQuery(value) {
		v.warn("VK_RETURN", value, fmt.Sprintf("%s does not allow query parameters in the return address VK_RETURN", m.bank.Name))
	}
	return ""
}

func (m *ipizza) validateCancel(v *validator) string {
	value := m.get("VK_CANCEL")
	if m.has("VK_CANCEL") && m.bank.CancelAddress != "VK_CANCEL" {
		v.warn("VK_CANCEL", value, fmt.Sprintf("%s does not support the return address VK_CANCEL, use VK_RETURN instead", m.bank.Name))
	}
	if keys := validate.ReservedQueryKeys(value, "VK_"); value != "" && len(keys) > 0 {
		return fmt.Sprintf("return address VK_CANCEL must not contain VK_ query parameters, found: %s", strings.Join(keys, ", "))
	}
	return ""
}

func (m *ipizza) validateEncoding(v *validator) string {
	return m.charsetField(v, "VK_ENCODING", "")
}

func (m *ipizza) validateCharset(v *validator) string {
	return m.charsetField(v, "VK_CHARSET", "ISO-8859-1")
}

func (m *ipizza) charsetField(v *validator, field, fallback string) string {
	value := m.get(field)
	if value == "" {
		if m.bank.CharsetField == field && m.bank.ForceCharset != "" {
			return fmt.Sprintf("%s requires the charset to be set with %s, for example %q", m.bank.Name, field, m.bank.ForceCharset)
		}
		return ""
	}
	if m.bank.CharsetField == "" {
		return fmt.Sprintf("%s does not allow setting the charset with %s", m.bank.Name, field)
	}
	if m.bank.CharsetField != field {
		return fmt.Sprintf("%s requires %s instead of %s", m.bank.Name, m.bank.CharsetField, field)
	}
	return v.charset(field, value, fallback)
}

func (m *ipizza) validateLanguage(_ *validator) string {
	value := m.get("VK_LANG")
	if value != "" && !contains(ipizzaLanguages, strings.ToUpper(value)) {
		return fmt.Sprintf("language VK_LANG (%q) can be %s", value, choices(ipizzaLanguages, ipizzaDefaultLanguage))
	}
	return ""
}

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

func (m *ipizza) validateMAC(_ *validator) string {
	value := m.get("VK_MAC")
	if value == "" {
		return "signature VK_MAC must be set"
	}
	mac, err := signature.DecodeBase64(value)
	if !base64Pattern.MatchString(value) || err != nil {
		return "signature VK_MAC must be base64 encoded"
	}
	if len(mac)%128 != 0 {
		return fmt.Sprintf("signature VK_MAC has invalid length, it matches a %d bit key, allowed are 1024, 2048 and 4096 bit keys", len(mac)*8)
	}
	return ""
}

func (m *ipizza) validateReply(_ *validator) string {
	value := m.get("VK_REPLY")
	if value == "" {
		return "reply code VK_REPLY is missing"
	}
	if value != "3012" {
		return fmt.Sprintf("reply code VK_REPLY (%q) must be 3012", value)
	}
	return ""
}

func (m *ipizza) validateRID(v *validator) string {
	if m.get("VK_RID") == "" {
		v.warn("VK_RID", "", "session id VK_RID is missing")
	}
	return ""
}

func (m *ipizza) validateNonce(_ *validator) string {
	if m.get("VK_NONCE") == "" {
		return "nonce VK_NONCE is missing"
	}
	return ""
}

// ipizzaForm builds the signed response of a completed iPizza payment.
func ipizzaForm(ctx context.Context, bank *entity.Bank, project *entity.Project, payment *entity.Payment, env *Env) (*entity.Form, error) {
	nr, err := env.transactionNumber(ctx, project)
	if err != nil {
		return nil, err
	}
	request := payment.Fields.Map()
	service := request["VK_SERVICE"]
	codes, ok := ipizzaResponses[service]
	if !ok {
		return nil, fmt.Errorf("no response for service %q", service)
	}
	now := env.now()

	var fields entity.Fields
	switch payment.State {
	case entity.StatePayed:
		receiverAccount := request["VK_ACC"]
		if receiverAccount == "" {
			receiverAccount = project.IpizzaReceiverAccount
		}
		receiverName := request["VK_NAME"]
		if receiverName == "" {
			receiverName = project.IpizzaReceiverName
		}
		fields = entity.Fields{
			{Key: "VK_SERVICE", Value: codes.ok},
			{Key: "VK_VERSION", Value: ipizzaVersion},
			{Key: "VK_SND_ID", Value: bank.ID},
			{Key: "VK_REC_ID", Value: request["VK_SND_ID"]},
			{Key: "VK_STAMP", Value: request["VK_STAMP"]},
			{Key: "VK_T_NO", Value: strconv.FormatInt(nr, 10)},
			{Key: "VK_AMOUNT", Value: request["VK_AMOUNT"]},
			{Key: "VK_CURR", Value: request["VK_CURR"]},
			{Key: "VK_REC_ACC", Value: receiverAccount},
			{Key: "VK_REC_NAME", Value: receiverName},
			{Key: "VK_SND_ACC", Value: payment.SenderAccount},
			{Key: "VK_SND_NAME", Value: payment.SenderName},
			{Key: "VK_REF", Value: request["VK_REF"]},
			{Key: "VK_MSG", Value: request["VK_MSG"]},
		}
		if bank.UseVKPank {
			fields.Set("VK_PANK", request["VK_PANK"])
		}
		if service == "1011" || service == "1012" {
			fields.Set("VK_T_DATETIME", now.Format(validate.LayoutDateTime))
		} else {
			fields.Set("VK_T_DATE", now.Format(validate.LayoutDate))
		}
	case entity.StateRejected:
		fields = entity.Fields{
			{Key: "VK_SERVICE", Value: codes.reject},
			{Key: "VK_VERSION", Value: ipizzaVersion},
			{Key: "VK_SND_ID", Value: bank.ID},
			{Key: "VK_REC_ID", Value: request["VK_SND_ID"]},
			{Key: "VK_STAMP", Value: request["VK_STAMP"]},
			{Key: "VK_REF", Value: request["VK_REF"]},
			{Key: "VK_MSG", Value: request["VK_MSG"]},
			{Key: "VK_ERROR_CODE", Value: "1234"},
		}
	case entity.StateAuthenticated:
		fields = entity.Fields{
			{Key: "VK_SERVICE", Value: codes.ok},
			{Key: "VK_VERSION", Value: ipizzaVersion},
			{Key: "VK_DATETIME", Value: now.Format(validate.LayoutDateTime)},
			{Key: "VK_SND_ID", Value: bank.ID},
			{Key: "VK_REC_ID", Value: request["VK_SND_ID"]},
			{Key: "VK_RID", Value: request["VK_RID"]},
		}
		switch service {
		case "4011":
			fields.Set("VK_USER", payment.AuthUser)
		case "4012":
			fields.Set("VK_NONCE", request["VK_NONCE"])
		}
		fields.Set("VK_USER_NAME", payment.AuthUserName)
		fields.Set("VK_USER_ID", payment.AuthUserId)
		fields.Set("VK_COUNTRY", payment.AuthCountry)
		fields.Set("VK_OTHER", payment.AuthOther)
		fields.Set("VK_TOKEN", payment.AuthToken)
	default:
		fields = entity.Fields{
			{Key: "VK_SERVICE", Value: codes.fail},
			{Key: "VK_VERSION", Value: ipizzaVersion},
			{Key: "VK_SND_ID", Value: bank.ID},
			{Key: "VK_REC_ID", Value: request["VK_SND_ID"]},
			{Key: "VK_STAMP", Value: request["VK_STAMP"]},
			{Key: "VK_REF", Value: request["VK_REF"]},
			{Key: "VK_MSG", Value: request["VK_MSG"]},
		}
	}
	if bank.CharsetField != "" && request[bank.CharsetField] != "" {
		fields.Set(bank.CharsetField, request[bank.CharsetField])
	}
	if request["VK_LANG"] != "" {
		fields.Set("VK_LANG", request["VK_LANG"])
	}

	response := newIPizza(bank, fields, payment.Charset)
	response.project = project
	if err = response.Sign(); err != nil {
		return nil, fmt.Errorf("sign response: %w", err)
	}
	fields = response.Fields()
	if payment.State != entity.StateAuthenticated {
		fields.Set("VK_AUTO", "Y")
	}

	method := bank.ResponseMethod()
	url := target(payment)
	localhost := validate.IsLocalHost(url)
	if payment.State == entity.StatePayed && !localhost {
		payment.AutoResponse = sendCallback(ctx, env, method, url, fields, payment.Charset)
		fields.Set("VK_AUTO", "N")
	} else {
		if localhost && payment.State != entity.StateAuthenticated {
			payment.AutoResponse = deniedCallback(method, url, fields, now)
		}
		if !strings.HasPrefix(fields.Get("VK_SERVICE"), "3") {
			fields.Set("VK_AUTO", "N")
		}
	}

	// the customer is always sent back with a POST form
	payment.ResponseFields = fields
	payment.ResponseHash = response.source
	payment.ReturnMethod = "POST"
	return &entity.Form{
		Method:  "POST",
		Url:     url,
		Payload: fields,
		Charset: payment.Charset,
	}, nil
}
