// Package protocol implements the banklink message families: iPizza, the
// keyed digest family (Solo, AAB, Samlink) and EC. Every family is driven by
// static field tables, the code only differs where the wire formats differ.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pangalink/entity"
	"pangalink/internal/codec"
	"pangalink/services"
)

// ProjectSource resolves a client identifier to its merchant project.
type ProjectSource interface {
	GetProjectByUID(ctx context.Context, uid string) (*entity.Project, error)
}

// Display tells the confirmation page which values the customer sees or edits.
type Display struct {
	EditSenderName      bool
	ShowSenderName      bool
	EditSenderAccount   bool
	ShowSenderAccount   bool
	ShowReceiverName    bool
	ShowReceiverAccount bool
	ShowAuthForm        bool
	EditAuthUser        bool
}

// Adapter is a single banklink message bound to a bank profile.
type Adapter interface {
	Bank() *entity.Bank
	Project() *entity.Project
	// Fields returns the message fields in their wire order.
	Fields() entity.Fields

	UID() string
	Charset() string
	// Language is the ISO 639-1 code of the requested user interface language.
	Language() string
	Version() string
	Service() string
	Type() string
	SourceHash() string

	Amount() string
	Currency() string
	ReferenceCode() string
	Message() string
	ReceiverName() string
	ReceiverAccount() string
	Nonce() string
	RID() string

	SuccessTarget() string
	CancelTarget() string
	RejectTarget() string
	Display() Display

	ValidateClient(ctx context.Context, projects ProjectSource) (entity.Result, error)
	ValidateRequest() entity.Result
	ValidateSignature() (entity.Result, error)
	// Sign signs the message with the bank key of the project.
	Sign() error
	// SignClient signs the message with the merchant key of the project.
	SignClient() error
}

// Env carries the collaborators used while building a bank response.
type Env struct {
	Counter         services.Counter
	Callback        services.Callback
	CallbackTimeout time.Duration
	Now             func() time.Time
}

func (e *Env) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// transactionNumber draws the next bank side transaction number of the merchant.
func (e *Env) transactionNumber(ctx context.Context, project *entity.Project) (int64, error) {
	if e == nil || e.Counter == nil {
		return 0, errors.New("transaction counter not configured")
	}
	nr, err := e.Counter.Increment(ctx, "trans:"+project.Uid)
	if err != nil {
		return 0, fmt.Errorf("increment transaction counter: %w", err)
	}
	return nr, nil
}

// ErrUnknownFamily is returned for bank profiles with an unsupported type.
var ErrUnknownFamily = errors.New("unknown banklink protocol")

// New parses fields as a message of the bank's protocol family. When charset
// is empty it is detected from the fields.
func New(bank *entity.Bank, fields entity.Fields, charset string) (Adapter, error) {
	if bank == nil {
		return nil, errors.New("bank profile missing")
	}
	switch bank.Type {
	case entity.FamilyIPizza:
		return newIPizza(bank, fields, charset), nil
	case entity.FamilySolo, entity.FamilyAAB, entity.FamilySamlink:
		return newNet(bank, fields, charset), nil
	case entity.FamilyEC:
		return newEC(bank, fields, charset), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, bank.Type)
}

// DetectCharset finds the charset a message was encoded in. The fields are
// usually decoded as latin1 at this point, charset names are plain ASCII.
func DetectCharset(bank *entity.Bank, fields map[string]string) string {
	switch bank.Type {
	case entity.FamilyIPizza:
		return ipizzaCharset(bank, fields)
	case entity.FamilyEC:
		return ecCharset(bank, fields)
	}
	return bank.DefaultCharset
}

// SignatureOrder lists the fields that make up the request signature source,
// keyed by service or version.
func SignatureOrder(bank *entity.Bank) (map[string][]string, error) {
	switch bank.Type {
	case entity.FamilyIPizza:
		return ipizzaSignatureOrder(bank), nil
	case entity.FamilySolo, entity.FamilyAAB, entity.FamilySamlink:
		return netSignatureOrder(bank), nil
	case entity.FamilyEC:
		return ecSignatureOrder(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, bank.Type)
}

// GenerateForm builds the signed bank response for a completed payment and
// stores the response on the payment. A successful payment may trigger the
// merchant callback, its outcome is kept in payment.AutoResponse.
func GenerateForm(ctx context.Context, bank *entity.Bank, project *entity.Project, payment *entity.Payment, env *Env) (*entity.Form, error) {
	if payment.State == entity.StateInProcess {
		return nil, errors.New("payment is not completed")
	}
	switch bank.Type {
	case entity.FamilyIPizza:
		return ipizzaForm(ctx, bank, project, payment, env)
	case entity.FamilySolo, entity.FamilyAAB, entity.FamilySamlink:
		return netForm(ctx, bank, project, payment, env)
	case entity.FamilyEC:
		return ecForm(ctx, bank, project, payment, env)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, bank.Type)
}

// isoLanguages maps protocol language codes to ISO 639-1.
var isoLanguages = map[string]string{
	"EST": "et",
	"ENG": "en",
	"RUS": "ru",
	"LAT": "lv",
	"LIT": "lt",
	"FIN": "fi",
	"SWE": "se",
	"GER": "de",
}

// base holds what every family shares: the bank profile, the normalized
// fields in wire order and the resolved project.
type base struct {
	bank     *entity.Bank
	values   map[string]string
	order    []string
	charset  string
	language string
	version  string
	project  *entity.Project
	source   string
	now      func() time.Time
}

func newBase(bank *entity.Bank, fields entity.Fields) base {
	b := base{
		bank:   bank,
		values: make(map[string]string, len(fields)),
		now:    time.Now,
	}
	for _, f := range fields {
		if _, ok := b.values[f.Key]; ok {
			continue
		}
		b.values[f.Key] = strings.TrimSpace(f.Value)
		b.order = append(b.order, f.Key)
	}
	return b
}

func (b *base) get(key string) string {
	return b.values[key]
}

func (b *base) has(key string) bool {
	_, ok := b.values[key]
	return ok
}

func (b *base) set(key, value string) {
	if _, ok := b.values[key]; !ok {
		b.order = append(b.order, key)
	}
	b.values[key] = value
}

func (b *base) Bank() *entity.Bank {
	return b.bank
}

func (b *base) Project() *entity.Project {
	return b.project
}

func (b *base) Fields() entity.Fields {
	fields := make(entity.Fields, 0, len(b.order))
	for _, key := range b.order {
		fields = append(fields, entity.Field{Key: key, Value: b.values[key]})
	}
	return fields
}

func (b *base) Charset() string {
	return b.charset
}

func (b *base) Language() string {
	if iso, ok := isoLanguages[b.language]; ok {
		return iso
	}
	return "et"
}

func (b *base) Version() string {
	return b.version
}

func (b *base) SourceHash() string {
	return b.source
}

func (b *base) Nonce() string {
	return ""
}

func (b *base) RID() string {
	return ""
}

// resolveProject binds the message to the project owning the client id in field.
func (b *base) resolveProject(ctx context.Context, projects ProjectSource, field string) (entity.Result, error) {
	uid := b.get(field)
	project, err := projects.GetProjectByUID(ctx, uid)
	if errors.Is(err, services.ErrNotFound) || (err == nil && project == nil) {
		return entity.Fail(entity.Issue{
			Field:   field,
			Value:   uid,
			Message: "no project found for this client id, if the certificate has expired it should be generated again",
		}), nil
	}
	if err != nil {
		return entity.Result{}, fmt.Errorf("find project %s: %w", uid, err)
	}
	if project.Bank != b.bank.Key {
		return entity.Fail(entity.Issue{
			Field:   field,
			Value:   uid,
			Message: fmt.Sprintf("client id is valid only for bank %q, selected %q", project.Bank, b.bank.Key),
		}), nil
	}
	b.project = project
	return entity.Ok(), nil
}

func (b *base) requireProject() error {
	if b.project == nil {
		return errors.New("message is not bound to a project")
	}
	return nil
}

// encodeQuery renders fields in the message charset.
func encodeQuery(fields entity.Fields, charset string) (string, error) {
	query, err := codec.EncodeQuery(fields, charset)
	if err != nil {
		return "", fmt.Errorf("encode response: %w", err)
	}
	return query, nil
}

// target picks the merchant address for the final payment state.
func target(payment *entity.Payment) string {
	switch payment.State {
	case entity.StatePayed:
		return payment.SuccessTarget
	case entity.StateRejected:
		return payment.RejectTarget
	}
	return payment.CancelTarget
}

const localhostDenied = "localhost callbacks are not allowed"

// deniedCallback is recorded instead of calling a merchant on a local address.
func deniedCallback(method, url string, fields entity.Fields, now time.Time) *entity.AutoResponse {
	return &entity.AutoResponse{
		Status: false,
		Error:  localhostDenied,
		Method: method,
		Url:    url,
		Fields: append(entity.Fields(nil), fields...),
		Time:   now,
	}
}

// sendCallback performs the bank to merchant confirmation request.
func sendCallback(ctx context.Context, env *Env, method, url string, fields entity.Fields, charset string) *entity.AutoResponse {
	if env == nil || env.Callback == nil {
		return nil
	}
	timeout := env.CallbackTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return env.Callback.Send(ctx, &services.CallbackRequest{
		Method:  method,
		Url:     url,
		Fields:  append(entity.Fields(nil), fields...),
		Charset: charset,
		Timeout: timeout,
	})
}
