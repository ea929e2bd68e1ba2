package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pangalink/config"
	"pangalink/entity"
	"pangalink/internal/banks"
	"pangalink/internal/codec"
	"pangalink/internal/protocol"
	"pangalink/internal/signature"
	"pangalink/internal/validate"
	"pangalink/services"
)

// Values longer than this are cut before a request is stored.
const fieldLimit = 100 * 1024

// Defaults for the simulated authenticated customer
const (
	defaultAuthUser    = "tõõger"
	defaultAuthUserId  = "37602294565"
	defaultAuthCountry = "EE"
	defaultAuthToken   = "5"
)

var (
	ErrCannotContinue = errors.New("cannot continue this payment")
	ErrUnknownAction  = errors.New("unknown payment action")
	ErrInvalidOptions = errors.New("invalid payment options")
)

// actions maps the customer choices to the final payment state.
var actions = map[string]string{
	"pay":    entity.StatePayed,
	"cancel": entity.StateCancelled,
	"reject": entity.StateRejected,
	"auth":   entity.StateAuthenticated,
}

// Payments is the banklink service: it accepts merchant requests, keeps the
// payment records and builds the bank responses. Operations on the same
// payment are serialized with a per-payment lock, different payments are
// processed in parallel.
type Payments struct {
	conf     *config.Config
	banks    *banks.Registry
	database services.Database
	counter  services.Counter
	callback services.Callback
	metrics  *Metrics
	logger   services.LogHandler
	mutex    sync.Mutex
	locks    map[string]*paymentLock
	now      func() time.Time
}

// paymentLock is shared by every caller working on one payment; it is
// dropped from the map when the last of them releases it.
type paymentLock struct {
	sync.Mutex
	refs int
}

func NewPayments(conf *config.Config, registry *banks.Registry) *Payments {
	return &Payments{
		conf:  conf,
		banks: registry,
		locks: make(map[string]*paymentLock),
		now:   time.Now,
	}
}

func (p *Payments) SetDatabase(database services.Database) {
	p.database = database
}

// SetCounter selects the transaction number sequence, the database is used when not set.
func (p *Payments) SetCounter(counter services.Counter) {
	p.counter = counter
}

func (p *Payments) SetCallback(callback services.Callback) {
	p.callback = callback
}

func (p *Payments) SetMetrics(metrics *Metrics) {
	p.metrics = metrics
}

func (p *Payments) SetLogger(logger services.LogHandler) {
	p.logger = logger
}

func (p *Payments) lockPayment(id string) *paymentLock {
	p.mutex.Lock()
	lock, ok := p.locks[id]
	if !ok {
		lock = &paymentLock{}
		p.locks[id] = lock
	}
	lock.refs++
	p.mutex.Unlock()

	lock.Lock()
	return lock
}

func (p *Payments) unlockPayment(id string, lock *paymentLock) {
	lock.Unlock()

	p.mutex.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(p.locks, id)
	}
	p.mutex.Unlock()
}

// ServeBanklink validates an inbound merchant request and stores it as a new
// payment. Rejected requests are kept in the error log and returned as
// *protocol.ValidationError.
func (p *Payments) ServeBanklink(ctx context.Context, req *services.BanklinkRequest) (*services.Outcome, error) {
	bank, err := p.banks.Get(req.Bank)
	if err != nil {
		return nil, err
	}
	inbound := &inboundRequest{req: req, bank: bank}

	if strings.EqualFold(req.Method, http.MethodGet) {
		if !bank.AllowGet {
			return nil, p.reject(ctx, inbound, protocol.StageRequest, entity.Fail(entity.Issue{
				Field:   "method",
				Value:   req.Method,
				Message: "requests must be sent with POST",
			}))
		}
		inbound.warnings = append(inbound.warnings, entity.Issue{
			Field:   "method",
			Value:   req.Method,
			Message: "GET requests are accepted for testing only, use POST",
		})
	}

	raw, err := codec.ParseForm(string(req.Body))
	if err != nil {
		return nil, p.reject(ctx, inbound, protocol.StageRequest, entity.Fail(entity.Issue{
			Field:   "body",
			Message: fmt.Sprintf("request body can not be parsed: %v", err),
		}))
	}
	inbound.charset = protocol.DetectCharset(bank, codec.Latin1(raw))
	_, fields, err := codec.DecodeForm(raw, inbound.charset)
	if err != nil {
		return nil, p.reject(ctx, inbound, protocol.StageRequest, entity.Fail(entity.Issue{
			Field:   "charset",
			Value:   inbound.charset,
			Message: fmt.Sprintf("request can not be decoded: %v", err),
		}))
	}
	message, err := protocol.New(bank, fields, inbound.charset)
	if err != nil {
		return nil, err
	}
	inbound.message = message

	result, err := message.ValidateClient(ctx, p.database)
	if err != nil {
		return nil, fmt.Errorf("validate client: %w", err)
	}
	if !result.Success {
		return nil, p.reject(ctx, inbound, protocol.StageClient, result)
	}
	inbound.warnings = append(inbound.warnings, result.Warnings...)

	result = message.ValidateRequest()
	if !result.Success {
		return nil, p.reject(ctx, inbound, protocol.StageRequest, result)
	}
	inbound.warnings = append(inbound.warnings, result.Warnings...)

	result, err = message.ValidateSignature()
	if err != nil {
		return nil, fmt.Errorf("validate signature: %w", err)
	}
	if !result.Success {
		return nil, p.reject(ctx, inbound, protocol.StageSignature, result)
	}
	inbound.warnings = append(inbound.warnings, result.Warnings...)

	payment := p.newPayment(inbound)
	if err = p.database.SavePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}
	if err = p.database.TouchProject(ctx, payment.Project); err != nil {
		p.logger.Error(fmt.Sprintf("[%s] touch project %s", GetRequestID(ctx), payment.Project), err)
	}
	p.metrics.Request(bank.Key, "ok")
	p.logger.Info(fmt.Sprintf("[%s] %s payment %s for project %s; amount: %s %s", GetRequestID(ctx), bank.Key, payment.Id, payment.Project, payment.Amount, payment.Currency))

	outcome := &services.Outcome{Payment: payment}
	if p.conf.Banklink.AutoPay == "" {
		return outcome, nil
	}
	action := autoAction(p.conf.Banklink.AutoPay, payment)
	completed, form, err := p.MakePayment(ctx, payment.Id, action, nil)
	if err != nil {
		return nil, fmt.Errorf("autopay %s: %w", action, err)
	}
	outcome.Payment = completed
	outcome.Form = form
	return outcome, nil
}

// inboundRequest collects what is known about a request while it is validated.
type inboundRequest struct {
	req      *services.BanklinkRequest
	bank     *entity.Bank
	charset  string
	message  protocol.Adapter
	warnings []entity.Issue
}

func (r *inboundRequest) fields() entity.Fields {
	if r.message == nil {
		return nil
	}
	return r.message.Fields().Capped(fieldLimit)
}

// reject stores the failed request in the error log.
func (p *Payments) reject(ctx context.Context, inbound *inboundRequest, stage string, result entity.Result) error {
	result.Warnings = append(inbound.warnings, result.Warnings...)
	entry := &entity.PaymentError{
		Id:       uuid.NewString(),
		Date:     p.now(),
		State:    entity.StateError,
		Stage:    stage,
		Bank:     inbound.bank.Key,
		Charset:  inbound.charset,
		Method:   strings.ToUpper(inbound.req.Method),
		Url:      inbound.req.Url,
		Errors:   result.Errors,
		Warnings: result.Warnings,
		Headers:  inbound.req.Headers.Capped(fieldLimit),
		Fields:   inbound.fields(),
		Body:     signature.EncodeBase64(inbound.req.Body),
	}
	if inbound.message != nil {
		entry.Hash = inbound.message.SourceHash()
		if project := inbound.message.Project(); project != nil {
			entry.Project = project.Id
		}
	}
	if err := p.database.SavePaymentError(ctx, entry); err != nil {
		p.logger.Error(fmt.Sprintf("[%s] save payment error", GetRequestID(ctx)), err)
	}
	p.metrics.Request(inbound.bank.Key, stage)
	validationError := protocol.NewValidationError(stage, result)
	p.logger.Warn(fmt.Sprintf("[%s] %s: %v", GetRequestID(ctx), inbound.bank.Key, validationError))
	return validationError
}

func (p *Payments) newPayment(inbound *inboundRequest) *entity.Payment {
	message := inbound.message
	display := message.Display()
	senderName := p.conf.Banklink.SenderName
	return &entity.Payment{
		Id:              uuid.NewString(),
		Project:         message.Project().Id,
		Date:            p.now(),
		State:           entity.StateInProcess,
		Bank:            inbound.bank.Key,
		Charset:         message.Charset(),
		Language:        message.Language(),
		Type:            message.Type(),
		Service:         message.Service(),
		Version:         message.Version(),
		Amount:          message.Amount(),
		Currency:        message.Currency(),
		ReferenceCode:   message.ReferenceCode(),
		ReceiverName:    message.ReceiverName(),
		ReceiverAccount: message.ReceiverAccount(),
		Message:         message.Message(),
		Nonce:           message.Nonce(),
		Rid:             message.RID(),

		SuccessTarget: message.SuccessTarget(),
		CancelTarget:  message.CancelTarget(),
		RejectTarget:  message.RejectTarget(),

		EditSenderName:      display.EditSenderName,
		ShowSenderName:      display.ShowSenderName,
		EditSenderAccount:   display.EditSenderAccount,
		ShowSenderAccount:   display.ShowSenderAccount,
		ShowReceiverName:    display.ShowReceiverName,
		ShowReceiverAccount: display.ShowReceiverAccount,
		ShowAuthForm:        display.ShowAuthForm,
		EditAuthUser:        display.EditAuthUser,

		SenderName:    senderName,
		SenderAccount: p.senderAccount(inbound.bank),
		AuthUser:      defaultAuthUser,
		AuthUserName:  senderName,
		AuthUserId:    defaultAuthUserId,
		AuthCountry:   defaultAuthCountry,
		AuthToken:     defaultAuthToken,

		Url:        inbound.req.Url,
		Method:     strings.ToUpper(inbound.req.Method),
		AutoSubmit: p.conf.Banklink.AutoPay != "",
		Warnings:   inbound.warnings,
		Headers:    inbound.req.Headers.Capped(fieldLimit),
		Fields:     message.Fields().Capped(fieldLimit),
		SourceHash: message.SourceHash(),
		Body:       signature.EncodeBase64(inbound.req.Body),
	}
}

func (p *Payments) senderAccount(bank *entity.Bank) string {
	if p.conf.Banklink.SenderAccount != "" {
		return p.conf.Banklink.SenderAccount
	}
	return bank.AccountNr
}

// autoAction translates the configured autopay mode to a payment action.
func autoAction(mode string, payment *entity.Payment) string {
	switch strings.ToLower(mode) {
	case "cancel":
		return "cancel"
	case "reject":
		return "reject"
	}
	if payment.Type == entity.TypeIdentification {
		return "auth"
	}
	return "pay"
}

// Preview returns a stored payment for the confirmation page.
func (p *Payments) Preview(ctx context.Context, id string) (*entity.Payment, error) {
	payment, err := p.database.GetPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	return payment, nil
}

// MakePayment moves an IN PROCESS payment to its final state and returns the
// signed bank response. A payment is completed only once.
func (p *Payments) MakePayment(ctx context.Context, id string, action string, options *entity.PaymentOptions) (*entity.Payment, *entity.Form, error) {
	lock := p.lockPayment(id)
	defer p.unlockPayment(id, lock)

	payment, err := p.database.GetPayment(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	if payment.IsTerminal() {
		return nil, nil, ErrCannotContinue
	}
	state, ok := actions[action]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if payment.Type == entity.TypeIdentification && state == entity.StatePayed ||
		payment.Type == entity.TypePayment && state == entity.StateAuthenticated {
		return nil, nil, fmt.Errorf("%w: %s is not available for %s requests", ErrUnknownAction, action, strings.ToLower(payment.Type))
	}
	if err = applyOptions(payment, options); err != nil {
		return nil, nil, err
	}

	bank, err := p.banks.Get(payment.Bank)
	if err != nil {
		return nil, nil, err
	}
	project, err := p.database.GetProject(ctx, payment.Project)
	if err != nil {
		return nil, nil, fmt.Errorf("get project %s: %w", payment.Project, err)
	}

	payment.State = state
	payment.Done = true
	payment.Options = options
	payment.CompletedDate = p.now()
	form, err := protocol.GenerateForm(ctx, bank, project, payment, p.env())
	if err != nil {
		return nil, nil, fmt.Errorf("generate response: %w", err)
	}
	err = p.database.CompletePayment(ctx, payment)
	if errors.Is(err, services.ErrConflict) {
		return nil, nil, ErrCannotContinue
	}
	if err != nil {
		return nil, nil, fmt.Errorf("complete payment: %w", err)
	}
	p.metrics.Transition(bank.Key, state)
	p.logger.Info(fmt.Sprintf("[%s] payment %s: %s", GetRequestID(ctx), payment.Id, state))
	return payment, form, nil
}

// applyOptions copies the customer choices over the stored defaults.
func applyOptions(payment *entity.Payment, options *entity.PaymentOptions) error {
	if options == nil {
		return nil
	}
	set := func(target *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*target = value
		}
	}
	set(&payment.SenderName, options.SenderName)
	set(&payment.SenderAccount, options.SenderAccount)
	set(&payment.AuthUser, options.AuthUser)
	set(&payment.AuthUserName, options.AuthUserName)
	set(&payment.AuthUserId, options.AuthUserId)
	set(&payment.AuthCountry, options.AuthCountry)
	set(&payment.AuthOther, options.AuthOther)
	set(&payment.AuthToken, options.AuthToken)
	if payment.Type == entity.TypeIdentification && payment.AuthCountry == defaultAuthCountry &&
		!validate.PersonalCode(payment.AuthUserId) {
		return fmt.Errorf("%w: personal code %s is invalid", ErrInvalidOptions, secret(payment.AuthUserId))
	}
	return nil
}

func (p *Payments) env() *protocol.Env {
	counter := p.counter
	if counter == nil {
		counter, _ = p.database.(services.Counter)
	}
	return &protocol.Env{
		Counter:         counter,
		Callback:        p.callback,
		CallbackTimeout: p.conf.Banklink.CallbackTimeout,
		Now:             p.now,
	}
}

// SamplePayment builds a signed merchant request for the project, ready to
// be posted to the banklink address of its bank.
func (p *Payments) SamplePayment(ctx context.Context, projectId string, urlPrefix string, options *services.SampleOptions) (*services.Sample, error) {
	project, err := p.database.GetProject(ctx, projectId)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectId, err)
	}
	bank, err := p.banks.Get(project.Bank)
	if err != nil {
		return nil, err
	}
	if urlPrefix == "" {
		urlPrefix = p.conf.BaseURL()
	}
	message, err := protocol.Sample(bank, project, urlPrefix, options, p.now())
	if err != nil {
		return nil, err
	}
	return &services.Sample{
		Url:     fmt.Sprintf("%s/banklink/%s", p.conf.BaseURL(), bank.Key),
		Method:  http.MethodPost,
		Charset: message.Charset(),
		Fields:  message.Fields(),
		Hash:    message.SourceHash(),
	}, nil
}

// SignatureOrder lists the request signature fields of a bank.
func (p *Payments) SignatureOrder(bankKey string) (map[string][]string, error) {
	bank, err := p.banks.Get(bankKey)
	if err != nil {
		return nil, err
	}
	return protocol.SignatureOrder(bank)
}

func (p *Payments) Banks() []*entity.Bank {
	return p.banks.List()
}

func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
