package entity

import (
	"time"
)

// Payment states, persisted verbatim
const (
	StateInProcess     = "IN PROCESS"
	StatePayed         = "PAYED"
	StateCancelled     = "CANCELLED"
	StateRejected      = "REJECTED"
	StateAuthenticated = "AUTHENTICATED"
	StateError         = "ERROR"
)

// Payment types
const (
	TypePayment        = "PAYMENT"
	TypeIdentification = "IDENTIFICATION"
)

// Payment is a persisted transaction attempt. It is created in state IN PROCESS
// and modified once more when the customer finishes it.
type Payment struct {
	Id              string    `json:"id" bson:"_id"`
	Project         string    `json:"project" bson:"project"`
	Date            time.Time `json:"date" bson:"date"`
	State           string    `json:"state" bson:"state"`
	Done            bool      `json:"done" bson:"done"`
	Bank            string    `json:"bank" bson:"bank"`
	Charset         string    `json:"charset" bson:"charset"`
	Language        string    `json:"language" bson:"language"`
	Type            string    `json:"type" bson:"type"`
	Service         string    `json:"service" bson:"service"`
	Version         string    `json:"version" bson:"version"`
	Amount          string    `json:"amount" bson:"amount"`
	Currency        string    `json:"currency" bson:"currency"`
	ReferenceCode   string    `json:"reference_code" bson:"reference_code"`
	ReceiverName    string    `json:"receiver_name" bson:"receiver_name"`
	ReceiverAccount string    `json:"receiver_account" bson:"receiver_account"`
	Message         string    `json:"message" bson:"message"`
	Nonce           string    `json:"nonce" bson:"nonce"`
	Rid             string    `json:"rid" bson:"rid"`

	SuccessTarget string `json:"success_target" bson:"success_target"`
	CancelTarget  string `json:"cancel_target" bson:"cancel_target"`
	RejectTarget  string `json:"reject_target" bson:"reject_target"`

	EditSenderName      bool `json:"edit_sender_name" bson:"edit_sender_name"`
	ShowSenderName      bool `json:"show_sender_name" bson:"show_sender_name"`
	EditSenderAccount   bool `json:"edit_sender_account" bson:"edit_sender_account"`
	ShowSenderAccount   bool `json:"show_sender_account" bson:"show_sender_account"`
	ShowReceiverName    bool `json:"show_receiver_name" bson:"show_receiver_name"`
	ShowReceiverAccount bool `json:"show_receiver_account" bson:"show_receiver_account"`
	ShowAuthForm        bool `json:"show_auth_form" bson:"show_auth_form"`
	EditAuthUser        bool `json:"edit_auth_user" bson:"edit_auth_user"`

	SenderName    string `json:"sender_name" bson:"sender_name"`
	SenderAccount string `json:"sender_account" bson:"sender_account"`

	AuthUser     string `json:"auth_user" bson:"auth_user"`
	AuthUserName string `json:"auth_user_name" bson:"auth_user_name"`
	AuthUserId   string `json:"auth_user_id" bson:"auth_user_id"`
	AuthCountry  string `json:"auth_country" bson:"auth_country"`
	AuthOther    string `json:"auth_other" bson:"auth_other"`
	AuthToken    string `json:"auth_token" bson:"auth_token"`

	Url        string `json:"url" bson:"url"`
	Method     string `json:"method" bson:"method"`
	AutoSubmit bool   `json:"auto_submit" bson:"auto_submit"`

	Errors   []Issue `json:"errors,omitempty" bson:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty" bson:"warnings,omitempty"`

	Headers    Fields `json:"headers" bson:"headers"`
	Fields     Fields `json:"fields" bson:"fields"`
	SourceHash string `json:"source_hash" bson:"source_hash"`
	Body       string `json:"body" bson:"body"`

	Options        *PaymentOptions `json:"options,omitempty" bson:"options,omitempty"`
	ResponseFields Fields          `json:"response_fields,omitempty" bson:"response_fields,omitempty"`
	ResponseHash   string          `json:"response_hash,omitempty" bson:"response_hash,omitempty"`
	ReturnMethod   string          `json:"return_method,omitempty" bson:"return_method,omitempty"`
	AutoResponse   *AutoResponse   `json:"auto_response,omitempty" bson:"auto_response,omitempty"`
	CompletedDate  time.Time       `json:"completed_date,omitempty" bson:"completed_date,omitempty"`
}

// DataType is used by the log writer.
func (p *Payment) DataType() string {
	return "payment"
}

// IsTerminal reports whether the payment can no longer be continued.
func (p *Payment) IsTerminal() bool {
	return p.State != StateInProcess
}

// PaymentOptions are the values chosen by the customer on the confirmation page.
type PaymentOptions struct {
	Action        string `json:"action" bson:"action"`
	SenderName    string `json:"sender_name" bson:"sender_name"`
	SenderAccount string `json:"sender_account" bson:"sender_account"`
	AuthUser      string `json:"auth_user" bson:"auth_user"`
	AuthUserName  string `json:"auth_user_name" bson:"auth_user_name"`
	AuthUserId    string `json:"auth_user_id" bson:"auth_user_id"`
	AuthCountry   string `json:"auth_country" bson:"auth_country"`
	AuthOther     string `json:"auth_other" bson:"auth_other"`
	AuthToken     string `json:"auth_token" bson:"auth_token"`
}

// PaymentError is the audit entry written when an inbound request fails validation.
// It never becomes a payment and has no lifecycle.
type PaymentError struct {
	Id       string    `json:"id" bson:"_id"`
	Project  string    `json:"project,omitempty" bson:"project,omitempty"`
	Date     time.Time `json:"date" bson:"date"`
	State    string    `json:"state" bson:"state"`
	Stage    string    `json:"stage" bson:"stage"`
	Bank     string    `json:"bank" bson:"bank"`
	Charset  string    `json:"charset" bson:"charset"`
	Method   string    `json:"method" bson:"method"`
	Url      string    `json:"url" bson:"url"`
	Errors   []Issue   `json:"errors" bson:"errors"`
	Warnings []Issue   `json:"warnings,omitempty" bson:"warnings,omitempty"`
	Headers  Fields    `json:"headers" bson:"headers"`
	Fields   Fields    `json:"fields" bson:"fields"`
	Hash     string    `json:"source_hash" bson:"source_hash"`
	Body     string    `json:"body" bson:"body"`
}

// DataType is used by the log writer.
func (e *PaymentError) DataType() string {
	return "payment_error"
}

// AutoResponse captures the outcome of the bank-to-merchant callback. It is
// metadata only and never changes the payment state.
type AutoResponse struct {
	Status     bool      `json:"status" bson:"status"`
	Error      string    `json:"error,omitempty" bson:"error,omitempty"`
	Method     string    `json:"method" bson:"method"`
	Url        string    `json:"url" bson:"url"`
	Fields     Fields    `json:"fields,omitempty" bson:"fields,omitempty"`
	StatusCode int       `json:"status_code,omitempty" bson:"status_code,omitempty"`
	Headers    Fields    `json:"headers,omitempty" bson:"headers,omitempty"`
	Body       string    `json:"body,omitempty" bson:"body,omitempty"`
	Duration   float64   `json:"duration" bson:"duration"`
	Time       time.Time `json:"time" bson:"time"`
}

// Form is the bank response that sends the customer back to the merchant.
type Form struct {
	Method  string `json:"method"`
	Url     string `json:"url"`
	Payload Fields `json:"payload"`
	// Query is the charset encoded payload, set for GET responses.
	Query   string `json:"query,omitempty"`
	Charset string `json:"charset"`
}
