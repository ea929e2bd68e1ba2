package services

import (
	"context"
	"pangalink/entity"
)

// BanklinkRequest is an inbound bank message as received by the transport layer.
type BanklinkRequest struct {
	Bank        string
	Version     string
	Method      string
	Url         string
	ContentType string
	Headers     entity.Fields
	Body        []byte
}

// Outcome is what the transport layer renders after a successful banklink request.
type Outcome struct {
	Payment *entity.Payment
	// Form is set when the payment was completed right away (autopay).
	Form *entity.Form
}

// SampleOptions override the defaults of a generated sample request.
type SampleOptions struct {
	Amount  string
	Account string
	Name    string
	Ref     string
	Message string
}

// Sample is a signed merchant request ready to be posted to the simulator.
type Sample struct {
	Url     string        `json:"url"`
	Method  string        `json:"method"`
	Charset string        `json:"charset"`
	Fields  entity.Fields `json:"fields"`
	Hash    string        `json:"source_hash"`
}

type Payments interface {
	ServeBanklink(ctx context.Context, req *BanklinkRequest) (*Outcome, error)
	Preview(ctx context.Context, id string) (*entity.Payment, error)
	MakePayment(ctx context.Context, id string, action string, options *entity.PaymentOptions) (*entity.Payment, *entity.Form, error)
	SamplePayment(ctx context.Context, projectId string, urlPrefix string, options *SampleOptions) (*Sample, error)
	SignatureOrder(bankKey string) (map[string][]string, error)
	Banks() []*entity.Bank
}

type Projects interface {
	CreateProject(ctx context.Context, project *entity.Project) (*entity.Project, error)
	GetProject(ctx context.Context, id string) (*entity.Project, error)
	ListProjects(ctx context.Context, owner string, page int64) ([]*entity.Project, error)
	UpdateProject(ctx context.Context, id string, changes *entity.Project) (*entity.Project, error)
	RegenerateCertificates(ctx context.Context, id string) (*entity.Project, error)
	DeleteProject(ctx context.Context, id string) error
	ListPayments(ctx context.Context, projectId string, page int64) ([]*entity.Payment, int64, error)
}
