package services

import (
	"context"
	"pangalink/entity"
	"time"
)

// Subject describes the owner of a generated certificate.
type Subject struct {
	Country      string
	State        string
	Locality     string
	Organization string
	Unit         string
	CommonName   string
	Email        string
}

type Certificates interface {
	GenerateKeyPair(ctx context.Context, subject Subject, days int, bits int) (*entity.Certificate, error)
}

// CallbackRequest is an outbound bank-to-merchant confirmation.
type CallbackRequest struct {
	Method  string
	Url     string
	Fields  entity.Fields
	Charset string
	Timeout time.Duration
}

type Callback interface {
	Send(ctx context.Context, req *CallbackRequest) *entity.AutoResponse
}
