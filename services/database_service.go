package services

import (
	"context"
	"errors"
	"pangalink/entity"
)

// ErrNotFound is returned by Database lookups that match no record.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned by conditional updates that found the record in another state.
var ErrConflict = errors.New("record was modified")

type Database interface {
	WriteLogMessage(data Data) error

	GetProject(ctx context.Context, id string) (*entity.Project, error)
	GetProjectByUID(ctx context.Context, uid string) (*entity.Project, error)
	SaveProject(ctx context.Context, project *entity.Project) error
	TouchProject(ctx context.Context, id string) error
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, owner string, page int64) ([]*entity.Project, error)

	GetPayment(ctx context.Context, id string) (*entity.Payment, error)
	SavePayment(ctx context.Context, payment *entity.Payment) error
	// CompletePayment stores the payment only if the stored record is still IN PROCESS.
	CompletePayment(ctx context.Context, payment *entity.Payment) error
	ListPayments(ctx context.Context, projectId string, page int64) ([]*entity.Payment, error)
	CountPayments(ctx context.Context, projectId string) (int64, error)

	SavePaymentError(ctx context.Context, paymentError *entity.PaymentError) error
}

// Counter is an atomic fetch-and-increment sequence.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Data interface {
	DataType() string
}
