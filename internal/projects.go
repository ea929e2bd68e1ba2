package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pangalink/config"
	"pangalink/entity"
	"pangalink/internal/banks"
	"pangalink/internal/validate"
	"pangalink/services"
)

var ErrInvalidProject = errors.New("invalid project")

// Projects manages merchant projects and their key pairs.
type Projects struct {
	conf         *config.Config
	banks        *banks.Registry
	database     services.Database
	counter      services.Counter
	certificates services.Certificates
	logger       services.LogHandler
	now          func() time.Time
}

func NewProjects(conf *config.Config, registry *banks.Registry) *Projects {
	return &Projects{
		conf:  conf,
		banks: registry,
		now:   time.Now,
	}
}

func (p *Projects) SetDatabase(database services.Database) {
	p.database = database
}

// SetCounter selects where transaction numbers are kept, reset when a project is deleted.
func (p *Projects) SetCounter(counter services.Counter) {
	p.counter = counter
}

func (p *Projects) SetCertificates(certificates services.Certificates) {
	p.certificates = certificates
}

func (p *Projects) SetLogger(logger services.LogHandler) {
	p.logger = logger
}

// CreateProject stores a new project with a fresh client id, secret and both key pairs.
func (p *Projects) CreateProject(ctx context.Context, project *entity.Project) (*entity.Project, error) {
	if err := p.check(project); err != nil {
		return nil, err
	}
	now := p.now()
	created := *project
	created.Id = uuid.NewString()
	created.Uid = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	created.Secret = strings.ReplaceAll(uuid.NewString(), "-", "")
	created.Bank = strings.ToLower(project.Bank)
	created.SoloAlgo = created.Algorithm()
	created.CreatedDate = now
	created.UpdatedDate = now
	if err := p.generateCertificates(ctx, &created); err != nil {
		return nil, err
	}
	if err := p.database.SaveProject(ctx, &created); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	p.logger.Info(fmt.Sprintf("[%s] project %s created for %s; uid: %s", GetRequestID(ctx), created.Id, created.Bank, created.Uid))
	return &created, nil
}

func (p *Projects) check(project *entity.Project) error {
	if project == nil {
		return fmt.Errorf("%w: empty request", ErrInvalidProject)
	}
	if strings.TrimSpace(project.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProject)
	}
	if _, err := p.banks.Get(project.Bank); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	switch project.Algorithm() {
	case entity.AlgorithmMD5, entity.AlgorithmSHA1, entity.AlgorithmSHA256:
	default:
		return fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidProject, project.SoloAlgo)
	}
	if project.EcUrl != "" && !validate.URL(project.EcUrl) {
		return fmt.Errorf("%w: ec url %s is not valid", ErrInvalidProject, project.EcUrl)
	}
	if project.IpizzaReceiverAccount != "" && !validate.IsValidIBAN(project.IpizzaReceiverAccount) {
		return fmt.Errorf("%w: receiver account %s is not a valid IBAN", ErrInvalidProject, project.IpizzaReceiverAccount)
	}
	return nil
}

// generateCertificates creates the merchant and the bank key pair in parallel.
func (p *Projects) generateCertificates(ctx context.Context, project *entity.Project) error {
	type result struct {
		certificate *entity.Certificate
		err         error
	}
	generate := func(subject services.Subject) <-chan result {
		ch := make(chan result, 1)
		go func() {
			certificate, err := p.certificates.GenerateKeyPair(ctx, subject, p.conf.Banklink.CertDays, p.conf.Banklink.KeyBitsize)
			ch <- result{certificate, err}
		}()
		return ch
	}
	user := generate(services.Subject{
		Country:      "EE",
		Organization: project.Name,
		CommonName:   project.Uid,
	})
	bank := generate(services.Subject{
		Country:      "EE",
		Organization: "Pangalink",
		Unit:         project.Bank,
		CommonName:   p.conf.Banklink.Hostname,
	})
	userResult, bankResult := <-user, <-bank
	if userResult.err != nil {
		return fmt.Errorf("generate user certificate: %w", userResult.err)
	}
	if bankResult.err != nil {
		return fmt.Errorf("generate bank certificate: %w", bankResult.err)
	}
	project.UserCertificate = *userResult.certificate
	project.BankCertificate = *bankResult.certificate
	return nil
}

func (p *Projects) GetProject(ctx context.Context, id string) (*entity.Project, error) {
	project, err := p.database.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return project, nil
}

func (p *Projects) ListProjects(ctx context.Context, owner string, page int64) ([]*entity.Project, error) {
	projects, err := p.database.ListProjects(ctx, owner, page)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// UpdateProject applies the editable settings of changes to a stored project.
// Identifiers, the secret and both key pairs stay as they are.
func (p *Projects) UpdateProject(ctx context.Context, id string, changes *entity.Project) (*entity.Project, error) {
	if err := p.check(changes); err != nil {
		return nil, err
	}
	project, err := p.database.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	project.Name = changes.Name
	project.Description = changes.Description
	project.Bank = strings.ToLower(changes.Bank)
	project.SoloAlgo = changes.Algorithm()
	project.SoloAutoResponse = changes.SoloAutoResponse
	project.EcUrl = changes.EcUrl
	project.IpizzaReceiverName = changes.IpizzaReceiverName
	project.IpizzaReceiverAccount = changes.IpizzaReceiverAccount
	if changes.AuthorizedUsers != nil {
		project.AuthorizedUsers = changes.AuthorizedUsers
	}
	project.UpdatedDate = p.now()
	if err = p.database.SaveProject(ctx, project); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	p.logger.Info(fmt.Sprintf("[%s] project %s updated; bank: %s", GetRequestID(ctx), id, project.Bank))
	return project, nil
}

// RegenerateCertificates replaces both key pairs, requests signed with the old keys stop validating.
func (p *Projects) RegenerateCertificates(ctx context.Context, id string) (*entity.Project, error) {
	project, err := p.database.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	if err = p.generateCertificates(ctx, project); err != nil {
		return nil, err
	}
	project.UpdatedDate = p.now()
	if err = p.database.SaveProject(ctx, project); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	p.logger.Info(fmt.Sprintf("[%s] project %s: certificates regenerated", GetRequestID(ctx), id))
	return project, nil
}

// DeleteProject removes the project with its payments and counter.
func (p *Projects) DeleteProject(ctx context.Context, id string) error {
	project, err := p.database.GetProject(ctx, id)
	if err != nil {
		return fmt.Errorf("get project %s: %w", id, err)
	}
	if err = p.database.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if p.counter != nil {
		if err = p.counter.Reset(ctx, "trans:"+project.Uid); err != nil {
			p.logger.Error(fmt.Sprintf("[%s] reset counter of %s", GetRequestID(ctx), secret(project.Uid)), err)
		}
	}
	p.logger.Info(fmt.Sprintf("[%s] project %s deleted", GetRequestID(ctx), id))
	return nil
}

// ListPayments returns one page of payments with the total count.
func (p *Projects) ListPayments(ctx context.Context, projectId string, page int64) ([]*entity.Payment, int64, error) {
	if _, err := p.database.GetProject(ctx, projectId); err != nil {
		return nil, 0, fmt.Errorf("get project %s: %w", projectId, err)
	}
	payments, err := p.database.ListPayments(ctx, projectId, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	count, err := p.database.CountPayments(ctx, projectId)
	if err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, count, nil
}
