package internal

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/sync/semaphore"

	"pangalink/entity"
	"pangalink/services"
)

// CertificatePool generates RSA key pairs with self-signed certificates.
// Key generation is slow, the number of parallel generations is bounded.
type CertificatePool struct {
	workers *semaphore.Weighted
	metrics *Metrics
}

func NewCertificatePool(workers int) *CertificatePool {
	if workers < 1 {
		workers = 1
	}
	return &CertificatePool{workers: semaphore.NewWeighted(int64(workers))}
}

func (p *CertificatePool) SetMetrics(metrics *Metrics) {
	p.metrics = metrics
}

func (p *CertificatePool) GenerateKeyPair(ctx context.Context, subject services.Subject, days int, bits int) (*entity.Certificate, error) {
	if err := p.workers.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for key worker: %w", err)
	}
	defer p.workers.Release(1)

	start := time.Now()
	certificate, err := generateCertificate(subject, days, bits, start)
	if err != nil {
		return nil, err
	}
	p.metrics.CertificateGenerated(time.Since(start))
	return certificate, nil
}

func generateCertificate(subject services.Subject, days int, bits int, now time.Time) (*entity.Certificate, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}
	expires := now.AddDate(0, 0, days)
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               subjectName(subject),
		NotBefore:             now,
		NotAfter:              expires,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
	}
	if subject.Email != "" {
		template.EmailAddresses = []string{subject.Email}
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	return &entity.Certificate{
		ClientKey:   string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})),
		Certificate: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})),
		Expires:     expires,
	}, nil
}

func subjectName(subject services.Subject) pkix.Name {
	name := pkix.Name{CommonName: subject.CommonName}
	if subject.Country != "" {
		name.Country = []string{subject.Country}
	}
	if subject.State != "" {
		name.Province = []string{subject.State}
	}
	if subject.Locality != "" {
		name.Locality = []string{subject.Locality}
	}
	if subject.Organization != "" {
		name.Organization = []string{subject.Organization}
	}
	if subject.Unit != "" {
		name.OrganizationalUnit = []string{subject.Unit}
	}
	return name
}
