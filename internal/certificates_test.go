package internal

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangalink/internal/signature"
	"pangalink/services"
)

func TestGenerateKeyPair(t *testing.T) {
	pool := NewCertificatePool(2)
	pool.SetMetrics(NewMetrics())

	certificate, err := pool.GenerateKeyPair(context.Background(), services.Subject{
		Country:      "EE",
		Organization: "Test shop",
		CommonName:   "uid100",
		Email:        "shop@example.com",
	}, 30, 1024)
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(certificate.Certificate))
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE", block.Type)
	parsed, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "uid100", parsed.Subject.CommonName)
	assert.Equal(t, []string{"Test shop"}, parsed.Subject.Organization)
	assert.Equal(t, []string{"shop@example.com"}, parsed.EmailAddresses)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), parsed.NotAfter, time.Minute)
	assert.WithinDuration(t, parsed.NotAfter, certificate.Expires, time.Second)

	keyBlock, _ := pem.Decode([]byte(certificate.ClientKey))
	require.NotNil(t, keyBlock)
	assert.Equal(t, "RSA PRIVATE KEY", keyBlock.Type)

	encryptor := signature.NewEncryptor("UTF-8")
	signed, err := encryptor.SignRSA("0041001", certificate.ClientKey)
	require.NoError(t, err)
	assert.NoError(t, encryptor.VerifyRSA("0041001", signed, certificate.Certificate))
}

func TestGenerateKeyPairBounded(t *testing.T) {
	pool := NewCertificatePool(1)
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.GenerateKeyPair(context.Background(), services.Subject{CommonName: "test"}, 1, 1024)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestGenerateKeyPairCancelled(t *testing.T) {
	pool := NewCertificatePool(1)
	require.True(t, pool.workers.TryAcquire(1))
	defer pool.workers.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.GenerateKeyPair(ctx, services.Subject{CommonName: "test"}, 1, 1024)
	assert.ErrorIs(t, err, context.Canceled)
}
