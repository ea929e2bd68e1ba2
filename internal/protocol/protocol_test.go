package protocol

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangalink/entity"
	"pangalink/services"
)

func testCertificate(t *testing.T) entity.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "pangalink test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return entity.Certificate{
		ClientKey:   string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})),
		Certificate: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		Expires:     template.NotAfter,
	}
}

func testProject(t *testing.T, bank *entity.Bank) *entity.Project {
	t.Helper()
	return &entity.Project{
		Id:              "p1",
		Uid:             "uid100",
		Name:            "Test shop",
		Bank:            bank.Key,
		Secret:          "secret",
		EcUrl:           "https://shop.example.com/ec",
		UserCertificate: testCertificate(t),
		BankCertificate: testCertificate(t),
	}
}

func swedbank() *entity.Bank {
	return &entity.Bank{
		Key:             "swedbank",
		Name:            "Swedbank",
		Type:            entity.FamilyIPizza,
		ID:              "HP",
		AccountNr:       "EE382200221020145685",
		Prefix:          "22",
		DefaultCharset:  "ISO-8859-1",
		AllowedCharsets: []string{"ISO-8859-1", "UTF-8"},
		CharsetField:    "VK_ENCODING",
		ReturnAddress:   "VK_RETURN",
		CancelAddress:   "VK_CANCEL",
		RejectAddress:   "VK_CANCEL",
		ReturnMethod:    "POST",
	}
}

func nordea() *entity.Bank {
	return &entity.Bank{
		Key:            "nordea",
		Name:           "Nordea",
		Type:           entity.FamilySolo,
		AccountNr:      "10002050618003",
		DefaultCharset: "ISO-8859-1",
		ReturnAddress:  "RETURN",
		CancelAddress:  "CANCEL",
		RejectAddress:  "REJECT",
		ReturnMethod:   "GET",
	}
}

func aab() *entity.Bank {
	return &entity.Bank{
		Key:            "aab",
		Name:           "Ålandsbanken",
		Type:           entity.FamilyAAB,
		DefaultCharset: "ISO-8859-1",
		ReturnAddress:  "RETURN",
		CancelAddress:  "CANCEL",
		RejectAddress:  "REJECT",
		ReturnMethod:   "GET",
	}
}

func samlink() *entity.Bank {
	return &entity.Bank{
		Key:            "samlink",
		Name:           "Samlink",
		Type:           entity.FamilySamlink,
		DefaultCharset: "ISO-8859-1",
		ReturnAddress:  "RETURN",
		CancelAddress:  "CANCEL",
		RejectAddress:  "REJECT",
		ReturnMethod:   "GET",
	}
}

func ecBank() *entity.Bank {
	return &entity.Bank{
		Key:             "ec",
		Name:            "Krediidikaardid",
		Type:            entity.FamilyEC,
		DefaultCharset:  "ISO-8859-1",
		AllowedCharsets: []string{"ISO-8859-1", "UTF-8"},
		CharsetField:    "charEncoding",
		ReturnMethod:    "POST",
	}
}

type fakeProjects map[string]*entity.Project

func (f fakeProjects) GetProjectByUID(_ context.Context, uid string) (*entity.Project, error) {
	if project, ok := f[uid]; ok {
		return project, nil
	}
	return nil, services.ErrNotFound
}

type fakeCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func (c *fakeCounter) Increment(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]int64)
	}
	c.values[key]++
	return c.values[key], nil
}

func (c *fakeCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

type fakeCallback struct {
	requests []*services.CallbackRequest
}

func (c *fakeCallback) Send(_ context.Context, req *services.CallbackRequest) *entity.AutoResponse {
	c.requests = append(c.requests, req)
	return &entity.AutoResponse{Status: true, Method: req.Method, Url: req.Url, Fields: req.Fields, StatusCode: 200}
}

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)

func testEnv() (*Env, *fakeCallback) {
	callback := &fakeCallback{}
	return &Env{
		Counter:  &fakeCounter{},
		Callback: callback,
		Now:      func() time.Time { return fixedNow },
	}, callback
}

// parse simulates an inbound request: the fields of a sample are read back
// with charset detection and bound to the project.
func parse(t *testing.T, bank *entity.Bank, project *entity.Project, fields entity.Fields) Adapter {
	t.Helper()
	message, err := New(bank, fields, DetectCharset(bank, fields.Map()))
	require.NoError(t, err)
	result, err := message.ValidateClient(context.Background(), fakeProjects{project.Uid: project})
	require.NoError(t, err)
	require.True(t, result.Success, result.Errors)
	return message
}

// completed turns a parsed request into a finished payment.
func completed(message Adapter, state string) *entity.Payment {
	return &entity.Payment{
		State:         state,
		Bank:          message.Bank().Key,
		Charset:       message.Charset(),
		Fields:        message.Fields(),
		SuccessTarget: message.SuccessTarget(),
		CancelTarget:  message.CancelTarget(),
		RejectTarget:  message.RejectTarget(),
		SenderName:    "Tõõger Leõpäöld",
		SenderAccount: "EE871600161234567892",
	}
}

func issueFor(issues []entity.Issue, field string) *entity.Issue {
	for i := range issues {
		if issues[i].Field == field {
			return &issues[i]
		}
	}
	return nil
}

func TestNewUnknownFamily(t *testing.T) {
	_, err := New(&entity.Bank{Type: "telegraph"}, nil, "")
	assert.ErrorIs(t, err, ErrUnknownFamily)

	_, err = SignatureOrder(&entity.Bank{Type: "telegraph"})
	assert.ErrorIs(t, err, ErrUnknownFamily)
}

func TestSignatureOrder(t *testing.T) {
	order, err := SignatureOrder(swedbank())
	require.NoError(t, err)
	assert.Equal(t, []string{"VK_SERVICE", "VK_VERSION", "VK_SND_ID", "VK_STAMP", "VK_AMOUNT", "VK_CURR", "VK_ACC",
		"VK_NAME", "VK_REF", "VK_MSG"}, order["1001"])

	order, err = SignatureOrder(nordea())
	require.NoError(t, err)
	assert.Equal(t, "SOLOPMT_TAX_CODE", order["0004"][5])

	order, err = SignatureOrder(samlink())
	require.NoError(t, err)
	assert.Equal(t, []string{"NET_VERSION", "NET_STAMP", "NET_SELLER_ID", "NET_AMOUNT", "NET_REF", "NET_DATE", "NET_CUR"}, order["002"])

	order, err = SignatureOrder(ecBank())
	require.NoError(t, err)
	assert.Len(t, order["004"], 8)
	assert.Len(t, order["002"], 6)
}

func TestDetectCharset(t *testing.T) {
	bank := swedbank()
	assert.Equal(t, "UTF-8", DetectCharset(bank, map[string]string{"VK_ENCODING": "UTF-8"}))
	assert.Equal(t, "ISO-8859-1", DetectCharset(bank, map[string]string{}))

	assert.Equal(t, "UTF-8", DetectCharset(ecBank(), map[string]string{"ver": "4", "charEncoding": "UTF-8"}))
	assert.Equal(t, "ISO-8859-1", DetectCharset(ecBank(), map[string]string{"ver": "2", "charEncoding": "UTF-8"}))
	assert.Equal(t, "ISO-8859-1", DetectCharset(nordea(), map[string]string{"SOLOPMT_CHARSET": "UTF-8"}))
}

func TestValidateClientUnknown(t *testing.T) {
	bank := swedbank()
	message, err := New(bank, entity.Fields{{Key: "VK_SND_ID", Value: "nobody"}}, "")
	require.NoError(t, err)
	result, err := message.ValidateClient(context.Background(), fakeProjects{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "VK_SND_ID", result.Errors[0].Field)
	assert.Nil(t, message.Project())
}

func TestValidateClientOtherBank(t *testing.T) {
	project := testProject(t, nordea())
	message, err := New(swedbank(), entity.Fields{{Key: "VK_SND_ID", Value: project.Uid}}, "")
	require.NoError(t, err)
	result, err := message.ValidateClient(context.Background(), fakeProjects{project.Uid: project})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0].Message, `"nordea"`)
}

func TestGenerateFormInProcess(t *testing.T) {
	bank := swedbank()
	env, _ := testEnv()
	_, err := GenerateForm(context.Background(), bank, &entity.Project{}, &entity.Payment{State: entity.StateInProcess}, env)
	assert.Error(t, err)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError(StageRequest, entity.Fail(entity.Issue{Field: "VK_REF", Message: "bad reference"}))
	assert.Equal(t, "request validation failed: bad reference", err.Error())
	assert.Equal(t, StageRequest, err.Stage)
}

func TestChoices(t *testing.T) {
	assert.Equal(t, "EST (default), ENG or RUS", choices([]string{"EST", "ENG", "RUS"}, "EST"))
	assert.Equal(t, "UTF-8", choices([]string{"UTF-8"}, ""))
}
