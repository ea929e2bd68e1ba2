package protocol

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangalink/entity"
	"pangalink/internal/signature"
)

func ipizzaRequest(t *testing.T, bank *entity.Bank, project *entity.Project, urlPrefix string, change func(fields *entity.Fields)) Adapter {
	t.Helper()
	sample, err := Sample(bank, project, urlPrefix, nil, fixedNow)
	require.NoError(t, err)
	fields := sample.Fields()
	if change != nil {
		change(&fields)
		// unknown services have no signature order and stay unsigned
		resigned := newIPizza(bank, fields, sample.Charset())
		resigned.project = project
		if err = resigned.SignClient(); err == nil {
			fields = resigned.Fields()
		}
	}
	return parse(t, bank, project, fields)
}

func TestIPizzaValidPayment(t *testing.T) {
	bank := swedbank()
	project := testProject(t, bank)
	message := ipizzaRequest(t, bank, project, "http://localhost:3480", nil)

	assert.Equal(t, "1001", message.Service())
	assert.Equal(t, "1234561", message.ReferenceCode())
	assert.Equal(t, "UTF-8", message.Charset())
	assert.Equal(t, "et", message.Language())
	assert.Equal(t, entity.TypePayment, message.Type())

	result := message.ValidateRequest()
	assert.True(t, result.Success, result.Errors)
	assert.Empty(t, result.Errors)

	result, err := message.ValidateSignature()
	require.NoError(t, err)
	assert.True(t, result.Success, result.Errors)
	assert.True(t, strings.HasPrefix(message.SourceHash(), "0041001003008"))
}

func TestIPizzaInvalidReference(t *testing.T) {
	bank := swedbank()
	project := testProject(t, bank)
	message := ipizzaRequest(t, bank, project, "http://localhost:3480", func(fields *entity.Fields) {
		fields.Set("VK_REF", "1234560")
	})

	result := message.ValidateRequest()
	assert.False(t, result.Success)
	issue := issueFor(result.Errors, "VK_REF")
	require.NotNil(t, issue)
	assert.Equal(t, `reference number VK_REF is invalid: expected "1234561", actual "1234560"`, issue.Message)
}

func TestIPizzaTamperedSignature(t *testing.T) {
	bank := swedbank()
	project := testProject(t, bank)
	sample, err := Sample(bank, project, "http://localhost:3480", nil, fixedNow)
	require.NoError(t, err)
	fields := sample.Fields()
	fields.Set("VK_AMOUNT", "999")

	message := parse(t, bank, project, fields)
	result, err := message.ValidateSignature()
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "VK_MAC", result.Errors[0].Field)
	assert.True(t, result.Errors[0].Download)
}

func TestIPizzaRequestRules(t *testing.T) {
	bank := swedbank()
	bank.FieldLength = map[string]int{"VK_MSG": 5}
	project := testProject(t, bank)

	tests := []struct {
		name    string
		change  func(fields *entity.Fields)
		field   string
		warning bool
	}{
		{"unknown service", func(f *entity.Fields) { f.Set("VK_SERVICE", "1234") }, "VK_SERVICE", false},
		{"wrong version", func(f *entity.Fields) { f.Set("VK_VERSION", "007") }, "VK_VERSION", false},
		{"bad amount", func(f *entity.Fields) { f.Set("VK_AMOUNT", "1,50") }, "VK_AMOUNT", false},
		{"bad currency", func(f *entity.Fields) { f.Set("VK_CURR", "USD") }, "VK_CURR", false},
		{"bad language", func(f *entity.Fields) { f.Set("VK_LANG", "XXX") }, "VK_LANG", false},
		{"query in return", func(f *entity.Fields) { f.Set("VK_RETURN", "http://shop.lan/?VK_X=1") }, "VK_RETURN", false},
		{"wrong charset field", func(f *entity.Fields) { f.Set("VK_CHARSET", "UTF-8") }, "VK_CHARSET", false},
		{"long message", func(f *entity.Fields) { f.Set("VK_MSG", "Torso Tiger") }, "VK_MSG", true},
		{"account not iban", func(f *entity.Fields) { f.Set("VK_ACC", "221020145685") }, "VK_ACC", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message := ipizzaRequest(t, bank, project, "http://localhost:3480", tt.change)
			result := message.ValidateRequest()
			if tt.warning {
				assert.NotNil(t, issueFor(result.Warnings, tt.field), result.Warnings)
				assert.Nil(t, issueFor(result.Errors, tt.field))
				return
			}
			assert.False(t, result.Success)
			assert.NotNil(t, issueFor(result.Errors, tt.field), result.Errors)
		})
	}
}

func TestIPizzaAccountSuggestion(t *testing.T) {
	bank := swedbank()
	bank.ForceIban = true
	project := testProject(t, bank)
	message := ipizzaRequest(t, bank, project, "http://localhost:3480", func(fields *entity.Fields) {
		fields.Set("VK_ACC", "221020145685")
	})
	result := message.ValidateRequest()
	issue := issueFor(result.Errors, "VK_ACC")
	require.NotNil(t, issue)
	assert.Contains(t, issue.Message, `should be "EE382200221020145685"`)
}

func TestIPizzaMAC(t *testing.T) {
	bank := swedbank()
	project := testProject(t, bank)
	message := ipizzaRequest(t, bank, project, "http://localhost:3480", nil).(*ipizza)

	message.set("VK_MAC", "not base64!")
	assert.Equal(t, "signature VK_MAC must be base64 encoded", message.validateMAC(nil))

	message.set("VK_MAC", signature.EncodeBase64(make([]byte, 100)))
	assert.Contains(t, message.validateMAC(nil), "800 bit key")
}

func TestIPizzaPaidForm(t *testing.T) {
	bank := swedbank()
	project := testProject(t, bank)
	message := ipizzaRequest(t, bank, project, "https://shop.example.com", nil)
	payment := completed(message, entity.StatePayed)
	env, callback := testEnv()

	form, err := GenerateForm(context.Background(), bank, project, payment, env)
	require.NoError(t, err)
	assert.Equal(t, "POST", form.Method)
	assert.Equal(t, "https://shop.example.com/project/p1?payment_action=success", form.Url)
	assert.Equal(t, "1101", form.Payload.Get("VK_SERVICE"))
	assert.Equal(t, "HP", form.Payload.Get("VK_SND_ID"))
	assert.Equal(t, "uid100", form.Payload.Get("VK_REC_ID"))
	assert.Equal(t, "1", form.Payload.Get("VK_T_NO"))
	assert.Equal(t, "Tõõger Leõpäöld", form.Payload.Get("VK_SND_NAME"))
	assert.Equal(t, "01.03.2024", form.Payload.Get("VK_T_DATE"))
	assert.Equal(t, "N", form.Payload.Get("VK_AUTO"))

	require.Len(t, callback.requests, 1)
	assert.Equal(t, "Y", callback.requests[0].Fields.Get("VK_AUTO"))
	require.NotNil(t, payment.AutoResponse)
	assert.True(t, payment.AutoResponse.Status)
	assert.Equal(t, form.Payload, payment.ResponseFields)
	assert.Equal(t, "POST", payment.ReturnMethod)

	mac, err := signature.DecodeBase64(form.Payload.Get("VK_MAC"))
	require.NoError(t, err)
	err = signature.NewEncryptor(payment.Charset).VerifyRSA(payment.ResponseHash, mac, project.BankCertificate.Certificate)
	assert.NoError(t, err)

	// the merchant side sees a valid bank message
	response, err := New(bank, form.Payload, payment.Charset)
	require.NoError(t, err)
	assert.Equal(t, "1101", response.Service())
}

func TestIPizzaLocalhostCallbackDenied(t *testing.T) {
	bank := swedbank()
	project := testProject(t, bank)
	message := ipizzaRequest(t, bank, project, "http://localhost:3480", nil)
	payment := completed(message, entity.StatePayed)
	env, callback := testEnv()

	form, err := GenerateForm(context.Background(), bank, project, payment, env)
	require.NoError(t, err)
	assert.Empty(t, callback.requests)
	require.NotNil(t, payment.AutoResponse)
	assert.False(t, payment.AutoResponse.Status)
	assert.Equal(t, localhostDenied, payment.AutoResponse.Error)
	assert.Equal(t, "N", form.Payload.Get("VK_AUTO"))
}

func TestIPizzaCancelledForm(t *testing.T) {
	bank := swedbank()
	project := testProject(t, bank)
	message := ipizzaRequest(t, bank, project, "https://shop.example.com", nil)
	payment := completed(message, entity.StateCancelled)
	env, callback := testEnv()

	form, err := GenerateForm(context.Background(), bank, project, payment, env)
	require.NoError(t, err)
	assert.Equal(t, "1901", form.Payload.Get("VK_SERVICE"))
	assert.Equal(t, "https://shop.example.com/project/p1?payment_action=cancel", form.Url)
	assert.Empty(t, callback.requests)
	assert.Nil(t, payment.AutoResponse)
}

func TestIPizzaSampleWithoutPaymentService(t *testing.T) {
	bank := swedbank()
	bank.AllowedServices = []string{"1002", "4011"}
	project := testProject(t, bank)
	sample, err := Sample(bank, project, "http://localhost:3480", nil, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "1002", sample.Service())
	assert.False(t, sample.Fields().Has("VK_ACC"))
	assert.Equal(t, "Test shop", sample.ReceiverName())
}
