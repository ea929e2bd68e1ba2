package banks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangalink/entity"
	"pangalink/internal/validate"
)

func TestDefaultCatalogue(t *testing.T) {
	r := Default()
	keys := make([]string, 0)
	for _, bank := range r.List() {
		keys = append(keys, bank.Key)
		require.NoError(t, check(bank), bank.Key)
		if bank.AccountNr != "" {
			assert.True(t, validate.IsValidIBAN(bank.AccountNr), bank.Key)
		}
	}
	assert.Equal(t, []string{"aab", "coop", "danskebank", "ec", "krediidipank", "lhv", "luminor", "nordea", "samlink", "seb", "swedbank"}, keys)

	seb, err := r.Get("SEB")
	require.NoError(t, err)
	assert.Equal(t, "EYP", seb.ID)
	assert.Equal(t, "VK_CHARSET", seb.CharsetField)

	nordea, err := r.Get("nordea")
	require.NoError(t, err)
	assert.Equal(t, entity.FamilySolo, nordea.Type)
	assert.Equal(t, "GET", nordea.ResponseMethod())

	_, err = r.Get("bank of nowhere")
	assert.ErrorIs(t, err, ErrUnknownBank)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banks.yml")
	data := `banks:
  - key: Swedbank
    name: Swedbank test
    type: ipizza
    id: HP
    default_charset: UTF-8
    allowed_charsets: [UTF-8]
    charset_field: VK_ENCODING
    return_address: VK_RETURN
    cancel_address: VK_CANCEL
    field_length:
      VK_MSG: 70
  - key: testbank
    name: Test bank
    type: solo
    default_charset: ISO-8859-1
    return_address: RETURN
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	r, err := Load(path)
	require.NoError(t, err)

	swedbank, err := r.Get("swedbank")
	require.NoError(t, err)
	assert.Equal(t, "Swedbank test", swedbank.Name)
	assert.Equal(t, 70, swedbank.MaxLength("VK_MSG"))
	assert.Equal(t, []string{"UTF-8"}, swedbank.AllowedCharsets)

	testbank, err := r.Get("testbank")
	require.NoError(t, err)
	assert.Equal(t, entity.FamilySolo, testbank.Type)

	_, err = r.Get("seb")
	assert.NoError(t, err)
}

func TestLoadRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banks.yml")
	require.NoError(t, os.WriteFile(path, []byte("banks:\n  - key: x\n    type: swift\n    default_charset: UTF-8\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadWithoutPath(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.Len(t, r.List(), 11)
}
