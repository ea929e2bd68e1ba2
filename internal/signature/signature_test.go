package signature

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return string(keyPEM), string(certPEM)
}

func TestLengthPrefixed(t *testing.T) {
	source := LengthPrefixed([]string{"1001", "008", "", "õun"}, false)
	assert.Equal(t, "0041001003008000003õun", source)

	source = LengthPrefixed([]string{"õun"}, true)
	assert.Equal(t, "004õun", source)
}

func TestLengthPrefixedWideValue(t *testing.T) {
	value := strings.Repeat("a", 1000)
	source := LengthPrefixed([]string{value}, false)
	assert.Equal(t, "1000"+value, source)
}

func TestLengthPrefixedDeterministic(t *testing.T) {
	values := []string{"1011", "008", "uid100", "12345", "150", "EUR"}
	assert.Equal(t, LengthPrefixed(values, false), LengthPrefixed(values, false))
}

func TestJoined(t *testing.T) {
	assert.Equal(t, "0002&12345&uid&150&1234561&EXPRESS&EUR&secret&", Joined([]string{"0002", "12345", "uid", "150", "1234561", "EXPRESS", "EUR"}, "secret"))
	assert.Equal(t, "secret&", Joined(nil, "secret"))
}

func TestPadded(t *testing.T) {
	source := Padded([]PaddedValue{
		{Value: "4", Width: 3},
		{Value: "uid", Width: -10},
		{Value: "1336", Width: 12},
	})
	assert.Equal(t, "004uid       000000001336", source)
}

func TestPads(t *testing.T) {
	assert.Equal(t, "007", Lpad("7", 3, '0'))
	assert.Equal(t, "1234", Lpad("1234", 3, '0'))
	assert.Equal(t, "ab  ", Rpad("ab", 4, ' '))
	assert.Equal(t, "abcde", Rpad("abcde", 4, ' '))
}

func TestRSARoundTrip(t *testing.T) {
	keyPEM, certPEM := testKeyPair(t)
	for _, charset := range []string{"UTF-8", "ISO-8859-1"} {
		t.Run(charset, func(t *testing.T) {
			e := NewEncryptor(charset)
			source := LengthPrefixed([]string{"1101", "008", "Õie Mäger"}, false)
			sig, err := e.SignRSA(source, keyPEM)
			require.NoError(t, err)
			assert.Len(t, sig, 128)
			require.NoError(t, e.VerifyRSA(source, sig, certPEM))

			encoded := EncodeBase64(sig)
			decoded, err := DecodeBase64(encoded)
			require.NoError(t, err)
			require.NoError(t, e.VerifyRSA(source, decoded, certPEM))

			assert.ErrorIs(t, e.VerifyRSA(source+"x", sig, certPEM), ErrVerification)
		})
	}
}

func TestRSAHexRoundTrip(t *testing.T) {
	keyPEM, certPEM := testKeyPair(t)
	e := NewEncryptor("UTF-8")
	sig, err := e.SignRSA("source", keyPEM)
	require.NoError(t, err)
	hexSig := strings.ToUpper(EncodeHex(sig))
	decoded, err := DecodeHex(hexSig)
	require.NoError(t, err)
	assert.NoError(t, e.VerifyRSA("source", decoded, certPEM))
}

func TestRSABadKeys(t *testing.T) {
	e := NewEncryptor("UTF-8")
	_, err := e.SignRSA("x", "not a key")
	assert.Error(t, err)
	err = e.VerifyRSA("x", []byte("sig"), "not a cert")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrVerification)
}

func TestDigest(t *testing.T) {
	e := NewEncryptor("UTF-8")
	md5, err := e.Digest("md5", "abc")
	require.NoError(t, err)
	assert.Equal(t, "900150983CD24FB0D6963F7D28E17F72", md5)

	sha1, err := e.Digest("SHA1", "abc")
	require.NoError(t, err)
	assert.Equal(t, "A9993E364706816ABA3E25717850C26C9CD0D89D", sha1)

	sha256, err := e.Digest("sha256", "abc")
	require.NoError(t, err)
	assert.Len(t, sha256, 64)

	_, err = e.Digest("crc32", "abc")
	assert.Error(t, err)
}

func TestAlgorithmByLength(t *testing.T) {
	assert.Equal(t, "md5", AlgorithmByLength(32))
	assert.Equal(t, "sha1", AlgorithmByLength(40))
	assert.Equal(t, "sha256", AlgorithmByLength(64))
	assert.Equal(t, "", AlgorithmByLength(10))
	assert.Equal(t, "SHA-1", DisplayName("sha1"))
	assert.Equal(t, 64, DigestLength("SHA256"))
}
