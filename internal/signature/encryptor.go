package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"gitee.com/golang-module/dongle"

	"pangalink/entity"
	"pangalink/internal/codec"
)

// ErrVerification is returned when a signature does not match its source.
var ErrVerification = errors.New("signature verification failed")

// Encryptor signs and verifies signature sources of one message. RSA
// signatures are computed over the source encoded in the message charset,
// keyed digests over its UTF-8 bytes.
type Encryptor struct {
	charset string
}

func NewEncryptor(charset string) *Encryptor {
	return &Encryptor{
		charset: charset,
	}
}

// SignRSA returns the RSA-SHA1 PKCS#1 v1.5 signature of source.
func (e *Encryptor) SignRSA(source string, keyPEM string) ([]byte, error) {
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	data, err := codec.Encode(source, e.charset)
	if err != nil {
		return nil, err
	}
	digest := sha1.Sum(data)
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return signature, nil
}

// VerifyRSA checks an RSA-SHA1 signature against the public key of certPEM.
func (e *Encryptor) VerifyRSA(source string, signature []byte, certPEM string) error {
	key, err := parsePublicKey(certPEM)
	if err != nil {
		return fmt.Errorf("certificate: %w", err)
	}
	data, err := codec.Encode(source, e.charset)
	if err != nil {
		return err
	}
	digest := sha1.Sum(data)
	if err = rsa.VerifyPKCS1v15(key, crypto.SHA1, digest[:], signature); err != nil {
		return ErrVerification
	}
	return nil
}

// Digest returns the uppercase hex digest of source.
func (e *Encryptor) Digest(algorithm string, source string) (string, error) {
	encrypter := dongle.Encrypt.FromString(source)
	switch strings.ToLower(algorithm) {
	case entity.AlgorithmMD5:
		encrypter = encrypter.ByMd5()
	case entity.AlgorithmSHA1:
		encrypter = encrypter.BySha1()
	case entity.AlgorithmSHA256:
		encrypter = encrypter.BySha256()
	default:
		return "", fmt.Errorf("unsupported algorithm %q", algorithm)
	}
	if encrypter.Error != nil {
		return "", encrypter.Error
	}
	return strings.ToUpper(encrypter.ToHexString()), nil
}

// AlgorithmByLength names the digest algorithm producing hex strings of length n.
func AlgorithmByLength(n int) string {
	switch n {
	case 32:
		return entity.AlgorithmMD5
	case 40:
		return entity.AlgorithmSHA1
	case 64:
		return entity.AlgorithmSHA256
	}
	return ""
}

// DigestLength is the hex length of a digest algorithm.
func DigestLength(algorithm string) int {
	switch strings.ToLower(algorithm) {
	case entity.AlgorithmMD5:
		return 32
	case entity.AlgorithmSHA1:
		return 40
	case entity.AlgorithmSHA256:
		return 64
	}
	return 0
}

// DisplayName of an algorithm, "SHA-1" for sha1.
func DisplayName(algorithm string) string {
	switch strings.ToLower(algorithm) {
	case entity.AlgorithmMD5:
		return "MD5"
	case entity.AlgorithmSHA1:
		return "SHA-1"
	case entity.AlgorithmSHA256:
		return "SHA-256"
	}
	return strings.ToUpper(algorithm)
}

func EncodeBase64(data []byte) string {
	return dongle.Encode.FromBytes(data).ByBase64().ToString()
}

func DecodeBase64(value string) ([]byte, error) {
	decoder := dongle.Decode.FromString(value).ByBase64()
	if decoder.Error != nil {
		return nil, decoder.Error
	}
	return decoder.ToBytes(), nil
}

func EncodeHex(data []byte) string {
	return dongle.Encode.FromBytes(data).ByHex().ToString()
}

func DecodeHex(value string) ([]byte, error) {
	decoder := dongle.Decode.FromString(value).ByHex()
	if decoder.Error != nil {
		return nil, decoder.Error
	}
	return decoder.ToBytes(), nil
}

func parsePrivateKey(keyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA key")
	}
	return key, nil
}

func parsePublicKey(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	var public any
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		public = cert.PublicKey
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		public = key
	default:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		public = key
	}
	key, ok := public.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA key")
	}
	return key, nil
}
