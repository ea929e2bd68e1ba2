package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangalink/entity"
)

func TestNormalize(t *testing.T) {
	fields := Normalize(map[string]any{
		"VK_AMOUNT": 0,
		"VK_MSG":    "  tere  ",
		"VK_REF":    nil,
		"VK_AUTO":   false,
		"VK_STAMP":  []string{" 12345 ", "x"},
		"VK_FLOAT":  12.5,
	})
	assert.Equal(t, "0", fields["VK_AMOUNT"])
	assert.Equal(t, "tere", fields["VK_MSG"])
	assert.Equal(t, "", fields["VK_REF"])
	assert.Equal(t, "", fields["VK_AUTO"])
	assert.Equal(t, "12345", fields["VK_STAMP"])
	assert.Equal(t, "12.5", fields["VK_FLOAT"])
}

func TestIsUTF8(t *testing.T) {
	for _, name := range []string{"UTF-8", "utf8", "utf_8", ""} {
		assert.True(t, IsUTF8(name), name)
	}
	assert.False(t, IsUTF8("ISO-8859-1"))
}

func TestLatin1RoundTrip(t *testing.T) {
	encoded, err := Encode("Õie Mäger", "ISO-8859-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xd5, 'i', 'e', ' ', 'M', 0xe4, 'g', 'e', 'r'}, encoded)

	decoded, err := Decode(encoded, "iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "Õie Mäger", decoded)
}

func TestRoundTripReplacesUnsupported(t *testing.T) {
	assert.Equal(t, "Tõõger", RoundTrip("Tõõger", "ISO-8859-1"))
	assert.NotEqual(t, "Ж", RoundTrip("Ж", "ISO-8859-1"))
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("no-such-charset")
	assert.Error(t, err)
}

func TestParseAndDecodeForm(t *testing.T) {
	raw, err := ParseForm("VK_NAME=%D5IE+M%C4GER&VK_ENCODING=ISO-8859-1&VK_NAME=second")
	require.NoError(t, err)
	require.Len(t, raw, 3)

	assert.Equal(t, "ISO-8859-1", Latin1(raw)["VK_ENCODING"])

	fields, ordered, err := DecodeForm(raw, "ISO-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "ÕIE MÄGER", fields["VK_NAME"])
	assert.Len(t, ordered, 3)
}

func TestEncodeQuery(t *testing.T) {
	query, err := EncodeQuery(entity.Fields{
		{Key: "VK_NAME", Value: "Õie M"},
		{Key: "VK_RETURN", Value: "http://a.b/c?d=1"},
	}, "ISO-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "VK_NAME=%D5ie%20M&VK_RETURN=http%3A%2F%2Fa.b%2Fc%3Fd%3D1", query)

	query, err = EncodeQuery(entity.Fields{{Key: "X", Value: "õ"}}, "UTF-8")
	require.NoError(t, err)
	assert.Equal(t, "X=%C3%B5", query)
}

func TestAppendQuery(t *testing.T) {
	assert.Equal(t, "http://a/?x=1", AppendQuery("http://a/", "x=1"))
	assert.Equal(t, "http://a/?y=2&x=1", AppendQuery("http://a/?y=2", "x=1"))
	assert.Equal(t, "http://a/", AppendQuery("http://a/", ""))
}

func TestLength(t *testing.T) {
	assert.Equal(t, 4, Length("õuna", false))
	assert.Equal(t, 5, Length("õuna", true))
}
