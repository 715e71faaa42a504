package xmlrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuessEncodingFromContentType(t *testing.T) {
	enc := GuessEncoding(`text/xml; charset="ISO-8859-1"`, []byte("<methodCall/>"))
	assert.Equal(t, ISO88591, enc)
}

func TestGuessEncodingFromXMLDeclaration(t *testing.T) {
	body := []byte(`<?xml version="1.0" encoding="ISO-8859-1"?><methodCall/>`)
	enc := GuessEncoding("text/xml", body)
	assert.Equal(t, ISO88591, enc)
}

func TestGuessEncodingDefaultsToUTF8(t *testing.T) {
	enc := GuessEncoding("text/xml", []byte("<methodCall/>"))
	assert.Equal(t, UTF8, enc)
}

func TestTranscodeRoundTrip(t *testing.T) {
	original := []byte("hello")
	latin1, err := Transcode(original, UTF8, ISO88591)
	require.NoError(t, err)
	back, err := Transcode(latin1, ISO88591, UTF8)
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestEncodeEntitiesEscapesMetacharacters(t *testing.T) {
	out, err := EncodeEntities(`<tag>&"'`, UTF8, UTF8)
	require.NoError(t, err)
	assert.Equal(t, "&lt;tag&gt;&amp;&quot;&apos;", out)
}

func TestEncodeEntitiesNumericRefsForASCII(t *testing.T) {
	out, err := EncodeEntities("café", UTF8, USASCII)
	require.NoError(t, err)
	assert.Equal(t, "caf&#233;", out)
}

func TestEncodeEntitiesRejectsUnsupportedCharset(t *testing.T) {
	_, err := EncodeEntities("hi", "UTF-8", "SHIFT-JIS")
	require.Error(t, err)
}
