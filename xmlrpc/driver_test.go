package xmlrpc

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	s := NewServer()
	err := s.HandleFunc("echo", func(req Request) (Response, error) {
		return NewResponse(req.Params[0]), nil
	})
	require.NoError(t, err)
	return s
}

func callMethodCall(t *testing.T, handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServerEchoRoundTrip(t *testing.T) {
	s := newTestServer(t)
	body := `<?xml version="1.0"?><methodCall><methodName>echo</methodName><params>` +
		`<param><value><string>hello</string></value></param></params></methodCall>`

	rec := callMethodCall(t, s, body, nil)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "<methodResponse>")
	assert.Contains(t, rec.Body.String(), "<string>hello</string>")
}

func TestServerUnknownMethodReturnsFault(t *testing.T) {
	s := newTestServer(t)
	body := `<?xml version="1.0"?><methodCall><methodName>nope</methodName><params></params></methodCall>`

	rec := callMethodCall(t, s, body, nil)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "<fault>")
	assert.Contains(t, rec.Body.String(), "faultCode")
}

func TestServerCompressedResponse(t *testing.T) {
	s := NewServer(WithCompressResponse(true))
	err := s.HandleFunc("echo", func(req Request) (Response, error) {
		return NewResponse(req.Params[0]), nil
	})
	require.NoError(t, err)

	body := `<?xml version="1.0"?><methodCall><methodName>echo</methodName><params>` +
		`<param><value><string>hello</string></value></param></params></methodCall>`

	rec := callMethodCall(t, s, body, map[string]string{"Accept-Encoding": "gzip"})
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	defer zr.Close()
	out, err := ioutil.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<string>hello</string>")
}

func TestServerNilExtension(t *testing.T) {
	s := NewServer(WithNilExtension(true))
	err := s.HandleFunc("nilEcho", func(req Request) (Response, error) {
		return NewResponse(NewNil()), nil
	})
	require.NoError(t, err)

	body := `<?xml version="1.0"?><methodCall><methodName>nilEcho</methodName><params></params></methodCall>`
	rec := callMethodCall(t, s, body, nil)
	assert.Contains(t, rec.Body.String(), "<nil/>")
}

func TestServerEchoRoundTripSetsVaryAndContentLength(t *testing.T) {
	s := newTestServer(t)
	body := `<?xml version="1.0"?><methodCall><methodName>echo</methodName><params>` +
		`<param><value><string>hello</string></value></param></params></methodCall>`

	rec := callMethodCall(t, s, body, nil)
	assert.Equal(t, "Accept-Charset", rec.Header().Get("Vary"))
	assert.Equal(t, fmt.Sprint(rec.Body.Len()), rec.Header().Get("Content-Length"))
}

func TestServerCompressedResponseAddsAcceptEncodingToVaryAndOmitsContentLength(t *testing.T) {
	s := NewServer(WithCompressResponse(true))
	err := s.HandleFunc("echo", func(req Request) (Response, error) {
		return NewResponse(req.Params[0]), nil
	})
	require.NoError(t, err)

	body := `<?xml version="1.0"?><methodCall><methodName>echo</methodName><params>` +
		`<param><value><string>hello</string></value></param></params></methodCall>`

	rec := callMethodCall(t, s, body, map[string]string{"Accept-Encoding": "gzip"})
	assert.Equal(t, "Accept-Charset, Accept-Encoding", rec.Header().Get("Vary"))
	assert.Equal(t, "", rec.Header().Get("Content-Length"))
}

func TestServerCompressionRespectsAcceptedCompression(t *testing.T) {
	s := NewServer(WithCompressResponse(true), WithAcceptedCompression("deflate"))
	err := s.HandleFunc("echo", func(req Request) (Response, error) {
		return NewResponse(req.Params[0]), nil
	})
	require.NoError(t, err)

	body := `<?xml version="1.0"?><methodCall><methodName>echo</methodName><params>` +
		`<param><value><string>hello</string></value></param></params></methodCall>`

	rec := callMethodCall(t, s, body, map[string]string{"Accept-Encoding": "gzip"})
	assert.Equal(t, "", rec.Header().Get("Content-Encoding"))
	assert.Contains(t, rec.Body.String(), "<string>hello</string>")
}

func TestServerDebugLevelUserEmbedsTraceComments(t *testing.T) {
	s := NewServer(WithDebugLevel(DebugUser))
	err := s.HandleFunc("echo", func(req Request) (Response, error) {
		return NewResponse(req.Params[0]), nil
	})
	require.NoError(t, err)

	body := `<?xml version="1.0"?><methodCall><methodName>echo</methodName><params>` +
		`<param><value><string>hello</string></value></param></params></methodCall>`

	rec := callMethodCall(t, s, body, nil)
	out := rec.Body.String()
	assert.Contains(t, out, "<!-- systemTrace:")
	assert.Contains(t, out, "<!-- userTrace:")
}

func TestServerDebugLevelWarningsCapturesHandlerError(t *testing.T) {
	s := NewServer(WithDebugLevel(DebugWarnings))
	err := s.HandleFunc("boom", func(Request) (Response, error) {
		return Response{}, simpleErr("kaboom")
	})
	require.NoError(t, err)

	body := `<?xml version="1.0"?><methodCall><methodName>boom</methodName><params></params></methodCall>`
	rec := callMethodCall(t, s, body, nil)
	out := rec.Body.String()

	start := strings.Index(out, "<!-- userTrace: ") + len("<!-- userTrace: ")
	end := strings.Index(out[start:], " -->")
	encoded := out[start : start+end]
	assert.Contains(t, encoded, "kaboom")
}

func TestServerCallsThroughXMLRPCClient(t *testing.T) {
	s := NewServer()
	err := s.HandleFunc("greet", func(req Request) (Response, error) {
		name, _ := req.Params[0].ScalarValue()
		return NewResponse(NewString("hello " + name.(string))), nil
	})
	require.NoError(t, err)

	httpSrv := httptest.NewServer(s)
	defer httpSrv.Close()

	client := NewClient(httpSrv.URL)
	var reply string
	err = client.Call("greet", &reply, "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", reply)
}
