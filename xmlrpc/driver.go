package xmlrpc

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/mdzio/go-logging"
)

var drvLog = logging.Get("xmlrpc-server")

// defaultRequestSizeLimit bounds an unconfigured Server the same way
// mdzio-go-hmccu's Handler bounds itself: 10 MB.
const defaultRequestSizeLimit = 10 * 1024 * 1024

// Option configures a Server (spec §6).
type Option func(*Server)

// WithDebugLevel sets how much diagnostic detail the trace comments
// embedded in every response carry.
func WithDebugLevel(level DebugLevel) Option {
	return func(s *Server) { s.debugLevel = level }
}

// WithExceptionHandling sets the handler-error translation policy.
func WithExceptionHandling(policy ExceptionHandling) Option {
	return func(s *Server) { s.engine.ExceptionHandling = policy }
}

// WithCompressResponse enables response compression negotiation.
func WithCompressResponse(enabled bool) Option {
	return func(s *Server) { s.compressResponse = enabled }
}

// WithAcceptedCompression restricts which content codings the server will
// produce in responses and accept on requests.
func WithAcceptedCompression(encodings ...string) Option {
	return func(s *Server) {
		s.acceptedCompression = make(map[string]bool, len(encodings))
		for _, e := range encodings {
			s.acceptedCompression[e] = true
		}
	}
}

// WithAcceptedCharsets restricts which charsets inbound requests may use.
func WithAcceptedCharsets(charsets ...string) Option {
	return func(s *Server) {
		s.acceptedCharsets = make(map[string]bool, len(charsets))
		for _, c := range charsets {
			s.acceptedCharsets[c] = true
		}
	}
}

// WithResponseCharset sets the server's fixed/default response charset
// (spec §6 responseCharsetEncoding). It implies the "fixed" negotiation
// policy; combine with WithResponseCharsetPolicy("auto") to instead
// negotiate against the client's Accept-Charset header.
func WithResponseCharset(name string) Option {
	return func(s *Server) {
		s.responseCharset = name
		s.charsetPolicy = "fixed"
	}
}

// WithResponseCharsetPolicy selects how the response charset is chosen:
// "fixed" (the default) always uses the configured responseCharset;
// "auto" negotiates against the client's Accept-Charset header per spec
// §4.4 step 2, which can result in no charset being declared at all.
func WithResponseCharsetPolicy(policy string) Option {
	return func(s *Server) { s.charsetPolicy = policy }
}

// WithAllowSystemFuncs toggles whether system.* introspection methods
// answer requests at all.
func WithAllowSystemFuncs(allowed bool) Option {
	return func(s *Server) { s.engine.AllowSystemFuncs = allowed }
}

// WithParametersType sets the server-wide calling convention; entries
// that declare their own ParametersType still override it.
func WithParametersType(pt ParametersType) Option {
	return func(s *Server) { s.engine.ParametersType = pt }
}

// WithUserData attaches opaque userData passed to Epi-convention handlers.
func WithUserData(data interface{}) Option {
	return func(s *Server) { s.engine.UserData = data }
}

// WithRequestSizeLimit overrides the default 10 MB request body cap.
func WithRequestSizeLimit(limit int64) Option {
	return func(s *Server) { s.requestSizeLimit = limit }
}

// WithNilExtension enables the <nil/> wire extension on both the reader
// and the writer, and lets system.getCapabilities advertise it.
func WithNilExtension(enabled bool) Option {
	return func(s *Server) {
		s.nilExtension = enabled
		s.engine.NilExtension = enabled
	}
}

// WithLogger overrides the package-default logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server is an http.Handler that runs the XML-RPC request pipeline: read,
// decode, dispatch through an Engine, encode, optionally compress, and
// emit. It generalizes mdzio-go-hmccu's Handler (sizeLimit + Dispatcher)
// to the engine's richer DispatchEntry contract and the negotiated
// charset/compression/debug layers the original Handler does not have.
type Server struct {
	engine *Engine
	log    *logging.Logger

	debugLevel          DebugLevel
	compressResponse    bool
	acceptedCompression map[string]bool
	acceptedCharsets    map[string]bool
	responseCharset     string
	charsetPolicy       string
	requestSizeLimit    int64
	nilExtension        bool
}

// NewServer creates a Server wrapping a fresh Engine (with system.*
// built-ins registered) configured by opts.
func NewServer(opts ...Option) *Server {
	s := &Server{
		engine:              NewEngine(),
		log:                 drvLog,
		acceptedCompression: map[string]bool{"gzip": true, "deflate": true},
		acceptedCharsets:    map[string]bool{UTF8: true, ISO88591: true, USASCII: true},
		responseCharset:     UTF8,
		charsetPolicy:       "fixed",
		requestSizeLimit:    defaultRequestSizeLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register exposes the underlying Engine's Register for convenience.
func (s *Server) Register(name string, entry *DispatchEntry) error {
	return s.engine.Register(name, entry)
}

// HandleFunc registers a TypedValue-convention handler.
func (s *Server) HandleFunc(name string, f func(Request) (Response, error), opts ...func(*DispatchEntry)) error {
	return s.engine.HandleFunc(name, f, opts...)
}

// pipeline states, spec §4.7. Trace-level messages (when enabled) are
// tagged with the current state, without changing control flow.
type pipelineState int

const (
	stateInit pipelineState = iota
	stateHeadersParsed
	stateBodyDecoded
	stateXMLParsed
	stateDispatched
	stateSerialized
	stateCompressed
	stateEmitted
)

func (s *Server) trace(state pipelineState, format string, args ...interface{}) {
	if s.log.TraceEnabled() {
		s.log.Tracef("[state %d] "+format, append([]interface{}{state}, args...)...)
	}
}

// ServeHTTP implements the 8-state request pipeline of spec §4.7.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tr := newTrace()
	state := stateInit
	s.trace(state, "request received from %s", r.RemoteAddr)
	if s.debugLevel >= DebugUser {
		tr.LogSystem("request received from %s, uri %s", r.RemoteAddr, r.RequestURI)
	}

	state = stateHeadersParsed
	contentEncoding := r.Header.Get("Content-Encoding")

	limited := http.MaxBytesReader(w, r.Body, s.requestSizeLimit)
	body, err := ioutil.ReadAll(limited)
	if err != nil {
		s.writeFault(w, r, InvalidRequestBody.New("reading request failed: %s", err), "", tr)
		return
	}

	body, err = inflateRequest(body, contentEncoding, s.acceptedCompression)
	if err != nil {
		s.writeFault(w, r, err.(Fault), "", tr)
		return
	}
	state = stateBodyDecoded

	reqCharset := negotiateRequestCharset(r.Header, body)
	charsetAccepted := false
	for c := range s.acceptedCharsets {
		if strings.EqualFold(c, reqCharset) {
			charsetAccepted = true
			break
		}
	}
	if !charsetAccepted {
		s.writeFault(w, r, UnsupportedEncoding.New("request charset %s not accepted", reqCharset), reqCharset, tr)
		return
	}
	if !strings.EqualFold(reqCharset, UTF8) {
		transcoded, terr := Transcode(body, reqCharset, UTF8)
		if terr != nil {
			s.writeFault(w, r, UnsupportedEncoding.New("%s", terr), reqCharset, tr)
			return
		}
		body = transcoded
	}
	if s.debugLevel >= DebugRequestDump {
		tr.LogSystem("request body (charset %s): %s", reqCharset, body)
	}

	var call methodCall
	readErr := withCodec(func(c *Codec) error {
		c.rd.nilExtension = s.nilExtension
		return c.readRPC(bytes.NewReader(body), &call)
	})
	if readErr != nil {
		s.writeFault(w, r, asFault(readErr), reqCharset, tr)
		return
	}
	state = stateXMLParsed
	s.trace(state, "parsed call to %s with %d params", call.Method, len(call.Params))
	if s.debugLevel >= DebugUser {
		tr.LogSystem("dispatching %s with %d params", call.Method, len(call.Params))
	}

	params := make([]Value, len(call.Params))
	for i, p := range call.Params {
		params[i] = valueOf(p)
	}

	var resp Response
	if s.debugLevel >= DebugWarnings {
		resp = s.engine.ExecuteWithSink(Request{MethodName: call.Method, Params: params}, tr)
	} else {
		resp = s.engine.Execute(Request{MethodName: call.Method, Params: params})
	}
	state = stateDispatched
	if resp.IsFault() && s.debugLevel >= DebugUser {
		tr.LogUser("fault %d: %s", resp.Fault.Code, resp.Fault.Message)
	}

	s.finalize(w, r, resp, reqCharset, tr)
}

// finalize runs the shared response tail of the pipeline: charset/
// compression negotiation, header emission, serialization, trace comment
// embedding and the final (possibly compressed) write. Both the main
// dispatch path and every early-fault exit funnel through here so faults
// get the same negotiated headers and debug trace as a normal response.
func (s *Server) finalize(w http.ResponseWriter, r *http.Request, resp Response, reqCharset string, tr *trace) {
	respCharset, hasCharset := negotiateResponseCharset(r.Header, s.charsetPolicy, s.responseCharset, reqCharset)

	var buf bytes.Buffer
	writeErr := withCodec(func(c *Codec) error {
		c.wr.nilExtension = s.nilExtension
		c.wr.toCharset = respCharset
		c.wr.omitCharsetAttr = !hasCharset
		var mr methodResponse
		if resp.IsFault() {
			mr.Fault = makeValue(*resp.Fault)
		} else {
			mr.Params = []rpcValue{resp.Value.raw}
		}
		return c.writeRPC(&buf, mr)
	})
	if writeErr != nil {
		http.Error(w, "encoding response failed: "+writeErr.Error(), http.StatusInternalServerError)
		return
	}
	state := stateSerialized
	s.trace(state, "response serialized")

	out := buf.Bytes()
	if hasCharset && !strings.EqualFold(respCharset, UTF8) {
		transcoded, terr := Transcode(out, UTF8, respCharset)
		if terr == nil {
			out = transcoded
		}
	}

	out = embedTraceComments(out, s.debugLevel, tr, respCharset)

	encoding := ""
	if s.compressResponse {
		encoding = negotiateResponseEncoding(r.Header, s.acceptedCompression)
	}
	compressing := encoding != ""

	writeResponseHeaders(w.Header(), respCharset, hasCharset, compressing, len(out))

	var dest interface{ Write([]byte) (int, error) } = w
	if compressing {
		zw := newCompressor(w, encoding)
		dest = zw
		state = stateCompressed
		defer func() {
			if closer, ok := zw.(*compressWriter); ok {
				closer.Close()
			}
		}()
	}

	if _, err := dest.Write(out); err != nil {
		s.log.Warningf("sending response to %s failed: %v", r.RemoteAddr, err)
		return
	}
	state = stateEmitted
	s.trace(state, "response sent to %s", r.RemoteAddr)
}

func (s *Server) writeFault(w http.ResponseWriter, r *http.Request, f Fault, reqCharset string, tr *trace) {
	s.finalize(w, r, NewFaultResponse(f), reqCharset, tr)
}

func asFault(err error) Fault {
	if f, ok := err.(Fault); ok {
		return f
	}
	return MalformedInput.New("%s", err)
}
