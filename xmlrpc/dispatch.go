package xmlrpc

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// TypeTag is the XML-RPC type name used in signatures and, informally, on
// the wire. TagAny is the introspection-v2 wildcard that matches any
// value.
type TypeTag string

// Type tags recognized by the signature checker.
const (
	TagInt      TypeTag = "int"
	TagBoolean  TypeTag = "boolean"
	TagString   TypeTag = "string"
	TagDouble   TypeTag = "double"
	TagDateTime TypeTag = "dateTime.iso8601"
	TagBase64   TypeTag = "base64"
	TagArray    TypeTag = "array"
	TagStruct   TypeTag = "struct"
	TagNil      TypeTag = "nil"
	TagAny      TypeTag = "any"
)

// normalizeTag aliases the legacy i4 tag onto int, per spec §4.5 step 2.
func normalizeTag(t TypeTag) TypeTag {
	if t == "i4" {
		return TagInt
	}
	return t
}

// Request is a parsed XML-RPC method call: a name plus ordered parameters.
type Request struct {
	MethodName string
	Params     []Value
}

// Response is either a successful return Value or a Fault, plus the
// fields the driver and debug trace need (spec §3).
type Response struct {
	Value       Value
	Fault       *Fault
	RawBody     []byte
	ContentType string
}

// IsFault reports whether this Response carries a fault.
func (r Response) IsFault() bool { return r.Fault != nil }

// NewResponse wraps a success Value.
func NewResponse(v Value) Response { return Response{Value: v} }

// NewFaultResponse wraps a Fault.
func NewFaultResponse(f Fault) Response { return Response{Fault: &f} }

// ParametersType selects a DispatchEntry's calling convention (spec §4.5
// step 3 / DESIGN NOTES §9's "sum type + handler trait").
type ParametersType int

// Calling conventions. ServerDefault means "use the server-wide setting".
const (
	ServerDefault ParametersType = iota
	TypedValue
	NativeValue
	Epi
)

// TypedValueFunc receives the full Request and returns a Response or
// panics/returns an error, which the engine turns into a fault per the
// server's exceptionHandling policy.
type TypedValueFunc func(Request) (Response, error)

// NativeValueFunc receives parameters unwrapped to native Go values
// (scalars unwrapped, arrays/structs converted to slice/map) and returns
// either a Response, a Value, or a native value to be re-encoded.
type NativeValueFunc func(params []interface{}) (interface{}, error)

// EpiFunc receives the method name, native parameters and the server's
// configured userData, xmlrpc-epi style.
type EpiFunc func(methodName string, params []interface{}, userData interface{}) (interface{}, error)

// DispatchEntry is a registered handler record (spec §3).
type DispatchEntry struct {
	TypedValueHandler  TypedValueFunc
	NativeValueHandler NativeValueFunc
	EpiHandler         EpiFunc

	// Signatures lists alternative (return, param1, ..., paramN) tag
	// sequences. A nil/empty Signatures means the entry declares no
	// signature and methodSignature reports "undef".
	Signatures [][]TypeTag
	Doc        string
	// SignatureDocs holds one human description per parameter, aligned
	// with the first declared signature.
	SignatureDocs []string
	// ParametersType overrides the server-wide calling convention for
	// this entry when not ServerDefault.
	ParametersType ParametersType
}

func (e *DispatchEntry) convention(serverDefault ParametersType) ParametersType {
	if e.ParametersType != ServerDefault {
		return e.ParametersType
	}
	return serverDefault
}

// ReservedName is returned by Register when the caller tries to claim a
// system.-prefixed name, which is reserved for the built-in introspection
// entries.
type ReservedName struct{ Name string }

func (e ReservedName) Error() string {
	return fmt.Sprintf("xmlrpc: method name %q is reserved for system.* built-ins", e.Name)
}

// ExceptionHandling selects how a handler-raised error becomes part of
// the response (spec §7).
type ExceptionHandling int

// Exception handling policies.
const (
	// WrapAsServerError turns any handler error into a generic
	// server_error fault with a fixed message, discarding the handler's
	// own message.
	WrapAsServerError ExceptionHandling = iota
	// WrapWithMessage turns a handler error into a fault carrying the
	// handler's message, or reuses a returned Fault/*Fault verbatim.
	WrapWithMessage
	// Propagate re-raises the handler's error past Execute, wrapped with
	// github.com/pkg/errors so callers can errors.Cause() it back out.
	Propagate
)

// Engine holds the dispatch map and executes requests (spec C5). It
// generalizes mdzio-go-hmccu's BasicDispatcher (a mutex-guarded
// map[string]Method) to the richer DispatchEntry contract: declared
// signatures, calling conventions and fault translation.
type Engine struct {
	mutex   sync.RWMutex
	methods map[string]*DispatchEntry
	builtin map[string]*DispatchEntry

	AllowSystemFuncs  bool
	ParametersType    ParametersType
	ExceptionHandling ExceptionHandling
	UserData          interface{}
	// NilExtension reports whether the NIL extension is enabled, so
	// system.getCapabilities (spec §4.6) can advertise it accurately.
	NilExtension bool
}

// NewEngine creates an Engine with the built-in system.* methods wired in
// (C6), mirroring the teacher's AddSystemMethods call in NewDispatcher.
func NewEngine() *Engine {
	e := &Engine{
		methods:          make(map[string]*DispatchEntry),
		AllowSystemFuncs: true,
	}
	e.builtin = newIntrospectionMethods(e)
	return e
}

// Register adds a handler under name. Names starting with "system." are
// rejected with ReservedName.
func (e *Engine) Register(name string, entry *DispatchEntry) error {
	if isSystemName(name) {
		return ReservedName{Name: name}
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.methods[name] = entry
	return nil
}

// HandleFunc registers a TypedValue-convention handler, the closest
// analog to the teacher's HandleFunc(name, func(*Value) (*Value, error)).
func (e *Engine) HandleFunc(name string, f func(Request) (Response, error), opts ...func(*DispatchEntry)) error {
	entry := &DispatchEntry{TypedValueHandler: f}
	for _, opt := range opts {
		opt(entry)
	}
	return e.Register(name, entry)
}

// WithSignatures attaches declared signatures to a DispatchEntry.
func WithSignatures(sigs ...[]TypeTag) func(*DispatchEntry) {
	return func(e *DispatchEntry) { e.Signatures = sigs }
}

// WithDoc attaches a help string to a DispatchEntry.
func WithDoc(doc string) func(*DispatchEntry) {
	return func(e *DispatchEntry) { e.Doc = doc }
}

func isSystemName(name string) bool {
	return len(name) >= 7 && name[:7] == "system."
}

// lookup resolves name to its entry, preferring the built-in table for
// system.* names when AllowSystemFuncs is set (spec §4.5 step 1).
func (e *Engine) lookup(name string) (*DispatchEntry, bool) {
	if isSystemName(name) {
		if !e.AllowSystemFuncs {
			return nil, false
		}
		entry, ok := e.builtin[name]
		return entry, ok
	}
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	entry, ok := e.methods[name]
	return entry, ok
}

// listUserMethods returns registered user method names.
func (e *Engine) listUserMethods() []string {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	names := make([]string, 0, len(e.methods))
	for name := range e.methods {
		names = append(names, name)
	}
	return names
}

// Execute is the central dispatch state machine of spec §4.5.
func (e *Engine) Execute(req Request) Response {
	return e.ExecuteWithSink(req, nil)
}

// ExecuteWithSink runs Execute's state machine with an explicit diagnostics
// sink installed around the handler invocation (spec §7/§9: debug≥3 wires
// a per-request sink rather than a process-wide hook). sink may be nil,
// which is equivalent to Execute.
func (e *Engine) ExecuteWithSink(req Request, sink DiagnosticsSink) Response {
	entry, ok := e.lookup(req.MethodName)
	if !ok {
		return NewFaultResponse(UnknownMethod.New("unknown method: %s", req.MethodName))
	}

	if err := checkSignature(entry, req.Params); err != nil {
		if sink != nil {
			sink.Warn("signature check failed for %s: %s", req.MethodName, err)
		}
		return NewFaultResponse(IncorrectParams.New("%s", err.Error()))
	}

	return e.invoke(entry, req, sink)
}

// checkSignature implements spec §4.5 step 2. When the entry declares no
// signatures, any arity/type combination is accepted.
func checkSignature(entry *DispatchEntry, params []Value) error {
	if len(entry.Signatures) == 0 {
		return nil
	}

	var lastErr error
	arityMatched := false
	for _, sig := range entry.Signatures {
		if len(sig) != len(params)+1 {
			continue
		}
		arityMatched = true
		ok := true
		for i, want := range sig[1:] {
			want = normalizeTag(want)
			if want == TagAny {
				continue
			}
			got := normalizeTag(params[i].typeTag())
			if got != want {
				// spec §8 scenario 3: param index is 1-based on the wire.
				lastErr = fmt.Errorf("Wanted %s, got %s at param %d", want, got, i+1)
				ok = false
				break
			}
		}
		if ok {
			return nil
		}
	}

	if !arityMatched {
		return fmt.Errorf("No method signature matches number of parameters")
	}
	// spec.md §9 Open Question: preserve the *last* tried alternative's
	// mismatch message, not the closest one.
	return lastErr
}

// invoke runs the handler according to its calling convention and
// translates its outcome into a Response (spec §4.5 steps 3-5).
func (e *Engine) invoke(entry *DispatchEntry, req Request, sink DiagnosticsSink) (resp Response) {
	convention := entry.convention(e.ParametersType)

	defer func() {
		if r := recover(); r != nil {
			if sink != nil {
				sink.Warn("handler panic in %s: %v", req.MethodName, r)
			}
			resp = e.translateError(fmt.Errorf("panic in handler: %v", r))
		}
	}()

	switch convention {
	case NativeValue:
		return e.invokeNativeValue(entry, req, sink)
	case Epi:
		return e.invokeEpi(entry, req, sink)
	default:
		return e.invokeTypedValue(entry, req, sink)
	}
}

func (e *Engine) invokeTypedValue(entry *DispatchEntry, req Request, sink DiagnosticsSink) Response {
	if entry.TypedValueHandler == nil {
		return NewFaultResponse(ServerError.New("method has no typedValue handler"))
	}
	resp, err := entry.TypedValueHandler(req)
	if err != nil {
		if sink != nil {
			sink.Warn("handler error in %s: %s", req.MethodName, err)
		}
		return e.translateError(err)
	}
	return resp
}

func (e *Engine) invokeNativeValue(entry *DispatchEntry, req Request, sink DiagnosticsSink) Response {
	if entry.NativeValueHandler == nil {
		return NewFaultResponse(ServerError.New("method has no nativeValue handler"))
	}
	params := make([]interface{}, len(req.Params))
	for i, p := range req.Params {
		params[i] = nativeOf(p)
	}
	result, err := entry.NativeValueHandler(params)
	if err != nil {
		if sink != nil {
			sink.Warn("handler error in %s: %s", req.MethodName, err)
		}
		return e.translateError(err)
	}
	return coerceReturn(result)
}

func (e *Engine) invokeEpi(entry *DispatchEntry, req Request, sink DiagnosticsSink) Response {
	if entry.EpiHandler == nil {
		return NewFaultResponse(ServerError.New("method has no epi handler"))
	}
	params := make([]interface{}, len(req.Params))
	for i, p := range req.Params {
		params[i] = nativeOf(p)
	}
	result, err := entry.EpiHandler(req.MethodName, params, e.UserData)
	if err != nil {
		if sink != nil {
			sink.Warn("handler error in %s: %s", req.MethodName, err)
		}
		return e.translateError(err)
	}
	if m, ok := result.(map[string]interface{}); ok {
		if code, hasCode := m["faultCode"]; hasCode {
			if msg, hasMsg := m["faultString"]; hasMsg {
				return NewFaultResponse(Fault{Code: toInt(code), Message: fmt.Sprint(msg)})
			}
		}
	}
	return coerceReturn(result)
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// coerceReturn wraps a handler's non-Response return (spec §4.5 step 5).
func coerceReturn(result interface{}) Response {
	switch v := result.(type) {
	case Response:
		return v
	case Value:
		return NewResponse(v)
	case Fault:
		return NewFaultResponse(v)
	case nil:
		return NewResponse(NewNil())
	default:
		return NewResponse(NewValue(v))
	}
}

// nativeOf unwraps a Value to the native representation NativeValue and
// Epi handlers receive: scalars as-is, arrays as []interface{}, structs
// as map[string]interface{}.
func nativeOf(v Value) interface{} {
	switch v.Kind() {
	case KindArray:
		elems := v.Array()
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			out[i] = nativeOf(e)
		}
		return out
	case KindStruct:
		out := make(map[string]interface{})
		for _, k := range v.StructKeys() {
			mv, _ := v.StructGet(k)
			out[k] = nativeOf(mv)
		}
		return out
	default:
		val, _ := v.ScalarValue()
		return val
	}
}

// translateError applies the server's exceptionHandling policy (spec §7).
func (e *Engine) translateError(err error) Response {
	if f, ok := err.(Fault); ok {
		return NewFaultResponse(f)
	}
	if f, ok := err.(*Fault); ok && f != nil {
		return NewFaultResponse(*f)
	}
	if f, ok := errors.Cause(err).(Fault); ok {
		return NewFaultResponse(f)
	}

	switch e.ExceptionHandling {
	case Propagate:
		panic(errors.Wrap(err, "xmlrpc: handler error propagated"))
	case WrapWithMessage:
		return NewFaultResponse(ServerError.New("%s", err.Error()))
	default:
		return NewFaultResponse(ServerError.New("internal server error"))
	}
}
