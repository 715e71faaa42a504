package xmlrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineExecuteTypedValue(t *testing.T) {
	e := NewEngine()
	err := e.HandleFunc("add", func(req Request) (Response, error) {
		a, _ := req.Params[0].ScalarValue()
		b, _ := req.Params[1].ScalarValue()
		return NewResponse(NewInt(a.(int) + b.(int))), nil
	}, WithSignatures([]TypeTag{TagInt, TagInt, TagInt}))
	require.NoError(t, err)

	resp := e.Execute(Request{MethodName: "add", Params: []Value{NewInt(2), NewInt(3)}})
	require.False(t, resp.IsFault())
	v, _ := resp.Value.ScalarValue()
	assert.Equal(t, 5, v)
}

func TestEngineExecuteUnknownMethod(t *testing.T) {
	e := NewEngine()
	resp := e.Execute(Request{MethodName: "nope"})
	require.True(t, resp.IsFault())
	assert.Equal(t, int(UnknownMethod), resp.Fault.Code)
}

func TestEngineRejectsSystemNameRegistration(t *testing.T) {
	e := NewEngine()
	err := e.HandleFunc("system.custom", func(Request) (Response, error) {
		return Response{}, nil
	})
	require.Error(t, err)
	assert.IsType(t, ReservedName{}, err)
}

func TestEngineSignatureMismatchKeepsLastAlternative(t *testing.T) {
	e := NewEngine()
	err := e.HandleFunc("m", func(Request) (Response, error) {
		return NewResponse(NewNil()), nil
	}, WithSignatures(
		[]TypeTag{TagNil, TagInt},
		[]TypeTag{TagNil, TagString},
	))
	require.NoError(t, err)

	resp := e.Execute(Request{MethodName: "m", Params: []Value{NewBool(true)}})
	require.True(t, resp.IsFault())
	assert.Equal(t, int(IncorrectParams), resp.Fault.Code)
	// the last declared alternative (string) is the one the mismatch
	// message reports, not the first (int), and the param index is
	// 1-based on the wire.
	assert.Contains(t, resp.Fault.Message, "Wanted string, got boolean at param 1")
}

func TestEngineSignatureMismatchReportsOneBasedParamIndex(t *testing.T) {
	e := NewEngine()
	err := e.HandleFunc("m", func(Request) (Response, error) {
		return NewResponse(NewNil()), nil
	}, WithSignatures([]TypeTag{TagInt, TagInt, TagInt}))
	require.NoError(t, err)

	resp := e.Execute(Request{MethodName: "m", Params: []Value{NewString("a"), NewString("b")}})
	require.True(t, resp.IsFault())
	assert.Equal(t, "Wanted int, got string at param 1", resp.Fault.Message)
}

func TestEngineSignatureAnyWildcardMatchesAnything(t *testing.T) {
	e := NewEngine()
	err := e.HandleFunc("echo", func(req Request) (Response, error) {
		return NewResponse(req.Params[0]), nil
	}, WithSignatures([]TypeTag{TagAny, TagAny}))
	require.NoError(t, err)

	resp := e.Execute(Request{MethodName: "echo", Params: []Value{NewString("hi")}})
	require.False(t, resp.IsFault())
}

func TestEngineNativeValueConvention(t *testing.T) {
	e := NewEngine()
	entry := &DispatchEntry{
		ParametersType: NativeValue,
		NativeValueHandler: func(params []interface{}) (interface{}, error) {
			total := 0
			for _, p := range params {
				total += p.(int)
			}
			return total, nil
		},
	}
	require.NoError(t, e.Register("nativeSum", entry))

	resp := e.Execute(Request{MethodName: "nativeSum", Params: []Value{NewInt(1), NewInt(2), NewInt(3)}})
	require.False(t, resp.IsFault())
	v, _ := resp.Value.ScalarValue()
	assert.Equal(t, 6, v)
}

func TestEngineHandlerErrorWrapsAsServerError(t *testing.T) {
	e := NewEngine()
	err := e.HandleFunc("boom", func(Request) (Response, error) {
		return Response{}, assertErr("kaboom")
	})
	require.NoError(t, err)

	resp := e.Execute(Request{MethodName: "boom"})
	require.True(t, resp.IsFault())
	assert.Equal(t, int(ServerError), resp.Fault.Code)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(s string) error { return simpleErr(s) }
