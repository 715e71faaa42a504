package xmlrpc

import (
	"fmt"
	"strconv"
)

// Fault represents an XML-RPC fault.
type Fault struct {
	Code    int    `rpc:"faultCode"`
	Message string `rpc:"faultString"`
}

// Error returns a formatted error string
func (f Fault) Error() string {
	return fmt.Sprintf("%d: %s", f.Code, f.Message)
}

type faultCode int

// Codes: http://xmlrpc-epi.sourceforge.net/specs/rfc.fault_codes.php
const (
	// parse error
	MalformedInput      faultCode = -32700
	UnsupportedEncoding faultCode = -32701
	InvalidCharacter    faultCode = -32702
	// server error
	InvalidRequest faultCode = -32600
	MethodNotFound faultCode = -32601
	InvalidParams  faultCode = -32602
	InternalError  faultCode = -32603
)

// Canonical symbolic fault codes used by the dispatch engine, the
// transport layer and the introspection/multicall built-ins. Several
// alias the classic xmlrpc-epi codes above; the rest extend the table for
// conditions the original code never distinguished.
const (
	UnknownMethod      = MethodNotFound
	InvalidRequestBody = InvalidRequest
	IncorrectParams    = InvalidParams
	ServerError        = InternalError

	IntrospectUnknown      faultCode = -32604
	ServerDecompressFail   faultCode = -32605
	ServerCannotDecompress faultCode = -32606

	// system.multicall sub-faults
	MulticallNotStruct faultCode = -32610
	MulticallNoMethod  faultCode = -32611
	MulticallNotString faultCode = -32612
	MulticallNoParams  faultCode = -32613
	MulticallNotArray  faultCode = -32614
	MulticallRecursion faultCode = -32615
)

var (
	faultMessages = map[faultCode]string{
		MalformedInput:      "malformed input",
		UnsupportedEncoding: "unsupported encoding",
		InvalidCharacter:    "invalid character for encoding",
		InvalidRequest:      "invalid xml-rpc. not conforming to spec",
		MethodNotFound:      "requested method not found",
		InvalidParams:       "invalid method parameters",
		InternalError:       "internal xml-rpc error",

		IntrospectUnknown:      "unknown method for introspection",
		ServerDecompressFail:   "could not decompress request body",
		ServerCannotDecompress: "server does not accept this content encoding",

		MulticallNotStruct: "system.multicall call item is not a struct",
		MulticallNoMethod:  "system.multicall call item is missing methodName",
		MulticallNotString: "system.multicall methodName is not a string",
		MulticallNoParams:  "system.multicall call item is missing params",
		MulticallNotArray:  "system.multicall params is not an array",
		MulticallRecursion: "recursive system.multicall is not allowed",
	}
)

func (f faultCode) String() string {
	return faultMessages[f]
}

func (f faultCode) Error() string {
	return strconv.Itoa(int(f)) + ": " + f.String()
}

func (f faultCode) New(format string, v ...interface{}) Fault {
	s := fmt.Sprintf(format, v...)
	if len(s) == 0 {
		s = f.String()
	}
	return Fault{Code: int(f), Message: s}
}
