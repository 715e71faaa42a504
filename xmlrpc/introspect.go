package xmlrpc

// newIntrospectionMethods builds the system.* built-in table (spec C6),
// generalizing mdzio-go-hmccu's BasicDispatcher.AddSystemMethods (which
// wires system.multicall/listMethods/methodHelp directly into the
// dispatcher) into entries resolved through the same Engine.invoke path
// user methods go through, so signatures and fault translation apply
// uniformly.
func newIntrospectionMethods(e *Engine) map[string]*DispatchEntry {
	m := make(map[string]*DispatchEntry)

	m["system.listMethods"] = &DispatchEntry{
		Doc: "Returns an array of all available methods on this server.",
		TypedValueHandler: func(Request) (Response, error) {
			names := e.listUserMethods()
			for name := range e.builtin {
				names = append(names, name)
			}
			values := make([]Value, len(names))
			for i, n := range names {
				values[i] = NewString(n)
			}
			return NewResponse(NewArray(values...)), nil
		},
	}

	m["system.methodHelp"] = &DispatchEntry{
		Doc:        "Returns help text if defined for the method passed, otherwise returns an empty string.",
		Signatures: [][]TypeTag{{TagString, TagString}},
		TypedValueHandler: func(req Request) (Response, error) {
			name, err := req.Params[0].ScalarValue()
			if err != nil {
				return Response{}, IncorrectParams.New("methodHelp expects a string method name")
			}
			methodName, _ := name.(string)
			entry, ok := e.lookup(methodName)
			if !ok {
				return Response{}, IntrospectUnknown.New("unknown method: %s", methodName)
			}
			return NewResponse(NewString(entry.Doc)), nil
		},
	}

	m["system.methodSignature"] = &DispatchEntry{
		Doc:        "Returns an array of known signatures (an array of arrays) for the method named.",
		Signatures: [][]TypeTag{{TagArray, TagString}},
		TypedValueHandler: func(req Request) (Response, error) {
			name, _ := req.Params[0].ScalarValue()
			methodName, _ := name.(string)
			entry, ok := e.lookup(methodName)
			if !ok {
				return Response{}, IntrospectUnknown.New("unknown method: %s", methodName)
			}
			if len(entry.Signatures) == 0 {
				return NewResponse(NewString("undef")), nil
			}
			sigs := make([]Value, len(entry.Signatures))
			for i, sig := range entry.Signatures {
				tags := make([]Value, len(sig))
				for j, t := range sig {
					tags[j] = NewString(string(t))
				}
				sigs[i] = NewArray(tags...)
			}
			return NewResponse(NewArray(sigs...)), nil
		},
	}

	m["system.getCapabilities"] = &DispatchEntry{
		Doc: "Returns a struct describing the optional capabilities this server implements.",
		TypedValueHandler: func(Request) (Response, error) {
			fields := []StructField{
				{Name: "xmlrpc", Value: NewStruct(
					StructField{Name: "specUrl", Value: NewString("http://www.xmlrpc.com/spec")},
					StructField{Name: "specVersion", Value: NewInt(1)},
				)},
				{Name: "system.multicall", Value: NewStruct(
					StructField{Name: "specUrl", Value: NewString("http://www.xmlrpc.com/discuss/msgReader$1208")},
					StructField{Name: "specVersion", Value: NewInt(1)},
				)},
				{Name: "introspection", Value: NewStruct(
					StructField{Name: "specUrl", Value: NewString("http://xmlrpc-epi.sourceforge.net/specs/rfc.introspection.php")},
					StructField{Name: "specVersion", Value: NewInt(2)},
				)},
			}
			if e.NilExtension {
				fields = append(fields, StructField{Name: "nil", Value: NewStruct(
					StructField{Name: "specUrl", Value: NewString("http://ontosys.com/xml-rpc/extensions.php")},
					StructField{Name: "specVersion", Value: NewInt(1)},
				)})
			}
			return NewResponse(NewStruct(fields...)), nil
		},
	}

	m["system.multicall"] = &DispatchEntry{
		Doc:        "Processes an array of calls, and returns an array of results.",
		Signatures: [][]TypeTag{{TagArray, TagArray}},
		TypedValueHandler: func(req Request) (Response, error) {
			return e.multicall(req)
		},
	}

	return m
}

// multicall implements spec §4.6's boxcar convention: an array of
// {methodName, params} structs dispatched through the same Engine.Execute
// path, with a per-call fault reported as a {faultCode, faultString}
// struct rather than aborting the whole batch. Nested system.multicall
// calls are rejected (spec §9 Open Question: zero-based call index in
// error messages, not the teacher's off-by-one).
func (e *Engine) multicall(req Request) (Response, error) {
	if req.Params[0].Kind() != KindArray {
		return Response{}, MulticallNotArray.New("system.multicall expects an array of call structs")
	}

	calls := req.Params[0].Array()
	results := make([]Value, len(calls))

	for i, call := range calls {
		results[i] = e.multicallOne(i, call)
	}

	return NewResponse(NewArray(results...)), nil
}

func (e *Engine) multicallOne(index int, call Value) Value {
	if call.Kind() != KindStruct {
		return multicallFault(MulticallNotStruct.New("call %d: expected struct", index))
	}

	nameVal, ok := call.StructGet("methodName")
	if !ok {
		return multicallFault(MulticallNoMethod.New("call %d: missing methodName", index))
	}
	name, err := nameVal.ScalarValue()
	methodName, isString := name.(string)
	if err != nil || !isString {
		return multicallFault(MulticallNotString.New("call %d: methodName is not a string", index))
	}

	if methodName == "system.multicall" {
		return multicallFault(MulticallRecursion.New("call %d: recursive system.multicall", index))
	}

	paramsVal, ok := call.StructGet("params")
	if !ok {
		return multicallFault(MulticallNoParams.New("call %d: missing params", index))
	}
	if paramsVal.Kind() != KindArray {
		return multicallFault(MulticallNotArray.New("call %d: params is not an array", index))
	}

	resp := e.Execute(Request{MethodName: methodName, Params: paramsVal.Array()})
	if resp.IsFault() {
		return multicallFault(*resp.Fault)
	}
	// successful sub-calls are wrapped in a single-element array, per the
	// system.multicall wire convention.
	return NewArray(resp.Value)
}

func multicallFault(f Fault) Value {
	return NewStruct(
		StructField{Name: "faultCode", Value: NewInt(f.Code)},
		StructField{Name: "faultString", Value: NewString(f.Message)},
	)
}
