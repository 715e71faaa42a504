package xmlrpc

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

type xmlTag int

const (
	valueTag          xmlTag = iota
	structTag         xmlTag = iota
	arrayTag          xmlTag = iota
	dataTag           xmlTag = iota
	base64Tag         xmlTag = iota
	booleanTag        xmlTag = iota
	dateTimeTag       xmlTag = iota
	doubleTag         xmlTag = iota
	intTag            xmlTag = iota
	stringTag         xmlTag = iota
	memberTag         xmlTag = iota
	nameTag           xmlTag = iota
	methodCallTag     xmlTag = iota
	methodNameTag     xmlTag = iota
	methodResponseTag xmlTag = iota
	paramListTag      xmlTag = iota
	paramTag          xmlTag = iota
	faultTag          xmlTag = iota
	nilTag            xmlTag = iota
)

var (
	tagNames = map[xmlTag]string{
		valueTag:          "value",
		structTag:         "struct",
		arrayTag:          "array",
		dataTag:           "data",
		base64Tag:         "base64",
		booleanTag:        "boolean",
		dateTimeTag:       "dateTime.iso8601",
		doubleTag:         "double",
		intTag:            "int",
		stringTag:         "string",
		memberTag:         "member",
		nameTag:           "name",
		methodCallTag:     "methodCall",
		methodNameTag:     "methodName",
		methodResponseTag: "methodResponse",
		paramListTag:      "params",
		paramTag:          "param",
		faultTag:          "fault",
		nilTag:            "nil",
	}
	startTags     [19]string
	endTags       [19]string
	boolEncodeMap = map[bool]string{true: "1", false: "0"}
)

type flusher interface {
	Flush() error
}

func init() {
	// precreate start and end tags
	for t, n := range tagNames {
		startTags[t] = "<" + n + ">"
		endTags[t] = "</" + n + ">"
	}
}

// writes XML-RPC values to an io.Writer
type xmlWriter struct {
	wr io.Writer

	// nilExtension enables emitting <nil/> for an empty/absent value
	// instead of an empty string. toCharset controls whether non-ASCII
	// code points in string values are entity-encoded as numeric
	// character references (required when toCharset is "US-ASCII"), and
	// is also what the XML declaration's encoding attribute reports
	// (spec §8 property P6: the prologue must match the negotiated
	// response charset, not a hardcoded default). An empty toCharset
	// means "UTF-8", unless omitCharsetAttr is set, in which case the
	// declaration omits the encoding attribute entirely (spec §4.4:
	// "auto" negotiation found no charset the client and server agree
	// on).
	nilExtension    bool
	toCharset       string
	omitCharsetAttr bool
}

// xmlProlog renders the XML declaration for the writer's negotiated
// charset, replacing the stdlib's hardcoded encoding/xml.Header constant
// (which always reads encoding="UTF-8").
func (w *xmlWriter) xmlProlog() string {
	if w.omitCharsetAttr {
		return `<?xml version="1.0"?>` + "\n"
	}
	charsetName := w.toCharset
	if charsetName == "" {
		charsetName = "UTF-8"
	}
	return `<?xml version="1.0" encoding="` + charsetName + `"?>` + "\n"
}

func newWriter(w io.Writer) *xmlWriter {
	return &xmlWriter{wr: w}
}

func (w *xmlWriter) reset(wr io.Writer) {
	w.Flush()
	w.wr = wr
}

func (w *xmlWriter) Flush() error {
	if f, ok := w.wr.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// writeRaw write the given raw value enclosed in the specified tag
func (w *xmlWriter) writeRaw(t xmlTag, raw string) error {
	if _, err := io.WriteString(w.wr, startTags[t]); err != nil {
		return err
	}
	if _, err := io.WriteString(w.wr, raw); err != nil {
		return err
	}
	_, err := io.WriteString(w.wr, endTags[t])
	return err
}

// writeXML invokes the given function wrapped in the specified tag
func (w *xmlWriter) writeXML(t xmlTag, fn func() error) error {
	if _, err := io.WriteString(w.wr, startTags[t]); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	_, err := io.WriteString(w.wr, endTags[t])
	return err
}

func (w *xmlWriter) writeCall(rpc methodCall) error {
	if _, err := io.WriteString(w.wr, w.xmlProlog()); err != nil {
		return err
	}
	return w.writeXML(methodCallTag, func() error {
		if err := w.writeRaw(methodNameTag, rpc.Method); err != nil {
			return err
		}
		return w.writeXML(paramListTag, func() error {
			for _, v := range rpc.Params {
				err := w.writeXML(paramTag, func() error {
					return w.writeValue(v)
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (w *xmlWriter) writeResponse(rpc methodResponse) error {
	if _, err := io.WriteString(w.wr, w.xmlProlog()); err != nil {
		return err
	}
	return w.writeXML(methodResponseTag, func() error {
		if !rpc.Fault.isEmpty() {
			return w.writeXML(faultTag, func() error {
				return w.writeValue(rpc.Fault)
			})
		}
		return w.writeXML(paramListTag, func() error {
			for _, v := range rpc.Params {
				err := w.writeXML(paramTag, func() error {
					return w.writeValue(v)
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (w *xmlWriter) writeValue(rpc rpcValue) error {
	return w.writeXML(valueTag, func() error {
		switch rpc.kind {
		case intKind:
			return w.writeRaw(intTag, fmt.Sprint(rpc.value))
		case booleanKind:
			return w.writeRaw(booleanTag, boolEncodeMap[rpc.value.(bool)])
		case doubleKind:
			d := fmt.Sprintf("%f", rpc.value)
			d = strings.TrimRight(d, "0")
			if len(d) == 0 || d[len(d)-1] == '.' {
				d = d + "0"
			}
			return w.writeRaw(doubleTag, d)
		case stringKind:
			s := rpc.value.(string)
			if strings.EqualFold(w.toCharset, USASCII) && needsEntityEncoding(s, w.toCharset) {
				return w.writeRaw(stringTag, encodeEntities(s, w.toCharset))
			}
			if strings.IndexAny(s, `<>&'"`) == -1 {
				return w.writeRaw(stringTag, s)
			}
			return w.writeXML(stringTag, func() error {
				return xml.EscapeText(w.wr, []byte(s))
			})
		case dateTimeKind:
			t := rpc.value.(time.Time)
			var a [64]byte
			b := a[:0]
			return w.writeRaw(dateTimeTag, string(t.AppendFormat(b, iso8601)))
		case base64Kind:
			return w.writeRaw(base64Tag, base64.StdEncoding.EncodeToString(rpc.value.([]byte)))
		case arrayKind:
			return w.writeXML(arrayTag, func() error {
				return w.writeXML(dataTag, func() error {
					array := rpc.value.([]rpcValue)
					for _, v := range array {
						if err := w.writeValue(v); err != nil {
							return err
						}
					}
					return nil
				})
			})
		case structKind:
			return w.writeXML(structTag, func() error {
				members := rpc.value.([]rpcEntry)
				for _, m := range members {
					err := w.writeXML(memberTag, func() error {
						if err := w.writeRaw(nameTag, m.Name); err != nil {
							return err
						}
						return w.writeValue(m.Value)
					})
					if err != nil {
						return err
					}
				}
				return nil
			})
		case nilKind:
			if w.nilExtension {
				_, err := io.WriteString(w.wr, "<nil/>")
				return err
			}
			return nil
		default:
			return nil
		}
	})
}
