package xmlrpc

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Supported response/request charsets. Anything else requires a
// transcoder the server does not carry.
const (
	UTF8       = "UTF-8"
	ISO88591   = "ISO-8859-1"
	USASCII    = "US-ASCII"
)

var supportedCharsets = map[string]bool{
	UTF8:     true,
	ISO88591: true,
	USASCII:  true,
}

var (
	contentTypeCharsetRe = regexp.MustCompile(`(?i)charset\s*=\s*"?([\w.-]+)"?`)
	xmlDeclCharsetRe     = regexp.MustCompile(`(?i)encoding\s*=\s*"([\w.-]+)"`)
)

// GuessEncoding determines the charset a request body is encoded in. It
// checks, in order: the charset parameter of the HTTP Content-Type header,
// the encoding attribute of the XML declaration, a byte-order-mark sniff,
// and finally defaults to UTF-8. Grounded on the label resolution
// golang.org/x/net/html/charset already performs for mdzio-go-hmccu's
// xmlrpc.Handler, generalized into an explicit, testable priority chain.
func GuessEncoding(contentType string, body []byte) string {
	if m := contentTypeCharsetRe.FindStringSubmatch(contentType); m != nil {
		if name, ok := canonicalCharset(m[1]); ok {
			return name
		}
	}

	head := body
	if len(head) > 128 {
		head = head[:128]
	}
	if m := xmlDeclCharsetRe.FindSubmatch(head); m != nil {
		if name, ok := canonicalCharset(string(m[1])); ok {
			return name
		}
	}

	switch {
	case bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}):
		return UTF8
	case bytes.HasPrefix(body, []byte{0xFE, 0xFF}):
		return UTF8
	case bytes.HasPrefix(body, []byte{0xFF, 0xFE}):
		return UTF8
	}

	return UTF8
}

// canonicalCharset maps a charset label to one of the three names the
// server actually supports, using the same label table
// golang.org/x/net/html/charset consults.
func canonicalCharset(label string) (string, bool) {
	_, name := charset.Lookup(label)
	switch strings.ToUpper(name) {
	case "UTF-8":
		return UTF8, true
	case "ISO-8859-1", "WINDOWS-1252":
		return ISO88591, true
	case "US-ASCII":
		return USASCII, true
	}
	if supportedCharsets[strings.ToUpper(label)] {
		return strings.ToUpper(label), true
	}
	return "", false
}

// Transcode converts body from one supported charset to another using
// golang.org/x/text's encoding.Encoding + transform.Bytes, the same stack
// mdzio-go-hmccu wires via charmap.ISO8859_1.NewEncoder().Writer(...),
// generalized from one hard-coded charset to any of the three the server
// supports.
func Transcode(body []byte, from, to string) ([]byte, error) {
	if strings.EqualFold(from, to) {
		return body, nil
	}

	fromEnc, err := htmlindex.Get(from)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", from, err)
	}
	toEnc, err := htmlindex.Get(to)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", to, err)
	}

	decoded, _, err := transform.Bytes(fromEnc.NewDecoder(), body)
	if err != nil {
		return nil, err
	}
	encoded, _, err := transform.Bytes(toEnc.NewEncoder(), decoded)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

// needsEntityEncoding reports whether s contains any character that must
// be represented as a numeric character reference in toCharset -- always
// true for the XML metacharacters, additionally true for any non-ASCII
// rune when the target charset is US-ASCII.
func needsEntityEncoding(s, toCharset string) bool {
	if strings.IndexAny(s, `<>&'"`) != -1 {
		return true
	}
	if strings.EqualFold(toCharset, USASCII) {
		for _, r := range s {
			if r > 127 {
				return true
			}
		}
	}
	return false
}

// encodeEntities escapes XML metacharacters and, when toCharset is
// US-ASCII, every non-ASCII code point as a numeric character reference
// so the resulting document stays valid in the declared charset.
func encodeEntities(s, toCharset string) string {
	asciiOnly := strings.EqualFold(toCharset, USASCII)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\'':
			b.WriteString("&apos;")
		case '"':
			b.WriteString("&quot;")
		default:
			if asciiOnly && r > 127 {
				fmt.Fprintf(&b, "&#%d;", r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// EncodeEntities transcodes text from fromCharset to toCharset and
// entity-escapes it, per spec C3: the text is decoded to UTF-8, escaped
// for toCharset, and then encoded into toCharset. Supported charset pairs
// are UTF-8, ISO-8859-1 and US-ASCII; anything else requires a transcoder
// backend this package does not carry.
func EncodeEntities(text, fromCharset, toCharset string) (string, error) {
	if !supportedCharsets[strings.ToUpper(fromCharset)] || !supportedCharsets[strings.ToUpper(toCharset)] {
		return "", UnsupportedEncoding.New("unsupported charset pair %s -> %s", fromCharset, toCharset)
	}
	utf8Text, err := Transcode([]byte(text), fromCharset, UTF8)
	if err != nil {
		return "", err
	}
	escaped := encodeEntities(string(utf8Text), toCharset)
	converted, err := Transcode([]byte(escaped), UTF8, toCharset)
	if err != nil {
		return "", err
	}
	return string(converted), nil
}
