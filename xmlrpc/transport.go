package xmlrpc

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var acceptCharsetRe = regexp.MustCompile(`(?i)[\w.-]+`)

// negotiateRequestCharset determines which charset a request body is in,
// using the Content-Type header and the body itself (spec §4.4 step 2,
// delegating to GuessEncoding for the priority chain).
func negotiateRequestCharset(header http.Header, body []byte) string {
	return GuessEncoding(header.Get("Content-Type"), body)
}

// negotiateResponseCharset picks the response charset per spec §4.4 step 2.
//
// When policy is "fixed" (the server's default unless WithResponseCharsetPolicy
// selects "auto"), the configured fixedName is always used. When policy is
// "auto", it walks the server's preference list [reqCharset, UTF-8,
// ISO-8859-1, US-ASCII] and returns the first one that appears (by prefix
// match, uppercased) in the client's Accept-Charset header. If the client
// sent no Accept-Charset, or none of the preference list appears in it, no
// charset is negotiated at all: ok is false, and the caller must omit the
// charset from both the Content-Type header and the XML prologue rather
// than silently falling back to a default.
func negotiateResponseCharset(header http.Header, policy, fixedName, reqCharset string) (name string, ok bool) {
	if policy != "auto" {
		return fixedName, true
	}
	accept := header.Get("Accept-Charset")
	if accept == "" {
		return "", false
	}
	tried := make(map[string]bool, 4)
	for _, candidate := range []string{reqCharset, UTF8, ISO88591, USASCII} {
		if candidate == "" || tried[candidate] {
			continue
		}
		tried[candidate] = true
		if charsetNamedInAcceptHeader(candidate, accept) {
			return candidate, true
		}
	}
	return "", false
}

func charsetNamedInAcceptHeader(name, accept string) bool {
	want := strings.ToUpper(name)
	for _, label := range acceptCharsetRe.FindAllString(accept, -1) {
		if strings.HasPrefix(strings.ToUpper(label), want) {
			return true
		}
	}
	return false
}

// negotiateResponseEncoding picks a compression encoding from the
// client's Accept-Encoding header, restricted to what the server is
// configured to produce (spec §4.4 step 3).
func negotiateResponseEncoding(header http.Header, accepted map[string]bool) string {
	accept := header.Get("Accept-Encoding")
	if accept == "" {
		return ""
	}
	for _, enc := range []string{"gzip", "deflate"} {
		if accepted[enc] && strings.Contains(accept, enc) {
			return enc
		}
	}
	return ""
}

// writeResponseHeaders assembles the final HTTP response headers for a
// serialized XML-RPC body: Content-Type (with a charset parameter when one
// was negotiated), Vary (always Accept-Charset; plus Accept-Encoding when
// compression was applied) and Content-Length (spec §4.4 step 4).
// Content-Length is set only when compressing is false, so a response this
// server compresses carries none; compression done by a hosting layer is
// not detected.
// Content-Encoding itself is set by newCompressor once it picks a writer.
func writeResponseHeaders(header http.Header, charsetName string, hasCharset bool, compressing bool, contentLength int) {
	if hasCharset {
		header.Set("Content-Type", "text/xml; charset=\""+charsetName+"\"")
	} else {
		header.Set("Content-Type", "text/xml")
	}

	vary := "Accept-Charset"
	if compressing {
		vary += ", Accept-Encoding"
	}
	header.Set("Vary", vary)

	if !compressing {
		header.Set("Content-Length", strconv.Itoa(contentLength))
	}
}
