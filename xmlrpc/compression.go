package xmlrpc

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"io/ioutil"
	"net/http"
	"regexp"
	"sync"
)

var (
	contentEncodingRe = regexp.MustCompile(`(gzip|deflate)`)
	gzipWriterPool    = &sync.Pool{
		New: func() interface{} { return gzip.NewWriter(ioutil.Discard) },
	}
	flateWriterPool = &sync.Pool{
		New: func() interface{} { w, _ := flate.NewWriter(ioutil.Discard, flate.DefaultCompression); return w },
	}
)

type writeResetter interface {
	io.WriteCloser
	Reset(io.Writer)
}

type compressWriter struct {
	writeResetter
	encoding string
}

func (w *compressWriter) Close() error {
	err := w.writeResetter.Close()
	switch w.encoding {
	case "gzip":
		gzipWriterPool.Put(w.writeResetter)
	case "deflate":
		flateWriterPool.Put(w.writeResetter)
	}
	return err
}

// newCompressor wraps w in a pooled gzip/deflate writer for encoding,
// which the caller must already have negotiated (negotiateResponseEncoding)
// against the server's accepted-compression set — newCompressor no longer
// re-derives its own choice from the request header, so a response never
// compresses with an encoding the server wasn't configured to accept.
func newCompressor(w http.ResponseWriter, encoding string) io.Writer {
	switch encoding {
	case "gzip":
		w.Header().Set("Content-Encoding", "gzip")
		zw := &compressWriter{writeResetter: gzipWriterPool.Get().(*gzip.Writer), encoding: encoding}
		zw.Reset(w)
		return zw
	case "deflate":
		w.Header().Set("Content-Encoding", "deflate")
		zw := &compressWriter{writeResetter: flateWriterPool.Get().(*flate.Writer), encoding: encoding}
		zw.Reset(w)
		return zw
	default:
		return w
	}
}

func newDecompressor(resp *http.Response) io.ReadCloser {
	encoding := resp.Header.Get("Content-Encoding")
	if encoding != "" {
		encoding = contentEncodingRe.FindString(encoding)
	}
	switch encoding {
	case "gzip":
		zr, _ := gzip.NewReader(resp.Body)
		return zr
	case "deflate":
		return flate.NewReader(resp.Body)
	}
	return resp.Body
}

// inflateRequest decompresses a request body per spec §4.4 step 1: a
// Content-Encoding the server does not list in accepted maps to
// ServerCannotDecompress, and a body that fails to inflate under a
// recognized encoding maps to ServerDecompressFail.
func inflateRequest(body []byte, contentEncoding string, accepted map[string]bool) ([]byte, error) {
	encoding := contentEncodingRe.FindString(contentEncoding)
	if encoding == "" {
		return body, nil
	}
	if accepted != nil && !accepted[encoding] {
		return nil, ServerCannotDecompress.New("content-encoding %q not accepted", encoding)
	}

	switch encoding {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, ServerDecompressFail.New("gzip: %s", err)
		}
		defer zr.Close()
		out, err := ioutil.ReadAll(zr)
		if err != nil {
			return nil, ServerDecompressFail.New("gzip: %s", err)
		}
		return out, nil
	case "deflate":
		zr := flate.NewReader(bytes.NewReader(body))
		defer zr.Close()
		out, err := ioutil.ReadAll(zr)
		if err != nil {
			return nil, ServerDecompressFail.New("deflate: %s", err)
		}
		return out, nil
	}
	return body, nil
}
