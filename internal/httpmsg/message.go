package httpmsg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

const (
	// MaxHeaders is the most header lines accepted in a request.
	MaxHeaders = 32
	// MaxBodySize is the largest request or response body accepted, in bytes.
	MaxBodySize = 10_000_000
)

// ReadRequest reads one complete request from br, including its body.
// The returned request carries a fully buffered body and an exact
// ContentLength, so it can be written upstream as is.
func ReadRequest(br *bufio.Reader) (*http.Request, error) {
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, newError(KindClosed, nil)
		}
		return nil, newError(KindConnection, err)
	}

	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, classify(err, KindIncomplete)
	}

	// Go moves Host out of the header map, so req.Host is all there is.
	if req.ProtoAtLeast(1, 1) && req.Host == "" {
		_ = req.Body.Close()
		return nil, newError(KindMalformed, errors.New("missing Host header"))
	}

	if n := countHeaders(req); n > MaxHeaders {
		_ = req.Body.Close()
		return nil, newError(KindMalformed, fmt.Errorf("too many headers: %d > %d", n, MaxHeaders))
	}

	if req.ContentLength > MaxBodySize {
		return nil, newError(KindBodyTooLarge, fmt.Errorf("content-length %d exceeds %d", req.ContentLength, MaxBodySize))
	}

	body, err := readBody(req.Body)
	if err != nil {
		return nil, err
	}

	setRequestBody(req, body)
	return req, nil
}

// WriteRequest writes req to w and flushes it. Go's default User-Agent is
// suppressed so the upstream sees the client's headers unchanged.
func WriteRequest(w *bufio.Writer, req *http.Request) error {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if _, ok := req.Header["User-Agent"]; !ok {
		req.Header["User-Agent"] = []string{""}
	}

	if err := req.Write(w); err != nil {
		return err
	}
	return w.Flush()
}

// ReadResponse reads one complete response to req from br.
func ReadResponse(br *bufio.Reader, req *http.Request) (*http.Response, error) {
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, classify(err, KindClosed)
	}
	defer resp.Body.Close()

	if resp.ContentLength > MaxBodySize {
		return nil, newError(KindBodyTooLarge, fmt.Errorf("content-length %d exceeds %d", resp.ContentLength, MaxBodySize))
	}

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	if req != nil && req.Method == http.MethodHead {
		resp.Body = http.NoBody
		return resp, nil
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.TransferEncoding = nil
	return resp, nil
}

// WriteResponse writes resp to w and flushes it.
func WriteResponse(w *bufio.Writer, resp *http.Response) error {
	if err := resp.Write(w); err != nil {
		return err
	}
	return w.Flush()
}

// ErrorResponse builds a short plain-text response for status.
func ErrorResponse(status int) *http.Response {
	body := fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))

	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// ExtendHeaderValue appends value to the comma separated list in header name,
// creating the header if it is absent.
func ExtendHeaderValue(h http.Header, name, value string) {
	existing := h.Values(name)
	if len(existing) == 0 {
		h.Set(name, value)
		return
	}
	h.Set(name, strings.Join(existing, ", ")+", "+value)
}

func FormatRequestLine(req *http.Request) string {
	return fmt.Sprintf("%s %s %s", req.Method, req.URL.RequestURI(), req.Proto)
}

func FormatResponseLine(resp *http.Response) string {
	return fmt.Sprintf("%s %d %s", resp.Proto, resp.StatusCode, http.StatusText(resp.StatusCode))
}

func readBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxBodySize+1))
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, newError(KindContentLengthMismatch, err)
		}
		return nil, classify(err, KindMalformed)
	}

	if len(data) > MaxBodySize {
		return nil, newError(KindBodyTooLarge, fmt.Errorf("body exceeds %d bytes", MaxBodySize))
	}

	return data, nil
}

func setRequestBody(req *http.Request, body []byte) {
	req.ContentLength = int64(len(body))
	req.TransferEncoding = nil
	if len(body) == 0 {
		req.Body = http.NoBody
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
}

func countHeaders(req *http.Request) int {
	n := 0
	for _, values := range req.Header {
		n += len(values)
	}
	if req.Host != "" {
		n++
	}
	return n
}

// classify maps a read error to a Kind. eofKind is used when the stream ended
// before the head was complete.
func classify(err error, eofKind Kind) *Error {
	var netErr net.Error

	switch {
	case errors.Is(err, io.EOF):
		return newError(eofKind, err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return newError(KindIncomplete, err)
	case errors.As(err, &netErr):
		return newError(KindConnection, err)
	case strings.Contains(err.Error(), "Content-Length"):
		return newError(KindInvalidContentLength, err)
	default:
		return newError(KindMalformed, err)
	}
}
