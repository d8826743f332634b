// Package response normalizes raw HTTP payloads into an immutable value
// object with lazily derived text, JSON and multipart views.
package response

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	headerContentType     = "content-type"
	headerContentEncoding = "content-encoding"
)

// Response is an immutable wrapper around a status/headers/body triple.
// Header keys are normalized to lower case; multi-value headers collapse
// to the last written value, which matches wire reality for the headers
// this layer inspects.
type Response struct {
	StatusCode int
	Header     map[string]string
	Body       []byte
}

// New builds a Response from a status code, headers and raw body bytes.
// When the body is gzip- or deflate-compressed it is decoded here and the
// content-encoding header is dropped, since it no longer describes the
// exposed body.
func New(status int, header http.Header, body []byte) (*Response, error) {
	h := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		h[strings.ToLower(key)] = values[len(values)-1]
	}

	decoded, err := decodeContent(h[headerContentEncoding], body)
	if err != nil {
		return nil, err
	}
	if decoded != nil {
		body = decoded
		delete(h, headerContentEncoding)
	}

	return &Response{StatusCode: status, Header: h, Body: body}, nil
}

// FromHTTP drains resp.Body and builds a Response from it. The caller
// keeps ownership of resp; its body is closed here.
func FromHTTP(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return New(resp.StatusCode, resp.Header, body)
}

// decodeContent returns the decompressed body for gzip/deflate encodings,
// nil when no decoding applies. HTTP "deflate" is zlib-wrapped in theory
// but raw-flate in the wild, so both are accepted.
func decodeContent(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, newDecodeError("invalid gzip body", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, newDecodeError("invalid gzip body", err)
		}
		return out, nil
	case "deflate":
		if r, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer r.Close()
			if out, err := io.ReadAll(r); err == nil {
				return out, nil
			}
		}
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, newDecodeError("invalid deflate body", err)
		}
		return out, nil
	default:
		return nil, nil
	}
}

// Get returns the value of a header by case-insensitive name.
func (r *Response) Get(name string) string {
	return r.Header[strings.ToLower(name)]
}

// IsMultipart reports whether the payload must be read through Multipart:
// the content-type is multipart/* AND a boundary parameter is present.
// Without a boundary the body is treated as ordinary text even when
// labeled multipart.
func (r *Response) IsMultipart() bool {
	_, ok := r.boundary()
	return ok
}

func (r *Response) boundary() (string, bool) {
	mediaType, params, err := mime.ParseMediaType(r.Get(headerContentType))
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", false
	}
	boundary, ok := params["boundary"]
	return boundary, ok && boundary != ""
}

// Text returns the body decoded as UTF-8 text. Requesting the text view
// of a multipart payload is a decoding error.
func (r *Response) Text() (string, error) {
	if r.IsMultipart() {
		return "", newDecodeError("multipart response has no text view", nil)
	}
	if !utf8.Valid(r.Body) {
		return "", newDecodeError("response body is not valid UTF-8", nil)
	}
	return string(r.Body), nil
}

// Data returns the body parsed as JSON.
func (r *Response) Data() (any, error) {
	text, err := r.Text()
	if err != nil {
		return nil, err
	}
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, newDecodeError("response body is not valid JSON", err)
	}
	return data, nil
}

// Unmarshal parses the body as JSON into v.
func (r *Response) Unmarshal(v any) error {
	text, err := r.Text()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return newDecodeError("response body is not valid JSON", err)
	}
	return nil
}

// IsJSON reports whether the content-type indicates JSON and the body
// actually parses as JSON.
func (r *Response) IsJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.Get(headerContentType))
	if err != nil {
		return false
	}
	if mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json") {
		return false
	}
	_, err = r.Data()
	return err == nil
}

// Multipart returns the raw body of each part in document order, part
// headers discarded. A payload consisting solely of the terminal boundary
// yields an empty slice. Requesting the multipart view of a non-multipart
// payload is a decoding error.
func (r *Response) Multipart() ([][]byte, error) {
	boundary, ok := r.boundary()
	if !ok {
		return nil, newDecodeError("response is not multipart", nil)
	}

	parts := [][]byte{}
	mr := multipart.NewReader(bytes.NewReader(r.Body), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, newDecodeError("malformed multipart body", err)
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, newDecodeError("malformed multipart body", err)
		}
		parts = append(parts, data)
	}
}
