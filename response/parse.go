package response

import (
	"bytes"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// statusLinePattern matches "HTTP/<version> <status> <reason>". Anything
// else as a first line makes the payload a malformed response.
var statusLinePattern = regexp.MustCompile(`^HTTP/[\d.]+\s+(\d+)\s*(.*)$`)

// Parse decodes a raw serialized HTTP response (status line, header
// block, body), e.g. one previously captured to bytes or carried as a
// multipart part. Trailing whitespace in the body is trimmed before any
// further decoding; the body bytes are otherwise left untouched.
func Parse(raw []byte) (*Response, error) {
	head, body := splitHead(raw)

	lines := strings.Split(strings.ReplaceAll(head, "\r\n", "\n"), "\n")
	match := statusLinePattern.FindStringSubmatch(strings.TrimSpace(lines[0]))
	if match == nil {
		return nil, newDecodeError("malformed HTTP response: invalid status line", nil)
	}
	status, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, newDecodeError("malformed HTTP response: invalid status code", err)
	}

	header := make(http.Header)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	body = bytes.TrimRight(body, " \t\r\n")
	return New(status, header, body)
}

// splitHead separates the status line + header block from the body on the
// first blank line, tolerating both CRLF and LF framing.
func splitHead(raw []byte) (head string, body []byte) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return string(raw[:i]), raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return string(raw[:i]), raw[i+2:]
	}
	return string(raw), nil
}
