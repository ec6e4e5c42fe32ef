package httpserver

import (
	"fmt"
	"io"
	"strconv"
)

// writeResponse writes a minimal HTTP/1.1 response: status line, a fixed
// set of headers, and body, always setting Content-Length (no chunked
// responses since the router only ever produces small JSON bodies).
func writeResponse(w io.Writer, status int, keepAlive bool, body []byte) error {
	conn := "close"
	if keepAlive {
		conn = "keep-alive"
	}
	header := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %s\r\nConnection: %s\r\n\r\n",
		status, statusText(status), strconv.Itoa(len(body)), conn,
	)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 202:
		return "Accepted"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 413:
		return "Payload Too Large"
	case 429:
		return "Too Many Requests"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
