package httpserver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// DefaultIdleTimeout is the per-connection read/write deadline reset
// before each request (spec.md §4.8).
const DefaultIdleTimeout = 60 * time.Second

// DefaultBodyCap bounds C4's body; a request whose Content-Length
// exceeds it never reaches the parser.
const DefaultBodyCap = 1 << 20

// handleConn implements the per-connection state machine: Reading ->
// Dispatching -> Writing -> (Reading | Closed). It runs inside a C7
// worker and owns conn until it closes, by design or by error.
func handleConn(conn net.Conn, router *Router, idleTimeout time.Duration, bodyCap int, logger zerolog.Logger) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	for {
		if err := conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		req, err := readRequest(br, bodyCap)
		if err != nil {
			if isTimeoutOrClose(err) {
				return
			}
			status, body := framingErrorResponse(err)
			_ = writeResponse(conn, status, false, body)
			return
		}

		status, body := router.dispatch(req)
		keepAlive := req.keepAlive()
		if err := writeResponse(conn, status, keepAlive, body); err != nil {
			return
		}
		if !keepAlive {
			return
		}
	}
}

func isTimeoutOrClose(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func framingErrorResponse(err error) (int, []byte) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return 413, errorBody("body_too_large", "")
	case errors.Is(err, errChunkedBody):
		return 400, errorBody("malformed_json", "chunked transfer-encoding not supported")
	default:
		return 400, errorBody("malformed_json", "")
	}
}
