package httpserver

import (
	"encoding/json"

	"github.com/adred-codev/metricstream/internal/ingest"
	"github.com/adred-codev/metricstream/internal/monitoring"
	"github.com/adred-codev/metricstream/internal/ratelimit"
	"github.com/adred-codev/metricstream/internal/workerpool"
	"github.com/adred-codev/metricstream/internal/writer"
)

// Router is C9: the two-endpoint dispatch table. Everything else is 404.
type Router struct {
	limiter *ratelimit.Limiter
	parser  *ingest.Parser
	writer  *writer.Writer
	pool    *workerpool.Pool
}

// NewRouter wires C9 to the components it dispatches into.
func NewRouter(limiter *ratelimit.Limiter, parser *ingest.Parser, w *writer.Writer, pool *workerpool.Pool) *Router {
	return &Router{limiter: limiter, parser: parser, writer: w, pool: pool}
}

// dispatch implements C9's routing table, returning the status code and
// JSON body the connection loop should write.
func (rt *Router) dispatch(req *request) (status int, body []byte) {
	switch {
	case req.method == "POST" && req.path == "/metrics":
		return rt.handleIngest(req)
	case req.method == "GET" && req.path == "/health":
		return rt.handleHealth()
	default:
		return 404, errorBody("not_found", "")
	}
}

func (rt *Router) handleIngest(req *request) (int, []byte) {
	clientID := "anonymous"
	if v, ok := req.header("authorization"); ok && v != "" {
		clientID = v
	}

	if !rt.limiter.Allow(clientID) {
		monitoring.MetricsRejectedTotal.WithLabelValues("rate_limited").Inc()
		return 429, errorBody("rate_limited", "")
	}

	batch, err := rt.parser.Parse(req.body)
	if err != nil {
		status, body := mapParseError(err)
		monitoring.MetricsRejectedTotal.WithLabelValues(parseErrorReason(err)).Inc()
		return status, body
	}

	res := rt.writer.Enqueue(writer.PendingBatch{ClientID: clientID, Batch: batch})
	if res == writer.QueueFull {
		monitoring.MetricsRejectedTotal.WithLabelValues("queue_full").Inc()
		return 503, errorBody("queue_full", "")
	}

	monitoring.MetricsIngestedTotal.Add(float64(len(batch.Metrics)))
	return 202, acceptedBody(len(batch.Metrics))
}

// parseErrorReason gives MetricsRejectedTotal a stable label even when err
// isn't a *ingest.ParseError (mapParseError's own default case).
func parseErrorReason(err error) string {
	if pe, ok := err.(*ingest.ParseError); ok {
		return pe.Kind.String()
	}
	return "malformed_json"
}

func mapParseError(err error) (int, []byte) {
	pe, ok := err.(*ingest.ParseError)
	if !ok {
		return 400, errorBody("malformed_json", "")
	}
	switch pe.Kind {
	case ingest.ErrBodyTooLarge:
		return 413, errorBody(pe.Kind.String(), pe.Detail)
	case ingest.ErrMalformedJSON, ingest.ErrSchemaError, ingest.ErrValidationError:
		return 400, errorBody(pe.Kind.String(), pe.Detail)
	default:
		return 400, errorBody("malformed_json", pe.Detail)
	}
}

// healthBody is GET /health's response shape (spec.md §4.9): pool queue
// depth, writer queue depth, total drops, and known client count.
type healthBody struct {
	WorkersQueued int   `json:"workers_queued"`
	WriterQueued  int   `json:"writer_queued"`
	Dropped       int64 `json:"dropped"`
	Clients       int   `json:"clients"`
}

func (rt *Router) handleHealth() (int, []byte) {
	body := healthBody{
		WorkersQueued: rt.pool.QueueDepth(),
		WriterQueued:  rt.writer.QueueDepth(),
		Dropped:       rt.writer.Dropped() + rt.pool.Rejected(),
		Clients:       rt.limiter.ClientCount(),
	}
	encoded, _ := json.Marshal(body)
	return 200, encoded
}

func errorBody(code, detail string) []byte {
	if detail == "" {
		encoded, _ := json.Marshal(struct {
			Error string `json:"error"`
		}{Error: code})
		return encoded
	}
	encoded, _ := json.Marshal(struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}{Error: code, Detail: detail})
	return encoded
}

func acceptedBody(n int) []byte {
	encoded, _ := json.Marshal(struct {
		Accepted int `json:"accepted"`
	}{Accepted: n})
	return encoded
}
