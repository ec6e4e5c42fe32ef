package writer

import (
	"strconv"
	"strings"

	"github.com/adred-codev/metricstream/internal/ingest"
)

// formatRecord renders one metric as a single self-delimiting,
// recoverable text line per spec.md §6: tab-separated fields, tags as a
// compact "key=value;key=value" list, terminated by '\n'. Built with
// direct byte/strconv manipulation rather than fmt.Sprintf, in the
// teacher's hand-rolled-serialization idiom (src/message.go Serialize),
// into a pooled scratch buffer rather than allocating one per call.
func formatRecord(clientID string, m ingest.Metric) []byte {
	bufp := recordBufPool.get()
	b := *bufp

	b = strconv.AppendInt(b, m.ObservedAt, 10)
	b = append(b, '\t')
	b = append(b, escapeField(clientID)...)
	b = append(b, '\t')
	b = append(b, escapeField(m.Name)...)
	b = append(b, '\t')
	b = append(b, m.Kind.String()...)
	b = append(b, '\t')
	b = strconv.AppendFloat(b, m.Value, 'g', -1, 64)
	b = append(b, '\t')

	first := true
	for k, v := range m.Tags {
		if !first {
			b = append(b, ';')
		}
		first = false
		b = append(b, escapeField(k)...)
		b = append(b, '=')
		b = append(b, escapeField(v)...)
	}
	b = append(b, '\n')

	*bufp = b
	defer recordBufPool.put(bufp)

	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// escapeField replaces the record's own delimiters inside a field so each
// line stays self-delimiting and line-recoverable even if a client sends
// a tab or newline inside a name or tag.
func escapeField(s string) string {
	if !strings.ContainsAny(s, "\t\n\\;=") {
		return s
	}
	r := strings.NewReplacer(
		`\`, `\\`,
		"\t", `\t`,
		"\n", `\n`,
		";", `\;`,
		"=", `\=`,
	)
	return r.Replace(s)
}
