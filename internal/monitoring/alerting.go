package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AuditLevel classifies an alert's severity.
type AuditLevel string

const (
	INFO     AuditLevel = "INFO"
	WARNING  AuditLevel = "WARNING"
	ERROR    AuditLevel = "ERROR"
	CRITICAL AuditLevel = "CRITICAL"
)

// Alerter sends a notification to an external service. Implementations:
// Slack, console (for development).
type Alerter interface {
	Alert(level AuditLevel, message string, metadata map[string]any)
}

// MultiAlerter fans an alert out to every configured Alerter.
type MultiAlerter struct {
	alerters []Alerter
}

func NewMultiAlerter(alerters ...Alerter) *MultiAlerter {
	return &MultiAlerter{alerters: alerters}
}

func (m *MultiAlerter) Alert(level AuditLevel, message string, metadata map[string]any) {
	for _, alerter := range m.alerters {
		go alerter.Alert(level, message, metadata)
	}
}

// SlackAlerter sends alerts to Slack via an incoming webhook.
type SlackAlerter struct {
	webhookURL string
	channel    string
	username   string
}

func NewSlackAlerter(webhookURL, channel, username string) *SlackAlerter {
	return &SlackAlerter{webhookURL: webhookURL, channel: channel, username: username}
}

func (s *SlackAlerter) Alert(level AuditLevel, message string, metadata map[string]any) {
	if s.webhookURL == "" {
		return
	}

	fields := []map[string]any{}
	for k, v := range metadata {
		fields = append(fields, map[string]any{
			"title": k,
			"value": fmt.Sprintf("%v", v),
			"short": true,
		})
	}

	payload := map[string]any{
		"username": s.username,
		"channel":  s.channel,
		"text":     fmt.Sprintf("%s alert", level),
		"attachments": []map[string]any{
			{
				"color":     s.color(level),
				"title":     message,
				"fields":    fields,
				"timestamp": time.Now().Unix(),
				"footer":    "metricstream ingestd",
			},
		},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return
	}

	client := &http.Client{Timeout: 5 * time.Second}
	_, _ = client.Post(s.webhookURL, "application/json", bytes.NewBuffer(jsonPayload))
}

func (s *SlackAlerter) color(level AuditLevel) string {
	switch level {
	case CRITICAL, ERROR:
		return "danger"
	case WARNING:
		return "warning"
	default:
		return "good"
	}
}

// ConsoleAlerter prints alerts to stdout, for local development.
type ConsoleAlerter struct{}

func NewConsoleAlerter() *ConsoleAlerter {
	return &ConsoleAlerter{}
}

func (c *ConsoleAlerter) Alert(level AuditLevel, message string, metadata map[string]any) {
	fmt.Printf("\nALERT [%s]: %s\n", level, message)
	if len(metadata) > 0 {
		fmt.Println("  metadata:")
		for k, v := range metadata {
			fmt.Printf("    %s: %v\n", k, v)
		}
	}
	fmt.Println()
}
