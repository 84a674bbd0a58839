package websocket

import (
	"testing"

	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

func TestNewSubscription(t *testing.T) {
	tests := []struct {
		name        string
		tenant      string
		minSeverity string
		want        Subscription
		wantErr     bool
	}{
		{"defaults", "", "", Subscription{MinSeverity: valueobject.SeverityHigh}, false},
		{"tenant and severity", " acme ", "MEDIUM", Subscription{TenantID: "acme", MinSeverity: valueobject.SeverityMedium}, false},
		{"bad tenant", "a b", "", Subscription{}, true},
		{"bad severity", "acme", "critical", Subscription{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewSubscription(tt.tenant, tt.minSeverity, false)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSubscription() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("NewSubscription() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSubscriptionMatches(t *testing.T) {
	analysis := Message{Type: MessageAnalysis, TenantID: "acme"}
	high := Message{Type: MessageSignal, TenantID: "acme", Severity: "high"}
	medium := Message{Type: MessageSignal, TenantID: "acme", Severity: "medium"}

	tests := []struct {
		name string
		sub  Subscription
		msg  Message
		want bool
	}{
		{"all tenants", Subscription{MinSeverity: valueobject.SeverityHigh}, analysis, true},
		{"other tenant", Subscription{TenantID: "globex", MinSeverity: valueobject.SeverityHigh}, analysis, false},
		{"signals only skips report", Subscription{MinSeverity: valueobject.SeverityHigh, SignalsOnly: true}, analysis, false},
		{"high threshold keeps high", Subscription{MinSeverity: valueobject.SeverityHigh}, high, true},
		{"high threshold drops medium", Subscription{MinSeverity: valueobject.SeverityHigh}, medium, false},
		{"medium threshold keeps medium", Subscription{MinSeverity: valueobject.SeverityMedium}, medium, true},
		{"control messages are not broadcast", Subscription{MinSeverity: valueobject.SeverityMedium}, Message{Type: MessageError}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.matches(tt.msg); got != tt.want {
				t.Fatalf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientHandleCommand(t *testing.T) {
	hub := NewHub(logger.New("error"))
	client := newTestClient(hub, "", 1)

	resp := client.handleCommand([]byte(`{"action":"subscribe","tenant_id":"acme","min_severity":"medium","signals_only":true}`))
	if resp.Type != MessageSubscribed || resp.TenantID != "acme" {
		t.Fatalf("unexpected response %+v", resp)
	}
	want := Subscription{TenantID: "acme", MinSeverity: valueobject.SeverityMedium, SignalsOnly: true}
	if got := client.Subscription(); got != want {
		t.Fatalf("subscription = %+v, want %+v", got, want)
	}

	for _, raw := range []string{
		`not json`,
		`{"action":"unsubscribe"}`,
		`{"action":"subscribe","tenant_id":"a b"}`,
	} {
		if resp := client.handleCommand([]byte(raw)); resp.Type != MessageError {
			t.Fatalf("%s: expected error response, got %+v", raw, resp)
		}
	}
	if got := client.Subscription(); got != want {
		t.Fatal("rejected commands must keep the previous subscription")
	}
}

func TestClientReplyDoesNotBlock(t *testing.T) {
	client := newTestClient(NewHub(logger.New("error")), "", 1)
	client.reply(errorMessage("first"))
	client.reply(errorMessage("second"))

	if msg := <-client.replies; msg.Data != "first" {
		t.Fatalf("unexpected reply %+v", msg)
	}
}
