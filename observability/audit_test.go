package observability

import (
	"context"
	"testing"
	"time"
)

func TestShouldLogLevels(t *testing.T) {
	all := &fileAuditLogger{config: AuditConfig{LogLevel: AuditLogAll}}
	failures := &fileAuditLogger{config: AuditConfig{LogLevel: AuditLogFailures}}

	tests := []struct {
		name         string
		event        AuditEventType
		wantFailures bool
	}{
		{name: "started", event: AuditEventStarted, wantFailures: false},
		{name: "exited", event: AuditEventExited, wantFailures: false},
		{name: "signaled", event: AuditEventSignaled, wantFailures: true},
		{name: "timeout", event: AuditEventTimeout, wantFailures: true},
		{name: "spawn failure", event: AuditEventSpawnFailure, wantFailures: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &AuditEvent{Type: tt.event}
			if !all.shouldLog(e) {
				t.Error("all-level logger skipped an event")
			}
			if got := failures.shouldLog(e); got != tt.wantFailures {
				t.Errorf("failures-level shouldLog = %v, want %v", got, tt.wantFailures)
			}
		})
	}
}

func TestMatchesFilter(t *testing.T) {
	now := time.Now()
	event := &AuditEvent{
		Timestamp: now,
		Binary:    "git",
		Type:      AuditEventExited,
	}

	tests := []struct {
		name   string
		filter *AuditFilter
		want   bool
	}{
		{name: "nil filter", filter: nil, want: true},
		{name: "matching binary", filter: &AuditFilter{Binary: "git"}, want: true},
		{name: "other binary", filter: &AuditFilter{Binary: "ls"}, want: false},
		{name: "matching type", filter: &AuditFilter{Type: AuditEventExited}, want: true},
		{name: "other type", filter: &AuditFilter{Type: AuditEventTimeout}, want: false},
		{name: "inside range", filter: &AuditFilter{StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)}, want: true},
		{name: "before range", filter: &AuditFilter{StartTime: now.Add(time.Minute)}, want: false},
		{name: "after range", filter: &AuditFilter{EndTime: now.Add(-time.Minute)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(event, tt.filter); got != tt.want {
				t.Errorf("matchesFilter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNoopAuditLogger(t *testing.T) {
	l := NoopAuditLogger()
	if err := l.Log(context.Background(), &AuditEvent{Type: AuditEventExited}); err != nil {
		t.Errorf("Log: %v", err)
	}
	events, err := l.Query(context.Background(), nil)
	if err != nil || events != nil {
		t.Errorf("Query = (%v, %v), want (nil, nil)", events, err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
