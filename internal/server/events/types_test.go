package events

import (
	"testing"

	"github.com/tracklight/tracklight/pkg/errors"
)

func TestEventType_Valid(t *testing.T) {
	for _, typ := range Types {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	for _, bad := range []EventType{"", "all", "task", "FILE_CHANGE"} {
		if bad.Valid() {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestNewSubscription(t *testing.T) {
	tests := []struct {
		name      string
		types     []string
		projectID string
		wantErr   bool
		wantAll   bool
	}{
		{name: "single type", types: []string{"task_update"}},
		{name: "multiple types", types: []string{"commit", "risk_alert"}, projectID: "P1"},
		{name: "wildcard", types: []string{"all"}, wantAll: true},
		{name: "star wildcard", types: []string{"*"}, wantAll: true},
		{name: "wildcard among others", types: []string{"commit", "all"}, wantAll: true},
		{name: "whitespace tolerated", types: []string{" commit "}},
		{name: "empty list", types: nil, wantErr: true},
		{name: "unknown type", types: []string{"task_update", "nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := NewSubscription(tt.types, tt.projectID)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sub.All != tt.wantAll {
				t.Errorf("All = %v, want %v", sub.All, tt.wantAll)
			}
			if sub.ProjectID != tt.projectID {
				t.Errorf("ProjectID = %q, want %q", sub.ProjectID, tt.projectID)
			}
		})
	}

	if _, err := NewSubscription(nil, ""); err != errors.ErrEmptySubscription {
		t.Errorf("expected ErrEmptySubscription, got %v", err)
	}
}

func TestSubscription_Matches(t *testing.T) {
	sub, err := NewSubscription([]string{"task_update"}, "P1")
	if err != nil {
		t.Fatalf("NewSubscription: %v", err)
	}

	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"type and project match", Event{Type: TaskUpdate, ProjectID: "P1"}, true},
		{"unscoped event passes project filter", Event{Type: TaskUpdate}, true},
		{"wrong project", Event{Type: TaskUpdate, ProjectID: "P2"}, false},
		{"wrong type", Event{Type: RiskAlert, ProjectID: "P1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sub.Matches(tt.ev); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}

	var empty Subscription
	if !empty.Empty() {
		t.Error("zero subscription should be empty")
	}
	if empty.Matches(Event{Type: TaskUpdate}) {
		t.Error("empty subscription must match nothing")
	}

	all := SubscribeAll("P1")
	if !all.Matches(Event{Type: HealthCheck, ProjectID: "P1"}) {
		t.Error("wildcard should match any type")
	}
	if all.Matches(Event{Type: HealthCheck, ProjectID: "P2"}) {
		t.Error("wildcard still honors the project filter")
	}
}

func TestSubscription_TypeNames(t *testing.T) {
	sub, err := NewSubscription([]string{"risk_alert", "commit"}, "")
	if err != nil {
		t.Fatalf("NewSubscription: %v", err)
	}
	names := sub.TypeNames()
	// Names come back in canonical type order.
	if len(names) != 2 || names[0] != "commit" || names[1] != "risk_alert" {
		t.Errorf("unexpected names: %v", names)
	}

	if names := SubscribeAll("").TypeNames(); len(names) != 1 || names[0] != "all" {
		t.Errorf("wildcard names: %v", names)
	}
}
