package query

import (
	"errors"
	"testing"
	"time"

	"mercator-hq/overwatch/pkg/evidence"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name    string
		query   *evidence.Query
		wantErr bool
	}{
		{name: "empty", query: &evidence.Query{}},
		{name: "valid filters", query: &evidence.Query{Status: "blocked", Limit: 10, SortOrder: "desc", StartTime: &earlier, EndTime: &now}},
		{name: "audit status", query: &evidence.Query{Status: evidence.StatusRejected}},
		{name: "negative limit", query: &evidence.Query{Limit: -1}, wantErr: true},
		{name: "limit too large", query: &evidence.Query{Limit: MaxLimit + 1}, wantErr: true},
		{name: "negative offset", query: &evidence.Query{Offset: -5}, wantErr: true},
		{name: "bad sort order", query: &evidence.Query{SortOrder: "sideways"}, wantErr: true},
		{name: "inverted time range", query: &evidence.Query{StartTime: &now, EndTime: &earlier}, wantErr: true},
		{name: "unknown status", query: &evidence.Query{Status: "success"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var qe *evidence.QueryError
				if !errors.As(err, &qe) {
					t.Errorf("Validate() error type = %T, want *QueryError", err)
				}
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &evidence.Query{}
	ApplyDefaults(q)
	if q.Limit != DefaultLimit || q.SortOrder != "asc" {
		t.Errorf("ApplyDefaults() = %+v", q)
	}

	q = &evidence.Query{Limit: 5, SortOrder: "desc"}
	ApplyDefaults(q)
	if q.Limit != 5 || q.SortOrder != "desc" {
		t.Errorf("ApplyDefaults() overwrote explicit values: %+v", q)
	}
}
