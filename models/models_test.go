package models

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestSnapshotValid(t *testing.T) {
	s := Snapshot{}
	for i := 0; i < BookLevels; i++ {
		s.AskPrice[i] = 10.2
		s.BidPrice[i] = 10.0
	}
	if !s.Valid() {
		t.Fatalf("expected valid snapshot")
	}

	s.BidPrice[2] = 0
	if s.Valid() {
		t.Errorf("zero price should be invalid")
	}

	s.BidPrice[2] = math.NaN()
	if s.Valid() {
		t.Errorf("NaN price should be invalid")
	}
}

func TestSnapshotMidSpread(t *testing.T) {
	s := Snapshot{}
	s.AskPrice[0] = 10.2
	s.BidPrice[0] = 10.0
	if got := s.Mid(); math.Abs(got-10.1) > 1e-12 {
		t.Errorf("mid = %v, want 10.1", got)
	}
	if got := s.Spread(); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("spread = %v, want 0.2", got)
	}
}

func TestSchemaErrorNamesColumns(t *testing.T) {
	err := &SchemaError{File: "2021-01-04.csv.gz", Missing: []string{"a3_p"}}
	if !strings.Contains(err.Error(), "a3_p") {
		t.Fatalf("error should name the missing column: %v", err)
	}
	var se *SchemaError
	if !errors.As(error(err), &se) {
		t.Fatalf("errors.As should match SchemaError")
	}
}
