package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestSetRageRequestValidate(t *testing.T) {
	var missing SetRageRequest
	if err := json.Unmarshal([]byte(`{}`), &missing); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := missing.Validate(); !errors.Is(err, ErrMissingValue) {
		t.Errorf("expected ErrMissingValue, got %v", err)
	}

	var zero SetRageRequest
	if err := json.Unmarshal([]byte(`{"value": 0}`), &zero); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := zero.Validate(); err != nil {
		t.Errorf("explicit zero should be valid, got %v", err)
	}

	inf := math.Inf(1)
	if err := (&SetRageRequest{Value: &inf}).Validate(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
}

func TestAddRageRequestValidate(t *testing.T) {
	if err := (&AddRageRequest{}).Validate(); !errors.Is(err, ErrEmptyCategory) {
		t.Errorf("expected ErrEmptyCategory, got %v", err)
	}
	if err := (&AddRageRequest{Category: "tease"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAPIResponseEnvelope(t *testing.T) {
	data, err := json.Marshal(Error("boom"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"status":"error","message":"boom"}` {
		t.Errorf("unexpected error envelope %s", data)
	}

	data, err = json.Marshal(SuccessWithMessage("done", map[string]int{"n": 1}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"status":"ok","message":"done","result":{"n":1}}` {
		t.Errorf("unexpected success envelope %s", data)
	}
}
