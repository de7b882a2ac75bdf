package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
)

type orderBody struct {
	ProductName string `json:"productName" validate:"required,notblank,max=10"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	Kind        string `json:"kind" validate:"omitempty,oneof=plan topup"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBody(t *testing.T) {
	var ok orderBody
	if err := DecodeJSONBody(post(`{"productName":"Tea","quantity":3}`), &ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.ProductName != "Tea" || ok.Quantity != 3 {
		t.Fatalf("decoded %+v", ok)
	}
}

func TestDecodeJSONBodyFieldErrors(t *testing.T) {
	var dest orderBody
	err := DecodeJSONBody(post(`{"productName":"   ","quantity":0,"kind":"gift"}`), &dest)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, _ := typed.Details().(map[string]string)
	for field, want := range map[string]string{
		"productName": "must not be blank",
		"quantity":    "is required",
		"kind":        "must be one of: plan, topup",
	} {
		if details[field] != want {
			t.Fatalf("%s: got %q want %q (all: %v)", field, details[field], want, details)
		}
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	var dest orderBody
	err := DecodeJSONBody(post(`{"productName":"Tea","quantity":1,"price":9}`), &dest)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=x&big=500", nil)

	if n, err := ParseQueryInt(req, "limit", 10, 1, 100); err != nil || n != 25 {
		t.Fatalf("limit: %d %v", n, err)
	}
	if n, err := ParseQueryInt(req, "missing", 10, 1, 100); err != nil || n != 10 {
		t.Fatalf("fallback: %d %v", n, err)
	}
	if _, err := ParseQueryInt(req, "bad", 10, 1, 100); err == nil {
		t.Fatal("non numeric accepted")
	}
	if _, err := ParseQueryInt(req, "big", 10, 1, 100); err == nil {
		t.Fatal("out of range accepted")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  chai  ", 0); got != "chai" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeString("मसाला चाय", 5); got != "मसाला" {
		t.Fatalf("multi-byte truncation got %q", got)
	}
}
