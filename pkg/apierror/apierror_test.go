package apierror

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusCode_KnownTypes(t *testing.T) {
	cases := map[Type]int{
		InvalidRequest:      http.StatusBadRequest,
		NotFound:            http.StatusNotFound,
		Authentication:      http.StatusUnauthorized,
		IdempotencyConflict: http.StatusConflict,
		CardError:           http.StatusPaymentRequired,
		RateLimited:         http.StatusTooManyRequests,
		ServerError:         http.StatusInternalServerError,
	}
	for typ, want := range cases {
		e := New(typ, "x")
		if got := e.StatusCode(); got != want {
			t.Errorf("%s: StatusCode() = %d, want %d", typ, got, want)
		}
	}
}

func TestWithParamAndCode_DoNotMutateOriginal(t *testing.T) {
	base := New(CardError, "Your card was declined.")
	withCode := base.WithCode("card_declined")
	if base.Code != "" {
		t.Error("WithCode mutated the original error")
	}
	if withCode.Code != "card_declined" {
		t.Errorf("Code = %q", withCode.Code)
	}
}

func TestToEnvelope_ApiError(t *testing.T) {
	err := New(NotFound, "No such customer: cus_1").WithParam("id")
	status, env := ToEnvelope(err)
	if status != http.StatusNotFound {
		t.Errorf("status = %d", status)
	}
	if env.Error.Type != NotFound || env.Error.Param != "id" {
		t.Errorf("env = %+v", env)
	}
}

func TestToEnvelope_PlainErrorDefaultsToInternal(t *testing.T) {
	status, env := ToEnvelope(errors.New("boom"))
	if status != http.StatusInternalServerError || env.Error.Type != Internal {
		t.Errorf("status, env = %d, %+v", status, env)
	}
}

func TestNotFoundErr(t *testing.T) {
	err := NotFoundErr("customer", "cus_123")
	if err.Type != InvalidRequest {
		t.Errorf("Type = %s", err.Type)
	}
	if err.Message != "No such customer: 'cus_123'" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.StatusCode() != http.StatusNotFound {
		t.Errorf("StatusCode() = %d, want 404", err.StatusCode())
	}

	status, env := ToEnvelope(err)
	if status != http.StatusNotFound {
		t.Errorf("ToEnvelope status = %d, want 404", status)
	}
	if env.Error.Type != InvalidRequest {
		t.Errorf("ToEnvelope type = %s, want invalid_request_error", env.Error.Type)
	}
}
