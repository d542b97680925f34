package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("row not found")
	err := Wrap(CodeNotFound, cause, "load tier")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped error to match cause with errors.Is")
	}
	if err.Code() != CodeNotFound {
		t.Fatalf("unexpected code %s", err.Code())
	}
}

func TestAsThroughChain(t *testing.T) {
	inner := New(CodeHoldExpired, "hold expired before confirmation")
	outer := fmt.Errorf("confirm payment: %w", inner)

	typed := As(outer)
	if typed == nil {
		t.Fatal("expected typed error through fmt wrap")
	}
	if typed.Code() != CodeHoldExpired {
		t.Fatalf("unexpected code %s", typed.Code())
	}
}

func TestHasCode(t *testing.T) {
	err := New(CodeDuplicateCheckIn, "already used")
	if !HasCode(err, CodeDuplicateCheckIn) {
		t.Fatal("expected HasCode match")
	}
	if HasCode(err, CodeInternal) {
		t.Fatal("unexpected HasCode match")
	}
	if HasCode(nil, CodeInternal) {
		t.Fatal("nil error should not match any code")
	}
}

func TestMetadataForUnknownCode(t *testing.T) {
	meta := MetadataFor(Code("NOT_A_CODE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestDomainCodeStatuses(t *testing.T) {
	cases := map[Code]int{
		CodeInsufficientInventory: http.StatusConflict,
		CodeHoldExpired:           http.StatusGone,
		CodePurchaseLimit:         http.StatusBadRequest,
		CodeDuplicateCheckIn:      http.StatusConflict,
		CodeConcurrencyConflict:   http.StatusConflict,
		CodeStateConflict:         http.StatusUnprocessableEntity,
	}
	for code, want := range cases {
		if got := MetadataFor(code).HTTPStatus; got != want {
			t.Fatalf("code %s: expected status %d got %d", code, want, got)
		}
	}
}
