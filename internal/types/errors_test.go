package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodedErrorFormatting(t *testing.T) {
	err := NewError(CodeValidation, "ticker is required", nil)
	if got := err.Error(); got != "VALIDATION: ticker is required" {
		t.Fatalf("Error() = %q; want %q", got, "VALIDATION: ticker is required")
	}

	cause := errors.New("dial tcp: refused")
	err = NewError(CodeMarketUnavailable, "market data request failed", cause)
	if got := err.Error(); got != "MARKET_UNAVAILABLE: market data request failed: dial tcp: refused" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false; want true")
	}
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("portfolio add: %w", NewError(CodeInvalidTicker, "Invalid ticker symbol.", nil))
	if got := CodeOf(err); got != CodeInvalidTicker {
		t.Fatalf("CodeOf() = %q; want %q", got, CodeInvalidTicker)
	}
	if got := MessageOf(err); got != "Invalid ticker symbol." {
		t.Fatalf("MessageOf() = %q; want %q", got, "Invalid ticker symbol.")
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("CodeOf(plain) = %q; want empty", got)
	}
	if got := MessageOf(errors.New("plain")); got != "plain" {
		t.Fatalf("MessageOf(plain) = %q; want %q", got, "plain")
	}
}
