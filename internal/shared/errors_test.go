package shared

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	t.Run("E preserves chain", func(t *testing.T) {
		base := errors.New("boom")
		err := E(KindNetworkTransient, "fetch", base)

		if !errors.Is(err, base) {
			t.Error("expected wrapped error to match base")
		}
		if err.Error() != "fetch: boom" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("E with nil", func(t *testing.T) {
		if E(KindAuth, "login", nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("KindOf through wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", E(KindAuth, "login", errors.New("401")))
		if got := KindOf(err); got != KindAuth {
			t.Errorf("KindOf() = %v, want %v", got, KindAuth)
		}
	})

	t.Run("KindOf unclassified", func(t *testing.T) {
		if got := KindOf(errors.New("plain")); got != KindInternal {
			t.Errorf("KindOf() = %v, want %v", got, KindInternal)
		}
	})
}

func TestKindFromStatus(t *testing.T) {
	tc := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindNetworkTransient},
		{http.StatusBadGateway, KindNetworkTransient},
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
	}

	for _, tt := range tc {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := KindFromStatus(tt.status); got != tt.want {
				t.Errorf("KindFromStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}
