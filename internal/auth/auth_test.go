package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/spilink/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":   {"abc", true},
		"bearer  abc ": {"abc", true},
		"Basic abc":    {"", false},
		"Bearer":       {"", false},
		"Bearer    ":   {"", false},
		"":             {"", false},
	}
	for header, want := range cases {
		token, ok := BearerToken(header)
		if token != want.token || ok != want.ok {
			t.Fatalf("BearerToken(%q) = %q,%v want %q,%v", header, token, ok, want.token, want.ok)
		}
	}
}

func TestGuard(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	serve := func(v Validator, header string) int {
		r := gin.New()
		r.POST("/x", Guard(v), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	if got := serve(nil, ""); got != http.StatusNoContent {
		t.Fatalf("nil validator should allow, got %d", got)
	}
	v := StaticToken{Token: "s3cret"}
	if got := serve(v, ""); got != http.StatusUnauthorized {
		t.Fatalf("missing token should be rejected, got %d", got)
	}
	if got := serve(v, "Bearer nope"); got != http.StatusUnauthorized {
		t.Fatalf("wrong token should be rejected, got %d", got)
	}
	if got := serve(v, "Bearer s3cret"); got != http.StatusNoContent {
		t.Fatalf("valid token should pass, got %d", got)
	}

	fv := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	if got := serve(fv, "Bearer ok"); got != http.StatusNoContent {
		t.Fatalf("func validator should pass, got %d", got)
	}
}
