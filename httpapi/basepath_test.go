package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeBasePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"tabdeck", "/tabdeck"},
		{"/tabdeck", "/tabdeck"},
		{"/tabdeck/", "/tabdeck"},
		{" /deep/tabdeck// ", "/deep/tabdeck"},
	}
	for _, tc := range cases {
		if got := normalizeBasePath(tc.in); got != tc.want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMountRedirectsBarePrefix(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	})
	h := mount("/tabdeck", inner)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tabdeck", nil))
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/tabdeck/" {
		t.Fatalf("expected redirect to /tabdeck/, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tabdeck/api/tabs", nil))
	if rec.Body.String() != "/api/tabs" {
		t.Fatalf("expected stripped path, got %q", rec.Body.String())
	}
}
