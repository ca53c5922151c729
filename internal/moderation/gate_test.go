package moderation

import (
	"net/http/httptest"
	"testing"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		credential string
		want       bool
	}{
		{"match", "viola", "viola", true},
		{"mismatch", "viola", "violin", false},
		{"case sensitive", "viola", "Viola", false},
		{"prefix only", "viola", "vio", false},
		{"empty credential", "viola", "", false},
		{"no secret configured", "", "", false},
		{"no secret configured with credential", "", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.secret)
			if got := g.Authorize(tt.credential); got != tt.want {
				t.Errorf("Authorize(%q) = %v, want %v", tt.credential, got, tt.want)
			}
		})
	}
}

func TestNilGate(t *testing.T) {
	var g *Gate
	if g.Authorize("x") {
		t.Error("nil gate should not authorize")
	}
	if g.Configured() {
		t.Error("nil gate should not be configured")
	}
}

func TestCredentialFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"secret header", map[string]string{"X-Admin-Secret": "s1"}, "s1"},
		{"bearer", map[string]string{"Authorization": "Bearer s2"}, "s2"},
		{"secret header wins", map[string]string{"X-Admin-Secret": "s1", "Authorization": "Bearer s2"}, "s1"},
		{"basic auth ignored", map[string]string{"Authorization": "Basic abc"}, ""},
		{"nothing", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/admin/submissions", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := CredentialFromRequest(r); got != tt.want {
				t.Errorf("CredentialFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}
