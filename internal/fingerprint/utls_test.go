package fingerprint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTransport_GoProfile(t *testing.T) {
	rt, err := Transport(ProfileGo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := &http.Client{Transport: rt}
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	if _, err := Transport(Profile("netscape"), nil); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestTransport_BrowserProfilesConstruct(t *testing.T) {
	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileRandom} {
		rt, err := Transport(p, nil)
		if err != nil {
			t.Errorf("profile %q: %v", p, err)
			continue
		}
		tr, ok := rt.(*http.Transport)
		if !ok {
			t.Errorf("profile %q: expected *http.Transport", p)
			continue
		}
		if tr.DialTLSContext == nil {
			t.Errorf("profile %q: expected custom TLS dialer", p)
		}
	}
}
