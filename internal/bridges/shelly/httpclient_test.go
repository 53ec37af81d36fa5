package shelly

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

// fakeDevice serves the Gen1 HTTP API surface the client exercises.
func fakeDevice(t *testing.T, authUser, authPass string) *httptest.Server {
	t.Helper()

	requireAuth := authUser != "" && authPass != ""
	mux := http.NewServeMux()

	mux.HandleFunc("/shelly", func(w http.ResponseWriter, _ *http.Request) {
		// Identification never requires auth.
		w.Header().Set("Content-Type", "application/json")
		payload := `{"type":"SHSW-25","mac":"A4CF12F45678","auth":` +
			boolJSON(requireAuth) + `,"fw":"20230913-112003/v1.14.0","num_outputs":2}`
		_, _ = w.Write([]byte(payload))
	})

	protected := func(handler func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if requireAuth {
				user, pass, ok := r.BasicAuth()
				if !ok || user != authUser || pass != authPass {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			handler(w, r)
		}
	}

	mux.HandleFunc("/status", protected(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"wifi_sta":{"connected":true,"rssi":-58},"uptime":1234,` +
			`"update":{"status":"idle","has_update":false,"old_version":"v1.14.0"}}`))
	}))
	mux.HandleFunc("/settings", protected(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"device":{"type":"SHSW-25","mac":"A4CF12F45678"},` +
			`"name":"Hall Shutter","fw":"v1.14.0","mode":"roller",` +
			`"login":{"enabled":` + boolJSON(requireAuth) + `,"username":"` + authUser + `"}}`))
	}))
	mux.HandleFunc("/settings/login", protected(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"enabled":` + boolJSON(requireAuth) +
			`,"unprotected":false,"username":"` + authUser + `"}`))
	}))
	mux.HandleFunc("/roller/0", protected(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("go"); got == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"state":"open"}`))
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func serverHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	return u.Host
}

func TestClientGetShelly(t *testing.T) {
	srv := fakeDevice(t, "", "")
	client := NewClient(time.Second, newTestLogger(t))

	info, err := client.GetShelly(context.Background(), serverHost(t, srv))
	if err != nil {
		t.Fatalf("GetShelly: %v", err)
	}
	if info.Type != "SHSW-25" || info.MAC != "A4CF12F45678" || info.Auth {
		t.Errorf("info = %+v", info)
	}
}

func TestClientAuthHandling(t *testing.T) {
	srv := fakeDevice(t, "admin", "secret")
	client := NewClient(time.Second, newTestLogger(t))
	host := serverHost(t, srv)

	// Identification works without credentials.
	info, err := client.GetShelly(context.Background(), host)
	if err != nil {
		t.Fatalf("GetShelly: %v", err)
	}
	if !info.Auth {
		t.Error("auth flag not reported")
	}

	// Protected endpoint without credentials.
	if _, err := client.GetStatus(context.Background(), host, "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("no-credential status error = %v, want ErrUnauthorized", err)
	}

	// Wrong credentials.
	if _, err := client.GetStatus(context.Background(), host, "admin", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong-credential error = %v, want ErrUnauthorized", err)
	}

	// Correct credentials.
	status, err := client.GetStatus(context.Background(), host, "admin", "secret")
	if err != nil {
		t.Fatalf("authed GetStatus: %v", err)
	}
	if status.WifiSta.RSSI != -58 {
		t.Errorf("rssi = %d", status.WifiSta.RSSI)
	}
}

func TestClientGetSettings(t *testing.T) {
	srv := fakeDevice(t, "", "")
	client := NewClient(time.Second, newTestLogger(t))

	settings, err := client.GetSettings(context.Background(), serverHost(t, srv), "", "")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings.Mode != "roller" || settings.Name != "Hall Shutter" {
		t.Errorf("settings = %+v", settings)
	}
}

func TestClientGetLoginSettings(t *testing.T) {
	t.Run("unprotected device", func(t *testing.T) {
		srv := fakeDevice(t, "", "")
		client := NewClient(time.Second, newTestLogger(t))

		login, err := client.GetLoginSettings(context.Background(), serverHost(t, srv), "", "")
		if err != nil {
			t.Fatalf("GetLoginSettings: %v", err)
		}
		if login.Enabled {
			t.Errorf("login = %+v, want disabled", login)
		}
	})

	t.Run("protected device reveals username", func(t *testing.T) {
		srv := fakeDevice(t, "admin", "secret")
		client := NewClient(time.Second, newTestLogger(t))

		login, err := client.GetLoginSettings(context.Background(), serverHost(t, srv), "admin", "secret")
		if err != nil {
			t.Fatalf("GetLoginSettings: %v", err)
		}
		if !login.Enabled || login.Username != "admin" {
			t.Errorf("login = %+v", login)
		}
	})
}

func TestClientQueryPathPassthrough(t *testing.T) {
	srv := fakeDevice(t, "", "")
	client := NewClient(time.Second, newTestLogger(t))

	if err := client.Get(context.Background(), serverHost(t, srv), "/roller/0?go=open", "", "", nil); err != nil {
		t.Fatalf("Get with query: %v", err)
	}
}

func TestClientTransportError(t *testing.T) {
	client := NewClient(200*time.Millisecond, newTestLogger(t))

	// Nothing listens here.
	_, err := client.GetShelly(context.Background(), "127.0.0.1:1")
	if !errors.Is(err, ErrTransport) && !errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, want transport taxonomy", err)
	}
}

func TestClientTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	client := NewClient(100*time.Millisecond, newTestLogger(t))
	_, err := client.GetShelly(context.Background(), serverHost(t, slow))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestProbe(t *testing.T) {
	t.Run("open device", func(t *testing.T) {
		srv := fakeDevice(t, "", "")
		client := NewClient(time.Second, newTestLogger(t))

		res, err := client.Probe(context.Background(), serverHost(t, srv), "", "")
		if err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if !res.Reachable || res.AuthRequired {
			t.Errorf("result = %+v", res)
		}
		if res.AuthValid != nil {
			t.Error("AuthValid should be nil when no auth is involved")
		}
		if res.Family != "Shelly 2.5" || res.Model != "SHSW-25" {
			t.Errorf("family/model = %q/%q", res.Family, res.Model)
		}
	})

	t.Run("auth required without credentials", func(t *testing.T) {
		srv := fakeDevice(t, "admin", "secret")
		client := NewClient(time.Second, newTestLogger(t))

		res, err := client.Probe(context.Background(), serverHost(t, srv), "", "")
		if err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if !res.Reachable || !res.AuthRequired {
			t.Errorf("result = %+v", res)
		}
		if res.AuthValid != nil {
			t.Error("AuthValid must stay nil without credentials to check")
		}
	})

	t.Run("valid credentials", func(t *testing.T) {
		srv := fakeDevice(t, "admin", "secret")
		client := NewClient(time.Second, newTestLogger(t))

		res, err := client.Probe(context.Background(), serverHost(t, srv), "admin", "secret")
		if err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if res.AuthValid == nil || !*res.AuthValid {
			t.Errorf("AuthValid = %v, want true", res.AuthValid)
		}
	})

	t.Run("invalid credentials", func(t *testing.T) {
		srv := fakeDevice(t, "admin", "secret")
		client := NewClient(time.Second, newTestLogger(t))

		res, err := client.Probe(context.Background(), serverHost(t, srv), "admin", "nope")
		if err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if res.AuthValid == nil || *res.AuthValid {
			t.Errorf("AuthValid = %v, want false", res.AuthValid)
		}
	})

	t.Run("unreachable host", func(t *testing.T) {
		client := NewClient(200*time.Millisecond, newTestLogger(t))

		res, err := client.Probe(context.Background(), "127.0.0.1:1", "", "")
		if err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if res.Reachable {
			t.Error("unreachable host reported reachable")
		}
	})
}
