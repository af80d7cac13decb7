package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// newTestServer runs an in-process GraphQL endpoint whose behavior per
// request is decided by handle.
func newTestServer(t *testing.T, handle func(w http.ResponseWriter, req gqlRequest, hdr http.Header)) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/graphql", func(w http.ResponseWriter, req *http.Request) {
		var body gqlRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		handle(w, body, req.Header)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func writeData(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]json.RawMessage{"data": json.RawMessage(data)})
}

func writeGQLError(w http.ResponseWriter, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{
			{"message": message, "extensions": map[string]string{"code": code}},
		},
	})
}

func TestDoDecodesData(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, req gqlRequest, _ http.Header) {
		if req.Query != "query { ping }" {
			t.Errorf("unexpected query: %q", req.Query)
		}
		writeData(w, `{"ping":"pong"}`)
	})

	c := NewClient(srv.URL+"/graphql", nil, time.Second, zerolog.Nop())
	var out struct {
		Ping string `json:"ping"`
	}
	if err := c.Do(context.Background(), "query { ping }", nil, &out); err != nil {
		t.Fatal(err)
	}
	if out.Ping != "pong" {
		t.Fatalf("expected pong, got %q", out.Ping)
	}
}

func TestDoSendsBearerCredential(t *testing.T) {
	var got string
	srv := newTestServer(t, func(w http.ResponseWriter, _ gqlRequest, hdr http.Header) {
		got = hdr.Get("Authorization")
		writeData(w, `{}`)
	})

	c := NewClient(srv.URL+"/graphql", func() string { return "tok-1" }, time.Second, zerolog.Nop())
	if err := c.Do(context.Background(), "query { ping }", nil, nil); err != nil {
		t.Fatal(err)
	}
	if got != "Bearer tok-1" {
		t.Fatalf("expected bearer header, got %q", got)
	}
}

func TestDoOmitsHeaderWhenUnauthenticated(t *testing.T) {
	var got string
	srv := newTestServer(t, func(w http.ResponseWriter, _ gqlRequest, hdr http.Header) {
		got = hdr.Get("Authorization")
		writeData(w, `{}`)
	})

	c := NewClient(srv.URL+"/graphql", nil, time.Second, zerolog.Nop())
	if err := c.Do(context.Background(), "query { ping }", nil, nil); err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Fatalf("expected no auth header, got %q", got)
	}
}

func TestDoClassifiesGraphQLErrors(t *testing.T) {
	cases := []struct {
		name string
		code string
		want Kind
	}{
		{"forbidden is access denied", "FORBIDDEN", KindAccessDenied},
		{"unauthenticated is access denied", "UNAUTHENTICATED", KindAccessDenied},
		{"not found", "NOT_FOUND", KindNotFound},
		{"bad input is validation", "BAD_USER_INPUT", KindValidation},
		{"server fault is transient", "INTERNAL_SERVER_ERROR", KindTransient},
		{"unknown code is validation", "SOMETHING_ELSE", KindValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, _ gqlRequest, _ http.Header) {
				writeGQLError(w, "nope", tc.code)
			})
			c := NewClient(srv.URL+"/graphql", nil, time.Second, zerolog.Nop())
			err := c.Do(context.Background(), "query { ping }", nil, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tc.want {
				t.Fatalf("expected kind %v, got %v (%v)", tc.want, got, err)
			}
		})
	}
}

func TestDoServerFaultStatusIsTransient(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ gqlRequest, _ http.Header) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	c := NewClient(srv.URL+"/graphql", nil, time.Second, zerolog.Nop())
	err := c.Do(context.Background(), "query { ping }", nil, nil)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDoUnauthorizedStatusIsAccessDenied(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ gqlRequest, _ http.Header) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	c := NewClient(srv.URL+"/graphql", nil, time.Second, zerolog.Nop())
	err := c.Do(context.Background(), "query { ping }", nil, nil)
	if KindOf(err) != KindAccessDenied {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestDoTimeoutIsTransient(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ gqlRequest, _ http.Header) {
		time.Sleep(200 * time.Millisecond)
		writeData(w, `{}`)
	})
	c := NewClient(srv.URL+"/graphql", nil, time.Second, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Do(ctx, "query { ping }", nil, nil)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDoUnreachableServerIsTransient(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/graphql", nil, 200*time.Millisecond, zerolog.Nop())
	err := c.Do(context.Background(), "query { ping }", nil, nil)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
