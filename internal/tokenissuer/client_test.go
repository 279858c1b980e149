package tokenissuer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreate_SendsRequestAndDecodesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/interview/realtime/create" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer jwt-1" {
			t.Errorf("auth header %q", got)
		}
		var req CreateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.SessionType != "behavioral" || req.ResumeText != "resume" {
			t.Errorf("request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(Token{SessionToken: "tok", SessionID: "sid", WebsocketURL: "/interview/realtime/ws/tok"})
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL + "/", AuthToken: "jwt-1"}
	tok, err := c.Create(context.Background(), CreateRequest{SessionType: "behavioral", ResumeText: "resume"})
	if err != nil {
		t.Fatal(err)
	}
	if tok.SessionToken != "tok" || tok.SessionID != "sid" {
		t.Fatalf("token %+v", tok)
	}
}

func TestCreate_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","message":"missing bearer token"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"INVALID_ARGUMENT","message":"unknown session_type"}`))
	}))
	defer srv.Close()

	_, err := (&Client{BaseURL: srv.URL}).Create(context.Background(), CreateRequest{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}

	_, err = (&Client{BaseURL: srv.URL, AuthToken: "x"}).Create(context.Background(), CreateRequest{SessionType: "karaoke"})
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDialBase(t *testing.T) {
	cases := []struct {
		api  string
		tok  Token
		want string
	}{
		{"http://localhost:8080", Token{SessionToken: "abc", WebsocketURL: "/interview/realtime/ws/abc"}, "ws://localhost:8080/interview/realtime/ws"},
		{"https://api.example.com/", Token{SessionToken: "abc", WebsocketURL: "/api/interview/realtime/ws/abc"}, "wss://api.example.com/api/interview/realtime/ws"},
		{"https://api.example.com", Token{SessionToken: "abc"}, "wss://api.example.com/interview/realtime/ws"},
		{"http://a", Token{SessionToken: "abc", WebsocketURL: "wss://rt.example.com/ws/abc"}, "wss://rt.example.com/ws"},
	}
	for _, c := range cases {
		got, err := DialBase(c.api, c.tok)
		if err != nil || got != c.want {
			t.Errorf("DialBase(%q, %+v) = %q, %v; want %q", c.api, c.tok, got, err, c.want)
		}
	}
}
