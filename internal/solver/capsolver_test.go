package solver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmylchreest/streamresolver/internal/challenge"
)

func TestCapSolver(t *testing.T) {
	var created map[string]any
	polls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["clientKey"] != "cs-key" {
			w.Write([]byte(`{"errorId":1,"errorCode":"ERROR_KEY_DENIED_ACCESS","errorDescription":"bad key"}`))
			return
		}
		switch r.URL.Path {
		case "/createTask":
			created = body
			w.Write([]byte(`{"errorId":0,"taskId":"abc"}`))
		case "/getTaskResult":
			polls++
			if polls < 2 {
				w.Write([]byte(`{"errorId":0,"status":"processing"}`))
				return
			}
			w.Write([]byte(`{"errorId":0,"status":"ready","solution":{"token":"cf-token"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	api := NewCapSolver("cs-key").WithBaseURL(srv.URL)

	t.Run("submit and poll", func(t *testing.T) {
		id, err := api.Submit(context.Background(), Task{
			Type:    challenge.TypeCloudflareTurnstile,
			SiteKey: "0x4AAA",
			PageURL: "https://ani.gamer.com.tw/",
			Action:  "managed",
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if id != "abc" {
			t.Errorf("task id = %q, want abc", id)
		}

		task, _ := created["task"].(map[string]any)
		if task["type"] != "AntiTurnstileTaskProxyLess" {
			t.Errorf("task type = %v", task["type"])
		}
		if task["websiteKey"] != "0x4AAA" {
			t.Errorf("websiteKey = %v", task["websiteKey"])
		}

		res, err := api.Poll(context.Background(), id)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if res.Status != StatusPending {
			t.Errorf("first poll status = %q, want pending", res.Status)
		}

		res, err = api.Poll(context.Background(), id)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if res.Status != StatusReady || res.Solution != "cf-token" {
			t.Errorf("second poll = %+v", res)
		}
	})

	t.Run("api error on submit", func(t *testing.T) {
		bad := NewCapSolver("wrong").WithBaseURL(srv.URL)
		if _, err := bad.Submit(context.Background(), Task{Type: challenge.TypeCloudflareTurnstile}); err == nil {
			t.Error("expected error for rejected key")
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		if api.CanSolve(challenge.TypeHCaptcha) {
			t.Error("capsolver should not claim hcaptcha")
		}
		if _, err := api.Submit(context.Background(), Task{Type: challenge.TypeHCaptcha}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestTwoCaptcha(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/in.php":
			if q.Get("method") != "turnstile" {
				w.Write([]byte(`{"status":0,"request":"ERROR_BAD_PARAMETERS"}`))
				return
			}
			w.Write([]byte(`{"status":1,"request":"42"}`))
		case "/res.php":
			switch q.Get("id") {
			case "42":
				w.Write([]byte(`{"status":1,"request":"tc-token"}`))
			case "43":
				w.Write([]byte(`{"status":0,"request":"CAPCHA_NOT_READY"}`))
			default:
				w.Write([]byte(`{"status":0,"request":"ERROR_CAPTCHA_UNSOLVABLE"}`))
			}
		}
	}))
	defer srv.Close()

	api := NewTwoCaptcha("key").WithBaseURL(srv.URL)

	id, err := api.Submit(context.Background(), Task{Type: challenge.TypeCloudflareTurnstile, SiteKey: "k", PageURL: "https://x"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id != "42" {
		t.Errorf("id = %q, want 42", id)
	}

	tests := []struct {
		id   string
		want Status
	}{
		{"42", StatusReady},
		{"43", StatusPending},
		{"44", StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			res, err := api.Poll(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("Poll() error = %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("Status = %q, want %q", res.Status, tt.want)
			}
		})
	}
}
