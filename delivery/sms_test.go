package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSMSSenderSend(t *testing.T) {
	var got struct {
		apiKey    string
		recipient string
		text      string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got.apiKey = r.PostFormValue("apiKey")
		got.recipient = r.PostFormValue("recipient")
		got.text = r.PostFormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"ok"}`))
	}))
	defer server.Close()

	sender, err := NewSMSSender(SMSConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewSMSSender failed: %v", err)
	}

	if err := sender.Send(context.Background(), "+15550100", "123456"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got.apiKey != "test-key" || got.recipient != "+15550100" {
		t.Fatalf("unexpected form values: %+v", got)
	}
	if got.text == "" {
		t.Fatal("message text must carry the code")
	}
}

func TestSMSSenderGatewayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":4,"message":"invalid recipient"}`))
	}))
	defer server.Close()

	sender, err := NewSMSSender(SMSConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewSMSSender failed: %v", err)
	}

	if err := sender.Send(context.Background(), "bogus", "123456"); err == nil {
		t.Fatal("gateway rejection must surface as an error")
	}
}

func TestSMSSenderHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender, err := NewSMSSender(SMSConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewSMSSender failed: %v", err)
	}

	if err := sender.Send(context.Background(), "+15550100", "123456"); err == nil {
		t.Fatal("non-200 status must surface as an error")
	}
}

func TestNewSMSSenderValidation(t *testing.T) {
	if _, err := NewSMSSender(SMSConfig{APIKey: "k"}); err == nil {
		t.Fatal("missing base url should fail")
	}
	if _, err := NewSMSSender(SMSConfig{BaseURL: "http://example.com"}); err == nil {
		t.Fatal("missing api key should fail")
	}
}

func TestNewEmailSenderValidation(t *testing.T) {
	if _, err := NewEmailSender(EmailConfig{Port: 587, From: "noreply@example.com"}); err == nil {
		t.Fatal("missing host should fail")
	}
	if _, err := NewEmailSender(EmailConfig{Host: "smtp.example.com", Port: 587}); err == nil {
		t.Fatal("missing from address should fail")
	}

	sender, err := NewEmailSender(EmailConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})
	if err != nil {
		t.Fatalf("NewEmailSender failed: %v", err)
	}
	if sender.config.Subject == "" {
		t.Fatal("subject should default when unset")
	}
}
