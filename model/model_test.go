package model

import (
	"context"
	"errors"
	"testing"
)

func TestMockModel_CannedAndFallback(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddResponse("hello", "hi there")

	resp, err := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q, want canned response", resp.Text)
	}

	resp, err = m.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "unregistered"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "Mock response to: unregistered" {
		t.Errorf("Text = %q, want echo fallback", resp.Text)
	}
}

func TestMockModel_LastUserMessageWins(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddResponse("second", "ok")

	resp, err := m.Generate(context.Background(), Request{
		Messages: []Message{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "reply"},
			{Role: "user", Content: "second"},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("Text = %q, want response to last user message", resp.Text)
	}
}

func TestMockModel_FailWith(t *testing.T) {
	m := NewMockModel("test-model")
	boom := errors.New("boom")
	m.FailWith(boom)

	if _, err := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hello"}},
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want injected failure", err)
	}

	m.FailWith(nil)
	if _, err := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hello"}},
	}); err != nil {
		t.Fatalf("Generate after reset: %v", err)
	}
}
