package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
)

type mockChatResolver struct {
	link       *models.TelegramLink
	deliveries int
}

func (m *mockChatResolver) GetActiveLink(_ uint) (*models.TelegramLink, error) {
	if m.link == nil {
		return nil, apperrors.ErrNotFound
	}
	return m.link, nil
}

func (m *mockChatResolver) RecordDelivery(_ uint) error {
	m.deliveries++
	return nil
}

func testEvent() Event {
	return Event{
		ID:             "0192d3e1-0000-7000-8000-000000000001",
		RuleID:         1,
		UserID:         1,
		InstrumentCode: "600000.SH",
		InstrumentName: "浦发银行",
		Comparator:     models.ComparatorPriceAbove,
		Threshold:      decimal.NewFromFloat(10.00),
		Observed:       decimal.NewFromFloat(10.50),
	}
}

func TestTelegramSink_Dispatch(t *testing.T) {
	t.Run("sends_message_to_linked_chat", func(t *testing.T) {
		var gotChatID int64
		var gotText string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			var req sendMessageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding request: %v", err)
			}
			gotChatID = req.ChatID
			gotText = req.Text
			_ = json.NewEncoder(w).Encode(sendMessageResponse{OK: true})
		}))
		defer server.Close()

		links := &mockChatResolver{link: &models.TelegramLink{UserID: 1, ChatID: 42, IsActive: true}}
		sink := NewTelegramSink(server.Client(), server.URL, "bot-token", links)

		if err := sink.Dispatch(context.Background(), testEvent()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotChatID != 42 {
			t.Errorf("expected chat_id 42, got %d", gotChatID)
		}
		if !strings.Contains(gotText, "600000.SH") || !strings.Contains(gotText, "10.5") {
			t.Errorf("message missing instrument or price: %q", gotText)
		}
		if links.deliveries != 1 {
			t.Errorf("expected 1 recorded delivery, got %d", links.deliveries)
		}
	})

	t.Run("no_link_is_a_noop", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected when user has no link")
		}))
		defer server.Close()

		sink := NewTelegramSink(server.Client(), server.URL, "bot-token", &mockChatResolver{})
		if err := sink.Dispatch(context.Background(), testEvent()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("api_rejection_is_a_dispatch_failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(sendMessageResponse{OK: false, Description: "chat not found"})
		}))
		defer server.Close()

		links := &mockChatResolver{link: &models.TelegramLink{UserID: 1, ChatID: 42, IsActive: true}}
		sink := NewTelegramSink(server.Client(), server.URL, "bot-token", links)

		err := sink.Dispatch(context.Background(), testEvent())
		if err == nil {
			t.Fatal("expected error for rejected sendMessage")
		}
		if !strings.Contains(err.Error(), "chat not found") {
			t.Errorf("expected rejection description in error, got %v", err)
		}
	})

	t.Run("unreachable_api_is_a_dispatch_failure", func(t *testing.T) {
		server := httptest.NewServer(nil)
		server.Close()

		links := &mockChatResolver{link: &models.TelegramLink{UserID: 1, ChatID: 42, IsActive: true}}
		sink := NewTelegramSink(http.DefaultClient, server.URL, "bot-token", links)

		if err := sink.Dispatch(context.Background(), testEvent()); err == nil {
			t.Fatal("expected error for unreachable API")
		}
	})
}

func TestEvent_Message(t *testing.T) {
	e := testEvent()
	msg := e.Message()
	if !strings.Contains(msg, "浦发银行") || !strings.Contains(msg, "above 10") {
		t.Errorf("unexpected message: %q", msg)
	}

	e.Comparator = models.ComparatorPercentChangeAbove
	e.Observed = decimal.NewFromFloat(6.2)
	e.Threshold = decimal.NewFromFloat(5)
	msg = e.Message()
	if !strings.Contains(msg, "%") {
		t.Errorf("percent comparator message should mention percent: %q", msg)
	}

	// Unknown comparators still render something usable.
	e.Comparator = models.RuleComparator("bogus")
	if e.Message() == "" {
		t.Error("expected non-empty message for unknown comparator")
	}
}
