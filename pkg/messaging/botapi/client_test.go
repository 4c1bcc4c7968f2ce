package botapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mvalderrama/shopflow-backend/pkg/messaging"
)

func TestClientCreateInviteLinkRequest(t *testing.T) {
	const expectedURL = "http://bot.test/bottest-token/createChatInviteLink"
	respBody := `{"ok":true,"result":{"invite_link":"https://t.me/+abc123"}}`

	var capturedURL string
	var capturedPayload map[string]any

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()

		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		if err := json.Unmarshal(bodyBytes, &capturedPayload); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}

		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("test-token", WithBaseURL("http://bot.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	expiresAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	link, err := client.CreateInviteLink(context.Background(), messaging.InviteLinkParams{
		ChannelID:   -100123,
		Name:        "order-42",
		MemberLimit: 1,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		t.Fatalf("create invite link: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedPayload["chat_id"] != float64(-100123) {
		t.Fatalf("unexpected chat_id %v", capturedPayload["chat_id"])
	}
	if capturedPayload["member_limit"] != float64(1) {
		t.Fatalf("unexpected member_limit %v", capturedPayload["member_limit"])
	}
	if capturedPayload["expire_date"] != float64(expiresAt.Unix()) {
		t.Fatalf("unexpected expire_date %v", capturedPayload["expire_date"])
	}
	if link != "https://t.me/+abc123" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestClientSendMessageReturnsMessageID(t *testing.T) {
	respBody := `{"ok":true,"result":{"message_id":987}}`

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("test-token", WithBaseURL("http://bot.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	id, err := client.SendMessage(context.Background(), 555, "payment received")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if id != 987 {
		t.Fatalf("unexpected message id %d", id)
	}
}

func TestClientAPIErrorSurfacesDescription(t *testing.T) {
	respBody := `{"ok":false,"error_code":400,"description":"Bad Request: not enough rights"}`

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("test-token", WithBaseURL("http://bot.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.SendMessage(context.Background(), 555, "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "not enough rights") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestClientUnbanMemberOnlyIfBanned(t *testing.T) {
	respBody := `{"ok":true,"result":true}`

	var capturedPayload map[string]any
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		if err := json.Unmarshal(bodyBytes, &capturedPayload); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("test-token", WithBaseURL("http://bot.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.UnbanMember(context.Background(), -100123, 555); err != nil {
		t.Fatalf("unban member: %v", err)
	}
	if capturedPayload["only_if_banned"] != true {
		t.Fatalf("expected only_if_banned=true, got %v", capturedPayload["only_if_banned"])
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
