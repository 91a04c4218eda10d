package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/trustcore/config"
)

func reply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.ClassifierConfig{Endpoint: srv.URL, APIKey: "k", Model: "m", Timeout: 2 * time.Second})
}

func TestClassify_SendsProfilePrompt(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(reply(`{"safe": false, "reason": "promotional"}`)))
	})

	res, err := c.Classify(context.Background(), "buy now", ProfileGuest)
	require.NoError(t, err)
	assert.Equal(t, Result{Safe: false, Reason: "promotional"}, res)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, guestPrompt, got.Messages[0].Content)
	assert.Equal(t, "buy now", got.Messages[1].Content)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestClassify_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, reply(`{"safe": true, "reason": "ok"}`)},
		{"not json", http.StatusOK, "<html>"},
		{"no choices", http.StatusOK, `{"choices": []}`},
		{"missing reason", http.StatusOK, reply(`{"safe": true}`)},
		{"prose", http.StatusOK, reply(`looks fine to me`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Classify(context.Background(), "text", ProfileGeneral)
			assert.Error(t, err)
		})
	}
}

func TestClassify_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	c := NewClient(config.ClassifierConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})

	_, err := c.Classify(context.Background(), "text", ProfileGeneral)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassify_NotConfiguredAndUnknownProfile(t *testing.T) {
	_, err := NewClient(config.ClassifierConfig{}).Classify(context.Background(), "x", ProfileGeneral)
	assert.ErrorIs(t, err, ErrNotConfigured)

	c := newTestClient(t, func(http.ResponseWriter, *http.Request) { assert.Fail(t, "must not be called") })
	_, err = c.Classify(context.Background(), "x", Profile("strict"))
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestParseVerdict(t *testing.T) {
	res, err := ParseVerdict(` {"safe": true, "reason": "fine", "extra": 1} `)
	require.NoError(t, err)
	assert.Equal(t, Result{Safe: true, Reason: "fine"}, res)

	for _, bad := range []string{
		`{"reason": "x"}`,
		`{"safe": "yes", "reason": "x"}`,
		`{"safe": null, "reason": "x"}`,
		`{"safe": true, "reason": null}`,
		`{"safe": true, "reason": 3}`,
		`[]`,
	} {
		_, err := ParseVerdict(bad)
		assert.ErrorIs(t, err, ErrMalformed, bad)
	}
}
