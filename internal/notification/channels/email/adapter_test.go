package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formroom/internal/notification"
	"formroom/internal/realtime/models"
	dErrors "formroom/pkg/domain-errors"
)

func TestSendPostsMailRequest(t *testing.T) {
	var got sendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a, err := NewAdapter(Config{APIURL: srv.URL, APIToken: "tok", From: "noreply@formroom.local"})
	require.NoError(t, err)

	err = a.Send(context.Background(), notification.Delivery{
		Title:      "New submission",
		Body:       "A form got a response.",
		Recipients: []models.Identity{{UserID: "alice@corp.example"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "noreply@formroom.local", got.From)
	assert.Equal(t, []string{"alice@corp.example"}, got.To)
	assert.Equal(t, "New submission", got.Subject)
}

func TestSendMapsRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "mailbox unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	a, err := NewAdapter(Config{APIURL: srv.URL})
	require.NoError(t, err)

	err = a.Send(context.Background(), notification.Delivery{
		Recipients: []models.Identity{{UserID: "alice@corp.example"}},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDeliveryFailed))
}

func TestSendRequiresRecipients(t *testing.T) {
	a, err := NewAdapter(Config{APIURL: "http://mail.internal"})
	require.NoError(t, err)

	err = a.Send(context.Background(), notification.Delivery{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDeliveryFailed))
}

func TestConfigValidation(t *testing.T) {
	_, err := NewAdapter(Config{})
	assert.Error(t, err)
}
