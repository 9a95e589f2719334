package turnstile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySendsFormFields(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"secret":   r.PostFormValue("secret"),
			"response": r.PostFormValue("response"),
			"remoteip": r.PostFormValue("remoteip"),
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := New("sekrit", WithVerifyURL(srv.URL))
	ok, err := c.Verify(context.Background(), "tok-123", "203.0.113.9")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sekrit", form["secret"])
	assert.Equal(t, "tok-123", form["response"])
	assert.Equal(t, "203.0.113.9", form["remoteip"])
}

func TestVerifyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	ok, err := New("s", WithVerifyURL(srv.URL)).Verify(context.Background(), "tok", "")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyGarbageBodyCountsAsUnverified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	ok, err := New("s", WithVerifyURL(srv.URL)).Verify(context.Background(), "tok", "")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := New("s", WithVerifyURL(srv.URL)).Verify(context.Background(), "tok", "")
	assert.Error(t, err)
}
