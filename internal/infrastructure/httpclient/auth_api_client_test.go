package httpclient_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skybeam/engage/internal/core/domain/auth"
	"github.com/skybeam/engage/internal/infrastructure/httpclient"
	"github.com/skybeam/engage/test/mocks"
)

type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestAuthAPIClient_GetToken(t *testing.T) {
	clock := mocks.NewTestClock(time.UnixMilli(0))

	var captured *http.Request
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{"token":"abc123","expires_in":300}`), nil
	})

	client := httpclient.NewAuthAPIClient("app-key", "app-secret", "https://device.example.com", doer, clock, nil)

	token, err := client.GetToken(context.Background(), "chan-1")
	require.NoError(t, err)
	require.Equal(t, "chan-1", token.ChannelID)
	require.Equal(t, "abc123", token.Token)
	require.Equal(t, time.UnixMilli(0).Add(300*time.Second), token.ExpiresAt)

	require.NotNil(t, captured)
	require.Equal(t, http.MethodGet, captured.Method)
	require.Equal(t, "https://device.example.com/api/auth/device", captured.URL.String())
	require.Equal(t, "chan-1", captured.Header.Get("X-Channel-ID"))
	require.Equal(t, "app-key", captured.Header.Get("X-App-Key"))

	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write([]byte("app-key:chan-1"))
	expected := "Bearer " + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	require.Equal(t, expected, captured.Header.Get("Authorization"))
}

func TestAuthAPIClient_TransportFailure(t *testing.T) {
	clock := mocks.NewTestClock(time.UnixMilli(0))
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	client := httpclient.NewAuthAPIClient("app-key", "app-secret", "https://device.example.com", doer, clock, nil)

	_, err := client.GetToken(context.Background(), "chan-1")

	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, auth.ErrorKindRequest, authErr.Kind)
}

func TestAuthAPIClient_RejectedStatus(t *testing.T) {
	clock := mocks.NewTestClock(time.UnixMilli(0))
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, `{}`), nil
	})
	client := httpclient.NewAuthAPIClient("app-key", "app-secret", "https://device.example.com", doer, clock, nil)

	_, err := client.GetToken(context.Background(), "chan-1")

	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, auth.ErrorKindResponse, authErr.Kind)
}

func TestAuthAPIClient_IncompletePayload(t *testing.T) {
	clock := mocks.NewTestClock(time.UnixMilli(0))

	for _, body := range []string{
		`{"token":"","expires_in":300}`,
		`{"token":"abc123","expires_in":0}`,
		`{"token":"abc123","expires_in":-10}`,
		`not json`,
	} {
		doer := doerFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, body), nil
		})
		client := httpclient.NewAuthAPIClient("app-key", "app-secret", "https://device.example.com", doer, clock, nil)

		_, err := client.GetToken(context.Background(), "chan-1")

		var authErr *auth.Error
		require.ErrorAs(t, err, &authErr, "body: %s", body)
		require.Equal(t, auth.ErrorKindResponse, authErr.Kind)
	}
}
