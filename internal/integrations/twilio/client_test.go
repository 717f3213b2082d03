package twilio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const credsJSON = `{"account_sid":"AC123","auth_token":"secret","from":"+15550001111"}`

// fakeGetter is a minimal paramstore Getter stub for use within this package.
type fakeGetter struct {
	val    string
	err    error
	onCall func()
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		&fakeGetter{val: credsJSON},
		"/realty-agent",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_NilGetter(t *testing.T) {
	_, err := NewClient(nil, "/realty-agent")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestNewClient_EmptyPrefix(t *testing.T) {
	_, err := NewClient(&fakeGetter{}, "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "prefix")
}

func TestMessagesURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.twilio.com", "https://api.twilio.com/2010-04-01/Accounts/AC123/Messages.json"},
		{"https://api.twilio.com/", "https://api.twilio.com/2010-04-01/Accounts/AC123/Messages.json"},
		{"", "https://api.twilio.com/2010-04-01/Accounts/AC123/Messages.json"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, messagesURL(tc.base, "AC123"), "base=%q", tc.base)
	}
}

func TestWhatsappAddress(t *testing.T) {
	require.Equal(t, "whatsapp:+15551234567", whatsappAddress("+15551234567"))
	require.Equal(t, "whatsapp:+15551234567", whatsappAddress("whatsapp:+15551234567"))
}

func TestResolveCredentials_FetchedOnce(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: credsJSON}
	g.onCall = func() { calls++ }
	c, err := NewClient(g, "/realty-agent")
	require.NoError(t, err)

	creds, err := c.resolveCredentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "AC123", creds.AccountSID)
	require.Equal(t, 1, calls)

	_, _ = c.resolveCredentials(context.Background())
	_, _ = c.resolveCredentials(context.Background())
	require.Equal(t, 1, calls, "SSM must only be called once per process lifetime")
}

func TestFetchCredentials_Malformed(t *testing.T) {
	_, err := fetchCredentials(context.Background(), &fakeGetter{val: `{"broken`}, "/p/twilio-credentials")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unmarshal")
}

func TestFetchCredentials_MissingFields(t *testing.T) {
	_, err := fetchCredentials(context.Background(), &fakeGetter{val: `{"account_sid":"AC123"}`}, "/p/twilio-credentials")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}

func TestFetchCredentials_GetterError(t *testing.T) {
	_, err := fetchCredentials(context.Background(), &fakeGetter{err: errors.New("ssm unavailable")}, "/p/twilio-credentials")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm unavailable")
}

func TestSend_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		sid, token, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "AC123", sid)
		require.Equal(t, "secret", token)

		require.NoError(t, r.ParseForm())
		require.Equal(t, "whatsapp:+15551234567", r.PostForm.Get("To"))
		require.Equal(t, "whatsapp:+15550001111", r.PostForm.Get("From"))
		require.Equal(t, "Hello!", r.PostForm.Get("Body"))

		w.WriteHeader(201)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	require.NoError(t, c.Send(context.Background(), "+15551234567", "Hello!"))
}

func TestSend_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		_, _ = w.Write([]byte(`{"code":20003,"message":"Authenticate"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	err := c.Send(context.Background(), "+15551234567", "Hello!")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status")
	require.Contains(t, err.Error(), "401")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 401, statusErr.HTTPStatusCode())
}

func TestSend_ValidatesInput(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: credsJSON}, "/realty-agent")
	require.NoError(t, err)
	require.Error(t, c.Send(context.Background(), "", "body"))
	require.Error(t, c.Send(context.Background(), "+15551234567", "  "))
}

func TestSend_CredentialError(t *testing.T) {
	c, err := NewClient(&fakeGetter{err: errors.New("ssm unavailable")}, "/realty-agent")
	require.NoError(t, err)
	err = c.Send(context.Background(), "+15551234567", "Hello!")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm unavailable")
}

func TestSend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(201)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	require.Error(t, c.Send(context.Background(), "+15551234567", "Hello!"))
}
