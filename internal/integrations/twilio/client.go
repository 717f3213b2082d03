package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const whatsappPrefix = "whatsapp:"

// credentialsPayload is the expected JSON shape stored in SSM for the
// Twilio account.
type credentialsPayload struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	From       string `json:"from"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("twilio: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts WhatsApp messages through Twilio's Messages API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	credsOnce sync.Once
	creds     credentialsPayload
	credsErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Client backed by the given paramstore Getter for
// credential retrieval. Credentials are fetched from SSM on the first Send
// and reused for the lifetime of the process.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("twilio: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("twilio: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://api.twilio.com",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveCredentials fetches the account credentials from SSM on the first
// call and returns the cached result on every subsequent call.
func (c *Client) resolveCredentials(ctx context.Context) (credentialsPayload, error) {
	c.credsOnce.Do(func() {
		c.creds, c.credsErr = fetchCredentials(ctx, c.getter, c.paramPrefix+"/twilio-credentials")
	})
	return c.creds, c.credsErr
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func messagesURL(baseURL, accountSID string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.twilio.com"
	}
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", base, accountSID)
}

// whatsappAddress prefixes a bare phone number for the WhatsApp channel.
// Already-prefixed addresses pass through unchanged.
func whatsappAddress(number string) string {
	if strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}

// Send delivers one message. Delivery is best effort: Twilio's queue status
// is not consumed beyond the HTTP response code.
func (c *Client) Send(ctx context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("twilio: recipient must not be empty")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("twilio: body must not be empty")
	}

	creds, err := c.resolveCredentials(ctx)
	if err != nil {
		return err
	}

	payload := url.Values{}
	payload.Set("To", whatsappAddress(to))
	payload.Set("From", whatsappAddress(creds.From))
	payload.Set("Body", body)

	endpoint := messagesURL(c.baseURL, creds.AccountSID)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if reqErr != nil {
		return fmt.Errorf("twilio: create request: %w", reqErr)
	}
	req.SetBasicAuth(creds.AccountSID, creds.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return fmt.Errorf("twilio: request failed: %w", doErr)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}
	return nil
}

func fetchCredentials(ctx context.Context, getter Getter, name string) (credentialsPayload, error) {
	if getter == nil {
		return credentialsPayload{}, errors.New("twilio: paramstore getter is nil")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return credentialsPayload{}, fmt.Errorf("twilio: fetch credentials from paramstore: %w", err)
	}
	var creds credentialsPayload
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return credentialsPayload{}, fmt.Errorf("twilio: unmarshal paramstore credentials as JSON: %w", err)
	}
	if creds.AccountSID == "" || creds.AuthToken == "" || creds.From == "" {
		return credentialsPayload{}, errors.New("twilio: credentials missing account_sid, auth_token, or from")
	}
	return creds, nil
}
