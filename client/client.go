// Package client is a Go client of the Academia users API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/academia/core"
)

const (
	BaseURLEnv     = "VITE_API_URL"
	DefaultBaseURL = "http://localhost:3001"

	defaultTimeout = 10 * time.Second
)

type (
	Client struct {
		baseURL    string
		rest       *rest.Client
		validate   *validator.Validate
		translator ut.Translator
	}

	Option func(*Client)
)

// WithHTTPClient replaces the default *http.Client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.rest.HTTPClient = hc }
}

// BaseURL returns the API base URL read from VITE_API_URL, DefaultBaseURL when unset.
func BaseURL() string {
	if u := os.Getenv(BaseURLEnv); u != "" {
		return u
	}
	return DefaultBaseURL
}

// New returns a Client of the API served at baseURL, BaseURL() when empty.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = BaseURL()
	}
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		rest:       &rest.Client{HTTPClient: &http.Client{Timeout: defaultTimeout}},
		validate:   validate,
		translator: translator,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a JSON request to path and decodes a successful response into out.
// Non 2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method rest.Method, path string, in, out interface{}) error {
	req := rest.Request{
		Method:  method,
		BaseURL: c.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		req.Body = body
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(resp.Body), out), "decoding response body")
}

func (c *Client) send(ctx context.Context, req rest.Request) (*rest.Response, error) {
	hreq, err := rest.BuildRequestObject(req)
	if err != nil {
		return nil, err
	}
	res, err := c.rest.MakeRequest(hreq.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return rest.BuildResponse(res)
}

// APIError is a non 2xx API response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// newAPIError extracts a readable message from resp:
// the `message` of a JSON body (arrays joined with ", "), else its `error`,
// else the raw text body, else a generic message with the status code.
func newAPIError(resp *rest.Response) *APIError {
	var msg string
	if isJSON(resp.Headers) {
		var payload struct {
			Message json.RawMessage `json:"message"`
			Error   string          `json:"error"`
		}
		if err := json.Unmarshal([]byte(resp.Body), &payload); err == nil {
			msg = messageText(payload.Message)
			if msg == "" {
				msg = payload.Error
			}
		}
	} else {
		msg = resp.Body
	}
	if msg == "" {
		msg = fmt.Sprintf("Request failed with status %d", resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func isJSON(headers map[string][]string) bool {
	for k, vals := range headers {
		if !strings.EqualFold(k, "Content-Type") {
			continue
		}
		for _, v := range vals {
			if strings.Contains(v, "application/json") {
				return true
			}
		}
	}
	return false
}
