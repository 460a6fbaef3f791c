package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"santrack/dashboard/internal/models"
)

const (
	maxResponseBytes = 4 << 20
	// MaxRetriesLimit bounds retries so the doubling delay cannot overflow.
	MaxRetriesLimit = 10
)

type Endpoints struct {
	Login    string
	Register string
	Me       string
	Profile  string
	// User is a format string taking the user id.
	User string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:    "/auth/login",
		Register: "/auth/register",
		Me:       "/auth/me",
		Profile:  "/auth/profile",
		User:     "/users/%s",
	}
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Endpoints  *Endpoints
	// Transport is wrapped by the bearer interceptor; nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// Client talks to the external SanTrack REST API. It is safe for concurrent
// use.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	endpoints  Endpoints
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", opts.BaseURL)
	}

	endpoints := DefaultEndpoints()
	if opts.Endpoints != nil {
		endpoints = *opts.Endpoints
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRetries > MaxRetriesLimit {
		opts.MaxRetries = MaxRetriesLimit
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: newBearerTransport(opts.Transport),
		},
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		endpoints:  endpoints,
	}, nil
}

func (c *Client) Login(ctx context.Context, creds models.Credentials) (models.Session, error) {
	body, err := c.do(ctx, http.MethodPost, c.endpoints.Login, nil, creds, true)
	if err != nil {
		return models.Session{}, err
	}
	data, err := unwrap(body)
	if err != nil {
		return models.Session{}, err
	}
	return decodeSession(data)
}

func (c *Client) Register(ctx context.Context, reg models.Registration) (models.Session, error) {
	body, err := c.do(ctx, http.MethodPost, c.endpoints.Register, nil, reg, true)
	if err != nil {
		return models.Session{}, err
	}
	data, err := unwrap(body)
	if err != nil {
		return models.Session{}, err
	}
	return decodeSession(data)
}

// Me returns the user behind the token carried by ctx.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	body, err := c.do(ctx, http.MethodGet, c.endpoints.Me, nil, nil, false)
	if err != nil {
		return models.User{}, err
	}
	data, err := unwrap(body)
	if err != nil {
		return models.User{}, err
	}
	return decodeUser(data)
}

// UpdateProfile sends the partial profile and returns the user as the
// service now sees it.
func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (models.User, error) {
	body, err := c.do(ctx, http.MethodPut, c.endpoints.Profile, nil, update, false)
	if err != nil {
		return models.User{}, err
	}
	data, err := unwrap(body)
	if err != nil {
		return models.User{}, err
	}
	return decodeUser(data)
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return &APIError{Kind: ErrValidationRejected, Message: "user id required"}
	}
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf(c.endpoints.User, userID), nil, nil, false)
	return err
}

// Fetch reads a dashboard resource collection or a single record.
func (c *Client) Fetch(ctx context.Context, path string, query url.Values) (Page, error) {
	body, err := c.do(ctx, http.MethodGet, path, query, nil, false)
	if err != nil {
		return Page{}, err
	}
	return decodePage(body)
}

// Send writes to a dashboard resource. body is a JSON document sent as is;
// nil sends no body. The response envelope is decoded like Fetch.
func (c *Client) Send(ctx context.Context, method string, path string, body json.RawMessage) (Page, error) {
	var payload any
	if len(body) > 0 {
		payload = body
	}
	resp, err := c.do(ctx, method, path, nil, payload, false)
	if err != nil {
		return Page{}, err
	}
	return decodePage(resp)
}

// do issues one call, retrying transport-level failures with exponential
// backoff. HTTP error statuses are never retried.
func (c *Client) do(ctx context.Context, method string, path string, query url.Values, payload any, credentialCall bool) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	target := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	operation := func() ([]byte, error) {
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, backoff.Permanent(ctxErr)
			}
			return nil, &APIError{Kind: ErrNetworkUnavailable, Message: err.Error()}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, &APIError{Kind: ErrNetworkUnavailable, Status: resp.StatusCode, Message: err.Error()}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, fields := decodeFailure(body)
			return nil, backoff.Permanent(&APIError{
				Kind:    kindForStatus(resp.StatusCode, credentialCall),
				Status:  resp.StatusCode,
				Message: msg,
				Fields:  fields,
			})
		}
		return body, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = c.retryDelay << c.maxRetries

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &APIError{Kind: ErrNetworkUnavailable, Message: fmt.Sprintf("%s %s: %v", method, path, err)}
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return body, nil
}
