package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("service unavailable")

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from one of the REST services, with a message
// fit to show the user.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string   { return e.Message }
func (e *APIError) StatusCode() int { return e.Status }

// statusMessages overrides the message for a status code. An empty string keeps
// the message the server sent.
type statusMessages map[int]string

const serverMessage = ""

// NewHTTPClient returns a client with a cookie jar, which the auth service needs
// to carry its access and refresh tokens between calls.
func NewHTTPClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar, Timeout: defaultTimeout}
}

type client struct {
	base *url.URL
	http *http.Client
}

func newClient(baseURL string, hc *http.Client) (client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return client{}, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if hc == nil {
		hc = NewHTTPClient()
	}
	return client{base: u, http: hc}, nil
}

func (c client) url(path string) string {
	return c.base.String() + "/" + strings.TrimPrefix(path, "/")
}

type request struct {
	method string
	path   string
	in     any
	header http.Header
	msgs   statusMessages
}

func (c client) call(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.in != nil {
		b, err := json.Marshal(r.in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.url(r.path), body)
	if err != nil {
		return err
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, r.method, r.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp, r.msgs)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func apiError(resp *http.Response, msgs statusMessages) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)

	e := &APIError{Status: resp.StatusCode, Message: payload.Message}
	if m, ok := msgs[resp.StatusCode]; ok && m != serverMessage {
		e.Message = m
	}
	if e.Message == "" {
		e.Message = "Something went wrong. Please try again later."
	}
	return e
}
