package bluesky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPDS = "https://bsky.social"

	createSessionPath = "/xrpc/com.atproto.server.createSession"
	authorFeedPath    = "/xrpc/app.bsky.feed.getAuthorFeed"
	requestTimeout    = 30 * time.Second
)

// ClientConfig holds connection settings for a Bluesky PDS.
type ClientConfig struct {
	PDS         string // defaults to DefaultPDS
	Identifier  string // handle or email used to log in
	AppPassword string
	Timeout     time.Duration // defaults to 30s
}

// Client talks XRPC to a PDS. It logs in lazily on the first ListPosts call
// and implements FeedSource.
type Client struct {
	http        *resty.Client
	identifier  string
	appPassword string
	log         logrus.FieldLogger

	mu        sync.Mutex
	accessJWT string
}

// NewClient creates a Bluesky client.
func NewClient(cfg ClientConfig, log logrus.FieldLogger) *Client {
	pds := strings.TrimRight(cfg.PDS, "/")
	if pds == "" {
		pds = DefaultPDS
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}

	client := resty.New()
	client.SetBaseURL(pds)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &Client{
		http:        client,
		identifier:  cfg.Identifier,
		appPassword: cfg.AppPassword,
		log:         log,
	}
}

type sessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionResponse struct {
	AccessJWT string `json:"accessJwt"`
	Handle    string `json:"handle"`
	DID       string `json:"did"`
}

type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *xrpcError) String() string {
	if e.Message != "" {
		return e.Error + ": " + e.Message
	}
	return e.Error
}

// Login creates a session with the configured app password.
func (c *Client) Login(ctx context.Context) error {
	if c.identifier == "" || c.appPassword == "" {
		return errors.New("bluesky: identifier and app password are required")
	}

	var session sessionResponse
	var xerr xrpcError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sessionRequest{Identifier: c.identifier, Password: c.appPassword}).
		SetResult(&session).
		SetError(&xerr).
		Post(createSessionPath)
	if err != nil {
		return fmt.Errorf("bluesky: create session: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bluesky: create session: HTTP %d %s", resp.StatusCode(), xerr.String())
	}
	if session.AccessJWT == "" {
		return errors.New("bluesky: create session: no access token in response")
	}

	c.mu.Lock()
	c.accessJWT = session.AccessJWT
	c.mu.Unlock()

	c.log.WithField("handle", session.Handle).Info("connected to Bluesky")
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.accessJWT
	c.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessJWT, nil
}

// feedEnvelope defers entry decoding so one bad entry is skipped alone.
type feedEnvelope struct {
	Feed   []json.RawMessage `json:"feed"`
	Cursor string            `json:"cursor"`
}

// ListPosts fetches one page of actor's feed.
func (c *Client) ListPosts(ctx context.Context, actor, filter string, limit int, cursor string) (*FeedPage, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"actor": actor,
		"limit": strconv.Itoa(limit),
	}
	if filter != "" {
		params["filter"] = filter
	}
	if cursor != "" {
		params["cursor"] = cursor
	}

	var xerr xrpcError
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetQueryParams(params).
		SetError(&xerr).
		Get(authorFeedPath)
	if err != nil {
		return nil, fmt.Errorf("bluesky: get author feed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bluesky: get author feed: HTTP %d %s", resp.StatusCode(), xerr.String())
	}

	var env feedEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("bluesky: decode author feed: %w", err)
	}

	page := &FeedPage{Cursor: env.Cursor}
	if env.Feed == nil {
		return page, nil
	}
	page.Feed = make([]FeedItem, 0, len(env.Feed))
	for i, raw := range env.Feed {
		var item FeedItem
		if err := json.Unmarshal(raw, &item); err != nil {
			c.log.WithError(err).WithField("index", i).Debug("skipping undecodable feed entry")
			continue
		}
		page.Feed = append(page.Feed, item)
	}
	return page, nil
}
