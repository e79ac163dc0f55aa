// File: internal/infra/adapters/twitch/helix_checker.go
package twitch

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

	"github.com/rs/zerolog"

	"streamboost-dashboard/internal/config"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/adapter"
	"streamboost-dashboard/internal/infra/metrics"
)

var _ adapter.StreamStatusChecker = (*HelixChecker)(nil)

const (
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"
	defaultHelixURL = "https://api.twitch.tv/helix"
	// tokens are refreshed this long before Twitch says they expire
	tokenSkew = time.Minute
)

var ErrCredentials = errors.New("twitch credentials not configured")

// HelixChecker answers stream liveness through the Helix streams endpoint,
// authenticated with an app access token from the client credentials flow.
type HelixChecker struct {
	clientID     string
	clientSecret string
	tokenURL     string
	helixURL     string
	client       *http.Client
	now          func() time.Time
	log          *zerolog.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewHelixChecker(cfg *config.TwitchConfig, logger *zerolog.Logger) *HelixChecker {
	l := logger.With().Str("component", "HelixChecker").Logger()
	c := &HelixChecker{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     cfg.TokenURL,
		helixURL:     strings.TrimRight(cfg.HelixURL, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
		log:          &l,
	}
	if c.tokenURL == "" {
		c.tokenURL = defaultTokenURL
	}
	if c.helixURL == "" {
		c.helixURL = defaultHelixURL
	}
	return c
}

func (c *HelixChecker) CheckStream(ctx context.Context, streamURL string) (*model.StreamStatus, error) {
	login, ok := model.TwitchLogin(streamURL)
	if !ok {
		return &model.StreamStatus{IsLive: false, Error: "Invalid Twitch URL"}, nil
	}
	if c.clientID == "" || c.clientSecret == "" {
		return nil, ErrCredentials
	}

	start := time.Now()
	st, err := c.check(ctx, login)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.IncStreamCheck(outcome)
	c.log.Debug().Str("login", login).Dur("took", time.Since(start)).Err(err).Msg("stream checked")
	return st, err
}

func (c *HelixChecker) check(ctx context.Context, login string) (*model.StreamStatus, error) {
	token, err := c.appToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.streams(ctx, login, token)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		// token revoked early; fetch a fresh one once
		resp.Body.Close()
		c.dropToken()
		if token, err = c.appToken(ctx); err != nil {
			return nil, err
		}
		resp, err = c.streams(ctx, login, token)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("helix streams: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		Data []struct {
			Title        string    `json:"title"`
			ViewerCount  int       `json:"viewer_count"`
			GameName     string    `json:"game_name"`
			ThumbnailURL string    `json:"thumbnail_url"`
			StartedAt    time.Time `json:"started_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode helix streams: %w", err)
	}
	if len(out.Data) == 0 {
		return &model.StreamStatus{IsLive: false}, nil
	}
	s := out.Data[0]
	return &model.StreamStatus{
		IsLive: true,
		StreamData: &model.StreamData{
			Title:        s.Title,
			ViewerCount:  s.ViewerCount,
			GameName:     s.GameName,
			ThumbnailURL: s.ThumbnailURL,
			StartedAt:    s.StartedAt,
		},
	}, nil
}

func (c *HelixChecker) streams(ctx context.Context, login, token string) (*http.Response, error) {
	u := c.helixURL + "/streams?user_login=" + url.QueryEscape(login)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	return c.client.Do(req)
}

// appToken returns the cached app token, fetching a new one when it is
// missing or about to expire. Concurrent callers share one fetch.
func (c *HelixChecker) appToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("twitch token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode twitch token: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("twitch token: empty access token")
	}
	c.token = out.AccessToken
	c.tokenExp = c.now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenSkew)
	return c.token, nil
}

func (c *HelixChecker) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
