package marketplace

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

	logx "sellerbot/pkg/logx"
)

// Account is the seller-side facade. The marketplace protocol itself lives
// behind it.
type Account interface {
	Username() string
	SendTyping(ctx context.Context, chatID string) error
	SendMessage(ctx context.Context, chatID, text string) error
	ReplyToReview(ctx context.Context, reviewID, text string) error
}

// GatewayConfig configures the HTTP account gateway.
type GatewayConfig struct {
	BaseURL  string
	Token    string
	Username string
	Timeout  time.Duration
}

// Gateway forwards account commands as JSON POSTs to a companion service
// that speaks the marketplace protocol:
//
//	POST {base}/chats/{chatID}/typing
//	POST {base}/chats/{chatID}/messages   {"text": "..."}
//	POST {base}/reviews/{reviewID}/reply  {"text": "..."}
type Gateway struct {
	cfg    GatewayConfig
	base   *url.URL
	client *http.Client
}

func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("account gateway base url is empty")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("account gateway base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{cfg: cfg, base: u, client: &http.Client{Timeout: timeout}}, nil
}

func (g *Gateway) Username() string { return g.cfg.Username }

func (g *Gateway) SendTyping(ctx context.Context, chatID string) error {
	return g.post(ctx, "/chats/"+url.PathEscape(chatID)+"/typing", nil)
}

func (g *Gateway) SendMessage(ctx context.Context, chatID, text string) error {
	return g.post(ctx, "/chats/"+url.PathEscape(chatID)+"/messages", map[string]string{"text": text})
}

func (g *Gateway) ReplyToReview(ctx context.Context, reviewID, text string) error {
	return g.post(ctx, "/reviews/"+url.PathEscape(reviewID)+"/reply", map[string]string{"text": text})
}

func (g *Gateway) post(ctx context.Context, path string, body any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base.String()+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := strings.TrimSpace(g.cfg.Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("account gateway %s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// LogAccount only logs commands. Used when no gateway is configured.
type LogAccount struct {
	Name string
	Log  logx.Logger
}

func (a LogAccount) Username() string { return a.Name }

func (a LogAccount) SendTyping(_ context.Context, chatID string) error {
	a.Log.Debug("typing (dry-run)", logx.String("chat", chatID))
	return nil
}

func (a LogAccount) SendMessage(_ context.Context, chatID, text string) error {
	a.Log.Info("send message (dry-run)", logx.String("chat", chatID), logx.Int("len", len(text)))
	return nil
}

func (a LogAccount) ReplyToReview(_ context.Context, reviewID, text string) error {
	a.Log.Info("reply to review (dry-run)", logx.String("review", reviewID), logx.Int("len", len(text)))
	return nil
}
