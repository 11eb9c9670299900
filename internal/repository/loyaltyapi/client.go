package loyaltyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/NordCoder/Puntos/internal/domain/promo"
	"github.com/NordCoder/Puntos/internal/obs/retry"
)

type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// UpstreamError carries the backend's own message so it can be shown as is.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
}

var (
	_ promo.Directory = (*Client)(nil)
	_ promo.Ledger    = (*Client)(nil)
)

type Client struct {
	base *url.URL
	c    *http.Client
	log  *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("loyaltyapi: base_url is required")
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("loyaltyapi: parse base_url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		base: base,
		c:    &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(transport)},
		log:  log.With(zap.String("component", "loyaltyapi")),
	}, nil
}

type envelope struct {
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// flexID accepts ids sent either as JSON numbers or strings.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

type clientDTO struct {
	ID       flexID          `json:"id"`
	Name     string          `json:"nombre"`
	Phone    string          `json:"telefono"`
	Points   decimal.Decimal `json:"puntos"`
	Business string          `json:"negocio"`
}

type campaignDTO struct {
	ID         flexID          `json:"id"`
	Name       string          `json:"nombre"`
	Threshold  decimal.Decimal `json:"meta"`
	Reward     string          `json:"recompensa"`
	UsesStamps bool            `json:"usa_sellos"`
	Active     bool            `json:"activa"`
}

func (c *Client) ListClients(ctx context.Context) ([]promo.Client, error) {
	var dtos []clientDTO
	if err := c.get(ctx, "clientes", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]promo.Client, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, promo.Client{
			ID:       string(d.ID),
			Name:     d.Name,
			Phone:    d.Phone,
			Points:   d.Points,
			Business: d.Business,
		})
	}
	return out, nil
}

func (c *Client) ListCampaigns(ctx context.Context) ([]promo.Campaign, error) {
	var dtos []campaignDTO
	if err := c.get(ctx, "campanas", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]promo.Campaign, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, promo.Campaign{
			ID:         string(d.ID),
			Name:       d.Name,
			Threshold:  d.Threshold,
			Reward:     d.Reward,
			UsesStamps: d.UsesStamps,
			Active:     d.Active,
		})
	}
	return out, nil
}

// Statement returns the client's account statement untouched.
func (c *Client) Statement(ctx context.Context, clientID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "estado_cuenta", url.Values{"id": {clientID}}, &out)
	return out, err
}

// RegisterPurchase posts a purchase; body and result are opaque.
func (c *Client) RegisterPurchase(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodPost, "compras", nil, body, &out)
	return out, err
}

// SaveCampaign creates or updates a campaign upstream.
func (c *Client) SaveCampaign(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodPost, "campanas", nil, body, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return retry.Do(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, q, nil, out)
	}, retry.UpstreamPolicy(c.log, Retryable))
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out any) error {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("loyaltyapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("loyaltyapi %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("loyaltyapi read body: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || env.Error {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.log.Warn("upstream error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return &UpstreamError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("loyaltyapi decode envelope: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("loyaltyapi decode %s: %w", path, err)
	}
	return nil
}

// Retryable retries transport failures and 5xx answers.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}
