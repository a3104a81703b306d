package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/picklr-io/vpnpilot/internal/logging"
	"github.com/picklr-io/vpnpilot/internal/retry"
	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// APIKeyHeader carries the peer's shared key.
const APIKeyHeader = "X-API-Key"

// PeerConfig describes how to reach another environment's entry point.
type PeerConfig struct {
	Endpoint          string
	APIKey            string
	SourceEnvironment string
	SourceAccount     string
}

// PeerClient forwards commands to another environment over HTTPS.
type PeerClient struct {
	cfg    PeerConfig
	client *http.Client
	policy *retry.Policy
	now    func() time.Time
	logger *slog.Logger
}

// NewPeerClient creates a client. A nil policy uses retry.DefaultPolicy.
func NewPeerClient(cfg PeerConfig, client *http.Client, policy *retry.Policy, logger *slog.Logger) *PeerClient {
	if client == nil {
		client = &http.Client{}
	}
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	return &PeerClient{
		cfg:    cfg,
		client: client,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.OrDefault(logger),
	}
}

// Forward posts cmd to the peer, retrying transport failures and timeouts.
// A well-formed peer response is returned as-is whatever its success flag.
func (p *PeerClient) Forward(ctx context.Context, cmd Command) (Result, error) {
	if p.cfg.Endpoint == "" {
		return Result{}, fmt.Errorf("%w: no peer endpoint configured for %s", vpn.ErrConfig, cmd.Environment)
	}

	var result Result
	err := retry.Do(ctx, p.policy, func(ctx context.Context, attempt int) error {
		r, err := p.attempt(ctx, cmd, attempt)
		if err != nil {
			p.logger.Warn("forward attempt failed",
				"request_id", cmd.RequestID, "target", cmd.Environment, "attempt", attempt, "error", err)
			return err
		}
		result = r
		return nil
	}, func(err error) bool {
		return errors.Is(err, vpn.ErrNetwork)
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (p *PeerClient) attempt(ctx context.Context, cmd Command, attempt int) (Result, error) {
	body, err := json.Marshal(Envelope{
		Command:       cmd,
		SourceAccount: p.cfg.SourceAccount,
		CrossAccountMetadata: Metadata{
			RequestTimestamp:  p.now(),
			SourceEnvironment: p.cfg.SourceEnvironment,
			RoutingAttempt:    attempt,
			UserAgent:         UserAgent,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode envelope: %v", vpn.ErrValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build peer request: %v", vpn.ErrConfig, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(APIKeyHeader, p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", vpn.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read peer response: %w", vpn.ErrNetwork, err)
	}

	if r, ok := parseResult(raw); ok {
		return r, nil
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{}, fmt.Errorf("%w: peer returned %d", vpn.ErrNetwork, resp.StatusCode)
	}
	return Result{}, fmt.Errorf("peer returned %d with an unreadable body", resp.StatusCode)
}

// parseResult accepts a JSON object carrying a success flag.
func parseResult(raw []byte) (Result, bool) {
	var probe struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Data    any    `json:"data"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Success == nil {
		return Result{}, false
	}
	return Result{Success: *probe.Success, Message: probe.Message, Data: probe.Data, Error: probe.Error}, true
}
