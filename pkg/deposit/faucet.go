package deposit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrFaucetRejected = errors.New("faucet rejected request")

type faucetRequest struct {
	UserAddress string `json:"userAddress"`
}

type faucetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// requestTokens posts the address to the faucet and returns its message.
func requestTokens(ctx context.Context, client *http.Client, url string, account common.Address) (string, error) {
	body, err := json.Marshal(faucetRequest{UserAddress: account.Hex()})
	if err != nil {
		return "", fmt.Errorf("marshaling faucet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating faucet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending faucet request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading faucet response: %w", err)
	}

	var parsed faucetResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.firstMessage() != "" {
			reason = parsed.firstMessage()
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrFaucetRejected, resp.StatusCode, reason)
	}
	if decodeErr != nil {
		// Some faucets answer with plain text.
		return strings.TrimSpace(string(raw)), nil
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrFaucetRejected, parsed.Error)
	}
	return parsed.Message, nil
}

func (r faucetResponse) firstMessage() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}
