package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPRelay posts messages to an internal mail relay service.
type HTTPRelay struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPRelay(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPRelay {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRelay{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (r *HTTPRelay) Send(ctx context.Context, to, subject, html string) error {
	body, err := json.Marshal(Message{To: to, Subject: subject, HTML: html, Tags: TagsFrom(ctx)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/internal/mail", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail relay unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mail relay returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
