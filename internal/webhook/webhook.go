// Package webhook delivers the signed completion callback.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/retry"
)

// SignatureHeader carries the hex HMAC-SHA256 digest of the request body.
const SignatureHeader = "x-webhook-signature"

type Notifier struct {
	secret string
	client *http.Client
	log    *logrus.Entry

	Policy retry.Policy
}

// New builds a notifier. An empty secret disables signing.
func New(secret string, log *logrus.Entry) *Notifier {
	return &Notifier{
		secret: secret,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
		Policy: retry.Default(),
	}
}

// Notify POSTs payload to url, retrying on any non-2xx/3xx outcome. Delivery
// failure is reported to the caller but never fails the job itself.
func (n *Notifier) Notify(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	err = retry.Do(ctx, n.Policy, func() error {
		return n.post(ctx, url, body)
	})
	if err != nil {
		n.log.WithField("url", url).WithError(err).Error("webhook delivery failed after retries")
		return fmt.Errorf("deliver webhook: %w", err)
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 digest receivers verify against.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
