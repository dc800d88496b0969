// Package anchor submits evidence hashes to OpenTimestamps calendars and
// records the returned proofs.
package anchor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tradeproof/internal/hashing"
	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	TokenPrefix = "ots:"

	// VerifyURL is where anyone can check a proof against the Bitcoin chain.
	VerifyURL = "https://opentimestamps.org"

	// Calendars aggregate digests and commit roughly every 10 to 60 minutes.
	VerificationProcedure = "Download the .ots proof, then upload it together with the original file at " + VerifyURL +
		". The proof is pending until the calendar commits it to the Bitcoin blockchain, typically within 10 to 60 minutes."

	maxProofBytes = 64 << 10
)

// Client obtains a timestamp proof for a SHA-256 digest.
type Client interface {
	Submit(ctx context.Context, hashHex string) (string, error)
}

// CalendarClient speaks the OpenTimestamps calendar protocol. Calendars are
// tried in order and the first pending proof wins.
type CalendarClient struct {
	calendars  []string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

func NewCalendarClient(calendars []string, timeout time.Duration, logger logrus.FieldLogger) *CalendarClient {
	return NewCalendarClientWithHTTP(calendars, &http.Client{Timeout: timeout}, logger)
}

func NewCalendarClientWithHTTP(calendars []string, httpClient *http.Client, logger logrus.FieldLogger) *CalendarClient {
	cleaned := make([]string, 0, len(calendars))
	for _, c := range calendars {
		if c = strings.TrimRight(strings.TrimSpace(c), "/"); c != "" {
			cleaned = append(cleaned, c)
		}
	}

	return &CalendarClient{
		calendars:  cleaned,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *CalendarClient) Submit(ctx context.Context, hashHex string) (string, error) {
	digest, ok := hashing.Decode(hashHex)
	if !ok {
		return "", types.Validationf("Evidence hash is not a SHA-256 digest")
	}

	if len(c.calendars) == 0 {
		return "", types.Unavailable("Timestamp service is not configured", nil)
	}

	var errs []error
	for _, calendar := range c.calendars {
		proof, err := c.submit(ctx, calendar, digest)
		if err == nil {
			return EncodeToken(proof), nil
		}

		c.logger.WithError(err).WithField("calendar", calendar).Warn("timestamp calendar submission failed")
		errs = append(errs, err)

		if ctx.Err() != nil {
			break
		}
	}

	return "", types.Unavailable("Timestamp service unavailable", errors.Join(errs...))
}

func (c *CalendarClient) submit(ctx context.Context, calendar string, digest []byte) ([]byte, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, calendar+"/digest", bytes.NewReader(digest))
	if err != nil {
		return nil, fmt.Errorf("build calendar request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.opentimestamps.v1")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "tradeproof")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProofBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read calendar response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar %s returned status %d: %s", calendar, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if len(body) == 0 || len(body) > maxProofBytes {
		return nil, fmt.Errorf("calendar %s returned a proof of %d bytes", calendar, len(body))
	}

	return body, nil
}

// EncodeToken wraps raw proof bytes in the stored token format.
func EncodeToken(proof []byte) string {
	return TokenPrefix + base64.StdEncoding.EncodeToString(proof)
}

// DecodeToken returns the raw proof bytes held in a stored token.
func DecodeToken(token string) ([]byte, error) {
	raw, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok {
		return nil, fmt.Errorf("unrecognised timestamp token")
	}
	return base64.StdEncoding.DecodeString(raw)
}
