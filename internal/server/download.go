package server

import (
	"fmt"
	"net/url"
	"time"

	"tradeproof/internal/utils"
	"tradeproof/pkg/types"

	"github.com/gorilla/securecookie"
)

const downloadTokenName = "report-download"

type downloadClaims struct {
	ReportID string
	UserID   string
	Nonce    string
}

// DownloadTokens signs and encrypts short-lived report download links so a
// browser can fetch a report without a bearer header.
type DownloadTokens struct {
	codec *securecookie.SecureCookie
	ttl   time.Duration
}

func NewDownloadTokens(hashKey, blockKey []byte, ttl time.Duration) *DownloadTokens {
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(ttl.Seconds()))

	return &DownloadTokens{codec: codec, ttl: ttl}
}

func (d *DownloadTokens) Issue(scope types.Scope, reportID string) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}

	token, err := d.codec.Encode(downloadTokenName, downloadClaims{
		ReportID: reportID,
		UserID:   scope.UserID,
		Nonce:    utils.NanoIDSize(10),
	})
	if err != nil {
		return "", fmt.Errorf("encode download token: %w", err)
	}
	return token, nil
}

// Open returns the caller scope and report id a token was issued for.
// Expired or tampered tokens are Unauthorized.
func (d *DownloadTokens) Open(token string) (types.Scope, string, error) {
	var claims downloadClaims
	if err := d.codec.Decode(downloadTokenName, token, &claims); err != nil {
		return types.Scope{}, "", types.NewError(types.KindUnauthorized, "Download link is invalid or expired", err)
	}

	scope := types.NewScope(claims.UserID)
	if err := scope.Validate(); err != nil || claims.ReportID == "" {
		return types.Scope{}, "", types.ErrUnauthorized
	}
	return scope, claims.ReportID, nil
}

// URL is the path a client follows to download the report.
func (d *DownloadTokens) URL(token string) string {
	return apiPrefix + "/reports/download?token=" + url.QueryEscape(token)
}

func (d *DownloadTokens) TTL() time.Duration {
	return d.ttl
}
