// Package usercontext resolves the acting user_id for a request and,
// when configured, verifies an HMAC-SHA256 request signature, per
// spec.md §4.I.
package usercontext

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buffquant/simrun/internal/apierr"
	"github.com/buffquant/simrun/internal/ids"
)

const maxClockSkewSeconds = 300

// Request is the subset of an inbound HTTP request usercontext needs; kept
// independent of net/http so it can be unit tested without a live server.
type Request struct {
	UserHeader string
	Method     string
	Path       string
	RawQuery   string
	AuthSig    string
	Timestamp  string
}

// Resolved is the outcome of user-context resolution.
type Resolved struct {
	UserID string
}

// Resolve implements spec.md §4.I: header resolution, optional env default,
// ID validation, and optional constant-time HMAC verification.
func Resolve(req Request, defaultUser, hmacSecret string) (Resolved, error) {
	userID := strings.TrimSpace(req.UserHeader)
	if userID == "" {
		userID = strings.TrimSpace(defaultUser)
	}
	if userID == "" {
		return Resolved{}, apierr.UserMissing("X-Buff-User header is required")
	}
	if err := ids.ValidateUserID(userID); err != nil {
		return Resolved{}, err
	}

	if hmacSecret != "" {
		if err := verifyHMAC(req, userID, hmacSecret); err != nil {
			return Resolved{}, err
		}
	}

	return Resolved{UserID: userID}, nil
}

func verifyHMAC(req Request, userID, secret string) error {
	if req.AuthSig == "" {
		return apierr.AuthMissing("X-Buff-Auth header is required")
	}
	if req.Timestamp == "" {
		return apierr.TimestampMissing("X-Buff-Timestamp header is required")
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(req.Timestamp), 10, 64)
	if err != nil {
		return apierr.TimestampInvalid("X-Buff-Timestamp must be a unix-seconds integer")
	}
	now := time.Now().UTC().Unix()
	if math.Abs(float64(now-ts)) > maxClockSkewSeconds {
		return apierr.TimestampInvalid("request timestamp skew exceeds 300 seconds")
	}

	canonical := canonicalString(userID, req.Method, req.Path, req.RawQuery, req.Timestamp)
	expected := signHex(secret, canonical)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(req.AuthSig)))) {
		return apierr.AuthInvalid("HMAC signature mismatch")
	}
	return nil
}

// canonicalString builds "user_id\nMETHOD\npath\ntimestamp" with path
// normalized: query stripped, trailing slash dropped (root path excepted).
func canonicalString(userID, method, rawPath, rawQuery, timestamp string) string {
	_ = rawQuery
	p := rawPath
	if u, err := url.Parse(rawPath); err == nil {
		p = u.Path
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s", userID, strings.ToUpper(method), p, timestamp)
}

func signHex(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}
