// Package lat implements the Line Access Token: an opaque, signed
// proof that a session has seen the exact byte-state of a line range
// it proposes to modify (spec §4.D). Issuing a new token does not
// explicitly revoke older overlapping ones; staleness is detected
// purely by CRC mismatch at use time (spec §3 LAT invariants).
//
// Per spec §9's open question ("checksum-or-HMAC, leaves the choice
// to the implementer, but the validator must be able to detect forged
// tokens from other sessions"), this implementation signs the token
// payload with HMAC-SHA256 under a per-session secret generated at
// session creation, so a token claiming a session it wasn't issued
// under fails verification rather than merely looking suspicious.
package lat

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const prefix = "LAT:"

// Result classifies the outcome of validating a token.
type Result string

const (
	ResultOk          Result = "Ok"
	ResultStale       Result = "Stale"
	ResultMalformed   Result = "Malformed"
	ResultWrongSession Result = "WrongSession"
	ResultOutOfBounds Result = "OutOfBounds"
)

// Claims is the payload bound by a token: everything the validator
// needs to decide whether the caller has seen current state.
type Claims struct {
	Path          string    `json:"path"`
	StartLine     int       `json:"startLine"`
	EndLine       int       `json:"endLine"`
	CRC           uint32    `json:"crc"`
	TotalLines    int       `json:"totalLines"`
	SessionID     string    `json:"sessionId"`
	IssuedAt      time.Time `json:"issuedAt"`
	InfinityRange bool      `json:"infinityRange,omitempty"`
}

// SecretSize is the length, in bytes, of a freshly generated session
// HMAC secret.
const SecretSize = 32

// NewSecret generates a fresh per-session HMAC key.
func NewSecret() ([]byte, error) {
	b := make([]byte, SecretSize)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating LAT secret: %w", err)
	}
	return b, nil
}

// Issuer issues and validates tokens for exactly one session.
type Issuer struct {
	sessionID string
	secret    []byte
}

// NewIssuer constructs an Issuer bound to a session id and secret.
// The secret must come from NewSecret (or be loaded from the
// session's persisted lat-secret file) and must never be shared across
// sessions.
func NewIssuer(sessionID string, secret []byte) *Issuer {
	return &Issuer{sessionID: sessionID, secret: secret}
}

// Issue mints a token for (path, [start,end]) bound to content whose
// CRC32C is crc and whose total line count is totalLines.
// infinityRange marks a file created inside the current transaction:
// such tokens implicitly authorize edits without a bounds check,
// because there is no prior state to race against (spec §4.D).
func (iss *Issuer) Issue(path string, start, end int, crc uint32, totalLines int, infinityRange bool) (string, error) {
	claims := Claims{
		Path:          path,
		StartLine:     start,
		EndLine:       end,
		CRC:           crc,
		TotalLines:    totalLines,
		SessionID:     iss.sessionID,
		IssuedAt:      time.Now(),
		InfinityRange: infinityRange,
	}
	return iss.encode(claims)
}

func (iss *Issuer) encode(claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encoding LAT claims: %w", err)
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)

	mac := hmac.New(sha256.New, iss.secret)
	mac.Write([]byte(payloadB64))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return prefix + payloadB64 + ":" + sig, nil
}

// RangeCRCFunc lazily computes the CRC32C of a file's current
// [start,end] line range; Validate only calls it once the token's
// structure, session, signature, and bounds have all checked out, so
// callers never pay for a range scan on an already-rejected token.
type RangeCRCFunc func(start, end int) (uint32, error)

// Validate checks a token against the issuing session's secret and
// the file's current state. currentLineCount is the file's present
// total line count (used for bounds checking); computeRangeCRC is
// invoked only if the token is structurally valid, for this session,
// and in bounds.
func (iss *Issuer) Validate(token string, currentLineCount int, computeRangeCRC RangeCRCFunc) (Result, *Claims) {
	claims, ok := parse(token)
	if !ok {
		return ResultMalformed, nil
	}

	if claims.SessionID != iss.sessionID {
		return ResultWrongSession, claims
	}

	if !iss.verifySignature(token) {
		return ResultMalformed, claims
	}

	if !claims.InfinityRange {
		if claims.StartLine < 1 || claims.StartLine > currentLineCount+1 {
			return ResultOutOfBounds, claims
		}
		if claims.EndLine < claims.StartLine-1 || claims.EndLine > currentLineCount {
			return ResultOutOfBounds, claims
		}
	}

	if claims.InfinityRange {
		return ResultOk, claims
	}

	curCRC, err := computeRangeCRC(claims.StartLine, claims.EndLine)
	if err != nil {
		return ResultOutOfBounds, claims
	}
	if curCRC != claims.CRC {
		return ResultStale, claims
	}

	return ResultOk, claims
}

func (iss *Issuer) verifySignature(token string) bool {
	rest := strings.TrimPrefix(token, prefix)
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return false
	}
	payloadB64, sig := rest[:idx], rest[idx+1:]

	mac := hmac.New(sha256.New, iss.secret)
	mac.Write([]byte(payloadB64))
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

// parse extracts the claims from a token's structure without
// verifying its signature; used so Validate can report WrongSession
// (a structurally valid token for a different session) even though
// this Issuer cannot check that token's signature.
func parse(token string) (*Claims, bool) {
	if !strings.HasPrefix(token, prefix) {
		return nil, false
	}
	rest := strings.TrimPrefix(token, prefix)
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return nil, false
	}
	payloadB64 := rest[:idx]

	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, false
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, false
	}
	return &claims, true
}
