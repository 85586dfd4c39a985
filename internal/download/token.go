package download

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens make pptx_file_url links self-authorizing: the URL embeds a signed,
// expiring claim on one job id, so the download endpoint needs no session.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

type claims struct {
	JobID string `json:"job_id"`
	jwt.RegisteredClaims
}

func (t *Tokens) Sign(jobID string) (string, error) {
	now := time.Now()
	c := claims{
		JobID: jobID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Verify checks the signature and expiry and returns the job id the token
// was issued for.
func (t *Tokens) Verify(token string) (string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid || c.JobID == "" {
		return "", errors.New("invalid download token")
	}
	return c.JobID, nil
}

// URL builds the signed download link for a job.
func (t *Tokens) URL(jobID string) string {
	tok, err := t.Sign(jobID)
	if err != nil {
		return "/api/v1/download/" + jobID
	}
	return "/api/v1/download/" + jobID + "?token=" + tok
}
