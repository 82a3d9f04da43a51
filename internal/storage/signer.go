package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrSignatureExpired = errors.New("signed url expired")
)

// Signer produces and checks expiring HMAC-SHA256 download signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner returns a signer for secret. An empty secret disables signing.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether a secret is configured.
func (s *Signer) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

func (s *Signer) mac(bucket, key string, expires int64) string {
	h := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(h, "%s\n%s\n%d", bucket, key, expires)
	return hex.EncodeToString(h.Sum(nil))
}

// Sign returns the query parameters authorizing a download until now+ttl.
func (s *Signer) Sign(bucket, key string, ttl time.Duration) (url.Values, error) {
	if !s.Enabled() {
		return nil, errors.New("signing secret is not configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	expires := s.now().Add(ttl).Unix()
	values := url.Values{}
	values.Set("expires", strconv.FormatInt(expires, 10))
	values.Set("signature", s.mac(bucket, key, expires))
	return values, nil
}

// Verify checks query parameters produced by Sign.
func (s *Signer) Verify(bucket, key string, query url.Values) error {
	if !s.Enabled() {
		return ErrSignatureInvalid
	}
	expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	want := s.mac(bucket, key, expires)
	if !hmac.Equal([]byte(want), []byte(query.Get("signature"))) {
		return ErrSignatureInvalid
	}
	if s.now().Unix() > expires {
		return ErrSignatureExpired
	}
	return nil
}

func signedURL(signer *Signer, base, bucket, key string, ttl time.Duration) (string, error) {
	values, err := signer.Sign(bucket, key, ttl)
	if err != nil {
		return "", err
	}
	return objectURL(base, bucket, key) + "?" + values.Encode(), nil
}
