// Package credential implements the gateway's own bearer-key verification
// (C2): a salted BLAKE2b digest of the configured API key, compared in
// constant time against whatever the caller presents. The plaintext key
// never outlives Initialize. Sourcing follows the teacher's pattern of
// reading secrets from AWS Secrets Manager / Parameter Store rather than
// only flat environment variables (relay/adaptor/aws credential resolution),
// adapted here into a single explicit store instead of scattered lookups.
package credential

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/crypto/blake2b"
)

// Source abstracts however the plaintext key is fetched, so Initialize does
// not need to know whether it came from a flat env var, SSM, or Secrets
// Manager.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// InlineSource returns a fixed string, used when api_key is set directly.
type InlineSource string

func (s InlineSource) Fetch(context.Context) (string, error) { return string(s), nil }

// SSMSource fetches a SecureString parameter by name.
type SSMSource struct {
	Client    *ssm.Client
	Parameter string
}

func (s SSMSource) Fetch(ctx context.Context) (string, error) {
	out, err := s.Client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &s.Parameter,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", errors.Wrapf(err, "get ssm parameter %q", s.Parameter)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.Errorf("ssm parameter %q has no value", s.Parameter)
	}
	return *out.Parameter.Value, nil
}

// SecretsManagerSource fetches a (possibly JSON) secret and, when Key is
// non-empty, extracts that field from the JSON object.
type SecretsManagerSource struct {
	Client   *secretsmanager.Client
	SecretID string
	Key      string
}

func (s SecretsManagerSource) Fetch(ctx context.Context) (string, error) {
	out, err := s.Client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &s.SecretID,
	})
	if err != nil {
		return "", errors.Wrapf(err, "get secret %q", s.SecretID)
	}
	if out.SecretString == nil {
		return "", errors.Errorf("secret %q has no string value", s.SecretID)
	}
	raw := *out.SecretString
	if s.Key == "" {
		return raw, nil
	}
	val, err := extractJSONField(raw, s.Key)
	if err != nil {
		return "", errors.Wrapf(err, "extract key %q from secret %q", s.Key, s.SecretID)
	}
	return val, nil
}

func boolPtr(b bool) *bool { return &b }

// Store holds the salted digest of the configured API key. The zero Store
// has no digest and Verify always succeeds (auth disabled), matching
// spec.md §4.1's "no digest stored" branch.
type Store struct {
	salt   [16]byte
	digest [blake2b.Size]byte
	armed  bool
}

// Initialize resolves the key from src, if any, and arms the store. A nil
// src leaves auth disabled and returns (false, nil), matching the "no
// source configured" branch of spec.md §4.1.
func Initialize(ctx context.Context, src Source) (*Store, bool, error) {
	if src == nil {
		return &Store{}, false, nil
	}

	key, err := src.Fetch(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "resolve api key")
	}
	if key == "" {
		return &Store{}, false, nil
	}

	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, false, errors.Wrap(err, "generate salt")
	}

	digest := digestOf(key, salt)
	zero(&key)

	return &Store{salt: salt, digest: digest, armed: true}, true, nil
}

func digestOf(key string, salt [16]byte) [blake2b.Size]byte {
	h, err := blake2b.New512(nil)
	if err != nil {
		// blake2b.New512 only errors on a too-long key argument, which we
		// never pass; a failure here means the stdlib/crypto contract changed.
		panic(err)
	}
	h.Write([]byte(key))
	h.Write(salt[:])
	var out [blake2b.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// zero drops the caller's reference to the plaintext key by setting it to
// the empty string. Go strings are immutable, so the key's bytes are not
// overwritten, and copies made elsewhere (e.g. during network I/O
// buffering) are unaffected.
func zero(s *string) { *s = "" }

// Verify checks an Authorization header value ("Bearer <token>") against
// the stored digest in constant time. When the store is unarmed, every
// request is authorized.
func (s *Store) Verify(authorizationHeader string) bool {
	if s == nil || !s.armed {
		return true
	}
	token, ok := bearerToken(authorizationHeader)
	if !ok {
		return false
	}
	got := digestOf(token, s.salt)
	return subtle.ConstantTimeCompare(got[:], s.digest[:]) == 1
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}
