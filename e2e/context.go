package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext carries per-scenario state. Actors other than the authority get
// fresh addresses each scenario so runs against a long-lived server do not
// collide.
type TestContext struct {
	BaseURL    string
	SigningKey string
	Issuer     string
	Audience   string
	Authority  string

	client   *http.Client
	nonce    string
	actors   map[string]string
	saved    map[string]string
	status   int
	body     []byte
	response map[string]any
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    getenv("E2E_BASE_URL", "http://localhost:8080"),
		SigningKey: getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Issuer:     getenv("JWT_ISSUER", "certify"),
		Audience:   getenv("JWT_AUDIENCE", "certify-api"),
		Authority:  strings.ToLower(getenv("AUTHORITY_ADDRESS", "0xa000000000000000000000000000000000000001")),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset prepares the context for a new scenario.
func (tc *TestContext) Reset() {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	tc.nonce = hex.EncodeToString(b)
	tc.actors = map[string]string{"the authority": tc.Authority}
	tc.saved = map[string]string{}
	tc.status = 0
	tc.body = nil
	tc.response = nil
}

// Address returns the account for a named actor, creating one on first use.
func (tc *TestContext) Address(actor string) string {
	if a, ok := tc.actors[actor]; ok {
		return a
	}
	b := make([]byte, 20)
	_, _ = rand.Read(b)
	a := "0x" + hex.EncodeToString(b)
	tc.actors[actor] = a
	return a
}

// Pointer namespaces a content pointer to the scenario. Certificate pointers
// bind once per deployment.
func (tc *TestContext) Pointer(name string) string {
	return name + "-" + tc.nonce
}

func (tc *TestContext) token(address string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   address,
		Issuer:    tc.Issuer,
		Audience:  []string{tc.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	})
	return t.SignedString([]byte(tc.SigningKey))
}

// Do sends a request as actor. An empty actor sends no token.
func (tc *TestContext) Do(actor, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		token, err := tc.token(tc.Address(actor))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.response = nil
	var parsed map[string]any
	if json.Unmarshal(tc.body, &parsed) == nil {
		tc.response = parsed
	}
	return nil
}

func (tc *TestContext) GetLastStatusCode() int { return tc.status }

func (tc *TestContext) GetLastResponseBody() []byte { return tc.body }

// GetResponseField reads a top-level field from the last JSON object response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	if tc.response == nil {
		return nil, fmt.Errorf("last response is not a JSON object: %s", tc.body)
	}
	v, ok := tc.response[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.body)
	}
	return v, nil
}

func (tc *TestContext) Save(name, value string) { tc.saved[name] = value }

func (tc *TestContext) Saved(name string) (string, error) {
	v, ok := tc.saved[name]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", name)
	}
	return v, nil
}
