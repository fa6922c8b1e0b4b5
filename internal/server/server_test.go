package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"

	"classifieds/internal/app"
	"classifieds/internal/ratelimit"
	"classifieds/internal/usertoken"
	"classifieds/pkg/ai"
	"classifieds/pkg/domain"
	"classifieds/pkg/store"
)

// scriptedChatter replays one ai.Result per round-trip.
type scriptedChatter struct {
	results []ai.Result
	err     error
	calls   int
}

func (f *scriptedChatter) ChatCompletion(_ context.Context, _ []ai.Message, _ []ai.Tool) (ai.Result, error) {
	f.calls++
	if f.err != nil {
		return ai.Result{}, f.err
	}
	if len(f.results) == 0 {
		return ai.Result{}, errors.New("scripted chatter exhausted")
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

type testEnv struct {
	server  *httptest.Server
	catalog *store.MemoryStore
	signer  *rsa.PrivateKey
	token   string
}

func newTestEnv(t *testing.T, llm ai.ChatCompleter, rateLimit int) *testEnv {
	t.Helper()
	verifier, signer := newJWKSVerifier(t)
	token := mustSignUserToken(t, signer, "user-1")

	catalog := store.NewMemoryStore()
	catalog.AddUser(domain.User{
		ID:         "user-1",
		Name:       "Aya",
		Username:   "aya",
		University: "Alexandria",
		Faculty:    "Computer Science",
	})

	engine := app.NewMatchingEngine(catalog, nil, 0)
	core, err := app.New(app.NewToolCallingPolicy(llm, engine))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", rateLimit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	srv := httptest.NewServer(New(Config{
		App:           core,
		Catalog:       catalog,
		TokenVerifier: verifier,
		RateLimiter:   limiter,
	}).Router())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, catalog: catalog, signer: signer, token: token}
}

func (e *testEnv) post(t *testing.T, token, message string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	body, _ := json.Marshal(domain.ChatRequest{Message: message})
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/chatbot", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, payload
}

func TestChatRequiresAuth(t *testing.T) {
	env := newTestEnv(t, &scriptedChatter{}, 100)

	resp, _ := env.post(t, "", "hello")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token expected 401, got %d", resp.StatusCode)
	}

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	resp, _ = env.post(t, mustSignUserToken(t, otherKey, "user-1"), "hello")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("invalid signature expected 401, got %d", resp.StatusCode)
	}
}

func TestChatUnknownSubjectIsUnauthorized(t *testing.T) {
	env := newTestEnv(t, &scriptedChatter{}, 100)
	resp, _ := env.post(t, mustSignUserToken(t, env.signer, "ghost"), "hello")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown subject expected 401, got %d", resp.StatusCode)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t, &scriptedChatter{}, 100)
	resp, payload := env.post(t, env.token, "   ")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty message expected 400, got %d", resp.StatusCode)
	}
	if string(payload["error"]) != `"message is required"` {
		t.Fatalf("unexpected error payload: %s", payload["error"])
	}
}

func TestMissingProviderKeyIs503WithoutNetworkCall(t *testing.T) {
	var upstreamCalls int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		upstreamCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	// Keyless client: every delegated call must fail before the network.
	env := newTestEnv(t, ai.NewOpenAIClient(upstream.URL, "", ""), 100)

	resp, payload := env.post(t, env.token, "do you have a telescope?")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("missing key expected 503, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(payload["error"]), "not configured") {
		t.Fatalf("unexpected error payload: %s", payload["error"])
	}
	if upstreamCalls != 0 {
		t.Fatalf("expected no provider call, got %d", upstreamCalls)
	}
}

func TestShortcutGreetingReturnsCampusRecommendations(t *testing.T) {
	llm := &scriptedChatter{}
	env := newTestEnv(t, llm, 100)
	env.catalog.AddProduct(domain.Product{
		ID: "p1", Title: "Scientific Calculator", Price: 25, Condition: domain.ConditionGood,
		Status: domain.ProductActive,
		Seller: &domain.Seller{ID: "s1", Name: "Omar", Username: "omar", University: "Alexandria", Faculty: "Computer Science"},
	})

	resp, payload := env.post(t, env.token, "hello")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if llm.calls != 0 {
		t.Fatalf("shortcut must not call the llm, got %d calls", llm.calls)
	}
	var reply string
	if err := json.Unmarshal(payload["reply"], &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !strings.HasPrefix(reply, "For recommendations at Alexandria, Computer Science:") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	var products []domain.SearchResult
	if err := json.Unmarshal(payload["products"], &products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) != 1 || products[0].Seller.Name != "Omar" {
		t.Fatalf("unexpected products: %+v", products)
	}
}

func TestDelegatedSearchAttachesProducts(t *testing.T) {
	llm := &scriptedChatter{results: []ai.Result{
		{ToolCalls: []ai.ToolCall{{
			ID:       "call-1",
			Type:     "function",
			Function: ai.FunctionCall{Name: "search_products", Arguments: `{"query":"ruler"}`},
		}}},
		{Content: "Found it! Taking you to the product details..."},
	}}
	env := newTestEnv(t, llm, 100)
	env.catalog.AddProduct(domain.Product{
		ID: "p1", Title: "Wooden Ruler", Price: 3, Condition: domain.ConditionNew,
		Status: domain.ProductActive,
	})

	resp, payload := env.post(t, env.token, "do you have a ruler?")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var products []domain.SearchResult
	if err := json.Unmarshal(payload["products"], &products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) != 1 || products[0].ID != "p1" {
		t.Fatalf("unexpected products: %+v", products)
	}
	if llm.calls != 2 {
		t.Fatalf("expected two llm round-trips, got %d", llm.calls)
	}
}

func TestProviderErrorIs502(t *testing.T) {
	llm := &scriptedChatter{err: &ai.ProviderError{Status: 401, Message: "invalid api key"}}
	env := newTestEnv(t, llm, 100)

	resp, payload := env.post(t, env.token, "do you have a telescope?")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("provider error expected 502, got %d", resp.StatusCode)
	}
	if string(payload["detail"]) != `"invalid api key"` {
		t.Fatalf("expected provider detail, got %s", payload["detail"])
	}
}

func TestRateLimitReturns429(t *testing.T) {
	env := newTestEnv(t, &scriptedChatter{}, 2)

	for i := 0; i < 2; i++ {
		resp, _ := env.post(t, env.token, "hello")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d expected 200, got %d", i+1, resp.StatusCode)
		}
	}
	resp, _ := env.post(t, env.token, "hello")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func newJWKSVerifier(t *testing.T) (*usertoken.Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{
					"kty": "RSA",
					"kid": "kid-1",
					"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
				},
			},
		})
	}))
	t.Cleanup(jwksServer.Close)

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  jwksServer.URL,
		Issuer:   "classifieds-auth",
		Audience: "classifieds-api",
		Leeway:   30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier, key
}

func mustSignUserToken(t *testing.T, key *rsa.PrivateKey, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "classifieds-auth",
		Audience:  jwt.ClaimStrings{"classifieds-api"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Second)),
	})
	token.Header["kid"] = "kid-1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
