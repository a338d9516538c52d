package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/metrics"
	"github.com/tokengate/tokengate/internal/session"
	"github.com/tokengate/tokengate/internal/signer"
	"github.com/tokengate/tokengate/internal/store"
	"github.com/tokengate/tokengate/internal/tier"
)

var (
	testSignerOnce sync.Once
	testSigner     *signer.LocalSigner
)

// sharedSigner returns a process-wide local signer so each test does not
// pay for RSA key generation.
func sharedSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	testSignerOnce.Do(func() {
		s, err := signer.NewLocalSigner("", "test-key")
		if err != nil {
			t.Fatalf("failed to create test signer: %v", err)
		}
		testSigner = s
	})
	return testSigner
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:                "http://localhost:8080",
		LoginURL:               "http://localhost:8080/login",
		AuthCodeExpiration:     10 * time.Minute,
		AccessTokenExpiration:  time.Hour,
		RefreshTokenExpiration: 720 * time.Hour,
		IDTokenExpiration:      time.Hour,
		EnableRefreshTokens:    true,
		EnableTokenRotation:    true,
		SweepInterval:          5 * time.Minute,
		DefaultTierLevel:       1,
		ClientTierLevel:        1,
	}
}

type testEnv struct {
	store   *store.Store
	config  *config.Config
	clients *ClientService
	tokens  *TokenService
	authz   *AuthorizationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	cfg := testConfig()
	m := metrics.NewNoopMetrics()
	tiers := tier.NewStaticResolver(cfg.DefaultTierLevel, nil)

	clients := NewClientService(s)
	tokens := NewTokenService(s, cfg, clients, sharedSigner(t), tiers, m)
	authz := NewAuthorizationService(s, cfg, tokens, tiers, session.AlwaysValid{}, m)

	return &testEnv{
		store:   s,
		config:  cfg,
		clients: clients,
		tokens:  tokens,
		authz:   authz,
	}
}
