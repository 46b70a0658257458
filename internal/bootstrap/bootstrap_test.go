package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cu-orchestrator/internal/config"
	"github.com/bryanwahyu/cu-orchestrator/internal/logger"
)

func testConfig() *config.Config {
	var c config.Config
	c.ContentUnderstanding.Endpoint = "https://cu.example.com"
	c.ContentUnderstanding.SubscriptionKey = "k"
	c.ContentUnderstanding.PollPolicy = "exponential"
	c.ContentUnderstanding.PollInterval = time.Second
	c.ContentUnderstanding.MaxPollInterval = 10 * time.Second
	c.Database.Driver = "none"
	c.Staging.Concurrency = 8
	return &c
}

func TestTokens_KeyNeedsNoProvider(t *testing.T) {
	tp, err := Tokens(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestTokens_ClientCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.ContentUnderstanding.SubscriptionKey = ""
	cfg.ContentUnderstanding.TenantID = "t"
	cfg.ContentUnderstanding.ClientID = "c"
	cfg.ContentUnderstanding.ClientSecret = "s"

	tp, err := Tokens(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, tp)
}

func TestContentClient(t *testing.T) {
	c, err := ContentClient(context.Background(), testConfig(), logger.Discard())
	require.NoError(t, err)
	assert.NotNil(t, c.Poller())
}

func TestJournal_None(t *testing.T) {
	repo, db, err := Journal(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Nil(t, repo)
	assert.Nil(t, db)
}

func TestService_NilJournalStaysNil(t *testing.T) {
	c, err := ContentClient(context.Background(), testConfig(), logger.Discard())
	require.NoError(t, err)

	svc := Service(testConfig(), c, nil, nil, logger.Discard())
	assert.Nil(t, svc.Journal)
	assert.Nil(t, svc.Store)
	assert.Equal(t, 8, svc.Concurrency)
}
