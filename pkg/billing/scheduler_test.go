package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gazette/pkg/observability"
)

func TestNewScheduler_InvalidSpec(t *testing.T) {
	f := newFixture(t)
	_, err := NewScheduler(f.service, "not a cron spec", observability.NopLogger())
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	f := newFixture(t)
	s, err := NewScheduler(f.service, "", observability.NopLogger())
	require.NoError(t, err)

	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
