package context

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Defaults(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, Logger(ctx))
	assert.NotNil(t, Registry(ctx))
	assert.Empty(t, RunID(ctx))
}

func Test_RunID(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()

	ctx := WithLogger(context.Background(), log.NewLogfmtLogger(&buf))
	ctx = WithRegistry(ctx, reg)
	ctx = WithRunID(ctx, "01HZY")

	require.NoError(t, Logger(ctx).Log("msg", "hello"))
	assert.Equal(t, "msg=hello\n", buf.String())
	assert.Equal(t, "01HZY", RunID(ctx))
	assert.Same(t, reg, Registry(ctx))
}
