package otelcol

import (
	"testing"

	"examprep-marketplace/pkg/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx/fxtest"
)

func TestNewTracerProviderWithoutAddr(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	tp, err := NewTracerProvider(lc, &config.Config{})
	require.NoError(t, err)
	require.Equal(t, otel.GetTracerProvider(), tp)
}

func TestNewResource(t *testing.T) {
	cfg := &config.Config{AppName: "marketplace", AppVersion: "v1", AppEnv: "test"}
	res, err := newResource(cfg)
	require.NoError(t, err)

	found := false
	for _, kv := range res.Attributes() {
		if kv.Key == "service.name" {
			require.Equal(t, "marketplace", kv.Value.AsString())
			found = true
		}
	}
	require.True(t, found)
}
