package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name         string
		config       Config
		wantProvider bool
	}{
		{name: "disabled without endpoint", config: Config{ServiceName: "auctionhouse"}},
		{
			// 不可路由的位址，不會真的匯出
			name:         "enabled",
			config:       Config{Endpoint: "http://192.0.2.1:4318", ServiceName: "auctionhouse", InstanceID: "instance-1"},
			wantProvider: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), tt.config)
			require.NoError(t, err)
			_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
			assert.Equal(t, tt.wantProvider, isSDK)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}
