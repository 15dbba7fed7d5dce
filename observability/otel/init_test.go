package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken,=nokey, tenant=chow ")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "chow"}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "chowd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.NotNil(t, Tracer())
}

func TestResourceCarriesLedgerAttributes(t *testing.T) {
	res, err := Resource(Config{
		ServiceName: "chowd",
		Version:     "1.2.3",
		Environment: "test",
		ChainID:     77,
		RPCAddress:  "127.0.0.1:8545",
	})
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "chowd", attrs["service.name"])
	require.Equal(t, "1.2.3", attrs["service.version"])
	require.Equal(t, "test", attrs["deployment.environment"])
	require.Equal(t, "77", attrs[string(AttrChainID)])
	require.Equal(t, "127.0.0.1:8545", attrs[string(AttrRPCAddress)])
	require.NotContains(t, attrs, string(AttrDataDir))

	res, err = Resource(Config{ServiceName: "chowd"})
	require.NoError(t, err)
	for _, kv := range res.Attributes() {
		require.NotEqual(t, AttrChainID, kv.Key)
	}
}
