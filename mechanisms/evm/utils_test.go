package evm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChainID(t *testing.T) {
	tests := []struct {
		name    string
		network string
		want    int64
		wantErr bool
	}{
		{name: "base sepolia", network: "eip155:84532", want: 84532},
		{name: "base mainnet", network: "eip155:8453", want: 8453},
		{name: "missing prefix", network: "84532", wantErr: true},
		{name: "wrong namespace", network: "solana:mainnet", wantErr: true},
		{name: "non-numeric chain id", network: "eip155:base", wantErr: true},
		{name: "zero chain id", network: "eip155:0", wantErr: true},
		{name: "empty", network: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chainID, err := ParseChainID(tt.network)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid network format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, chainID.Int64())
		})
	}
}

func TestNetworkForChainIDRoundTrip(t *testing.T) {
	network := NetworkForChainID(big.NewInt(84532))
	assert.Equal(t, "eip155:84532", network)

	chainID, err := ParseChainID(network)
	require.NoError(t, err)
	assert.Equal(t, int64(84532), chainID.Int64())
}

func TestCreateNonce(t *testing.T) {
	first, err := CreateNonce()
	require.NoError(t, err)

	second, err := CreateNonce()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHexToBytes32(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		value, err := HexToBytes32("0xab00000000000000000000000000000000000000000000000000000000000001")
		require.NoError(t, err)
		assert.Equal(t, byte(0xab), value[0])
		assert.Equal(t, byte(0x01), value[31])
	})

	t.Run("missing prefix", func(t *testing.T) {
		_, err := HexToBytes32("abcd")
		require.Error(t, err)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := HexToBytes32("0xabcd")
		require.Error(t, err)
	})

	t.Run("odd digit count", func(t *testing.T) {
		// 63 digits would silently zero-pad to 32 bytes without the
		// explicit length check.
		_, err := HexToBytes32("0xb00000000000000000000000000000000000000000000000000000000000001")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "want 64")
	})

	t.Run("too many digits", func(t *testing.T) {
		_, err := HexToBytes32("0x00ab00000000000000000000000000000000000000000000000000000000000001")
		require.Error(t, err)
	})
}

func TestParseUint256(t *testing.T) {
	value, err := ParseUint256("10000")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), value.Int64())

	_, err = ParseUint256("-1")
	require.Error(t, err)

	_, err = ParseUint256("0x10")
	require.Error(t, err)

	_, err = ParseUint256("")
	require.Error(t, err)
}

func TestGweiToWei(t *testing.T) {
	assert.Equal(t, big.NewInt(2_000_000_000), GweiToWei(2))
}
