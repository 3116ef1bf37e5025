package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	minor, err := MinorUnits(decimal.NewFromInt(300))
	require.NoError(t, err)
	assert.Equal(t, int64(30000), minor)

	minor, err = MinorUnits(decimal.RequireFromString("12.34"))
	require.NoError(t, err)
	assert.Equal(t, int64(1234), minor)

	_, err = MinorUnits(decimal.RequireFromString("0.001"))
	assert.Error(t, err)

	assert.True(t, FromMinorUnits(30000).Equal(decimal.NewFromInt(300)))
}
