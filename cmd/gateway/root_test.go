package gateway

import (
	"testing"

	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/stretchr/testify/require"
)

func TestParseAccountValues(t *testing.T) {
	values, err := parseAccountValues("NetLiquidation=100:USD, AccountType=INDIVIDUAL,", "DU1")
	require.NoError(t, err)
	require.Equal(t, []market.AccountValue{
		{Key: "NetLiquidation", Value: "100", Currency: "USD", Account: "DU1"},
		{Key: "AccountType", Value: "INDIVIDUAL", Account: "DU1"},
	}, values)

	values, err = parseAccountValues("", "DU1")
	require.NoError(t, err)
	require.Empty(t, values)

	_, err = parseAccountValues("NoValue", "DU1")
	require.Error(t, err)
	_, err = parseAccountValues("=5", "DU1")
	require.Error(t, err)
}
