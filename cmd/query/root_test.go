package query

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestHistoricalRequest(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("exchange", "SMART")
	viper.Set("currency", "USD")
	viper.Set("duration", "1 W")
	viper.Set("bar-size", "1 day")
	viper.Set("what", "trades")
	viper.Set("rth", true)

	req, err := historicalRequest("AMZN")
	require.NoError(t, err)
	require.Equal(t, market.Stock("AMZN", "SMART", "USD"), req.Contract)
	require.Equal(t, market.Weeks(1), req.Duration)
	require.Equal(t, market.BarSize1Day, req.BarSize)
	require.Equal(t, market.ShowTrades, req.WhatToShow)
	require.True(t, req.UseRTH)
	require.False(t, req.KeepUpToDate)

	viper.Set("forex", true)
	viper.Set("follow", "10s")
	req, err = historicalRequest("EUR.USD")
	require.NoError(t, err)
	require.Equal(t, market.SecTypeCash, req.Contract.SecType)
	require.True(t, req.KeepUpToDate)

	viper.Set("duration", "1 fortnight")
	_, err = historicalRequest("AMZN")
	require.Error(t, err)
}

func TestFollow(t *testing.T) {
	events := make(chan common.Inbound, 4)
	done := make(chan struct{})

	events <- common.Inbound{Kind: common.InHistoricalDataUpdate, RequestID: 7, Payload: &common.HistoricalBarUpdate{RequestID: 7}}
	events <- common.Inbound{Kind: common.InError, Err: &common.RemoteError{Code: 2104, Message: "farm ok"}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, follow(ctx, events, done, 7))

	close(done)
	require.ErrorIs(t, follow(context.Background(), events, done, 7), common.ErrDisconnected)

	closed := make(chan common.Inbound)
	close(closed)
	require.ErrorIs(t, follow(context.Background(), closed, make(chan struct{}), 7), common.ErrDisconnected)
}
