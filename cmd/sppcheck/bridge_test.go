//go:build linux

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/sppcheck/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type BridgeCommandTestSuite struct {
	CommandTestSuite
}

func (suite *BridgeCommandTestSuite) TestBridgeRunsUntilInterrupted() {
	// GOAL: Verify the bridge reports its PTY and stops cleanly on Ctrl+C
	//
	// TEST SCENARIO: bridge <addr> → serial channel resolved → PTY created → ctx cancelled → exit 0, connection closed once

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for suite.Adapter.Conn() == nil {
			time.Sleep(10 * time.Millisecond)
		}
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := suite.ExecuteCommandContext(ctx, "bridge", testutils.DefaultTargetAddress)

	suite.Equal(exitOK, res.Code, "stderr: %s", res.Stderr)
	suite.Contains(res.Stdout, "✓ Connected to 24:0A:C4:00:11:22 on channel 1")
	suite.Contains(res.Stdout, "ℹ PTY: /dev/pts/")
	suite.Contains(res.Stdout, "ℹ Bridge stopped")
	suite.Equal(1, suite.Adapter.Conn().CloseCount())
}

func (suite *BridgeCommandTestSuite) TestBridgeConnectionLost() {
	conn := testutils.NewFakeConn(testutils.DefaultTargetAddress, 2).FailReads(errors.New("connection reset by peer"))
	suite.UseAdapter(testutils.DefaultAdapterBuilder().WithConn(conn).Build())

	res := suite.ExecuteCommand("bridge", "--channel", "2", testutils.DefaultTargetAddress)

	suite.Equal(exitFailure, res.Code)
	suite.Contains(res.Stdout, "✗ Connection lost")
	suite.Contains(res.Stderr, "ERROR: connection lost: connection reset by peer")
	suite.Empty(suite.Adapter.ServicesCalls(), "an explicit channel MUST skip SDP")
}

func (suite *BridgeCommandTestSuite) TestBridgeInvalidChannel() {
	res := suite.ExecuteCommand("bridge", "--channel", "31", testutils.DefaultTargetAddress)

	suite.Equal(exitFailure, res.Code)
	suite.Contains(res.Stderr, "invalid RFCOMM channel 31")
	suite.Empty(suite.Adapter.DialCalls())
}

func TestBridgeCommandTestSuite(t *testing.T) {
	suite.Run(t, new(BridgeCommandTestSuite))
}
