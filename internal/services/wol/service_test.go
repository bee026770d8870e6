package wol

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWOLClient struct {
	wakeFunc func(broadcastIP string, mac net.HardwareAddr) error
}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	if m.wakeFunc != nil {
		return m.wakeFunc(broadcastIP, mac)
	}
	return nil
}

type mockDialer struct {
	dialFunc func(ctx context.Context, network, address string) (net.Conn, error)
	calls    int
}

func (m *mockDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	m.calls++
	if m.dialFunc != nil {
		return m.dialFunc(ctx, network, address)
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.WOLConfig {
	return models.WOLConfig{
		MACAddress:   "aa:bb:cc:dd:ee:ff",
		BroadcastIP:  "192.168.1.255",
		TargetAddr:   "192.168.1.20:3306",
		Timeout:      time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestWake_Success_NoTarget(t *testing.T) {
	var capturedIP string
	var capturedMAC net.HardwareAddr

	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			capturedIP = broadcastIP
			capturedMAC = mac
			return nil
		},
	}
	dialer := &mockDialer{}

	cfg := testConfig()
	cfg.TargetAddr = ""

	svc := NewWithClients(testLogger(), wolClient, dialer)
	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.Equal(t, "192.168.1.255", capturedIP)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", capturedMAC.String())
	assert.Zero(t, dialer.calls)
}

func TestWake_InvalidMAC(t *testing.T) {
	cfg := testConfig()
	cfg.MACAddress = "not-a-mac"

	svc := NewWithClients(testLogger(), &mockWOLClient{}, &mockDialer{})
	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.ErrorIs(t, result.Error, models.ErrConfig)
	assert.Contains(t, result.Error.Error(), "invalid MAC address")
}

func TestWake_SendFailed(t *testing.T) {
	wolClient := &mockWOLClient{
		wakeFunc: func(string, net.HardwareAddr) error {
			return models.Wrap(models.ErrTransport, "failed to send WOL packet", errors.New("network unreachable"))
		},
	}

	svc := NewWithClients(testLogger(), wolClient, &mockDialer{})
	result, err := svc.Wake(context.Background(), testConfig())

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.ErrorIs(t, result.Error, models.ErrTransport)
}

func TestWake_TargetImmediatelyUp(t *testing.T) {
	var dialed string
	dialer := &mockDialer{}
	dialer.dialFunc = func(_ context.Context, network, address string) (net.Conn, error) {
		dialed = network + "://" + address
		client, server := net.Pipe()
		_ = server.Close()
		return client, nil
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)
	result, err := svc.Wake(context.Background(), testConfig())

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.Equal(t, "tcp://192.168.1.20:3306", dialed)
	assert.Equal(t, 1, dialer.calls)
}

func TestWake_TargetDelayed(t *testing.T) {
	attempts := 0
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, string) (net.Conn, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection refused")
			}
			client, server := net.Pipe()
			_ = server.Close()
			return client, nil
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)
	result, err := svc.Wake(context.Background(), testConfig())

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.Equal(t, 3, attempts)
}

func TestWake_TargetTimeout(t *testing.T) {
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)
	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	assert.ErrorIs(t, result.Error, models.ErrTimeout)
	assert.Contains(t, result.Error.Error(), "192.168.1.20:3306")
}

func TestWake_ContextCancelled(t *testing.T) {
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}

	cfg := testConfig()
	cfg.Timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)
	result, err := svc.Wake(ctx, cfg)

	require.NoError(t, err)
	assert.False(t, result.TargetReady)
	assert.ErrorIs(t, result.Error, context.DeadlineExceeded)
}

func TestWake_WithStabilizeWait(t *testing.T) {
	cfg := testConfig()
	cfg.StabilizeWait = 50 * time.Millisecond

	svc := NewWithClients(testLogger(), &mockWOLClient{}, &mockDialer{})

	start := time.Now()
	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWake_RealListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	cfg := testConfig()
	cfg.TargetAddr = ln.Addr().String()

	svc := NewWithClients(testLogger(), &mockWOLClient{}, &net.Dialer{Timeout: time.Second})
	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
}

func TestDefaultClient_InvalidBroadcastIP(t *testing.T) {
	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	c := &DefaultClient{}
	err = c.Wake("not-an-ip", mac)

	assert.ErrorIs(t, err, models.ErrConfig)
}
