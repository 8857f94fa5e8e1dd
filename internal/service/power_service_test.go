package service

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"dp800ctl/internal/config"
	internalDriver "dp800ctl/internal/driver"
	"dp800ctl/internal/model"
	"dp800ctl/internal/scpi/scpitest"
	"dp800ctl/internal/validator"
)

func testConfig(host string, port int) *config.Config {
	return &config.Config{
		Device: config.DeviceConfig{
			IP:        host,
			Port:      port,
			Transport: model.ConnectionTypeTCP,
			BaudRate:  9600,
			Timeout:   500 * time.Millisecond,
		},
	}
}

func newService(t *testing.T, inst *scpitest.Instrument) *PowerService {
	t.Helper()
	logger := zap.NewNop()
	return NewPowerService(testConfig(inst.Host(), inst.Port()), internalDriver.NewDefaultRegistry(logger), logger)
}

func str(s string) *string { return &s }

func TestPowerService_Identify(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	ps := newService(t, inst)

	info, err := ps.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scpitest.DefaultIdentity, info.IDN)
	assert.Equal(t, "DP832A", info.Model)
	assert.Equal(t, model.ConnectionTypeTCP, info.ConnectionType)
	inst.WaitClosed(t)
}

func TestPowerService_SetThenState(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	ps := newService(t, inst)
	ctx := context.Background()

	req, err := validator.ValidateSet("1", str("5.0"), nil)
	require.NoError(t, err)
	require.NoError(t, ps.ApplySetpoints(ctx, req))
	inst.WaitClosed(t)

	state, err := validator.ValidateState("1")
	require.NoError(t, err)
	states, err := ps.State(ctx, state)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, 5.0, states[0].VoltageSetpoint)
	assert.Contains(t, inst.Commands(), ":SOUR1:VOLT 5.0")
	assert.Equal(t, 2, inst.Connections())
}

func TestPowerService_QuerySetpoints(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	ps := newService(t, inst)
	ctx := context.Background()

	req, err := validator.ValidateSet("3", str("3.3"), str("0.5"))
	require.NoError(t, err)
	require.NoError(t, ps.ApplySetpoints(ctx, req))

	sp, err := ps.QuerySetpoints(ctx, model.Channel3)
	require.NoError(t, err)
	assert.Equal(t, 3.3, sp.Voltage)
	assert.Equal(t, 0.5, sp.Current)
}

func TestPowerService_StateAllChannels(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	inst.SetProtection(2, 20, true, 2, false)
	ps := newService(t, inst)

	req, err := validator.ValidateState("")
	require.NoError(t, err)
	states, err := ps.State(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, model.Channel2, states[1].Channel)
	assert.Equal(t, 20.0, states[1].OVPValue)
	assert.True(t, states[1].OVPEnabled)
	assert.False(t, states[1].OCPEnabled)
}

func TestPowerService_OutputAll(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	ps := newService(t, inst)
	ctx := context.Background()

	target, err := validator.ValidateOutput("all")
	require.NoError(t, err)
	require.NoError(t, ps.SetOutput(ctx, target, true))

	for _, ch := range []int{1, 2, 3} {
		assert.True(t, inst.Output(ch))
	}
	assert.Equal(t, []string{"*IDN?", ":OUTP CH1,ON", ":OUTP CH2,ON", ":OUTP CH3,ON"}, inst.Commands())

	target, err = validator.ValidateOutput("2")
	require.NoError(t, err)
	require.NoError(t, ps.SetOutput(ctx, target, false))
	assert.False(t, inst.Output(2))
	assert.True(t, inst.Output(1))
}

func TestPowerService_RecallPreset(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	ps := newService(t, inst)

	preset, err := validator.ValidatePreset("3")
	require.NoError(t, err)
	require.NoError(t, ps.RecallPreset(context.Background(), preset))
	assert.Equal(t, "USER3", inst.Preset())
}

func TestPowerService_Screenshot(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	payload := bytes.Repeat([]byte{0x42, 0x4d, 0x0a}, 1234/3+1)[:1234]
	inst.SetRawReply(":DISP:DATA?", append([]byte("#800001234"), payload...))
	ps := newService(t, inst)

	path := filepath.Join(t.TempDir(), "shot.bmp")
	result, err := ps.Screenshot(context.Background(), validator.ScreenshotRequest{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1234, result.Size)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestPowerService_ScreenshotMalformedClosesConnection(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	inst.SetRawReply(":DISP:DATA?", []byte("#4123\n"))
	ps := newService(t, inst)

	path := filepath.Join(t.TempDir(), "shot.bmp")
	_, err := ps.Screenshot(context.Background(), validator.ScreenshotRequest{Path: path})
	require.Error(t, err)
	assert.Equal(t, model.KindProtocol, model.KindOf(err))
	assert.ErrorIs(t, err, model.ErrMalformedReply)

	inst.WaitClosed(t)
	assert.NoFileExists(t, path)
}

func TestPowerService_ScreenshotWriteFailureIsIO(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	inst.SetScreenshot([]byte("BM"))
	ps := newService(t, inst)

	// directory vanished between validation and write
	path := filepath.Join(t.TempDir(), "gone", "shot.bmp")
	_, err := ps.Screenshot(context.Background(), validator.ScreenshotRequest{Path: path})
	require.Error(t, err)
	assert.Equal(t, model.KindIO, model.KindOf(err))
}

func TestPowerService_UnsupportedDevice(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	inst.SetIdentity("RIGOL TECHNOLOGIES,DP711,X,1")
	ps := newService(t, inst)

	target, err := validator.ValidateOutput("1")
	require.NoError(t, err)
	err = ps.SetOutput(context.Background(), target, true)
	require.Error(t, err)
	assert.Equal(t, model.KindProtocol, model.KindOf(err))
	assert.ErrorIs(t, err, model.ErrUnsupportedDevice)

	// nothing but the identification query reached the instrument
	assert.Equal(t, []string{"*IDN?"}, inst.Commands())
	inst.WaitClosed(t)
}

func TestPowerService_Timeout(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	inst.SetSilent(":SOUR1:VOLT?")
	ps := newService(t, inst)

	_, err := ps.QuerySetpoints(context.Background(), model.Channel1)
	require.Error(t, err)
	assert.Equal(t, model.KindConnection, model.KindOf(err))
	assert.ErrorIs(t, err, model.ErrTimeout)
	inst.WaitClosed(t)
}

func TestPowerService_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	logger := zap.NewNop()
	ps := NewPowerService(testConfig("127.0.0.1", port), internalDriver.NewDefaultRegistry(logger), logger)

	_, err = ps.Identify(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.KindConnection, model.KindOf(err))
}

func TestPowerService_LogsOperations(t *testing.T) {
	inst := scpitest.NewInstrument(t)
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	ps := NewPowerService(testConfig(inst.Host(), inst.Port()), internalDriver.NewDefaultRegistry(logger), logger)

	_, err := ps.Identify(context.Background())
	require.NoError(t, err)

	done := logs.FilterMessage("Operation completed successfully").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.Equal(t, "IDENTIFY", fields["operation_type"])
	assert.Equal(t, "SUCCESS", fields["status"])
	assert.NotEmpty(t, fields["operation_id"])
	assert.Equal(t, "power-service", fields["service"])

	assert.Equal(t, 1, logs.FilterMessage("Connection released").Len())

	events := logs.FilterMessage("Device connection event").All()
	require.Len(t, events, 2)
	assert.Equal(t, "open", events[0].ContextMap()["action"])
	assert.Equal(t, "close", events[1].ContextMap()["action"])
	assert.Equal(t, true, events[1].ContextMap()["success"])
}

func TestPowerService_LogsFailedOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	ps := NewPowerService(testConfig("127.0.0.1", port), internalDriver.NewDefaultRegistry(logger), logger)

	_, err = ps.Identify(context.Background())
	require.Error(t, err)

	events := logs.FilterMessage("Device connection event").All()
	require.Len(t, events, 1)
	fields := events[0].ContextMap()
	assert.Equal(t, "open", fields["action"])
	assert.Equal(t, false, fields["success"])
	assert.NotEmpty(t, fields["error"])
}
