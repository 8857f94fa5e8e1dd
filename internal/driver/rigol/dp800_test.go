package rigol

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dp800ctl/internal/model"
	"dp800ctl/pkg/driver"
)

type stubSession struct {
	replies map[string]string
	binary  []byte
	sent    []string
	err     error
}

func (s *stubSession) Send(_ context.Context, command string) error {
	s.sent = append(s.sent, command)
	return s.err
}

func (s *stubSession) Query(_ context.Context, command string) (string, error) {
	s.sent = append(s.sent, command)
	if s.err != nil {
		return "", s.err
	}
	return s.replies[command], nil
}

func (s *stubSession) QueryBinary(_ context.Context, command string) ([]byte, error) {
	s.sent = append(s.sent, command)
	return s.binary, s.err
}

var testIdentity = model.Identity{
	Manufacturer: Manufacturer,
	Model:        "DP832A",
	Serial:       "DP8B000000001",
	Firmware:     "00.01.19",
	Raw:          "RIGOL TECHNOLOGIES,DP832A,DP8B000000001,00.01.19",
}

func newDriver(t *testing.T, s *stubSession) driver.PowerSupplyDriver {
	t.Helper()
	d, err := NewDP800Driver(testIdentity, s, zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestDP800Driver_DeviceInfo(t *testing.T) {
	d := newDriver(t, &stubSession{})
	info := d.GetDeviceInfo()
	assert.Equal(t, "DP832A", info.Model)
	assert.Equal(t, "DP8B000000001", info.SerialNumber)
	assert.Equal(t, 3, info.ChannelCount)
	assert.Len(t, d.Channels(), 3)
}

func TestDP800Driver_ChannelState(t *testing.T) {
	s := &stubSession{replies: map[string]string{
		":SOUR2:VOLT?":           "12.500",
		":SOUR2:CURR?":           "1.000",
		":SOUR2:VOLT:PROT?":      "33.000",
		":SOUR2:CURR:PROT?":      "3.300",
		":SOUR2:VOLT:PROT:STAT?": "ON",
		":SOUR2:CURR:PROT:STAT?": "OFF",
		":OUTP? CH2":             "ON",
	}}
	d := newDriver(t, s)

	state, err := d.ChannelState(context.Background(), model.Channel2)
	require.NoError(t, err)
	assert.Equal(t, &model.ChannelState{
		Channel:         model.Channel2,
		OutputEnabled:   true,
		VoltageSetpoint: 12.5,
		CurrentSetpoint: 1,
		OVPValue:        33,
		OVPEnabled:      true,
		OCPValue:        3.3,
		OCPEnabled:      false,
	}, state)
	assert.Len(t, s.sent, 7)
}

func TestDP800Driver_ChannelStateMalformed(t *testing.T) {
	s := &stubSession{replies: map[string]string{":SOUR1:VOLT?": "twelve"}}
	d := newDriver(t, s)

	_, err := d.ChannelState(context.Background(), model.Channel1)
	require.Error(t, err)
	assert.Equal(t, model.KindProtocol, model.KindOf(err))
	assert.ErrorIs(t, err, model.ErrMalformedReply)
	// stops at the first bad reply
	assert.Len(t, s.sent, 1)
}

func TestDP800Driver_BadFlagReply(t *testing.T) {
	s := &stubSession{replies: map[string]string{
		":SOUR1:VOLT?":           "1",
		":SOUR1:CURR?":           "1",
		":SOUR1:VOLT:PROT?":      "1",
		":SOUR1:CURR:PROT?":      "1",
		":SOUR1:VOLT:PROT:STAT?": "MAYBE",
	}}
	_, err := newDriver(t, s).ChannelState(context.Background(), model.Channel1)
	assert.ErrorIs(t, err, model.ErrMalformedReply)
}

func TestDP800Driver_Setpoints(t *testing.T) {
	s := &stubSession{replies: map[string]string{":SOUR3:VOLT?": "3.300", ":SOUR3:CURR?": "0.500"}}
	sp, err := newDriver(t, s).Setpoints(context.Background(), model.Channel3)
	require.NoError(t, err)
	assert.Equal(t, 3.3, sp.Voltage)
	assert.Equal(t, 0.5, sp.Current)
}

func TestDP800Driver_Commands(t *testing.T) {
	s := &stubSession{}
	d := newDriver(t, s)
	ctx := context.Background()

	require.NoError(t, d.SetVoltage(ctx, model.Channel1, decimal.RequireFromString("12")))
	require.NoError(t, d.SetCurrent(ctx, model.Channel1, decimal.RequireFromString("0.25")))
	require.NoError(t, d.SetOutput(ctx, model.Channel3, true))
	require.NoError(t, d.SetOutput(ctx, model.Channel2, false))
	require.NoError(t, d.RecallPreset(ctx, model.PresetDefault))
	require.NoError(t, d.RecallPreset(ctx, model.PresetUser1))

	assert.Equal(t, []string{
		":SOUR1:VOLT 12.0",
		":SOUR1:CURR 0.25",
		":OUTP CH3,ON",
		":OUTP CH2,OFF",
		":SYST:PRES DEFAULT",
		":SYST:PRES USER1",
	}, s.sent)
}

func TestDP800Driver_RejectsUnknownChannel(t *testing.T) {
	s := &stubSession{}
	d := newDriver(t, s)

	err := d.SetOutput(context.Background(), model.Channel(4), true)
	assert.ErrorIs(t, err, model.ErrInvalidChannel)
	assert.Empty(t, s.sent)
}

func TestDP800Driver_Screenshot(t *testing.T) {
	s := &stubSession{binary: []byte("BM\x00\x01")}
	data, err := newDriver(t, s).Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("BM\x00\x01"), data)
	assert.Equal(t, []string{":DISP:DATA?"}, s.sent)
}

func TestDP800Driver_PropagatesSessionErrors(t *testing.T) {
	cause := model.NewError(model.KindConnection, "read", model.ErrTimeout)
	s := &stubSession{err: cause}

	_, err := newDriver(t, s).Setpoints(context.Background(), model.Channel1)
	assert.True(t, errors.Is(err, model.ErrTimeout))
	assert.Equal(t, model.KindConnection, model.KindOf(err))
}
