package validator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dp800ctl/internal/model"
)

func str(s string) *string { return &s }

func TestValidateSet_VoltageBounds(t *testing.T) {
	tests := []struct {
		channel string
		voltage string
		ok      bool
	}{
		{"1", "0", true},
		{"1", "32", true},
		{"1", "32.0", true},
		{"1", "32.001", false},
		{"1", "-0.1", false},
		{"2", "12.5", true},
		{"2", "33", false},
		{"3", "5.3", true},
		{"3", "5.31", false},
		{"3", "6", false},
		{"3", "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.channel+"/"+tt.voltage, func(t *testing.T) {
			// current never rescues an out-of-range voltage
			req, err := ValidateSet(tt.channel, str(tt.voltage), str("1.0"))
			if tt.ok {
				require.NoError(t, err)
				assert.True(t, req.Voltage.Equal(decimal.RequireFromString(tt.voltage)))
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrOutOfRange)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
		})
	}
}

func TestValidateSet_CurrentBounds(t *testing.T) {
	_, err := ValidateSet("3", nil, str("3.2"))
	require.NoError(t, err)

	_, err = ValidateSet("1", nil, str("3.21"))
	assert.ErrorIs(t, err, model.ErrOutOfRange)

	_, err = ValidateSet("2", str("5"), str("-1"))
	assert.ErrorIs(t, err, model.ErrOutOfRange)
}

func TestValidateSet_Channel(t *testing.T) {
	for _, ch := range []string{"0", "4", "all", "", "1.5", "x"} {
		_, err := ValidateSet(ch, str("1"), nil)
		require.Error(t, err, ch)
		assert.ErrorIs(t, err, model.ErrInvalidChannel)
	}
}

func TestValidateSet_NotANumber(t *testing.T) {
	_, err := ValidateSet("1", str("five"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidValue)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestValidateSet_QueryWhenNoValues(t *testing.T) {
	req, err := ValidateSet("2", nil, nil)
	require.NoError(t, err)
	assert.True(t, req.IsQuery())
	assert.Equal(t, model.Channel2, req.Channel)

	req, err = ValidateSet("2", nil, str("1"))
	require.NoError(t, err)
	assert.False(t, req.IsQuery())
	assert.Nil(t, req.Voltage)
}

func TestValidateOutput(t *testing.T) {
	for _, token := range []string{"1", "2", "3", "all", "ALL"} {
		target, err := ValidateOutput(token)
		require.NoError(t, err, token)
		if token == "1" {
			assert.Equal(t, []model.Channel{model.Channel1}, target.Channels())
		}
	}

	target, err := ValidateOutput("all")
	require.NoError(t, err)
	assert.True(t, target.All)
	assert.Len(t, target.Channels(), 3)

	for _, token := range []string{"0", "4", "", "al", "1,2", "-1"} {
		_, err := ValidateOutput(token)
		require.Error(t, err, token)
		assert.ErrorIs(t, err, model.ErrInvalidChannel)
	}
}

func TestValidatePreset(t *testing.T) {
	for i, name := range []string{"DEFAULT", "USER1", "USER2", "USER3", "USER4"} {
		p, err := ValidatePreset(string(rune('0' + i)))
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}

	for _, token := range []string{"5", "-1", "user1", ""} {
		_, err := ValidatePreset(token)
		require.Error(t, err, token)
		assert.ErrorIs(t, err, model.ErrInvalidPreset)
	}
}

func TestValidateState(t *testing.T) {
	req, err := ValidateState("")
	require.NoError(t, err)
	assert.Equal(t, model.Channels(), req.Channels)

	req, err = ValidateState("3")
	require.NoError(t, err)
	assert.Equal(t, []model.Channel{model.Channel3}, req.Channels)

	_, err = ValidateState("9")
	assert.ErrorIs(t, err, model.ErrInvalidChannel)
}

func TestValidateScreenshot(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	req, err := ValidateScreenshot("", "10.0.0.7", now)
	require.NoError(t, err)
	assert.True(t, req.Generated)
	assert.Equal(t, "screenshot_10.0.0.7_2024-03-09T14:05:07.bmp", req.Path)

	dir := t.TempDir()
	target := filepath.Join(dir, "shot.bmp")
	req, err = ValidateScreenshot(target, "10.0.0.7", now)
	require.NoError(t, err)
	assert.Equal(t, target, req.Path)
	assert.False(t, req.Generated)

	// the writability probe leaves nothing behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidateScreenshot_InvalidPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	for _, output := range []string{
		filepath.Join(dir, "missing", "shot.bmp"),
		filepath.Join(file, "shot.bmp"),
		dir,
	} {
		_, err := ValidateScreenshot(output, "ip", time.Now())
		require.Error(t, err, output)
		assert.ErrorIs(t, err, model.ErrInvalidPath)
		assert.Equal(t, model.KindValidation, model.KindOf(err))
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "12.0", FormatValue(decimal.RequireFromString("12")))
	assert.Equal(t, "5.0", FormatValue(decimal.RequireFromString("5.0")))
	assert.Equal(t, "1.25", FormatValue(decimal.RequireFromString("1.25")))
	assert.Equal(t, "0.0", FormatValue(decimal.Zero))
}
