// internal/driver/rigol/commands.go
package rigol

// SCPI command templates for the DP800 family. %d is the channel number.
const (
	cmdSetVoltage   = ":SOUR%d:VOLT %s"
	cmdSetCurrent   = ":SOUR%d:CURR %s"
	cmdQueryVoltage = ":SOUR%d:VOLT?"
	cmdQueryCurrent = ":SOUR%d:CURR?"

	cmdQueryOVP        = ":SOUR%d:VOLT:PROT?"
	cmdQueryOCP        = ":SOUR%d:CURR:PROT?"
	cmdQueryOVPEnabled = ":SOUR%d:VOLT:PROT:STAT?"
	cmdQueryOCPEnabled = ":SOUR%d:CURR:PROT:STAT?"

	cmdSetOutput   = ":OUTP CH%d,%s" // ON | OFF
	cmdQueryOutput = ":OUTP? CH%d"

	cmdRecallPreset = ":SYST:PRES %s" // DEFAULT | USER1..USER4

	cmdScreenshot = ":DISP:DATA?"
)
