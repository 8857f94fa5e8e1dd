// Package scpitest provides an in-process DP800 stand-in listening on loopback.
package scpitest

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// DefaultIdentity is what *IDN? answers unless overridden
const DefaultIdentity = "RIGOL TECHNOLOGIES,DP832A,DP8B000000001,00.01.19"

type channelState struct {
	voltage, current float64
	ovp, ocp         float64
	ovpOn, ocpOn     bool
	output           bool
}

// Instrument is a fake power supply that remembers what was set and echoes it back
type Instrument struct {
	listener net.Listener

	mu         sync.Mutex
	identity   string
	channels   map[int]*channelState
	preset     string
	screenshot []byte
	raw        map[string][]byte
	silent     map[string]bool
	commands   []string
	accepted   int
	closed     chan struct{}
}

// NewInstrument starts the fake and stops it when the test ends
func NewInstrument(t testing.TB) *Instrument {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	inst := &Instrument{
		listener: ln,
		identity: DefaultIdentity,
		channels: map[int]*channelState{
			1: {ovp: 33, ocp: 3.3},
			2: {ovp: 33, ocp: 3.3},
			3: {ovp: 5.5, ocp: 3.3},
		},
		raw:    make(map[string][]byte),
		silent: make(map[string]bool),
		closed: make(chan struct{}, 16),
	}

	go inst.serve()
	t.Cleanup(func() { ln.Close() })
	return inst
}

// Host returns the loopback address
func (i *Instrument) Host() string {
	return "127.0.0.1"
}

// Port returns the listening port
func (i *Instrument) Port() int {
	return i.listener.Addr().(*net.TCPAddr).Port
}

// Close stops accepting connections
func (i *Instrument) Close() {
	i.listener.Close()
}

// SetIdentity changes the *IDN? reply
func (i *Instrument) SetIdentity(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.identity = id
}

// SetScreenshot sets the payload returned by :DISP:DATA? as a binary block
func (i *Instrument) SetScreenshot(data []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.screenshot = data
}

// SetRawReply makes command answer with exactly these bytes
func (i *Instrument) SetRawReply(command string, reply []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.raw[command] = reply
}

// SetSilent makes command produce no reply at all
func (i *Instrument) SetSilent(command string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.silent[command] = true
}

// SetProtection configures a channel's OVP/OCP state
func (i *Instrument) SetProtection(ch int, ovp float64, ovpOn bool, ocp float64, ocpOn bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	c := i.channels[ch]
	c.ovp, c.ovpOn, c.ocp, c.ocpOn = ovp, ovpOn, ocp, ocpOn
}

// Commands returns every command received so far
func (i *Instrument) Commands() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.commands...)
}

// Connections returns how many connections were accepted
func (i *Instrument) Connections() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.accepted
}

// Output reports a channel's output state
func (i *Instrument) Output(ch int) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.channels[ch].output
}

// Preset returns the last recalled preset token
func (i *Instrument) Preset() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.preset
}

// WaitClosed blocks until a client connection has been closed by the client
func (i *Instrument) WaitClosed(t testing.TB) {
	t.Helper()
	select {
	case <-i.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("client connection was not closed")
	}
}

func (i *Instrument) serve() {
	for {
		conn, err := i.listener.Accept()
		if err != nil {
			return
		}
		i.mu.Lock()
		i.accepted++
		i.mu.Unlock()
		go i.handle(conn)
	}
}

func (i *Instrument) handle(conn net.Conn) {
	defer func() {
		conn.Close()
		i.closed <- struct{}{}
	}()

	reader := bufio.NewReader(conn)
	for {
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		command := strings.TrimRight(text, "\r\n")

		reply := i.respond(command)
		if reply == nil {
			continue
		}
		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}

func (i *Instrument) respond(command string) []byte {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.commands = append(i.commands, command)

	if i.silent[command] {
		return nil
	}
	if raw, ok := i.raw[command]; ok {
		return raw
	}

	switch {
	case command == "*IDN?":
		return line(i.identity)

	case command == ":DISP:DATA?":
		data := i.screenshot
		length := strconv.Itoa(len(data))
		out := fmt.Sprintf("#%d%s", len(length), length)
		return append(append([]byte(out), data...), '\n')

	case strings.HasPrefix(command, ":SOUR"):
		return i.source(command)

	case strings.HasPrefix(command, ":OUTP? CH"):
		ch, _ := strconv.Atoi(strings.TrimPrefix(command, ":OUTP? CH"))
		if c, ok := i.channels[ch]; ok {
			return line(onOff(c.output))
		}
		return nil

	case strings.HasPrefix(command, ":OUTP CH"):
		parts := strings.SplitN(strings.TrimPrefix(command, ":OUTP CH"), ",", 2)
		ch, _ := strconv.Atoi(parts[0])
		if c, ok := i.channels[ch]; ok && len(parts) == 2 {
			c.output = parts[1] == "ON"
		}
		return nil

	case strings.HasPrefix(command, ":SYST:PRES "):
		i.preset = strings.TrimPrefix(command, ":SYST:PRES ")
		return nil
	}
	return nil
}

// source handles ":SOURn:..." set and query commands
func (i *Instrument) source(command string) []byte {
	rest := strings.TrimPrefix(command, ":SOUR")
	if rest == "" {
		return nil
	}
	ch, err := strconv.Atoi(rest[:1])
	if err != nil {
		return nil
	}
	c, ok := i.channels[ch]
	if !ok {
		return nil
	}

	switch path := rest[1:]; {
	case path == ":VOLT?":
		return line(fmt.Sprintf("%.3f", c.voltage))
	case path == ":CURR?":
		return line(fmt.Sprintf("%.3f", c.current))
	case path == ":VOLT:PROT?":
		return line(fmt.Sprintf("%.3f", c.ovp))
	case path == ":CURR:PROT?":
		return line(fmt.Sprintf("%.3f", c.ocp))
	case path == ":VOLT:PROT:STAT?":
		return line(onOff(c.ovpOn))
	case path == ":CURR:PROT:STAT?":
		return line(onOff(c.ocpOn))
	case strings.HasPrefix(path, ":VOLT "):
		c.voltage, _ = strconv.ParseFloat(strings.TrimPrefix(path, ":VOLT "), 64)
	case strings.HasPrefix(path, ":CURR "):
		c.current, _ = strconv.ParseFloat(strings.TrimPrefix(path, ":CURR "), 64)
	}
	return nil
}

func line(s string) []byte {
	return []byte(s + "\n")
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
