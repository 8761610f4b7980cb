package unreal

import (
	"strings"
	"testing"
	"time"

	"github.com/mindforge-irc/linksvc/irc"
	"github.com/mindforge-irc/linksvc/protocol"
)

func testParams() Params {
	return Params{
		ServerName:              "X",
		Numeric:                 191,
		Description:             "Test Services",
		UplinkName:              "U",
		OutboundPassword:        "outpass",
		ExpectedInboundPassword: "good",
		ServiceBot: protocol.ClientIdentity{
			Nick: "ToolBot", Ident: "tool", Host: "tool.mindforge.org",
			Gecos: "MindForge Tool Services",
		},
		Channels: []string{"#services", "#opers"},
	}
}

func newEngine() *Unreal {
	e := New(testParams())
	e.now = func() time.Time { return time.Unix(1425754439, 0) }
	return e
}

func msg(source, command string, params ...string) irc.Message {
	return irc.Message{Source: source, Command: command, Params: params}
}

func TestIntroduceMsg(t *testing.T) {
	t.Parallel()

	e := newEngine()
	want := "PASS :outpass\r\n" +
		"PROTOCTL VHP UMODE2 VL SJOIN SJOIN2 SJ3 TKLEXT NICKv2 NICKIP\r\n" +
		"SERVER X 1 :U2311-Ooe-191 Test Services\r\n"

	if got := e.IntroduceMsg(); got != want {
		t.Fatalf("IntroduceMsg() = %q, want %q", got, want)
	}
}

func TestPingForwardedVsLocal(t *testing.T) {
	t.Parallel()

	e := newEngine()

	reply, err := e.Handle(msg("", "PING", "U"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "PONG :X\r\n" {
		t.Fatalf("reply = %q, want PONG :X\\r\\n", reply)
	}

	reply, err = e.Handle(msg("", "PING", "Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "PONG X :Z\r\n" {
		t.Fatalf("reply = %q, want PONG X :Z\\r\\n", reply)
	}

	_, err = e.Handle(msg("", "PING", "Z", "Y"))
	if err == nil || err.Kind != protocol.InvalidParameter {
		t.Fatalf("err = %v, want InvalidParameter", err)
	}
}

func TestWrongPassword(t *testing.T) {
	t.Parallel()

	e := newEngine()
	_, err := e.Handle(msg("", "PASS", "bad"))
	if err == nil || err.Kind != protocol.Fatal {
		t.Fatalf("err = %v, want Fatal", err)
	}
}

func TestProtoctlAccumulation(t *testing.T) {
	t.Parallel()

	e := newEngine()

	if _, err := e.Handle(msg("", "PROTOCTL", "NICKv2", "VHP")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Handle(msg("", "PROTOCTL", "UMODE2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	caps := e.Capabilities()
	if !caps.NICKv2 || !caps.VHP || !caps.UMODE2 {
		t.Fatalf("capabilities not accumulated: %+v", caps)
	}

	e.synced = true
	_, err := e.Handle(msg("", "PROTOCTL", "SJOIN"))
	if err == nil || err.Kind != protocol.InvalidContext {
		t.Fatalf("err = %v, want InvalidContext after sync", err)
	}
}

func TestVersionMismatch(t *testing.T) {
	t.Parallel()

	e := newEngine()
	_, err := e.Handle(msg("", "SERVER", "U", "1", "U2312-Ooe-1 desc"))
	if err == nil || err.Kind != protocol.ProtocolVersionMismatch {
		t.Fatalf("err = %v, want ProtocolVersionMismatch", err)
	}
}

func TestHappyPathSync(t *testing.T) {
	t.Parallel()

	e := newEngine()

	if _, err := e.Handle(msg("", "PASS", "good")); err != nil {
		t.Fatalf("PASS: unexpected error: %v", err)
	}
	if _, err := e.Handle(msg("", "PROTOCTL", "NICKv2", "VHP", "NICKIP")); err != nil {
		t.Fatalf("PROTOCTL: unexpected error: %v", err)
	}
	if _, err := e.Handle(msg("", "SERVER", "U", "1", "U2311-Ooe-1 uplink")); err != nil {
		t.Fatalf("SERVER: unexpected error: %v", err)
	}

	if e.Synced() {
		t.Fatal("Synced() = true before EOS")
	}

	burst, err := e.Handle(msg("U", "EOS"))
	if err != nil {
		t.Fatalf("EOS: unexpected error: %v", err)
	}
	if !e.Synced() {
		t.Fatal("Synced() = false after uplink EOS")
	}

	lines := strings.Split(burst, "\r\n")
	// Trailing element is empty because the burst ends in \r\n.
	if len(lines) != 5 || lines[4] != "" {
		t.Fatalf("unexpected burst shape: %q", lines)
	}

	wantNick := "NICK ToolBot 1 1425754439 tool tool.mindforge.org X 0 +ioSq tool.mindforge.org fwAAAQ== :MindForge Tool Services"
	if lines[0] != wantNick {
		t.Fatalf("NICK line = %q, want %q", lines[0], wantNick)
	}
	if lines[1] != ":ToolBot JOIN #services" {
		t.Fatalf("JOIN line 1 = %q", lines[1])
	}
	if lines[2] != ":ToolBot JOIN #opers" {
		t.Fatalf("JOIN line 2 = %q", lines[2])
	}
	if lines[3] != "EOS" {
		t.Fatalf("final line = %q, want EOS", lines[3])
	}
}

func TestNonUplinkEOSIgnored(t *testing.T) {
	t.Parallel()

	e := newEngine()
	reply, err := e.Handle(msg("downstream.example", "EOS"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "" {
		t.Fatalf("reply = %q, want empty", reply)
	}
	if e.Synced() {
		t.Fatal("Synced() = true after non-uplink EOS")
	}
}

func TestSecondEOSAfterSyncIsInvalidContext(t *testing.T) {
	t.Parallel()

	e := newEngine()
	if _, err := e.Handle(msg("U", "EOS")); err != nil {
		t.Fatalf("unexpected error on first EOS: %v", err)
	}
	_, err := e.Handle(msg("U", "EOS"))
	if err == nil || err.Kind != protocol.InvalidContext {
		t.Fatalf("err = %v, want InvalidContext", err)
	}
}

func TestUnknownCommandSilentlyAccepted(t *testing.T) {
	t.Parallel()

	e := newEngine()
	reply, err := e.Handle(msg("U", "SMO", "o", "(link) established"))
	if err != nil || reply != "" {
		t.Fatalf("reply=%q err=%v, want empty/nil", reply, err)
	}
}
