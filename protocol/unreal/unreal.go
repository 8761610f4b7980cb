/*
Package unreal implements protocol.Engine for an UnrealIRCd 2311-class
uplink: the handshake (PASS/PROTOCTL/SERVER/EOS), capability negotiation,
and client introduction.
*/
package unreal

import (
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mindforge-irc/linksvc/irc"
	"github.com/mindforge-irc/linksvc/protocol"
)

const (
	// protoVersion is the S2S protocol version this engine implements.
	protoVersion = "U2311"
	// compileFlags is sent in the SERVER info field, mirroring Unreal's own
	// compile-time feature flags convention.
	compileFlags = "Ooe"
	// userModes are applied to a Regular client introduction.
	userModes = "+i"
	// serviceModes are applied to a Service client introduction.
	serviceModes = "+ioSq"
	// fallbackNickIP is the base64 encoding of 127.0.0.1, used when a
	// client's configured host is not a literal IP address.
	fallbackNickIP = "fwAAAQ=="
)

// Capabilities are the PROTOCTL-negotiated features of this link. Flags are
// monotonic: once PROTOCTL sets one, nothing in this package clears it.
type Capabilities struct {
	VHP    bool
	UMODE2 bool
	VL     bool
	SJOIN  bool
	SJOIN2 bool
	SJ3    bool
	TKLEXT bool
	NICKv2 bool
	NICKIP bool
}

// Snapshot renders the capability set as a name->bool map for logging.
func (c Capabilities) Snapshot() map[string]bool {
	return map[string]bool{
		"VHP": c.VHP, "UMODE2": c.UMODE2, "VL": c.VL,
		"SJOIN": c.SJOIN, "SJOIN2": c.SJOIN2, "SJ3": c.SJ3,
		"TKLEXT": c.TKLEXT, "NICKv2": c.NICKv2, "NICKIP": c.NICKIP,
	}
}

// Params is this engine's read-only view of the link's static
// configuration: exactly the fields the Unreal dialect needs, independent
// of how the caller loaded them.
type Params struct {
	ServerName              string
	Numeric                 uint16
	Description             string
	UplinkName              string
	OutboundPassword        string
	ExpectedInboundPassword string
	ServiceBot              protocol.ClientIdentity
	Channels                []string
}

// Unreal is the sole implementation of protocol.Engine for this link.
type Unreal struct {
	params Params
	caps   Capabilities
	synced bool

	// now is substitutable in tests so NICK timestamps are deterministic.
	now func() time.Time
}

// New constructs an Unreal engine for the given link parameters.
func New(params Params) *Unreal {
	return &Unreal{params: params, now: time.Now}
}

// Capabilities returns the capability set negotiated so far.
func (e *Unreal) Capabilities() Capabilities {
	return e.caps
}

// Snapshot renders the negotiated capability set as a name->bool map, for
// callers (such as the link driver) that want to log it without importing
// this package's concrete Capabilities type.
func (e *Unreal) Snapshot() map[string]bool {
	return e.caps.Snapshot()
}

// Synced reports whether EOS has been received from the uplink.
func (e *Unreal) Synced() bool {
	return e.synced
}

// IntroduceMsg builds the three-line handshake burst sent immediately
// after connecting.
func (e *Unreal) IntroduceMsg() string {
	return fmt.Sprintf(
		"PASS :%s\r\n"+
			"PROTOCTL VHP UMODE2 VL SJOIN SJOIN2 SJ3 TKLEXT NICKv2 NICKIP\r\n"+
			"SERVER %s 1 :%s-%s-%d %s\r\n",
		e.params.OutboundPassword,
		e.params.ServerName, protoVersion, compileFlags, e.params.Numeric,
		e.params.Description,
	)
}

// IntroduceClientMsg builds a NICK line introducing a synthetic client.
// The hop count is fixed at 1; the trailing literal 0 is the legacy
// service-type field Unreal still expects on this message.
func (e *Unreal) IntroduceClientMsg(kind protocol.ClientKind, identity protocol.ClientIdentity) string {
	msg := fmt.Sprintf("NICK %s 1 %d %s %s %s 0",
		identity.Nick, e.now().Unix(), identity.Ident, identity.Host, e.params.ServerName)

	if e.caps.NICKv2 {
		umodes := userModes
		if kind == protocol.Service {
			umodes = serviceModes
		}
		msg += fmt.Sprintf(" %s %s", umodes, identity.Host)

		if e.caps.NICKIP {
			msg += " " + clientIP(identity.Host)
		}
	}

	msg += " :" + identity.Gecos
	return msg
}

// clientIP derives the base64 NICKIP suffix from a client's configured
// host. The engine performs no DNS resolution (that belongs to the
// transport layer, not the state machine), so only literal IP addresses
// are honored; anything else falls back to the loopback literal.
func clientIP(host string) string {
	ip := net.ParseIP(host)
	if ip == nil {
		return fallbackNickIP
	}
	if v4 := ip.To4(); v4 != nil {
		return base64.StdEncoding.EncodeToString(v4)
	}
	return base64.StdEncoding.EncodeToString(ip.To16())
}

// Handle dispatches an inbound message to its handler by command name.
// Unrecognized commands are accepted silently, both during and after the
// handshake.
func (e *Unreal) Handle(msg irc.Message) (string, *protocol.Error) {
	switch msg.Command {
	case "PING":
		return protocol.PingReply(e.params.ServerName, e.params.UplinkName, msg.Params)
	case "PASS":
		return e.handlePass(msg)
	case "PROTOCTL":
		return e.handleProtoctl(msg)
	case "SERVER":
		return e.handleServer(msg)
	case "EOS":
		return e.handleEOS(msg)
	default:
		return "", nil
	}
}

func (e *Unreal) handlePass(msg irc.Message) (string, *protocol.Error) {
	if e.synced {
		return "", &protocol.Error{
			Kind: protocol.InvalidContext,
			Desc: "Got PASS on an already-established link",
		}
	}
	if len(msg.Params) == 0 {
		return "", &protocol.Error{Kind: protocol.Fatal, Desc: "Empty PASS command"}
	}
	if msg.Params[0] != e.params.ExpectedInboundPassword {
		return "", &protocol.Error{
			Kind:   protocol.Fatal,
			Desc:   "Wrong password received",
			Detail: "PASS :" + msg.Params[0],
		}
	}
	return "", nil
}

func (e *Unreal) handleProtoctl(msg irc.Message) (string, *protocol.Error) {
	if e.synced {
		return "", &protocol.Error{
			Kind: protocol.InvalidContext,
			Desc: "Got PROTOCTL on an already-established link",
		}
	}
	if len(msg.Params) == 0 {
		return "", &protocol.Error{Kind: protocol.MissingParameter, Desc: "Empty PROTOCTL command"}
	}

	for _, token := range msg.Params {
		switch token {
		case "VHP":
			e.caps.VHP = true
		case "UMODE2":
			e.caps.UMODE2 = true
		case "VL":
			e.caps.VL = true
		case "SJOIN":
			e.caps.SJOIN = true
		case "SJOIN2":
			e.caps.SJOIN2 = true
		case "SJ3":
			e.caps.SJ3 = true
		case "TKL":
			e.caps.TKLEXT = true
		case "NICKv2":
			e.caps.NICKv2 = true
		case "NICKIP":
			e.caps.NICKIP = true
		}
	}
	return "", nil
}

func (e *Unreal) handleServer(msg irc.Message) (string, *protocol.Error) {
	if msg.Source != "" {
		// A hop-count > 1 SERVER introduces a server behind the uplink;
		// this link only cares about its immediate uplink.
		return "", nil
	}

	if len(msg.Params) < 3 {
		return "", &protocol.Error{Kind: protocol.Fatal, Desc: "Invalid SERVER message"}
	}

	if msg.Params[0] != e.params.UplinkName {
		return "", &protocol.Error{
			Kind:   protocol.Fatal,
			Desc:   "Wrong uplink server name",
			Detail: fmt.Sprintf("Got %s, expected %s", msg.Params[0], e.params.UplinkName),
		}
	}

	if !strings.HasPrefix(msg.Params[2], protoVersion) {
		return "", &protocol.Error{
			Kind:   protocol.ProtocolVersionMismatch,
			Desc:   "Different protocol version",
			Detail: fmt.Sprintf("Uplink implements %s, we implement %s", msg.Params[2], protoVersion),
		}
	}

	return "", nil
}

func (e *Unreal) handleEOS(msg irc.Message) (string, *protocol.Error) {
	if msg.Source != e.params.UplinkName {
		// EOS from a downstream server behind the uplink; not our concern.
		return "", nil
	}

	if e.synced {
		return "", &protocol.Error{
			Kind: protocol.InvalidContext,
			Desc: "Got EOS on an already-established link",
		}
	}
	e.synced = true

	var burst strings.Builder
	burst.WriteString(e.IntroduceClientMsg(protocol.Service, e.params.ServiceBot))
	burst.WriteString("\r\n")
	for _, channel := range e.params.Channels {
		burst.WriteString(":" + e.params.ServiceBot.Nick + " JOIN " + channel + "\r\n")
	}
	burst.WriteString("EOS\r\n")

	return burst.String(), nil
}
