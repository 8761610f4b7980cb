/*
Package link owns the transport and the protocol engine for one uplink
connection and drives the read -> decode -> parse -> dispatch -> reply
loop described by the project's link pipeline.
*/
package link

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/inconshreveable/log15.v2"

	"github.com/mindforge-irc/linksvc/config"
	"github.com/mindforge-irc/linksvc/inet"
	"github.com/mindforge-irc/linksvc/irc"
	"github.com/mindforge-irc/linksvc/protocol"
)

// capabilitiesReporter is implemented by engines that can describe their
// negotiated capabilities for logging. It is optional: Driver works with
// any protocol.Engine, but logs a richer sync message when available.
type capabilitiesReporter interface {
	Snapshot() map[string]bool
}

// Driver owns one (transport, engine, configuration) triple for the
// lifetime of a single link.
type Driver struct {
	cfg    *config.Config
	engine protocol.Engine
	log    log15.Logger

	conn      *inet.Conn
	closeOnce sync.Once
}

// New constructs a Driver. cfg and engine must already exist; engine
// dialect selection and config loading are the caller's concern. If logger
// is nil, a default log15 logger is used.
func New(cfg *config.Config, engine protocol.Engine, logger log15.Logger) *Driver {
	if logger == nil {
		logger = log15.New()
	}
	return &Driver{cfg: cfg, engine: engine, log: logger}
}

// Start connects the transport per the configuration and sends the
// engine's introduction burst.
func (d *Driver) Start() error {
	conn, err := inet.Connect(inet.DialOptions{
		Address:      d.cfg.UplinkAddress,
		Port:         d.cfg.UplinkPort,
		UseTLS:       d.cfg.UseTLS,
		NoVerifyCert: d.cfg.NoVerifyCert,
		CAFile:       d.cfg.CAFile,
		CharsetLabel: d.cfg.CharsetLabel,
	})
	if err != nil {
		return errors.Wrap(err, "link: failed to connect to uplink")
	}
	d.conn = conn

	intro := d.engine.IntroduceMsg()
	if err := d.conn.WriteLine(intro); err != nil {
		conn.Close()
		return errors.Wrap(err, "link: failed to send introduction burst")
	}
	d.logOutput(intro)

	d.log.Info("connected to uplink",
		"uplink", d.cfg.UplinkName, "address", d.cfg.UplinkAddress, "tls", d.cfg.UseTLS)
	return nil
}

// Run blocks, reading one line per iteration, delivering it to observe
// (if non-nil) and to the engine, and writing back whatever reply the
// engine produces before the next line is read. It returns when the
// transport errors, a line fails to parse, or the engine reports a fatal
// error.
func (d *Driver) Run(observe func(irc.Message)) error {
	for {
		line, err := d.conn.ReadLine()
		if err != nil {
			d.log.Error("connection reset by peer", "err", err)
			return err
		}
		d.logInput(line)

		msg, err := irc.Parse(line)
		if err != nil {
			d.log.Error("Invalid IRC Message", "line", strings.TrimRight(line, "\r\n"), "err", err)
			return err
		}

		if observe != nil {
			observe(msg)
		}

		wasSynced := d.engine.Synced()

		reply, perr := d.engine.Handle(msg)
		if perr != nil {
			if perr.Kind.Closes() {
				d.log.Error(perr.Error())
				return perr
			}
			d.log.Warn(perr.Error())
			continue
		}

		if reply != "" {
			if err := d.conn.WriteLine(reply); err != nil {
				d.log.Error("write failed", "err", err)
				return err
			}
			d.logOutput(reply)
		}

		if !wasSynced && d.engine.Synced() {
			d.logSynced()
		}
	}
}

// Close closes the underlying transport. Safe to call more than once and
// from a different goroutine than Run, which will observe the resulting
// read error and return.
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.conn != nil {
			err = d.conn.Close()
		}
	})
	return err
}

func (d *Driver) logInput(line string) {
	d.log.Debug("[RAW INPUT]", "line", strings.TrimRight(line, "\r\n"))
}

func (d *Driver) logOutput(line string) {
	for _, l := range strings.Split(strings.TrimRight(line, "\r\n"), "\r\n") {
		d.log.Debug("[RAW OUTPUT]", "line", l)
	}
}

func (d *Driver) logSynced() {
	if reporter, ok := d.engine.(capabilitiesReporter); ok {
		d.log.Info("link synced", "capabilities", reporter.Snapshot())
		return
	}
	d.log.Info("link synced")
}
