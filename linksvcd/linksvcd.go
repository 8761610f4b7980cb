// Command linksvcd connects a single services process to its uplink and
// keeps the link running until the connection drops or the process is
// signaled to stop.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/inconshreveable/log15.v2"

	"github.com/mindforge-irc/linksvc/config"
	"github.com/mindforge-irc/linksvc/link"
	"github.com/mindforge-irc/linksvc/protocol"
	"github.com/mindforge-irc/linksvc/protocol/unreal"
)

var usage = `Usage: linksvcd [-loglevel level] <config.toml>`

func main() {
	logLevel := flag.String("loglevel", "info", "log level: crit, error, warn, info, debug")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(flag.Arg(0), log); err != nil {
		log.Crit("linksvcd exiting", "err", err)
		os.Exit(1)
	}
}

func newLogger(levelName string) (log15.Logger, error) {
	level, err := log15.LvlFromString(levelName)
	if err != nil {
		return nil, fmt.Errorf("linksvcd: %w", err)
	}

	log := log15.New()
	log.SetHandler(log15.LvlFilterHandler(level,
		log15.StreamHandler(os.Stdout, log15.TerminalFormat())))
	return log, nil
}

func run(configPath string, log log15.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	engine := unreal.New(unreal.Params{
		ServerName:              cfg.ServerName,
		Numeric:                 cfg.Numeric,
		Description:             cfg.Description,
		UplinkName:              cfg.UplinkName,
		OutboundPassword:        cfg.OutboundPassword,
		ExpectedInboundPassword: cfg.ExpectedInboundPassword,
		ServiceBot: protocol.ClientIdentity{
			Nick:  cfg.ServiceBot.Nick,
			Ident: cfg.ServiceBot.Ident,
			Host:  cfg.ServiceBot.Host,
			Gecos: cfg.ServiceBot.Gecos,
		},
		Channels: cfg.ServiceBot.Channels,
	})

	driver := link.New(cfg, engine, log)
	if err := driver.Start(); err != nil {
		return err
	}
	defer driver.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- driver.Run(nil) }()

	select {
	case err := <-runErr:
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig)
		driver.Close()
		<-runErr
		return nil
	}
}
