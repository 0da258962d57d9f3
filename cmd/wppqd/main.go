package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wppq/internal/daemon"
	"github.com/matheus3301/wppq/internal/session"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.wppq/config.toml)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	params := daemon.Params{
		SessionName: sessionName,
		ConfigPath:  *configFlag,
		QRWriter:    os.Stderr,
	}
	app := fx.New(
		daemon.Module(params),
		fx.StopTimeout(daemon.StopTimeout(params)),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
	)

	app.Run()
}
