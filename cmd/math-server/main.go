package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/core/mainboilerplate"

	"github.com/estuary/asyncgrpc"
)

const iniFilename = "math-server.ini"

// Config is the top-level configuration object of the Math server.
var Config = new(struct {
	Math struct {
		Address      string `long:"address" env:"ADDRESS" default:"localhost:50051" description:"Address to bind the Math service"`
		GrpcThreads  int    `long:"grpc.threads" env:"GRPC_THREADS" default:"2" description:"Number of completion queues and driver threads"`
		EventThreads int    `long:"event.threads" env:"EVENT_THREADS" default:"2" description:"Number of event queues and handler threads"`
		Increment    int32  `long:"increment" env:"INCREMENT" default:"10" description:"Additional increment applied per GetSum request"`
		Tracing      bool   `long:"tracing" env:"TRACING" description:"Enable per-RPC trace spans"`
	} `group:"Math" namespace:"math" env-namespace:"MATH"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

type cmdServe struct{}

func (cmdServe) Execute(_ []string) error {
	defer mbp.InitDiagnosticsAndRecover(Config.Diagnostics)()
	mbp.InitLog(Config.Log)

	log.WithFields(log.Fields{
		"config":    Config,
		"buildDate": mbp.BuildDate,
	}).Info("math-server configuration")

	var builder = asyncgrpc.NewServerBuilder().
		SetServerAddress(Config.Math.Address).
		SetNumGrpcThreads(Config.Math.GrpcThreads).
		SetNumEventThreads(Config.Math.EventThreads).
		SetTracingEnabled(Config.Math.Tracing)
	registerMathService(builder)

	var server, err = builder.Build()
	mbp.Must(err, "building server")

	server.SetExecutionContext(asyncgrpc.NewExecutionContext(&mathContext{
		additionalIncrement: Config.Math.Increment,
	}))
	mbp.Must(server.Start(), "starting server")

	log.WithField("endpoint", server.Endpoint()).Info("serving Math")

	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	var sig = <-signalCh
	log.WithField("signal", sig).Info("caught signal")

	server.Shutdown()
	log.Info("goodbye")
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve the Math service", `
Serve the example Math service with the provided configuration, until
signaled to exit (via SIGTERM).
`, &cmdServe{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
