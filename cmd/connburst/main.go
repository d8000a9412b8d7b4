package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/common/version"
	"github.com/spf13/afero"
	_ "go.uber.org/automaxprocs"
	"gopkg.in/alecthomas/kingpin.v2"

	burstcontext "github.com/grafana/connburst/pkg/burst/context"
	"github.com/grafana/connburst/pkg/util"
	_ "github.com/grafana/connburst/pkg/util/build"
)

var cfg struct {
	verbose   bool
	logFormat string
}

var consoleOutput = os.Stderr

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(runMain(ctx, afero.NewOsFs(), os.Args[1:], os.Stdout))
}

func runMain(ctx context.Context, fs afero.Fs, args []string, stdout io.Writer) int {
	ctx = withOutput(ctx, stdout)

	configPath, expandEnv := configFileFromArgs(args, os.Getenv)
	fileCfg, err := loadConfig(fs, configPath, expandEnv)
	if err != nil {
		return checkError(err)
	}

	app := kingpin.New(filepath.Base(os.Args[0]), "Opens a burst of concurrent TCP connections, sends one HTTP/1.1 request on each and reports every outcome.").UsageWriter(stdout)
	app.Version(version.Print("connburst"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)
	app.Flag("log.format", "Log format: logfmt or json.").Default(util.LogFormatLogfmt).EnumVar(&cfg.logFormat, util.LogFormatLogfmt, util.LogFormatJSON)

	runCmd := app.Command("run", "Run a connection burst against the target and report the results.").Default()
	addConfigFileParams(runCmd, configPath, expandEnv)
	runParams := addRunParams(runCmd, &fileCfg)

	requestCmd := app.Command("request", "Print the request payload that run would send.")
	addConfigFileParams(requestCmd, configPath, expandEnv)
	requestParams := addRequestParams(requestCmd, &fileCfg)

	// parse command line arguments
	parsedCmd, err := app.Parse(args)
	if err != nil {
		return checkError(errors.Wrap(err, "parsing arguments"))
	}

	lvl := "info"
	if cfg.verbose {
		lvl = "debug"
	}
	logger := util.NewLogger(consoleOutput, cfg.logFormat, lvl)
	ctx = burstcontext.WithLogger(ctx, logger)

	switch parsedCmd {
	case runCmd.FullCommand():
		return checkError(run(ctx, fs, runParams))
	case requestCmd.FullCommand():
		return checkError(printRequest(ctx, fs, requestParams))
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
		return 1
	}
}

func checkError(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errConnectionsFailed):
		// Every failure was already reported.
	default:
		fmt.Fprintf(consoleOutput, "error: %v\n", err)
	}
	return 1
}

func printRequest(ctx context.Context, fs afero.Fs, params *requestParams) error {
	payload, err := params.payload(fs)
	if err != nil {
		return err
	}
	_, err = output(ctx).Write(payload)
	return err
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
