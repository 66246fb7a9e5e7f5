// Command dotcloud-rest sends one request to the dotCloud REST API and prints the JSON response.
//
//	dotcloud-rest [flags] METHOD PATH [JSON]
//
// Configuration is read from the optional config file, the .env file and the DOTCLOUD_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/dotcloud/go-client/pkg/client"
	"github.com/dotcloud/go-client/pkg/client/trace"
	"github.com/dotcloud/go-client/pkg/config"
	"github.com/dotcloud/go-client/pkg/telemetry"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const telemetryShutdownTimeout = 5 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

type flags struct {
	configFile string
	envFile    string
	debug      bool
	dump       bool
	anonymous  bool
	stream     bool
	otlp       string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, client.New())
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, base client.Client) int {
	var f flags
	fs := pflag.NewFlagSet("dotcloud-rest", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&f.configFile, "config", "c", "", "config file, YAML or JSON")
	fs.StringVar(&f.envFile, "env-file", "", ".env file with DOTCLOUD_* variables")
	fs.BoolVar(&f.debug, "debug", false, "log each request and response")
	fs.BoolVar(&f.dump, "dump", false, "dump raw HTTP requests and responses to stderr")
	fs.BoolVar(&f.anonymous, "anonymous", false, "send the request without credentials")
	fs.BoolVar(&f.stream, "stream", false, "read a stream of JSON values, GET only")
	fs.StringVar(&f.otlp, "otlp-endpoint", "", `export spans and metrics to an OTLP HTTP collector "host:port"`)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dotcloud-rest [flags] METHOD PATH [JSON]\n\nFlags:\n%s", fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		fs.Usage()
		return exitUsage
	}
	method := strings.ToUpper(fs.Arg(0))
	path := fs.Arg(1)

	var payload any
	if fs.NArg() == 3 {
		if !json.Valid([]byte(fs.Arg(2))) {
			fmt.Fprintln(stderr, "Error: request body is not valid JSON")
			return exitUsage
		}
		payload = jsoniter.RawMessage(fs.Arg(2))
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: f.configFile, EnvFile: f.envFile})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return exitError
	}
	if f.debug {
		cfg.Debug = true
	}
	if f.otlp != "" {
		cfg.Telemetry.Endpoint = f.otlp
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return exitError
		}
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).With().Timestamp().Logger()
	c, err := cfg.NewClient(ctx, base.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return exitError
	}
	if f.dump {
		c = c.AndTrace(trace.DumpTracer(stderr))
	}
	if cfg.Telemetry.Enabled() {
		providers, err := telemetry.Setup(ctx, cfg.Telemetry)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return exitError
		}
		defer func() {
			// The command context may be already canceled, the data is flushed anyway
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(stderr, "Warning: %s\n", err)
			}
		}()
		c = c.AndTrace(providers.TraceFactory())
	}
	if !f.anonymous {
		if err := c.RequireAuthentication(); err != nil {
			fmt.Fprintf(stderr, "Error: %s, set credentials or use --anonymous\n", err)
			return exitError
		}
	}

	if err := send(ctx, c, f, method, path, payload, stdout); err != nil {
		printError(stderr, err)
		return exitError
	}
	return exitOK
}

func send(ctx context.Context, c client.Client, f flags, method, path string, payload any, stdout io.Writer) error {
	if f.stream {
		if method != http.MethodGet {
			return fmt.Errorf(`--stream is supported only by GET, found "%s"`, method)
		}
		return stream(ctx, c, path, stdout)
	}

	var res client.Response
	var err error
	switch method {
	case http.MethodGet:
		res, err = c.Get(ctx, path)
	case http.MethodPost:
		res, err = c.Post(ctx, path, payload)
	case http.MethodPut:
		res, err = c.Put(ctx, path, payload)
	case http.MethodPatch:
		res, err = c.Patch(ctx, path, payload)
	case http.MethodDelete:
		res, err = c.Delete(ctx, path)
	default:
		return fmt.Errorf(`unsupported method "%s"`, method)
	}
	if err != nil {
		return err
	}
	if res.Body() == nil {
		return nil
	}
	return printJSON(stdout, res.Body())
}

func stream(ctx context.Context, c client.Client, path string, stdout io.Writer) error {
	res, err := c.GetStreaming(ctx, path)
	if err != nil {
		return err
	}
	defer res.Close()

	for {
		var item any
		if err := res.Next(&item); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		if err := printJSON(stdout, item); err != nil {
			return err
		}
	}
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func printError(w io.Writer, err error) {
	var apiErr *client.RESTAPIError
	if !errors.As(err, &apiErr) {
		fmt.Fprintf(w, "Error: %s\n", err)
		return
	}
	fmt.Fprintf(w, "Error (%d): %s\n", apiErr.Code, apiErr.Description)
	if apiErr.TraceID != "" {
		fmt.Fprintf(w, "Trace ID: %s\n", apiErr.TraceID)
	}
}
