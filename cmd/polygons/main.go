package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-polygons/internal/fetch"
	"github.com/joeblew999/plat-polygons/internal/observability"
	"github.com/joeblew999/plat-polygons/internal/server"
)

const version = "0.1.0"

// Options defines all CLI flags and env vars for the polygons server.
// Flags: --host, --port, --data-dir, --endpoint, --request-id, --timeout-ms,
// --projection, --lang, --mirror, --templates
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host       string `doc:"Host to bind to" default:"0.0.0.0"`
	Port       int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir    string `doc:"Directory for persisted settings" default:".data"`
	Endpoint   string `doc:"Base URL of the polygon directory script" default:"https://script.google.com/macros/s"`
	RequestID  string `doc:"Polygon directory script ID" default:"AKfycbzxG8NJKkIUXaSIDGuSooG9dmNrQzHbgWMwx4kScv0b"`
	TimeoutMs  int    `doc:"Directory request timeout in milliseconds" default:"10000"`
	Projection string `doc:"Display projection of the overlay" default:"EPSG:900913"`
	Lang       string `doc:"Panel language (en, uk, ru)" default:"en"`
	Mirror     bool   `doc:"Keep an in-memory SQL copy of the loaded polygons" default:"true"`
	Templates  string `doc:"Directory of panel fragments to use instead of the built-in ones"`
}

func newServer(opts *Options, logger *zap.Logger, notifier fetch.Notifier) (*server.Server, error) {
	return server.New(server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		DataDir:    opts.DataDir,
		Endpoint:   opts.Endpoint,
		RequestID:  opts.RequestID,
		Timeout:    time.Duration(opts.TimeoutMs) * time.Millisecond,
		Projection: opts.Projection,
		Lang:       opts.Lang,
		Version:    version,
		Mirror:     opts.Mirror,
		Templates:  opts.Templates,
		Logger:     logger,
		Notifier:   notifier,
	})
}

func newLogger() *zap.Logger {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return zap.NewNop()
	}
	return logger
}

func main() {
	_ = godotenv.Load(".env")
	logger := newLogger()
	defer logger.Sync()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		srv, err := newServer(opts, logger, nil)
		if err != nil {
			log.Fatalf("Server setup failed: %v", err)
		}
		addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
		httpServer := &http.Server{Addr: addr, Handler: srv}

		hooks.OnStart(func() {
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-polygons server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Source:  %s\n", srv.Controller().URL())
			fmt.Println()
			fmt.Printf("  Panel:   %s/api/v1/panel\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			go func() {
				if err := srv.Start(context.Background()); err != nil {
					logger.Warn("startup load failed", zap.Error(err))
				}
			}()

			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
			if err := srv.Close(); err != nil {
				logger.Error("shutdown", zap.Error(err))
			}
		})
	})

	cli.Root().Use = "polygons"
	cli.Root().Short = "MapRaid polygon overlay server"
	cli.Root().Version = version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := exportSpec(opts, os.Stdout, useYAML); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// load subcommand: one-shot fetch and render, printing a summary
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Fetch the polygon directory once and print what was rendered",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.Mirror = false
			srv, err := newServer(opts, logger, &terminalNotifier{out: os.Stderr})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			snap, err := srv.Controller().Load(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
				os.Exit(1)
			}

			useYAML, _ := cmd.Flags().GetBool("yaml")
			geo, _ := cmd.Flags().GetBool("geojson")
			var out any = summarize(snap, srv.Controller().Entries())
			if geo {
				out = srv.Layer().FeatureCollection()
				useYAML = false
			}
			if err := printValue(os.Stdout, out, useYAML); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	loadCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	loadCmd.Flags().Bool("geojson", false, "Print the rendered features as GeoJSON")
	cli.Root().AddCommand(loadCmd)

	cli.Root().AddCommand(newHashCmd())

	cli.Run()
}

func printValue(w io.Writer, v any, useYAML bool) error {
	var output []byte
	var err error
	if useYAML {
		output, err = yaml.Marshal(v)
	} else {
		output, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// exportSpec writes the OpenAPI document. The server is built only to
// register routes; it is not closed, so no settings are written.
func exportSpec(opts *Options, w io.Writer, useYAML bool) error {
	o := *opts
	o.Mirror = false
	srv, err := newServer(&o, zap.NewNop(), nil)
	if err != nil {
		return err
	}
	if err := printValue(w, srv.OpenAPI(), useYAML); err != nil {
		return fmt.Errorf("marshaling spec: %w", err)
	}
	return nil
}
