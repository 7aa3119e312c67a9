package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
	"github.com/QuickMythril/qortal-mcp-server/internal/router"
	"github.com/QuickMythril/qortal-mcp-server/internal/tools"
)

// Version and build information - set by linker flags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	tickEvery = time.Second
	barMax    = 60
	glyphRPS  = 10.0
	emaAlpha  = 0.35
)

const shutdownTimeout = 30 * time.Second

// animate prints a one-line throughput gauge until the returned func is called.
func animate() func() {
	tick := time.NewTicker(tickEvery)
	done := make(chan struct{})

	go func() {
		defer tick.Stop()
		var last uint64
		var ema float64
		for {
			select {
			case <-tick.C:
				cur := router.TotalReq.Load()
				delta := float64(cur - last)
				last = cur

				rps := delta / tickEvery.Seconds()
				if ema == 0 {
					ema = rps
				} else {
					ema = emaAlpha*rps + (1-emaAlpha)*ema
				}
				n := min(max(int(ema/glyphRPS+0.5), 4), barMax)
				bar := "[" + strings.Repeat("=", n) + ">"
				fmt.Fprintf(os.Stdout, "\r%-64s %s rps %s total", bar, humanize.SI(rps, ""), humanize.Comma(int64(cur)))
			case <-done:
				return
			}
		}
	}()

	return func() { close(done); fmt.Fprintln(os.Stdout) }
}

func setupLogger(cfg backend.ServerConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(cfg.LogFormat, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &log.Logger
}

func main() {
	showVersion := flag.Bool("version", false, "show version information")
	cfgPath := flag.String("c", "config.toml", "path to config.toml file")
	envPath := flag.String("e", ".env", "path to .env file")
	stats := flag.Bool("stats", false, "print a live throughput line")
	flag.Parse()

	if *showVersion {
		fmt.Printf("qortal-mcp version %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	if _, err := os.Stat(*envPath); err == nil {
		if err := godotenv.Load(*envPath); err != nil {
			log.Fatal().Err(err).Str("path", *envPath).Msg("loading .env file")
		}
	}

	cfg, err := backend.ParseConfig(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *cfgPath).Msg("loading config")
	}
	setupLogger(cfg.Server)

	client, err := backend.NewClient(cfg.ClientConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("creating qortal client")
	}

	nodes := 1
	if p := client.Pool(); p != nil {
		nodes = p.Len()
	}
	log.Info().
		Str("version", Version).
		Str("node", client.BaseURL()).
		Int("nodes", nodes).
		Bool("api_key", cfg.Node.APIKey != "").
		Float64("qps", cfg.RateLimit.PerSecond).
		Msg("starting qortal mcp server")

	limiter := backend.NewKeyedLimiter(cfg.RateLimit)
	registry := tools.NewRegistry(client, cfg.Limits)
	gateway := router.NewGateway(registry, limiter, router.NewMetrics(), Version)
	server := router.NewRouter(cfg.Server, gateway)

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		client.Close()
		log.Fatal().Err(err).Str("listen", cfg.Server.Listen).Msg("binding listener")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *stats {
		stop := animate()
		defer stop()
	}

	log.Info().Str("listen", ln.Addr().String()).Int("tools", registry.Len()).Msg("listening")
	if err := serve(server, ln, client, sigChan); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

// serve runs server on ln until a signal arrives, then drains in-flight
// requests before closing client. client is closed exactly once on every
// path.
func serve(server *http.Server, ln net.Listener, client io.Closer, sigs <-chan os.Signal) error {
	done := make(chan struct{})
	stop := make(chan struct{})

	go func() {
		defer close(done)
		select {
		case sig := <-sigs:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
		case <-stop:
			return
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during server shutdown")
		}
	}()

	err := server.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		close(stop)
	}
	<-done

	client.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
