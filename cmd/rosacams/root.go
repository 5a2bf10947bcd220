package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/rosakhutor-webcams/internal/config"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/cache"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/logging"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/metrics"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/scraper"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/transport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries state shared by all subcommands.
type app struct {
	cfg        config.Config
	logger     zerolog.Logger
	out        io.Writer
	jsonOutput bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "rosacams",
		Short: "List Rosa Khutor webcams and their HLS stream URLs",
		Long: `Pages through the Rosa Khutor webcam listing, resolves every camera's
widget token into an HLS stream URL and optionally fetches the widget JSON.

Every flag can also be set through a ROSACAMS_* environment variable,
e.g. ROSACAMS_CONN_LIMIT=3.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			logging.Setup(cfg.Logging())
			a.logger = logging.NewLogger("cli")
			return nil
		},
	}

	config.RegisterFlags(root.PersistentFlags())
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output one JSON object per camera")

	root.AddCommand(newListCmd(a), newPageCmd(a))
	return root
}

// session is one wired scraper plus everything it owns.
type session struct {
	scraper *scraper.Scraper
	close   func()
}

// open wires transport, optional cache and optional metrics server and
// returns a scraper starting at startPage.
func (a *app) open(ctx context.Context, startPage int) (*session, error) {
	tcfg := a.cfg.Transport()
	var closers []func()

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if a.cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.RedisAddr, err)
		}
		closers = append(closers, func() { rdb.Close() })
		tcfg.Cache = cache.NewManager(rdb)
		a.logger.Info().Str("addr", a.cfg.RedisAddr).Msg("Response cache enabled")
	}

	if a.cfg.MetricsAddr != "" {
		mctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := metrics.Serve(mctx, a.cfg.MetricsAddr, a.logger); err != nil {
				a.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		closers = append(closers, func() { cancel(); <-done })
	}

	client, err := transport.New(tcfg)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, func() { client.Close() })

	s, err := scraper.New(client, a.cfg.Scraper(startPage))
	if err != nil {
		closeAll()
		return nil, err
	}

	return &session{scraper: s, close: closeAll}, nil
}

func (a *app) printCameras(cameras []scraper.Camera) error {
	if a.jsonOutput {
		enc := json.NewEncoder(a.out)
		for _, cam := range cameras {
			if err := enc.Encode(cam); err != nil {
				return fmt.Errorf("encode camera: %w", err)
			}
		}
		return nil
	}

	for _, cam := range cameras {
		fmt.Fprintln(a.out, cam.Name)
		fmt.Fprintln(a.out, cam.StreamURL)
		if cam.DetailJSON != "" {
			fmt.Fprintln(a.out, cam.DetailJSON)
		}
	}
	return nil
}
