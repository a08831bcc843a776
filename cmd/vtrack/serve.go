package main

import (
	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/config"
	"github.com/roadeye/vtrack/logger"
	"github.com/roadeye/vtrack/perf"
	"github.com/roadeye/vtrack/server"
	"github.com/roadeye/vtrack/video"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "browser viewer with playback controls",
		Flags: append(modelFlags(0.3),
			&cli.StringFlag{
				Name:  flagSource,
				Usage: "video file or camera index to open on start",
			},
			&cli.StringFlag{
				Name:  flagAddr,
				Value: ":8080",
				Usage: "listen address",
			},
		),
		Action: serve,
	}
}

func serve(c *cli.Context) error {

	cfg, err := loadConfig(c)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	log := logger.Log()

	det := openDetector(cfg, log)
	defer det.Close()

	monitor, err := perf.NewMonitor(perf.NewSampler(cfg.Perf.Window), cfg.Targets(), log)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	opts, err := cfg.PipelineOptions(det.Classes(), monitor, log)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	pipe, err := vtrack.NewPipeline(det, opts)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	defer pipe.Close()

	player := video.NewPlayer(pipe, video.PlayerOptions{
		Loop:        cfg.Server.Loop,
		Realtime:    cfg.Server.Realtime,
		JPEGQuality: cfg.Server.JPEGQuality,
		Log:         log,
	})
	defer player.Close()

	// a source given on the command line starts playing straight away
	if c.IsSet(flagSource) || (c.String(flagConfig) != "" && cfg.Source != "") {
		if _, err := player.Open(cfg.Source); err != nil {
			log.Error("error opening source", zap.String("source", cfg.Source), zap.Error(err))
		} else {
			player.Play()
		}
	}

	srv := server.New(player, server.Options{
		Addr:           cfg.Server.Addr,
		Monitor:        monitor,
		SampleInterval: cfg.Perf.SampleInterval,
		Log:            log,
	})

	g, ctx := errgroup.WithContext(c.Context)

	g.Go(func() error {
		return srv.Run(ctx)
	})

	if path := c.String(flagConfig); path != "" {
		g.Go(func() error {
			return config.Watch(ctx, path, log, func(next config.Config) {
				conf := next.Detection.Confidence
				set := server.Settings{
					Confidence: &conf,
					Classes:    next.Detection.Classes,
				}

				if zn := next.Detection.Zone; len(zn.Points) > 0 {
					set.Zone = &server.ZoneSettings{Points: zn.Points, Threshold: &zn.Threshold}
				}

				if err := srv.Apply(set); err != nil {
					log.Warn("config reload rejected", zap.Error(err))
				}
			})
		})
	}

	if err := g.Wait(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	return nil
}
