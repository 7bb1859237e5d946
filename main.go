package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/pdok/tilesieve/config"
	"github.com/pdok/tilesieve/logging"
	"github.com/pdok/tilesieve/optimize"
	"github.com/pdok/tilesieve/processing"
	"github.com/pdok/tilesieve/processing/mbtiles"
	"github.com/pdok/tilesieve/report"
	"github.com/pdok/tilesieve/stats"
	"github.com/pdok/tilesieve/style"
)

const CONFIG string = `config`
const LOGLEVEL string = config.LogLevel
const PROGRESS string = config.Progress
const WORKERS string = config.Workers
const BATCHSIZE string = config.BatchSize
const STATS string = config.Stats
const FAST string = `fast`
const SAMPLE string = config.SampleFraction
const OUTPUT string = `output`
const FORMAT string = config.Format
const STRICT string = `strict`
const STYLE string = `style`
const OVERWRITE string = `overwrite`
const KEEPFAILED string = `keep-failed`

// flags whose value, when given, overrides the config
var configFlags = map[string]string{
	LOGLEVEL:  config.LogLevel,
	PROGRESS:  config.Progress,
	WORKERS:   config.Workers,
	BATCHSIZE: config.BatchSize,
	STATS:     config.Stats,
	SAMPLE:    config.SampleFraction,
	FORMAT:    config.Format,
}

func envVars(name string) []string {
	return []string{config.EnvPrefix + "_" + strcase.ToScreamingSnake(name)}
}

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "tilesieve"
	app.Usage = "Inspect MBTiles vector tilesets and strip what a style never draws"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    CONFIG,
			Aliases: []string{"c"},
			Usage:   "Config file (toml, yaml or json)",
			EnvVars: envVars(CONFIG),
		},
		&cli.StringFlag{
			Name:    LOGLEVEL,
			Usage:   "Log level: trace, debug, info, warn or error",
			Value:   "info",
			EnvVars: envVars(LOGLEVEL),
		},
		&cli.BoolFlag{
			Name:    PROGRESS,
			Usage:   "Show a progress bar on stderr",
			EnvVars: envVars(PROGRESS),
		},
		&cli.IntFlag{
			Name:    WORKERS,
			Aliases: []string{"w"},
			Usage:   "Number of tiles processed concurrently (default: number of CPUs)",
			EnvVars: envVars(WORKERS),
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "inspect",
			Usage:     "Report statistics of a tileset",
			ArgsUsage: "<path.mbtiles>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    STATS,
					Usage:   "Comma separated sections: summary, zooms, layers, geometry",
					Value:   "summary,zooms,layers,geometry",
					EnvVars: envVars(STATS),
				},
				&cli.BoolFlag{
					Name:    FAST,
					Usage:   "Visit a sample of the tiles and estimate the totals",
					EnvVars: envVars(FAST),
				},
				&cli.Float64Flag{
					Name:    SAMPLE,
					Usage:   "Share of the tiles visited with --fast, in (0,1]",
					Value:   0.1,
					EnvVars: envVars(SAMPLE),
				},
				&cli.StringFlag{
					Name:    OUTPUT,
					Aliases: []string{FORMAT},
					Usage:   "Output format: text or ndjson",
					Value:   string(report.Text),
					EnvVars: envVars(FORMAT),
				},
				&cli.BoolFlag{
					Name:    STRICT,
					Usage:   "Fail on the first tile that cannot be decoded",
					EnvVars: envVars(STRICT),
				},
			},
			Action: inspectAction,
		},
		{
			Name:      "optimize",
			Usage:     "Write a copy of a tileset without the layers and features a style never draws",
			ArgsUsage: "<path.mbtiles>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     STYLE,
					Aliases:  []string{"s"},
					Usage:    "Mapbox GL style document",
					Required: true,
					EnvVars:  envVars(STYLE),
				},
				&cli.StringFlag{
					Name:     OUTPUT,
					Aliases:  []string{"o"},
					Usage:    "Target MBTiles",
					Required: true,
					EnvVars:  envVars(OUTPUT),
				},
				&cli.BoolFlag{
					Name:    OVERWRITE,
					Usage:   "Overwrite the target MBTiles if it exists",
					EnvVars: envVars(OVERWRITE),
				},
				&cli.BoolFlag{
					Name:    STRICT,
					Usage:   "Fail on the first tile that cannot be decoded",
					EnvVars: envVars(STRICT),
				},
				&cli.BoolFlag{
					Name:    KEEPFAILED,
					Usage:   "Copy tiles that cannot be decoded unchanged",
					EnvVars: envVars(KEEPFAILED),
				},
				&cli.IntFlag{
					Name:    BATCHSIZE,
					Aliases: []string{"p"},
					Usage:   "How many tiles are written per transaction",
					Value:   processing.DefaultBatchSize,
					EnvVars: envVars(BATCHSIZE),
				},
				&cli.StringFlag{
					Name:    FORMAT,
					Usage:   "Report format: text or ndjson",
					Value:   string(report.Text),
					EnvVars: envVars(FORMAT),
				},
			},
			Action: optimizeAction,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setup merges the config file, environment and flags, and creates the run logger.
func setup(c *cli.Context) (*config.Config, logrus.FieldLogger, error) {
	v, err := config.New(c.String(CONFIG))
	if err != nil {
		return nil, nil, err
	}
	overrideFromFlags(c, v)
	cfg, err := config.Decode(v)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.WithRun(log), nil
}

func overrideFromFlags(c *cli.Context, v *viper.Viper) {
	for flag, key := range configFlags {
		if c.IsSet(flag) {
			v.Set(key, c.Value(flag))
		}
	}
	// --output is the format of inspect
	if c.Command.Name == "inspect" && c.IsSet(OUTPUT) {
		v.Set(config.Format, c.String(OUTPUT))
	}
}

func inputPath(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected one tileset path, got %d arguments", c.NArg())
	}
	return c.Args().First(), nil
}

// fail logs err and turns it into exit code 1.
func fail(log logrus.FieldLogger, err error) error {
	switch {
	case processing.IsCanceled(err):
		log.Error("interrupted")
	default:
		log.Error(err)
	}
	return cli.Exit("", 1)
}

func inspectAction(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	input, err := inputPath(c)
	if err != nil {
		return fail(log, err)
	}
	sections, err := stats.ParseSections(cfg.Stats)
	if err != nil {
		return fail(log, err)
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return fail(log, err)
	}

	source, err := mbtiles.Open(input)
	if err != nil {
		return fail(log, err)
	}
	defer source.Close()

	log.Infof("=== start inspecting %s ===", input)
	r, err := stats.Inspect(c.Context, source, sections, stats.Options{
		Sample:         c.Bool(FAST),
		SampleFraction: cfg.SampleFraction,
		Strict:         c.Bool(STRICT),
		Workers:        cfg.Workers,
		Progress:       cfg.Progress,
		Logger:         log,
	})
	if err != nil {
		return fail(log, err)
	}
	if err = report.WriteInspect(os.Stdout, format, r); err != nil {
		return fail(log, err)
	}
	log.Info("=== done inspecting ===")
	return nil
}

func optimizeAction(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	input, err := inputPath(c)
	if err != nil {
		return fail(log, err)
	}
	output := c.String(OUTPUT)
	if err = checkPaths(input, output); err != nil {
		return fail(log, err)
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return fail(log, err)
	}

	s, err := style.Load(c.String(STYLE))
	if err != nil {
		return fail(log, err)
	}
	for _, l := range s.Layers {
		if l.RawFilter != nil {
			log.Debugf("filter of style layer %s is not evaluated, its features are kept", l.ID)
		}
	}
	resolver := style.NewResolver(s.Layers)
	log.Infof("style %s draws %d source-layers", c.String(STYLE), len(resolver.SourceLayers()))

	source, err := mbtiles.Open(input)
	if err != nil {
		return fail(log, err)
	}
	defer source.Close()
	target, err := mbtiles.Create(output, c.Bool(OVERWRITE))
	if err != nil {
		return fail(log, err)
	}

	log.Infof("=== start optimizing %s into %s ===", input, output)
	r, runErr := optimize.Run(c.Context, source, target, resolver, optimize.Options{
		Strict:     c.Bool(STRICT),
		KeepFailed: c.Bool(KEEPFAILED),
		Workers:    cfg.Workers,
		BatchSize:  cfg.BatchSize,
		Progress:   cfg.Progress,
		Logger:     log,
	})
	if err = target.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if r != nil {
		if err = report.WriteOptimize(os.Stdout, format, r); err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return fail(log, runErr)
	}
	log.Info("=== done optimizing ===")
	return nil
}

// checkPaths refuses to write the output over the input.
func checkPaths(input, output string) error {
	in, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	if in == out {
		return fmt.Errorf("output %s is the input tileset", output)
	}
	inInfo, err := os.Stat(input)
	if err != nil {
		return err
	}
	outInfo, err := os.Stat(output)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	if os.SameFile(inInfo, outInfo) {
		return fmt.Errorf("output %s is the input tileset", output)
	}
	return nil
}
