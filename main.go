// Package main is the facedetect command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-facedetect/app"
	"github.com/nvr-ai/go-facedetect/config"
	"github.com/nvr-ai/go-facedetect/logging"
	"github.com/nvr-ai/go-facedetect/server"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	flagConfig   = "config"
	flagAddr     = "addr"
	flagDevice   = "device"
	flagImage    = "image"
	flagModel    = "model"
	flagLibrary  = "library"
	flagLogLevel = "log-level"
	flagPretty   = "pretty"

	shutdownTimeout = 5 * time.Second
)

func main() {
	cliApp := &cli.App{
		Name:            "facedetect",
		Usage:           "detect faces in camera frames over HTTP",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagAddr,
				Usage: "HTTP listen address",
			},
			&cli.StringFlag{
				Name:  flagDevice,
				Usage: "capture device id or path",
			},
			&cli.StringFlag{
				Name:  flagImage,
				Usage: "use a still image `FILE` instead of the capture device",
			},
			&cli.StringFlag{
				Name:  flagModel,
				Usage: "ONNX model `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLibrary,
				Usage: "ONNX Runtime shared library `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "log level (debug, info, warn, error)",
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the detection page and API",
				Action: serveAction,
			},
			{
				Name:  "detect",
				Usage: "capture one frame and print the detections as JSON",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagPretty,
						Usage: "indent the output",
					},
				},
				Action: detectAction,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if c.IsSet(flagAddr) {
		cfg.Server.Addr = c.String(flagAddr)
	}
	if c.IsSet(flagDevice) {
		cfg.Camera.Device = c.String(flagDevice)
	}
	if c.IsSet(flagImage) {
		cfg.Camera.Image = c.String(flagImage)
	}
	if c.IsSet(flagModel) {
		cfg.Model.Path = c.String(flagModel)
	}
	if c.IsSet(flagLibrary) {
		cfg.Model.LibraryPath = c.String(flagLibrary)
	}
	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func setup(c *cli.Context) (*app.App, *zap.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := app.Build(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return pipeline, logger, nil
}

func serveAction(c *cli.Context) (err error) {
	pipeline, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, pipeline.Close())
		_ = logger.Sync()
	}()

	cfg := pipeline.Config
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(pipeline.Detector, cfg.Snapshot, pipeline.Session, logger.Named("server")).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func detectAction(c *cli.Context) (err error) {
	pipeline, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, pipeline.Close())
		_ = logger.Sync()
	}()

	enc := json.NewEncoder(os.Stdout)
	if c.Bool(flagPretty) {
		enc.SetIndent("", "  ")
	}

	res, err := pipeline.Detector.Detect(c.Context, uuid.New().String())
	if err != nil {
		_ = enc.Encode(server.ErrorResponse{Success: false, Error: err.Error()})
		return err
	}
	return enc.Encode(server.NewDetectResponse(res.Detections))
}
