// Package app assembles the detection pipeline from a configuration.
package app

import (
	"os"

	"github.com/nvr-ai/go-facedetect/camera"
	"github.com/nvr-ai/go-facedetect/camera/webcam"
	"github.com/nvr-ai/go-facedetect/config"
	"github.com/nvr-ai/go-facedetect/detector"
	"github.com/nvr-ai/go-facedetect/inference"
	"github.com/nvr-ai/go-facedetect/preprocess"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// App owns every long-lived resource of a running pipeline.
type App struct {
	Detector *detector.Detector
	Camera   *camera.Guarded
	Session  *inference.Session
	Config   config.Config
}

// OpenSource returns a replayed directory or a still image when an image path
// is configured and the capture device otherwise.
func OpenSource(cfg config.CameraConfig, logger *zap.Logger) (camera.Source, error) {
	if info, err := os.Stat(cfg.Image); cfg.Image != "" && err == nil && info.IsDir() {
		seq, err := camera.OpenSequence(cfg.Image)
		if err != nil {
			return nil, err
		}
		logger.Info("replaying image directory", zap.String("path", cfg.Image), zap.Int("images", seq.Len()))
		return seq, nil
	}
	if cfg.Image != "" {
		still, err := camera.OpenStill(cfg.Image)
		if err != nil {
			return nil, err
		}
		logger.Info("using still image", zap.String("path", cfg.Image))
		return still, nil
	}
	cam, err := webcam.Open(webcam.Config{
		Device: cfg.Device,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, logger)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

// Build initializes the runtime, loads the model and opens the camera. On
// failure everything acquired so far is released.
//
// Arguments:
//   - cfg: A validated configuration.
//   - logger: The root logger; components get named children.
//
// Returns:
//   - *App: The running pipeline; Close releases it.
//   - error: When any resource cannot be acquired.
func Build(cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pcfg, err := cfg.PreprocessConfig()
	if err != nil {
		return nil, err
	}
	scfg, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}

	if err := inference.InitializeRuntime(cfg.Model.LibraryPath); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, inference.DestroyRuntime())
		}
	}()

	session, err := inference.NewSession(scfg, logger.Named("inference"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load model")
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, session.Close())
		}
	}()

	source, err := OpenSource(cfg.Camera, logger.Named("camera"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open camera")
	}
	guarded := camera.NewGuarded(source, logger.Named("camera"))

	det := detector.New(
		guarded,
		preprocess.NewPreprocessor(pcfg),
		inference.WithTimeout(session, cfg.Model.InferenceTimeout),
		cfg.Decoder(logger.Named("decoder")),
		cfg.DetectorConfig(),
		logger.Named("detector"),
	)

	return &App{
		Detector: det,
		Camera:   guarded,
		Session:  session,
		Config:   cfg,
	}, nil
}

// Close releases the camera, the session and the runtime.
func (a *App) Close() error {
	return multierr.Combine(
		a.Camera.Close(),
		a.Session.Close(),
		inference.DestroyRuntime(),
	)
}
