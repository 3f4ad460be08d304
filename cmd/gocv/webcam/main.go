// Command webcam shows the capture device in a window with every detected
// face outlined.
package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/nvr-ai/go-facedetect/app"
	"github.com/nvr-ai/go-facedetect/config"
	"github.com/nvr-ai/go-facedetect/detector"
	"github.com/nvr-ai/go-facedetect/logging"
	"github.com/nvr-ai/go-facedetect/postprocess"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const keyEscape = 27

var boxColor = color.RGBA{0, 0, 255, 0}

func main() {
	cliApp := &cli.App{
		Name:  "webcam",
		Usage: "preview face detection in a window",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  "device",
				Usage: "capture device id or path",
			},
		},
		Action: run,
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) (err error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("device") {
		cfg.Camera.Device = c.String("device")
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pipeline, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pipeline.Close()) }()

	window := gocv.NewWindow("Face Detect")
	defer window.Close()

	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	for {
		res, err := pipeline.Detector.Detect(context.Background(), "")
		if err != nil {
			return err
		}

		frameCount++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		img, err := render(res, fps)
		if err != nil {
			return err
		}
		window.IMShow(img)
		_ = img.Close()

		if key := window.WaitKey(1); key == keyEscape || key == 'q' {
			logger.Info("preview closed", zap.Int("key", key))
			return nil
		}
	}
}

// render draws the detections and the frame rate on a BGR copy of the frame.
func render(res *detector.Result, fps float64) (gocv.Mat, error) {
	rgba, err := res.Frame.ToImage()
	if err != nil {
		return gocv.Mat{}, err
	}
	img, err := gocv.ImageToMatRGB(rgba)
	if err != nil {
		return gocv.Mat{}, err
	}

	size := image.Pt(res.Frame.Width, res.Frame.Height)
	for _, d := range postprocess.Rescale(res.Detections, res.Space, size) {
		r := d.Box.ToRectangle()
		gocv.Rectangle(&img, r, boxColor, 3)
		gocv.PutText(&img, fmt.Sprintf("%.2f", d.Confidence), r.Min.Add(image.Pt(0, -4)),
			gocv.FontHersheyPlain, 1.2, boxColor, 2)
	}

	status := fmt.Sprintf("faces: %d | FPS: %.1f | inference: %s",
		len(res.Detections), fps, res.Timings.Inference.Round(time.Millisecond))
	gocv.PutText(&img, status, image.Pt(10, 30), gocv.FontHersheyPlain, 1.2, color.RGBA{255, 255, 255, 0}, 2)
	return img, nil
}
