// Elephant - classify elephant photos by species, gender and age group
//
// Serves the HTTP/websocket API and offers one-shot CLI commands for files
// and cameras.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-elephant/internal/config"
	"github.com/teslashibe/go-elephant/internal/log"
	"github.com/teslashibe/go-elephant/pkg/camera"
	"github.com/teslashibe/go-elephant/pkg/camera/opencv"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		stop()
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "elephant",
		Short:         "Elephant photo classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./elephant.yaml if present)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("backend", "", "prediction backend: http, openai, onnx, sample")
	a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	a.v.BindPFlag("predict.backend", flags.Lookup("backend"))

	root.AddCommand(
		serveCommand(a),
		classifyCommand(a),
		captureCommand(a),
		devicesCommand(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		var ve config.ValidationError
		if errors.As(err, &ve) {
			for _, msg := range ve.Errors {
				fmt.Fprintf(os.Stderr, "⚠️  %s\n", msg)
			}
		}
		return err
	}
	a.cfg = cfg

	log.Init(cfg.Log.Level, cfg.Log.Format)
	a.logger = log.L()
	return nil
}

// opener returns the host camera opener, limited to one device at a time,
// or nil when cameras are disabled.
func (a *app) opener() (camera.Opener, error) {
	if !a.cfg.Camera.Enabled {
		return nil, nil
	}
	facing, err := a.cfg.FacingMap()
	if err != nil {
		return nil, err
	}
	return camera.Exclusive(&opencv.Opener{
		MaxDevices: a.cfg.Camera.MaxDevices,
		FacingMap:  facing,
	}), nil
}
