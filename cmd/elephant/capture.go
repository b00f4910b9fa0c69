package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-elephant/internal/backend"
	"github.com/teslashibe/go-elephant/pkg/camera"
)

func captureCommand(a *app) *cobra.Command {
	var (
		out      string
		classify bool
		preset   string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Take a still from the camera, optionally classifying it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opener, err := a.opener()
			if err != nil {
				return err
			}
			if opener == nil {
				return errors.New("camera disabled (set camera.enabled)")
			}

			camCfg := a.cfg.CameraConfig()
			if preset != "" {
				p := camera.GetPreset(preset)
				if p == nil {
					return fmt.Errorf("unknown preset %q (available: %v)", preset, camera.PresetNames())
				}
				camCfg = *p
			}

			stream := camera.NewStream(opener, camCfg, a.logger)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			err = stream.Start(ctx)
			cancel()
			if err != nil {
				return err
			}
			defer stream.Stop()

			info, _ := stream.Device()
			fmt.Printf("📹 Camera %d (%s)\n", info.ID, info.Name)

			payload, err := stream.Capture()
			if err != nil {
				return err
			}
			w, h := payload.Size()
			if err := os.WriteFile(out, payload.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Printf("📸 Saved %dx%d still to %s (%d bytes)\n", w, h, out, payload.Len())

			if !classify {
				return nil
			}
			catalog, err := loadCatalog(a.cfg.Species.Catalog)
			if err != nil {
				return err
			}
			p, err := backend.Build(a.cfg, a.logger, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.Predict(cmd.Context(), payload)
			r := newReport(out, result, err, catalog)
			printReport(r)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "capture.jpg", "where to write the still")
	cmd.Flags().BoolVar(&classify, "classify", false, "classify the still after capture")
	cmd.Flags().StringVar(&preset, "preset", "", "capture preset (overrides camera config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "time allowed to open and warm up the camera")
	return cmd
}
