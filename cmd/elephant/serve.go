package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-elephant/internal/backend"
	"github.com/teslashibe/go-elephant/internal/metrics"
	"github.com/teslashibe/go-elephant/pkg/camera"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/hub"
	"github.com/teslashibe/go-elephant/pkg/session"
	"github.com/teslashibe/go-elephant/pkg/web"
)

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the classification API and session websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd)
		},
	}
	cmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	cmd.Flags().String("static", "", "directory served at / for a browser presenter")
	a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	a.v.BindPFlag("server.static_dir", cmd.Flags().Lookup("static"))
	return cmd
}

func (a *app) serve(cmd *cobra.Command) error {
	cfg, logger := a.cfg, a.logger
	ctx := cmd.Context()

	catalog, err := loadCatalog(cfg.Species.Catalog)
	if err != nil {
		return err
	}

	opener, err := a.opener()
	if err != nil {
		return err
	}
	cameras := camera.NewManager(cfg.CameraConfig())

	// The store reports its size to the metrics and the metrics observe
	// the store, so the gauge reads through a late-bound pointer.
	var store *session.Store
	m, err := metrics.NewWithRuntime(func() int {
		if store == nil {
			return 0
		}
		return store.Len()
	})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	predictor, err := backend.Build(cfg, logger, m)
	if err != nil {
		return err
	}
	defer predictor.Close()

	h := hub.New("sessions", logger)
	store = session.NewStore(session.Deps{
		Predictor:    predictor,
		Opener:       opener,
		CameraConfig: cameras.GetConfig,
		Catalog:      catalog,
		Timeout:      cfg.Predict.Timeout,
		Logger:       logger,
		Observer:     m,
		Notify:       web.Notifier(h, logger),
	}, cfg.Session.TTL, cfg.Session.CleanupInterval)
	defer store.Close()

	server := web.NewServer(web.Config{
		StaticDir:      cfg.Server.StaticDir,
		BodyLimit:      cfg.BodyLimit(),
		MaxUploadBytes: cfg.Upload.MaxBytes,
	}, web.Deps{
		Store:     store,
		Predictor: predictor,
		Catalog:   catalog,
		Cameras:   cameras,
		Opener:    opener,
		Hub:       h,
		Metrics:   m,
		Logger:    logger,
	})

	fmt.Printf("🐘 Elephant classifier on %s\n", cfg.Addr())
	fmt.Printf("   Backend: %s\n", predictor.Name())
	if opener != nil {
		fmt.Printf("   Camera:  %s preset\n", presetName(cfg.Camera.Preset))
	} else {
		fmt.Println("   Camera:  disabled")
	}
	fmt.Println("   Press Ctrl+C to stop")

	if err := server.ListenAndServe(ctx, cfg.Addr()); err != nil {
		return err
	}
	fmt.Println("\n👋 Stopped")
	return nil
}

// loadCatalog reads the species catalog, falling back to the built-in one.
func loadCatalog(path string) (*classify.Catalog, error) {
	if path == "" {
		return classify.DefaultCatalog(), nil
	}
	c, err := classify.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("species catalog: %w", err)
	}
	return c, nil
}

func presetName(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
