package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-elephant/pkg/camera"
)

func devicesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List cameras and capture presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opener, err := a.opener()
			if err != nil {
				return err
			}
			if opener == nil {
				return errors.New("camera disabled (set camera.enabled)")
			}

			devices, err := opener.Devices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("⚠️  No cameras found")
			}
			for _, d := range devices {
				fmt.Printf("📹 %d  %-24s facing=%s\n", d.ID, d.Name, d.Facing)
			}

			fmt.Println("\nPresets:")
			presets := camera.Presets()
			for _, name := range camera.PresetNames() {
				p := presets[name]
				fmt.Printf("   %-10s %dx%d q%d\n", name, p.Width, p.Height, p.Quality)
			}
			return nil
		},
	}
}
