package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-elephant/internal/backend"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/predict"
	"github.com/teslashibe/go-elephant/pkg/session"
)

// report is the JSON printed per image.
type report struct {
	File        string                `json:"file"`
	Result      *classify.Result      `json:"result,omitempty"`
	Description *classify.Description `json:"description,omitempty"`
	Error       *session.ErrorInfo    `json:"error,omitempty"`
}

func classifyCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "Classify one or more image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(a.cfg.Species.Catalog)
			if err != nil {
				return err
			}
			p, err := backend.Build(a.cfg, a.logger, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			failed := 0
			for _, path := range args {
				r := classifyFile(cmd, p, catalog, path, a.cfg.Upload.MaxBytes)
				if r.Error != nil {
					failed++
				}
				if asJSON {
					printJSON(r)
				} else {
					printReport(r)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func classifyFile(cmd *cobra.Command, p predict.Predictor, catalog *classify.Catalog, path string, maxBytes int64) report {
	payload, err := imagesource.FromPath(path, maxBytes)
	if err != nil {
		return newReport(path, nil, err, catalog)
	}
	result, err := p.Predict(cmd.Context(), payload)
	return newReport(path, result, err, catalog)
}

func newReport(file string, result *classify.Result, err error, catalog *classify.Catalog) report {
	if err != nil {
		info := session.Describe(err)
		return report{File: file, Error: &info}
	}
	d := catalog.Describe(result.Species.Class)
	return report{File: file, Result: result, Description: &d}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ encode: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printReport(r report) {
	fmt.Printf("📷 %s\n", r.File)
	if r.Error != nil {
		fmt.Printf("   ❌ %s: %s\n", r.Error.Code, r.Error.Message)
		return
	}
	res := r.Result
	fmt.Printf("   🐘 Species: %-26s %5.1f%%\n", res.Species.Class, res.Species.Confidence)
	fmt.Printf("   ⚧  Gender:  %-26s %5.1f%%\n", res.Gender.Class, res.Gender.Confidence)
	fmt.Printf("   📅 Age:     %-26s %5.1f%%\n", res.Age.Class, res.Age.Confidence)
	if r.Description != nil {
		fmt.Printf("   %s\n", r.Description.Text)
	}
}
