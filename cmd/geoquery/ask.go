package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/geoquery/internal/domain"
	logpkg "github.com/kailas-cloud/geoquery/internal/logger"
	"github.com/kailas-cloud/geoquery/internal/usecase/pipeline"
)

func newAskCmd(flags *rootFlags) *cobra.Command {
	var (
		model         string
		minConfidence float64
		place         string
		tag           string
	)
	cmd := &cobra.Command{
		Use:   `ask "<query>"`,
		Short: "Run one query through the pipeline and print the JSON response",
		Example: `  geoquery ask "Find all cafes in Malmö"
  geoquery ask --place Lund --tag amenity=cafe "cafes"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := logpkg.ContextWithLogger(cmd.Context(), a.logger)
			svc := a.buildServices(ctx).pipeline

			var resp pipeline.Response
			var runErr error
			if place != "" || tag != "" {
				t, err := domain.ParseTagPair(tag)
				if err != nil {
					return fmt.Errorf("--tag: %w", err)
				}
				resp, runErr = svc.RunDirect(ctx, pipeline.DirectRequest{Query: args[0], Place: place, Tag: t})
			} else {
				req := pipeline.Request{Query: args[0], Model: model}
				if cmd.Flags().Changed("min-confidence") {
					req.MinConfidence = &minConfidence
				}
				resp, runErr = svc.Run(ctx, req)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(resp); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "interpreter model override")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "reject interpretations below this confidence")
	cmd.Flags().StringVar(&place, "place", "", "skip interpretation and search this place (requires --tag)")
	cmd.Flags().StringVar(&tag, "tag", "", "skip interpretation and filter by key=value (requires --place)")
	return cmd
}
