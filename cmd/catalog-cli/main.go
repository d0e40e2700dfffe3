// Command catalog-cli runs the catalog pipeline from an operator's shell
// against the same AWS resources the Lambdas use.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/auction-catalog/internal/lambdaboot"
	"github.com/fpang/auction-catalog/internal/logging"
)

// pipeline is built once the root command's flags are parsed.
var pipeline *lambdaboot.Pipeline

func newRootCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "catalog-cli",
		Short: "Stage, create, and export auction catalog items",
		Long: `catalog-cli drives the auction catalog pipeline directly.

Configuration comes from the environment (see BUCKET_NAME, ITEMS_TABLE, ...),
optionally loaded from a .env file first.

Examples:
  catalog-cli stage --items 2 --views 3 a1.jpg a2.jpg a3.jpg b1.jpg b2.jpg b3.jpg
  catalog-cli stage --items 40 --views 4 --batch --keys-file uploads.txt
  catalog-cli batch list --limit 10
  catalog-cli batch results batch_abc123 --staged > staged.json
  catalog-cli create --file staged.json --created-by alice --auction spring-2026
  catalog-cli export --auction spring-2026`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is fine.
			_ = godotenv.Load(envFile)
			logging.Init()

			settings, err := lambdaboot.LoadSettings(os.Getenv)
			if err != nil {
				return err
			}
			pipeline = lambdaboot.NewPipeline(settings, lambdaboot.InitAWS(cmd.Context()))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")

	cmd.AddCommand(
		newStageCmd(),
		newCreateCmd(),
		newBatchCmd(),
		newImagesCmd(),
		newExportCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		// Needs no configuration.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("catalog-cli %s (built %s)\n", commitHash, buildTime)
		},
	}
}

func main() {
	ctx := log.Logger.WithContext(context.Background())
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
