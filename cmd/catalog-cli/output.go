package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/auction-catalog/internal/export"
)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatAge renders a duration as M:SS, H:MM:SS, or whole days.
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d >= 48*time.Hour {
		return strconv.Itoa(int(d.Hours()/24)) + "d"
	}
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func newImagesCmd() *cobra.Command {
	var itemID int64
	cmd := &cobra.Command{
		Use:   "images",
		Short: "List the image rows of a catalog item",
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := pipeline.Store.ListImagesByItem(cmd.Context(), itemID)
			if err != nil {
				return err
			}
			return printJSON(cmd, images)
		},
	}
	cmd.Flags().Int64Var(&itemID, "item", 0, "Catalog item ID")
	cmd.MarkFlagRequired("item")
	return cmd
}

func newExportCmd() *cobra.Command {
	var auctionID, platform string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an auction's items for an auction platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := pipeline.Exporter.Export(cmd.Context(), auctionID, platform)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&auctionID, "auction", "", "Auction ID")
	cmd.Flags().StringVar(&platform, "platform", export.PlatformLiveAuctioneers, "Target platform")
	cmd.MarkFlagRequired("auction")
	return cmd
}
