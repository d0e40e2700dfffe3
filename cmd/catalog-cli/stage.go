package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpang/auction-catalog/internal/creation"
	"github.com/fpang/auction-catalog/internal/staging"
)

func newStageCmd() *cobra.Command {
	var (
		numItems     int
		viewsPerItem int
		metadataJSON string
		keysFile     string
		useBatch     bool
	)
	cmd := &cobra.Command{
		Use:   "stage [s3-key...]",
		Short: "Group uploaded images into items and enrich them",
		Long: `Group a flat list of uploaded image keys into items and describe each item.

Keys are taken from the arguments, or one per line from --keys-file. With
--batch the work is submitted as a batch job and only the job is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := args
			if keysFile != "" {
				fromFile, err := readLines(keysFile)
				if err != nil {
					return err
				}
				keys = append(keys, fromFile...)
			}

			req := staging.Request{NumItems: numItems, ViewsPerItem: viewsPerItem, UseBatch: useBatch}
			for _, k := range keys {
				req.Images = append(req.Images, staging.Image{S3Key: k})
			}
			if metadataJSON != "" {
				if err := json.Unmarshal([]byte(metadataJSON), &req.Metadata); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
			}

			res, err := pipeline.Staging.Stage(cmd.Context(), req)
			if err != nil {
				return err
			}
			if res.Batch != nil {
				return printJSON(cmd, res.Batch)
			}
			return printJSON(cmd, res.Items)
		},
	}
	cmd.Flags().IntVarP(&numItems, "items", "n", 0, "Number of items in the upload")
	cmd.Flags().IntVarP(&viewsPerItem, "views", "v", 0, "Photographs per item")
	cmd.Flags().StringVarP(&metadataJSON, "metadata", "m", "", `Caller metadata as a JSON object, e.g. '{"lot":"A"}'`)
	cmd.Flags().StringVar(&keysFile, "keys-file", "", "File with one S3 key per line")
	cmd.Flags().BoolVar(&useBatch, "batch", false, "Submit as a batch job instead of enriching now")
	return cmd
}

func newCreateCmd() *cobra.Command {
	var (
		file      string
		createdBy string
		auctionID string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Commit reviewed staged items to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read staged items: %w", err)
			}
			req := creation.Request{CreatedBy: createdBy, AuctionID: auctionID}
			if err := json.Unmarshal(data, &req.Items); err != nil {
				return fmt.Errorf("parse staged items: %w", err)
			}
			items, err := pipeline.Writer.Create(cmd.Context(), req)
			if perr, ok := creation.AsPartial(err); ok {
				cmd.PrintErrf("committed %d of %d items before failing at index %d\n",
					len(perr.Committed), len(req.Items), perr.FailedIndex)
				if len(items) > 0 {
					_ = printJSON(cmd, items)
				}
				return err
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file holding an array of staged items")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "Operator recorded on every item")
	cmd.Flags().StringVar(&auctionID, "auction", "", "Auction the items belong to")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("created-by")
	return cmd
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
