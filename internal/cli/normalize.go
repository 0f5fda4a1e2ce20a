package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

func newNormalizeCmd(cfg *config.Config) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "normalize <file.json>",
		Short: "Normalize and deduplicate a batch of raw listings",
		Long: `Reads raw listings from a JSON file, either a bare array or an object with
a "records" array, and prints the batch statistics. Use "-" to read stdin.

Examples:
  propertyd normalize listings.json
  propertyd normalize --full listings.json
  cat listings.json | propertyd normalize -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			n, err := newNormalizer(*cfg)
			if err != nil {
				return err
			}
			result := n.ProcessDataBatch(records)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if full {
				return enc.Encode(result)
			}
			return enc.Encode(result.Statistics)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print the whole batch result instead of statistics")
	return cmd
}

func readRecords(stdin io.Reader, path string) ([]models.RawProperty, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	var records []models.RawProperty
	if bytes.HasPrefix(data, []byte("[")) {
		err = json.Unmarshal(data, &records)
	} else {
		var wrapped struct {
			Records []models.RawProperty `json:"records"`
		}
		err = json.Unmarshal(data, &wrapped)
		records = wrapped.Records
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}
