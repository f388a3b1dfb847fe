package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neverlinked/package-tracking/internal/models"
	"github.com/neverlinked/package-tracking/internal/reconcile"
	"github.com/neverlinked/package-tracking/internal/sink"
	"github.com/neverlinked/package-tracking/internal/tracker"
)

func loadTables(tablesDir string, configFile string, runId string) (tracker.Snapshot, error) {
	if runId == "" {
		return sink.ReadCsv(tablesDir)
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("json")
	err := v.ReadInConfig()
	if err != nil {
		return tracker.Snapshot{}, fmt.Errorf("failed to read config: %w", err)
	}

	var dbCfg sink.DbConfig
	err = v.UnmarshalKey("db", &dbCfg)
	if err != nil {
		return tracker.Snapshot{}, fmt.Errorf("failed to parse db config: %w", err)
	}

	db, err := sink.NewDb(dbCfg)
	if err != nil {
		return tracker.Snapshot{}, err
	}
	defer db.Close()

	boxes, components, err := db.LoadRun(context.Background(), runId)
	if err != nil {
		return tracker.Snapshot{}, err
	}

	return models.ToSnapshot(boxes, components), nil
}

func main() {
	var tablesDir, barcodesFile, outputFile, configFile, runId string

	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge box and component tables with barcode reader scans",
		Run: func(c *cobra.Command, args []string) {
			snap, err := loadTables(tablesDir, configFile, runId)
			if err != nil {
				log.Fatalf("Failed to load tables: %v", err)
			}

			reads, err := reconcile.LoadBarcodes(barcodesFile)
			if err != nil {
				log.Fatalf("Failed to load barcodes: %v", err)
			}

			res := reconcile.Merge(snap, reads)
			for _, w := range res.Warnings {
				log.Printf("Warning: %s", w)
			}

			f, err := os.Create(outputFile)
			if err != nil {
				log.Fatalf("Failed to create output: %v", err)
			}
			defer f.Close()

			err = reconcile.WriteCsv(f, res.Rows)
			if err != nil {
				log.Fatalf("Failed to write output: %v", err)
			}

			log.Printf("Wrote %d rows to %s", len(res.Rows), outputFile)
		},
	}

	rootCmd.Flags().StringVarP(&tablesDir, "tables", "t", ".", "Directory holding boxes.csv and main_components.csv")
	rootCmd.Flags().StringVarP(&barcodesFile, "barcodes", "b", "barcodes.csv", "Barcode reader CSV (barcode,time_of_detection)")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "final_merged_output.csv", "Path of the merged CSV")
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "config.json", "Daemon configuration, used for the db section with --run-id")
	rootCmd.Flags().StringVar(&runId, "run-id", "", "Read tables of this run from the database instead of CSV")

	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}
