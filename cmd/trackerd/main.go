package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neverlinked/package-tracking/internal/trackerd"
)

func main() {
	var err error
	var configFile string
	var config trackerd.Config

	rootCmd := &cobra.Command{
		Use:   "trackerd",
		Short: "Assign detected items to containers and record the result tables",
		// Main Entry Point
		Run: func(c *cobra.Command, args []string) {
			// Init
			t, err := trackerd.New(config)
			if err != nil {
				log.Fatalf("Failed on init: %v", err)
			}

			err = t.Run(context.Background())
			if err != nil {
				log.Fatalf("Failed on run: %v", err)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.json", "Path to configuration")

	// Defaults
	viper.SetDefault("zones.file", "zone_setup.json")
	viper.SetDefault("zones.threshold", 0.9)
	viper.SetDefault("engine.distinct_unresolved", false)
	viper.SetDefault("source.type", "file")
	viper.SetDefault("source.file.path", "-")
	viper.SetDefault("source.idle_ms", 200)
	viper.SetDefault("source.mqtt.client_id", "trackerd")
	viper.SetDefault("source.mqtt.qos", 1)
	viper.SetDefault("sink.interval", 5)
	viper.SetDefault("sink.csv.enabled", true)
	viper.SetDefault("sink.csv.dir", ".")
	viper.SetDefault("http.server_name", "trackerd")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Read Configuration File Before Start
	cobra.OnInitialize(func() {
		_, err := os.Stat(configFile)
		if os.IsNotExist(err) {
			envConfFile := os.Getenv("CONFIG_FILE")
			if envConfFile != "" {
				_, err := os.Stat(envConfFile)
				if os.IsNotExist(err) {
					log.Fatalf("Config file %s does not exist!", envConfFile)
				}

				configFile = envConfFile
			} else {
				log.Fatalf("Config file %s does not exist!", configFile)
			}
		}

		viper.SetConfigFile(configFile)
		viper.SetConfigType("json")
		err = viper.ReadInConfig()
		if err != nil {
			log.Fatalf("Failed to read config: %v", err)
		}

		err = viper.Unmarshal(&config)
		if err != nil {
			log.Fatalf("Failed to parse config: %v", err)
		}

		log.Printf("Loaded config file: %s", configFile)
	})

	// Launch (cobra.OnInitialize -> rootCmd.Run)
	err = rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}
