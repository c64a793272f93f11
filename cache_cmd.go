package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/quillreader/quill/internal/config"
	"github.com/quillreader/quill/speech/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the synthesized audio cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache usage",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		stats := store.Stats()
		fmt.Printf("Entries: %d\n", stats.FileCount)
		fmt.Printf("Size:    %s of %s\n",
			humanize.IBytes(uint64(stats.TotalBytes)),
			humanize.IBytes(uint64(stats.MaxBytes)))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached audio",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		freed := store.Clear()
		fmt.Printf("Freed %s\n", humanize.IBytes(uint64(freed)))
		return nil
	},
}

func openStore() (*cache.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cache.New(cfg.CacheDir, cfg.CacheMaxBytes, log.Default())
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}
