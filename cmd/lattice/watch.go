package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/lattice/pkg/cache"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously process new shared-cache entries",
	Long: `Polls the shared cache of the configured namespace and prints every
newly modified entry as it is picked up. Runs until SIGINT/SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		showPayload, _ := cmd.Flags().GetBool("payload")

		c, err := newClient(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer c.close()

		handler := func(entries [][]byte) {
			for _, entry := range entries {
				if showPayload {
					fmt.Printf("%s\n", entry)
				} else {
					fmt.Printf("entry: %d bytes\n", len(entry))
				}
			}
		}
		sc := cache.New(c.conn, c.cfg.Cache.Path, handler,
			time.Duration(c.cfg.Cache.MaxAge),
			cache.WithLogger(c.logger),
			cache.WithMetrics(c.metrics),
		)

		if err := c.conn.WaitConnected(time.Duration(c.cfg.Timeouts.Conn)); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Watching %s/%s every %s\n",
			c.conn.Prefix(), c.cfg.Cache.Path, interval)

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := sc.Process(); err != nil {
				c.logger.Info("processing pass failed", "err", err)
			}
			select {
			case <-shutdown:
				return
			case <-ticker.C:
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", time.Second, "Polling interval")
	watchCmd.Flags().Bool("payload", false, "Print entry payloads instead of sizes")
}
