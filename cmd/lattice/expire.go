package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/lattice/pkg/cache"
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Delete shared-cache entries past their age limit",
	Run: func(cmd *cobra.Command, args []string) {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		c, err := newClient(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer c.close()

		if olderThan == 0 {
			olderThan = time.Duration(c.cfg.Cache.MaxAge)
		}
		sc := cache.New(c.conn, c.cfg.Cache.Path, func([][]byte) {},
			time.Duration(c.cfg.Cache.MaxAge),
			cache.WithLogger(c.logger),
			cache.WithMetrics(c.metrics),
		)

		if err := c.conn.WaitConnected(time.Duration(c.cfg.Timeouts.Conn)); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if err := sc.Expire(olderThan); err != nil {
			fmt.Printf("Error expiring entries: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Expiry sweep complete.")
	},
}

func init() {
	rootCmd.AddCommand(expireCmd)
	expireCmd.Flags().Duration("older-than", 0, "Age limit (defaults to the cache max age)")
}
