package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Acquire the service lock and hold it until interrupted",
	Long: `Acquires the distributed lock of the configured namespace and holds
it until SIGINT/SIGTERM, periodically re-checking that the lock survived
session disruptions. Useful to park a namespace during maintenance.`,
	Run: func(cmd *cobra.Command, args []string) {
		c, err := newClient(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer c.close()

		lockTimeout := time.Duration(c.cfg.Timeouts.Lock)
		connTimeout := time.Duration(c.cfg.Timeouts.Conn)

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		held := false
		for {
			if !c.conn.HaveLock() {
				if held {
					fmt.Println("Lock lost, re-acquiring...")
					held = false
				}
				got, err := c.conn.GetLock(lockTimeout, connTimeout)
				if err != nil {
					c.logger.Info("lock attempt failed", "err", err)
				} else if got {
					fmt.Printf("Lock held as %s\n", c.cfg.MemberID)
					held = true
				}
			}
			select {
			case <-shutdown:
				c.conn.ReleaseLock()
				fmt.Println("Lock released.")
				return
			case <-ticker.C:
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(lockCmd)
}
