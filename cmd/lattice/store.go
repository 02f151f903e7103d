package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/lattice/pkg/cache"
)

var storeCmd = &cobra.Command{
	Use:   "store <name> [value]",
	Short: "Store an entry in the shared cache",
	Long: `Writes an entry into the shared cache of the configured namespace.
The value is taken from the second argument, or from stdin when omitted.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		var value []byte
		if len(args) == 2 {
			value = []byte(args[1])
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Printf("Error reading stdin: %v\n", err)
				os.Exit(1)
			}
			value = data
		}

		c, err := newClient(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer c.close()

		sc := cache.New(c.conn, c.cfg.Cache.Path, func([][]byte) {},
			time.Duration(c.cfg.Cache.MaxAge),
			cache.WithLogger(c.logger),
			cache.WithMetrics(c.metrics),
		)

		if err := c.conn.WaitConnected(time.Duration(c.cfg.Timeouts.Conn)); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if err := sc.Store(name, value); err != nil {
			fmt.Printf("Error storing entry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Stored %s (%d bytes)\n", name, len(value))
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
}
