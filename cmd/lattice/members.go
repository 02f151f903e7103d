package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the members registered in the service party",
	Run: func(cmd *cobra.Command, args []string) {
		join, _ := cmd.Flags().GetBool("join")

		c, err := newClient(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer c.close()

		if err := c.conn.WaitConnected(time.Duration(c.cfg.Timeouts.Conn)); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		party, err := c.conn.PartySetup("", join)
		if err != nil {
			fmt.Printf("Error setting up party: %v\n", err)
			os.Exit(1)
		}

		members, err := party.List()
		if err != nil {
			fmt.Printf("Error listing members: %v\n", err)
			os.Exit(1)
		}
		if len(members) == 0 {
			fmt.Println("No members registered.")
			return
		}
		ids := make([]string, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Println("- " + id)
		}
	},
}

func init() {
	rootCmd.AddCommand(membersCmd)
	membersCmd.Flags().Bool("join", false, "Join the party before listing")
}
