package cmd

import (
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new job and its working folder",
	Long: `Create a new job. The gateway makes a fresh working folder for it under
your home on the cluster; upload inputs and a script before launching.

Example:
  hpcctl create`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		jobID, err := client.CreateJob(cmd.Context())
		if err != nil {
			printError(cmd, "Create", err)
			return
		}
		cmd.Printf("✓ Job created!\nID: %s\n", jobID)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
