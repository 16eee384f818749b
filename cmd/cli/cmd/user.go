package cmd

import (
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the caller with the gateway",
	Long:  `Register the identity behind your token and create your home folder on the cluster. Registering again is harmless.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		result, err := client.RegisterUser(cmd.Context())
		if err != nil {
			printError(cmd, "Register", err)
			return
		}
		cmd.Printf("✓ %s\nHome: %s\n", result.Message, result.Home)
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the registered user",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		user, err := client.GetUser(cmd.Context())
		if err != nil {
			printError(cmd, "Lookup", err)
			return
		}
		cmd.Printf("%sEmail:%s %s\n", colorDim, colorReset, user.Email)
		cmd.Printf("%sName:%s  %s\n", colorDim, colorReset, user.Name)
		cmd.Printf("%sHome:%s  %s\n", colorDim, colorReset, user.Home)
	},
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Check the cluster connection by listing your home folder",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		result, err := client.Heartbeat(cmd.Context())
		if err != nil {
			printError(cmd, "Heartbeat", err)
			return
		}
		cmd.Printf("✓ %s\n", result.Message)
		printFiles(cmd, result.Output)
	},
}

func init() {
	rootCmd.AddCommand(registerCmd, whoamiCmd, heartbeatCmd)
}
