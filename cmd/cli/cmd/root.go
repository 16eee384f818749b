package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hpcctl",
	Short: "hpcctl is a command line tool for running jobs through the HPC gateway",
	Long: `hpcctl is the command-line interface for the HPC gateway.

The gateway turns marketplace identities into cluster users, gives every job
its own working folder on the cluster and submits batch scripts through the
FirecREST facade. hpcctl talks to the gateway REST API with your marketplace
access token.

Common workflows:

  Register yourself once:
    hpcctl register

  Create a job, give it a script and launch it:
    hpcctl create
    hpcctl script <job-id> --image docker://alpine --command "echo hello"
    hpcctl launch <job-id>

  Or in one step:
    hpcctl submit --image docker://alpine --command "echo hello" --upload input.csv

  Follow a job and fetch its results:
    hpcctl status <job-id>
    hpcctl ls <job-id>
    hpcctl download <job-id> slurm-00042.out

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    HPCCTL_URL      Gateway endpoint (default: http://localhost:5253)
    HPCCTL_TOKEN    Marketplace access token`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".hpcctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".hpcctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "HPCCTL_VARNAME"
	viper.SetEnvPrefix("HPCCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds a client from the resolved url and token. It prints a
// hint and returns nil when no token is configured.
func newClient(cmd *cobra.Command) *GatewayClient {
	token := viper.GetString("token")
	if token == "" {
		cmd.Println("Access token not found. Please set it using the --token flag or the HPCCTL_TOKEN environment variable")
		return nil
	}
	return NewGatewayClient(viper.GetString("url"), token)
}

// printError reports a failed call, surfacing the gateway's error code.
func printError(cmd *cobra.Command, action string, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != "" {
			cmd.Printf("%s failed (%d %s): %s\n", action, apiErr.StatusCode, apiErr.Code, apiErr.Message)
			return
		}
		cmd.Printf("%s failed (%d): %s\n", action, apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("%s failed: %v\n", action, err)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hpcctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:5253", "HPC gateway URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Marketplace access token")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
