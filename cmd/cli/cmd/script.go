package cmd

import (
	"errors"

	"hpcgateway/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var scriptCmd = &cobra.Command{
	Use:   "script [job_id]",
	Short: "Render and upload the batch script of a job",
	Long: `Render a Slurm batch script that runs a container image with Singularity
inside the job folder, and upload it as the job's script. Only jobs that have
not been launched accept a new script.

Example:
  hpcctl script <job-id> --image docker://python:3.12 --command "python main.py"
  hpcctl script <job-id> -i docker://alpine -c "echo hi" --nodes 2 --time 00:10:00 --module singularity`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req, err := scriptRequest(cmd.Flags())
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		client := newClient(cmd)
		if client == nil {
			return
		}

		result, err := client.WriteJobScript(cmd.Context(), args[0], req)
		if err != nil {
			printError(cmd, "Script", err)
			return
		}
		cmd.Printf("✓ %s\nJob ID: %s\n", result.Message, result.JobID)
	},
}

func addScriptFlags(flags *pflag.FlagSet) {
	flags.StringP("image", "i", "", "Container image to run (required)")
	flags.StringP("command", "c", "", "Command to run inside the container (required)")
	flags.Int("nodes", 0, "Number of nodes (default 1)")
	flags.Int("ntasks-per-node", 0, "Tasks per node (default 1)")
	flags.String("time", "", "Wall time limit as HH:MM:SS (default 01:00:00)")
	flags.String("partition", "", "Slurm partition")
	flags.StringSlice("module", nil, "Environment module to load (repeatable)")
}

func scriptRequest(flags *pflag.FlagSet) (api.JobScriptRequest, error) {
	image, _ := flags.GetString("image")
	command, _ := flags.GetString("command")
	if image == "" {
		return api.JobScriptRequest{}, errors.New("--image is required")
	}
	if command == "" {
		return api.JobScriptRequest{}, errors.New("--command is required")
	}

	nodes, _ := flags.GetInt("nodes")
	tasks, _ := flags.GetInt("ntasks-per-node")
	limit, _ := flags.GetString("time")
	partition, _ := flags.GetString("partition")
	modules, _ := flags.GetStringSlice("module")

	return api.JobScriptRequest{
		Image:        image,
		Command:      command,
		Nodes:        nodes,
		TasksPerNode: tasks,
		Time:         limit,
		Partition:    partition,
		Modules:      modules,
	}, nil
}

func init() {
	addScriptFlags(scriptCmd.Flags())
	rootCmd.AddCommand(scriptCmd)
}
