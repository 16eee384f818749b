package cmd

import (
	"github.com/spf13/cobra"
)

var launchCmd = &cobra.Command{
	Use:     "launch [job_id]",
	Aliases: []string{"run"},
	Short:   "Submit a job's script to the scheduler",
	Long:    `Submit the job's batch script on the cluster. A job can be launched once; its script must have been uploaded first.`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		jobID, err := client.LaunchJob(cmd.Context(), args[0])
		if err != nil {
			printError(cmd, "Launch", err)
			return
		}
		cmd.Printf("✓ Job launched!\nID: %s\n", jobID)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Ask the scheduler to cancel a launched job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		msg, err := client.CancelJob(cmd.Context(), args[0])
		if err != nil {
			printError(cmd, "Cancel", err)
			return
		}
		cmd.Printf("✓ %s\n", msg)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [job_id]",
	Short: "Forget a job",
	Long:  `Remove the gateway's record of a job. Its folder on the cluster and any running scheduler job are left untouched.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		msg, err := client.DeleteJob(cmd.Context(), args[0])
		if err != nil {
			printError(cmd, "Delete", err)
			return
		}
		cmd.Printf("✓ %s\n", msg)
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create, script and launch a job in one step",
	Long: `Create a new job, upload any input files, render its batch script and launch it.

This is a convenience command that combines 'create', 'upload', 'script' and 'launch'.

Example:
  hpcctl submit --image docker://alpine --command "echo hello"
  hpcctl submit -i docker://python:3.12 -c "python main.py" --upload main.py --upload data.csv`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		req, err := scriptRequest(cmd.Flags())
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		uploads, _ := cmd.Flags().GetStringSlice("upload")

		client := newClient(cmd)
		if client == nil {
			return
		}
		ctx := cmd.Context()

		jobID, err := client.CreateJob(ctx)
		if err != nil {
			printError(cmd, "Create", err)
			return
		}

		for _, path := range uploads {
			if _, err := client.UploadFile(ctx, jobID, path); err != nil {
				printError(cmd, "Job created (ID: "+jobID+") but upload of "+path, err)
				return
			}
		}

		if _, err := client.WriteJobScript(ctx, jobID, req); err != nil {
			printError(cmd, "Job created (ID: "+jobID+") but script", err)
			return
		}

		if _, err := client.LaunchJob(ctx, jobID); err != nil {
			printError(cmd, "Job created (ID: "+jobID+") but launch", err)
			return
		}

		cmd.Printf("✓ Job submitted!\nJob ID: %s\n", jobID)
	},
}

func init() {
	addScriptFlags(submitCmd.Flags())
	submitCmd.Flags().StringSliceP("upload", "u", nil, "Local file to upload into the job folder before launch (repeatable)")

	rootCmd.AddCommand(launchCmd, cancelCmd, deleteCmd, submitCmd)
}
