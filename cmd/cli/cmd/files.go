package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"hpcgateway/pkg/api"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [job_id]",
	Short: "List the files in a job folder",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		files, err := client.ListFiles(cmd.Context(), args[0])
		if err != nil {
			printError(cmd, "List", err)
			return
		}
		printFiles(cmd, files)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload [job_id] [file]",
	Short: "Upload a local file into a job folder",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		msg, err := client.UploadFile(cmd.Context(), args[0], args[1])
		if err != nil {
			printError(cmd, "Upload", err)
			return
		}
		cmd.Printf("✓ %s\n", msg)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [job_id] [filename]",
	Short: "Download a file from a job folder",
	Long: `Download a file from a job folder. The file is written to the current
directory under the same name unless --output is given; "-" writes to stdout.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = args[1]
		}

		client := newClient(cmd)
		if client == nil {
			return
		}

		data, err := client.DownloadFile(cmd.Context(), args[0], args[1])
		if err != nil {
			printError(cmd, "Download", err)
			return
		}

		if output == "-" {
			cmd.OutOrStdout().Write(data)
			return
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Saved %s (%d bytes)\n", output, len(data))
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [job_id] [filename]",
	Short: "Delete a file from a job folder",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		msg, err := client.DeleteFile(cmd.Context(), args[0], args[1])
		if err != nil {
			printError(cmd, "Delete", err)
			return
		}
		cmd.Printf("✓ %s\n", msg)
	},
}

func printFiles(cmd *cobra.Command, files []api.FileInfo) {
	if len(files) == 0 {
		cmd.Println("(empty)")
		return
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%sPERMISSIONS\tSIZE\tMODIFIED\tNAME%s\n", colorDim, colorReset)
	for _, f := range files {
		name := f.Name
		if f.Type == "d" {
			name = colorCyan + name + "/" + colorReset
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n", f.Type, f.Permissions, f.Size, f.LastModified, name)
	}
	tw.Flush()
}

func init() {
	downloadCmd.Flags().StringP("output", "o", "", "Destination path, or - for stdout")

	rootCmd.AddCommand(lsCmd, uploadCmd, downloadCmd, rmCmd)
}
