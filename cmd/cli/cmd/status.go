package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"hpcgateway/pkg/api"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get the state of a job",
	Long:  `Retrieve a job's local state (CREATED or ACTIVATED), its scheduler job id and the live scheduler status (PENDING, RUNNING, COMPLETED, FAILED, ...).`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		state, err := client.GetJobState(cmd.Context(), args[0])
		if err != nil {
			printError(cmd, "Status", err)
			return
		}
		printStatus(cmd, *state)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"jobs"},
	Short:   "List your jobs and their live status",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		jobs, err := client.ListJobs(cmd.Context())
		if err != nil {
			printError(cmd, "List", err)
			return
		}
		if len(jobs) == 0 {
			cmd.Println("No jobs yet. Create one with 'hpcctl create'.")
			return
		}

		ids := make([]string, 0, len(jobs))
		for id := range jobs {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "%sJOB ID\tSTATUS%s\n", colorDim, colorReset)
		for _, id := range ids {
			fmt.Fprintf(tw, "%s\t%s\n", id, colorizeStatus(jobs[id]))
		}
		tw.Flush()
	},
}

func printStatus(cmd *cobra.Command, state api.JobStateResponse) {
	icon := statusIcon(state.Status)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, state.JobID)
	cmd.Printf("%sState:%s       %s\n", colorDim, colorReset, state.State)

	if state.RemoteJobID != nil {
		cmd.Printf("%sRemote ID:%s   %s\n", colorDim, colorReset, *state.RemoteJobID)
	} else {
		cmd.Printf("%sRemote ID:%s   -\n", colorDim, colorReset)
	}

	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(state.Status))
}

// ANSI color codes, cleared by disableColors.
var (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// useColors reports whether w is an interactive terminal.
func useColors(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func disableColors() {
	colorReset, colorBold, colorDim = "", "", ""
	colorRed, colorGreen, colorYellow, colorCyan = "", "", "", ""
}

// statusColor groups Slurm states; sacct may append a qualifier such as
// "CANCELLED by 1234", so only the first word is matched.
func statusColor(status string) (string, string) {
	word := status
	for i, r := range status {
		if r == ' ' {
			word = status[:i]
			break
		}
	}

	switch word {
	case "COMPLETED":
		return colorGreen, "✓"
	case "FAILED", "CANCELLED", "TIMEOUT", "NODE_FAIL", "OUT_OF_MEMORY", "BOOT_FAIL", "DEADLINE", "PREEMPTED":
		return colorRed, "✗"
	case "RUNNING", "COMPLETING":
		return colorYellow, "⏳"
	case "PENDING", "REQUEUED", "SUSPENDED":
		return colorCyan, "◯"
	}
	return "", "•"
}

func statusIcon(status string) string {
	color, icon := statusColor(status)
	if color == "" {
		return icon
	}
	return color + icon + colorReset
}

func colorizeStatus(status string) string {
	color, _ := statusColor(status)
	if color == "" {
		return status
	}
	return statusIcon(status) + " " + color + status + colorReset
}

func init() {
	rootCmd.AddCommand(statusCmd, listCmd)
}
