package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devopin/agent/internal/buildinfo"
	"github.com/devopin/agent/pkg/control"
	"github.com/devopin/agent/pkg/tui"
)

var (
	socketPath string
	plainLogs  bool
	logFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "devopin",
	Short: "Control client for the devopin monitoring agent",
	Long:  "devopin talks to the local devopin-agentd control socket: service management, status queries, and live log streaming.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/devopin-agent.sock", "agent socket path")

	logsCmd.Flags().BoolVar(&plainLogs, "plain", false, "print raw frames instead of the interactive viewer")
	logsCmd.Flags().StringVar(&logFile, "file", "", "stream a log file instead of a service unit")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(versionCmd)
	for _, action := range []string{control.CmdStart, control.CmdStop, control.CmdRestart, control.CmdEnable, control.CmdDisable} {
		rootCmd.AddCommand(serviceActionCmd(action))
	}
}

func client() *control.Client {
	return control.NewClient(socketPath)
}

// printResponse renders a response and returns an error for non-success so
// the process exit code reflects it.
func printResponse(resp control.Response) error {
	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	if resp.Output != "" {
		fmt.Println(resp.Output)
	}
	if !resp.Success {
		return fmt.Errorf("command failed")
	}
	return nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the agent is running",
	RunE: func(_ *cobra.Command, _ []string) error {
		resp, err := client().Do(control.Request{Command: control.CmdStatus})
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [service]",
	Short: "Query agent or service status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		req := control.Request{Command: control.CmdStatus}
		if len(args) == 1 {
			req.Service = args[0]
		}
		resp, err := client().Do(req)
		if err != nil {
			return err
		}
		if resp.Data != nil {
			data, _ := json.MarshalIndent(resp.Data, "", "  ")
			fmt.Println(string(data))
		}
		return printResponse(resp)
	},
}

func serviceActionCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s <service>", action),
		Short: fmt.Sprintf("%s a systemd service", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := client().Do(control.Request{Command: action, Service: args[0]})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

var logsCmd = &cobra.Command{
	Use:   "logs [service]",
	Short: "Stream live logs for a service unit or a log file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		req := control.Request{Command: control.CmdLogsStream, Path: logFile}
		if len(args) == 1 {
			req.Service = args[0]
		}
		if req.Service == "" && req.Path == "" {
			return fmt.Errorf("a service name or --file is required")
		}

		if plainLogs {
			return streamPlain(req)
		}
		return tui.Run(client(), req)
	},
}

func streamPlain(req control.Request) error {
	ack, frames, closer, err := client().Stream(req)
	if err != nil {
		return err
	}
	defer closer()

	fmt.Fprintf(os.Stderr, "streaming %s\n", ack.StreamID)
	for frame := range frames {
		if frame.Command == control.FrameStreamEnded {
			return nil
		}
		if line, ok := frame.Data.(string); ok {
			fmt.Println(line)
		}
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("devopin %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}
