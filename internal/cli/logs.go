package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	logsCmd := &cobra.Command{
		Use:   "logs [session-id]",
		Short: "Show a conversation transcript",
		Args:  cobra.ExactArgs(1),
		Run:   runLogs,
	}
	logsCmd.Flags().Bool("rm", false, "Delete the transcript instead of printing it")

	RootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) {
	remove, _ := cmd.Flags().GetBool("rm")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if remove {
		if err := s.DeleteTurns(cmd.Context(), args[0]); err != nil {
			exitErr("logs", err)
		}
		fmt.Printf(`{"ok":true,"session_id":%q}`+"\n", args[0])
		return
	}

	turns, err := s.Turns(cmd.Context(), args[0])
	if err != nil {
		exitErr("logs", err)
	}

	b, _ := json.MarshalIndent(turns, "", "  ")
	fmt.Println(string(b))
}
