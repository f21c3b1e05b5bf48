package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qoze/internal/session"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List past sessions",
	RunE:  listSessions,
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to show")
}

func listSessions(cmd *cobra.Command, args []string) error {
	path, err := session.DefaultStorePath()
	if err != nil {
		return err
	}
	store, err := session.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(sessionsLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  %-10s %3d turns  %6d in / %6d out  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04"),
			rec.Status, rec.TurnCount,
			rec.Usage.InputTokens, rec.Usage.OutputTokens,
			rec.WorkDir)
	}
	return nil
}
