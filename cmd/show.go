package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"smtpvoid/storage"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored mail with its recipients",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return fmt.Errorf("invalid mail id %q", args[0])
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	fetcher, ok := store.(storage.Fetcher)
	if !ok {
		return fmt.Errorf("%T cannot read mail back", store)
	}
	rec, err := fetcher.Fetch(cmd.Context(), id)
	if err != nil {
		return err
	}
	return writeRecord(cmd.OutOrStdout(), rec)
}

func writeRecord(w io.Writer, rec *storage.Record) error {
	if _, err := fmt.Fprintf(w, "Mail-Id: %d\nFrom: %s\n", rec.ID, rec.From); err != nil {
		return err
	}
	for _, rcpt := range rec.Recipients {
		if _, err := fmt.Fprintf(w, "To: %s\n", rcpt); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%s", rec.Body)
	return err
}
