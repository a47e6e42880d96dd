package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "clear <url>",
		Short: "Delete all stored knowledge for a site",
		Args:  cobra.ExactArgs(1),
		Run:   runClear,
	}

	RootCmd.AddCommand(cmd)
}

func runClear(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	id := parseSite(cfg, args[0])

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.Clear(cmd.Context(), id); err != nil {
		exitErr("clear", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"site":%q}`+"\n", id.String())
}
