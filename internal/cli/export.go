package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export <url>",
		Short: "Export a site's knowledge as JSON",
		Long:  "Export a site's knowledge map as JSON, in the same layout as the site file.",
		Args:  cobra.ExactArgs(1),
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	id := parseSite(cfg, args[0])

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, err := s.Load(cmd.Context(), id)
	if err != nil {
		exitErr("export", err)
	}

	printJSON(m)
}
