package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "List sites with stored knowledge",
		Run:   runSites,
	}

	RootCmd.AddCommand(cmd)
}

func runSites(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("list sites", err)
	}

	if formatFlag == "text" {
		for _, ss := range stats.Sites {
			name := ss.Site
			if name == "" {
				name = ss.File
			}
			fmt.Printf("%-50s %d\n", name, ss.Entries)
		}
		return
	}
	printJSON(stats.Sites)
}
