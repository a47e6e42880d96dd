package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rcliao/element-memory/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "show <url>",
		Short: "List stored knowledge for a site",
		Args:  cobra.ExactArgs(1),
		Run:   runShow,
	}

	cmd.Flags().Float64("min-confidence", 0, "Only entries at or above this confidence")
	cmd.Flags().Bool("keys-only", false, "Only output fingerprint and selector")

	RootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) {
	minConf, _ := cmd.Flags().GetFloat64("min-confidence")
	keysOnly, _ := cmd.Flags().GetBool("keys-only")

	cfg := loadConfig()
	id := parseSite(cfg, args[0])

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, err := s.Load(cmd.Context(), id)
	if err != nil {
		exitErr("load", err)
	}

	entries := make([]*model.ElementKnowledge, 0, len(m))
	for _, k := range m {
		if k.Confidence >= minConf {
			entries = append(entries, k)
		}
	}
	slices.SortFunc(entries, func(a, b *model.ElementKnowledge) int {
		if c := strings.Compare(a.Selector, b.Selector); c != 0 {
			return c
		}
		return strings.Compare(string(a.ElementHash), string(b.ElementHash))
	})

	if keysOnly {
		for _, k := range entries {
			fmt.Printf("%s %s\n", k.ElementHash, k.Selector)
		}
		return
	}
	if formatFlag == "text" {
		fmt.Printf("%s: %d entries\n", id, len(entries))
		for _, k := range entries {
			fmt.Printf("  %s  %-30s  %-6s  %s\n", k.ElementHash, k.Selector,
				model.ConfidenceLevel(k.Confidence), k.Understanding)
		}
		return
	}
	printJSON(entries)
}
