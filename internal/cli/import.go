package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import <url>",
		Short: "Import a site's knowledge from JSON",
		Long:  "Import a knowledge map (stdin or --file) into a site. Expects the format produced by export.",
		Args:  cobra.ExactArgs(1),
		Run:   runImport,
	}

	cmd.Flags().String("file", "", "Read from this file instead of stdin")
	cmd.Flags().Bool("replace", false, "Discard the site's existing knowledge first")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("file")
	replace, _ := cmd.Flags().GetBool("replace")

	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read input", err)
	}

	var entries model.SiteKnowledgeMap
	if err := json.Unmarshal(data, &entries); err != nil {
		exitErr("parse json", err)
	}

	cfg := loadConfig()
	id := parseSite(cfg, args[0])

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	imported, err := store.Import(cmd.Context(), s, id, entries, replace)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"site":%q,"imported":%d}`+"\n", id.String(), imported)
}
