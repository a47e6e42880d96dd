package cli

import (
	"errors"
	"fmt"

	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <url> <fingerprint>",
		Short: "Retrieve one stored element",
		Args:  cobra.ExactArgs(2),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	id := parseSite(cfg, args[0])

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	k, err := s.Find(cmd.Context(), id, model.Fingerprint(args[1]))
	if errors.Is(err, store.ErrNotFound) {
		exitErr("get", fmt.Errorf("no knowledge for %s on %s", args[1], id))
	}
	if err != nil {
		exitErr("get", err)
	}

	printJSON(k)
}
