package cli

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rcliao/element-memory/internal/fingerprint"
	"github.com/rcliao/element-memory/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "fingerprint [descriptor-json]",
		Short: "Compute the fingerprint of an element descriptor",
		Long:  `Compute the fingerprint of an element descriptor given as JSON, e.g. {"tag":"nav","class":"navbar","text":"Home","rect":{"x":0,"y":0,"width":800,"height":60}}. Reads stdin when no argument is given.`,
		Args:  cobra.MaximumNArgs(1),
		Run:   runFingerprint,
	}

	RootCmd.AddCommand(cmd)
}

type fingerprintOutput struct {
	Fingerprint model.Fingerprint     `json:"fingerprint"`
	Selector    string                `json:"selector"`
	Canonical   fingerprint.Canonical `json:"canonical"`
}

func runFingerprint(cmd *cobra.Command, args []string) {
	var data []byte
	if len(args) > 0 {
		data = []byte(strings.Join(args, " "))
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		data = b
	}

	var d model.ElementDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		exitErr("parse descriptor", err)
	}

	printJSON(fingerprintOutput{
		Fingerprint: fingerprint.Of(d),
		Selector:    fingerprint.Selector(d),
		Canonical:   fingerprint.CanonicalOf(d),
	})
}
