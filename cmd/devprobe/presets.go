package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/devprobe/internal/checker"
	"github.com/hazz-dev/devprobe/internal/preset"
)

type presetCatalog interface {
	List() []string
	Resolve(name string) ([]checker.Descriptor, error)
}

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets [name]",
		Short: "List the configured presets and their services",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile, false)
			if err != nil {
				return err
			}
			reg, err := preset.New(cfg.Presets)
			if err != nil {
				return fmt.Errorf("building presets: %w", err)
			}
			names := reg.List()
			if len(args) == 1 {
				names = []string{args[0]}
			}
			return printPresets(cmd.OutOrStdout(), reg, names)
		},
	}
}

func printPresets(out io.Writer, catalog presetCatalog, names []string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tSERVICE\tKIND\tTARGET\tNOTE")
	for _, name := range names {
		descriptors, err := catalog.Resolve(name)
		if err != nil {
			return err
		}
		for _, d := range descriptors {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, d.Name, d.Kind, d.Target, note(d))
		}
	}
	return w.Flush()
}

func note(d checker.Descriptor) string {
	if d.Kind != checker.KindPort {
		return ""
	}
	_, port, err := d.Address()
	if err != nil {
		return ""
	}
	if hint := preset.Describe(port); hint != "" && hint != d.Name {
		return hint
	}
	return "port " + strconv.Itoa(port)
}
