package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/taskflow-agent/internal/tools"
)

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the assistant can call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := tools.NewRegistry()
			tools.RegisterTodoTools(registry, nil)
			descs := registry.Describe()

			if asJSON {
				return printJSON(descs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPARAMETERS\tDESCRIPTION")
			for _, d := range descs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, formatParams(d.Parameters), d.Description)
			}
			return w.Flush()
		},
	}
}

func formatParams(params map[string]tools.Param) string {
	if len(params) == 0 {
		return "-"
	}
	names := make([]string, 0, len(params))
	for name, p := range params {
		if p.Required {
			name += "*"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
