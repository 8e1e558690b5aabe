package cli

import (
	"fmt"
	"io"

	"github.com/ashureev/escape-labs/internal/scenario"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [scenario...]",
		Short: "Validate scenario content",
		Long:  "Load each scenario and report files its manifest references but that cannot be read. Defaults to the configured scenario.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = []string{cfg.Scenario.Name}
			}
			reg := scenario.NewRegistry(cfg.Scenario.Dir)
			if n := checkScenarios(cmd.OutOrStdout(), reg, names); n > 0 {
				return fmt.Errorf("%d problem(s) found", n)
			}
			return nil
		},
	}
}

// checkScenarios prints one line per scenario and per problem, and returns
// the number of problems.
func checkScenarios(w io.Writer, reg *scenario.Registry, names []string) int {
	r := NewRenderer(true)
	total := 0
	for _, name := range names {
		s, err := reg.Get(name)
		if err != nil {
			r.Error(w, err)
			total++
			continue
		}
		problems := s.Check()
		if len(problems) == 0 {
			fmt.Fprintf(w, "ok   %s (%d rooms, %d fields)\n", name, s.RoomCount(), s.Catalog.Len())
			continue
		}
		fmt.Fprintf(w, "FAIL %s\n", name)
		for _, p := range problems {
			fmt.Fprintf(w, "     %v\n", p)
		}
		total += len(problems)
	}
	return total
}

func newScenariosCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List available scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			infos, err := scenario.List(cfg.Scenario.Dir)
			if err != nil {
				return err
			}
			printScenarios(cmd.OutOrStdout(), infos, cfg.Scenario.Name)
			return nil
		},
	}
}

func printScenarios(w io.Writer, infos []scenario.Info, active string) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "no scenarios found")
		return
	}
	for _, info := range infos {
		mark := " "
		if info.Name == active {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-28s %-32s %d rooms\n", mark, info.Name, info.Label, info.Rooms)
	}
}
