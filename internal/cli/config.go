package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/internal/rules"
)

const defaultConfigPath = "configs/shaper.yaml"

func loadRules(path string) (*config.Config, *rules.Set, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}
	set, err := rules.Compile(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, set, nil
}

func newValidateCmd() *cobra.Command {
	cfgPath := defaultConfigPath
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file and compile its routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, set, err := loadRules(cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: OK (upstream %s, %d routes)\n", cfgPath, cfg.Upstream.URL, set.Len())
			for _, r := range set.Rules() {
				fmt.Fprintf(out, "  %-20s %s\n", r.Name, r.PathPrefix)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", cfgPath, "config yaml path")
	return cmd
}

type applyOptions struct {
	cfgPath   string
	route     string
	direction string
}

func newApplyCmd() *cobra.Command {
	opts := applyOptions{cfgPath: defaultConfigPath, direction: rules.DirectionResponse}
	cmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Run a configured route's request or response shape on a body",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, set, err := loadRules(opts.cfgPath)
			if err != nil {
				return err
			}
			rule, ok := set.Get(opts.route)
			if !ok {
				return fmt.Errorf("route %q not found", opts.route)
			}
			if opts.direction != rules.DirectionRequest && opts.direction != rules.DirectionResponse {
				return fmt.Errorf("direction must be %s or %s, got %q",
					rules.DirectionRequest, rules.DirectionResponse, opts.direction)
			}

			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			out, err := rule.Chain(opts.direction).Apply(input)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&opts.cfgPath, "config", "c", opts.cfgPath, "config yaml path")
	fs.StringVarP(&opts.route, "route", "r", "", "route name")
	fs.StringVarP(&opts.direction, "direction", "d", opts.direction, "request or response")
	_ = cmd.MarkFlagRequired("route")
	return cmd
}
