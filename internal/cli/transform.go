package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/pkg/transform"
)

// ErrNoFields is returned when a command needs at least one field or path.
var ErrNoFields = errors.New("at least one field is required")

type datesOptions struct {
	to       string
	paths    []string
	location string
}

func newDatesCmd() *cobra.Command {
	opts := datesOptions{to: config.DateTargetDate}
	cmd := &cobra.Command{
		Use:   "dates [file]",
		Short: "Convert date fields to date, localIso or zonedIso",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, err := opts.build()
			if err != nil {
				return err
			}
			return runChain(cmd, args, fn)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.to, "to", opts.to, "target: date, localIso or zonedIso")
	fs.StringArrayVarP(&opts.paths, "path", "p", nil, "field path such as start, items[0].end or a.b (repeatable)")
	fs.StringVar(&opts.location, "location", "Local", "IANA zone, Local or UTC")
	return cmd
}

func (o datesOptions) build() (transform.Func, error) {
	if len(o.paths) == 0 {
		return nil, ErrNoFields
	}
	loc, err := config.Dates{Location: o.location}.LoadLocation()
	if err != nil {
		return nil, fmt.Errorf("location %q: %w", o.location, err)
	}
	conversion, ok := transform.NewDateConverter(transform.WithLocation(loc)).Conversion(o.to)
	if !ok {
		return nil, fmt.Errorf("unknown date target %q", o.to)
	}
	return transform.Build(transform.Path(o.paths...), conversion), nil
}

func newOnlyCmd() *cobra.Command {
	var fields []string
	cmd := &cobra.Command{
		Use:   "only [file]",
		Short: "Keep only the listed top-level fields",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(fields) == 0 {
				return ErrNoFields
			}
			return runChain(cmd, args, transform.Only(fields...))
		},
	}
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "field to keep (repeatable)")
	return cmd
}

func newIDsCmd() *cobra.Command {
	var fields []string
	attr := transform.DefaultIDAttr
	cmd := &cobra.Command{
		Use:   "ids [file]",
		Short: "Replace nested records with their id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(fields) == 0 {
				return ErrNoFields
			}
			return runChain(cmd, args, transform.Flatten(attr, fields...))
		},
	}
	fs := cmd.Flags()
	fs.StringArrayVarP(&fields, "field", "f", nil, "field holding a nested record (repeatable)")
	fs.StringVar(&attr, "attr", attr, "attribute copied from the nested record")
	return cmd
}
