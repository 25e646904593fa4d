// Package cli implements shapectl, the command line front end to the
// transforms and route configuration used by the shaping proxy.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/restransform/pkg/resource"
	"github.com/vyrodovalexey/restransform/pkg/transform"
)

// ErrEmptyInput is returned when neither a file nor stdin provides a body.
var ErrEmptyInput = errors.New("empty input")

// Run executes shapectl with args.
func Run(args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shapectl",
		Short:         "Reshape JSON bodies the way the shaping proxy does",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newDatesCmd(),
		newOnlyCmd(),
		newIDsCmd(),
		newValidateCmd(),
		newApplyCmd(),
		newFetchCmd(),
	)
	return cmd
}

// readInput reads the file named by args, or stdin when args is empty.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) > 0 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read %s: %w", args[0], err)
		}
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrEmptyInput
	}
	return text, nil
}

// runChain parses the input as JSON, applies steps and writes JSON text.
func runChain(cmd *cobra.Command, args []string, steps ...transform.Func) error {
	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	chain := append(resource.Chain{resource.ParseJSON}, steps...)
	chain = append(chain, resource.SerializeJSON)

	out, err := chain.Apply(input)
	if err != nil {
		return err
	}
	return writeOutput(cmd, out)
}

func writeOutput(cmd *cobra.Command, out any) error {
	text, ok := out.(string)
	if !ok {
		encoded, err := transform.Encode(out)
		if err != nil {
			return err
		}
		text = encoded
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}
