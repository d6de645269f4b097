package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"museum-api-verifier/internal/parser"
)

// ContractInfo is the contract command's result.
type ContractInfo struct {
	Source     string             `json:"source"`
	Operations []parser.Operation `json:"operations"`
	Missing    []string           `json:"missing,omitempty"`
}

// NewContractCommand creates the contract command.
func NewContractCommand(rootOpts *RootOptions) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Validate the OpenAPI contract and show the documented operations",
		Long: `Load the OpenAPI contract (embedded, a file, or a URL), validate it and
check that every endpoint family of the matrix is documented.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parser.LoadContract(cmd.Context(), source)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load contract", err)
			}
			info := ContractInfo{
				Source:     doc.Source,
				Operations: doc.Operations(),
				Missing:    doc.Missing(endpointTemplates()),
			}

			if rootOpts.Format == "json" {
				err = writeJSON(cmd.OutOrStdout(), info)
			} else {
				err = writeContract(cmd.OutOrStdout(), info)
			}
			if err != nil {
				return err
			}
			if len(info.Missing) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("contract does not document %s", strings.Join(info.Missing, ", ")))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "contract file or URL (default: embedded)")

	return cmd
}

func writeContract(out io.Writer, info ContractInfo) error {
	var b strings.Builder
	fmt.Fprintf(&b, "contract %s\n", info.Source)
	for _, op := range info.Operations {
		statuses := make([]string, len(op.Statuses))
		for i, s := range op.Statuses {
			statuses[i] = strconv.Itoa(s)
		}
		fmt.Fprintf(&b, "  GET %s (%s) -> %s\n", op.Path, op.ID, strings.Join(statuses, ", "))
		if len(op.Parameters) > 0 {
			fmt.Fprintf(&b, "      params: %s\n", strings.Join(op.Parameters, " "))
		}
	}
	if len(info.Missing) > 0 {
		fmt.Fprintf(&b, "missing: %s\n", strings.Join(info.Missing, ", "))
	} else {
		b.WriteString("all endpoint families documented\n")
	}
	_, err := io.WriteString(out, b.String())
	return err
}
