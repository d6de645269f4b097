package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"museum-api-verifier/internal/contract"
	"museum-api-verifier/internal/matrix"
	"museum-api-verifier/internal/parser"
)

// CaseInfo describes one matrix case for listing.
type CaseInfo struct {
	Name        string   `json:"name"`
	Family      string   `json:"family"`
	Path        string   `json:"path"`
	Params      string   `json:"params"`
	Credential  string   `json:"credential"`
	Identifier  string   `json:"identifier,omitempty"`
	Paginated   bool     `json:"paginated,omitempty"`
	Rules       []string `json:"rules"`
	KnownIssues []string `json:"known_issues,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		only   []string
		source string
	)

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the verification matrix without sending requests",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parser.LoadContract(cmd.Context(), source)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load contract", err)
			}
			infos := describe(matrix.Filter(matrix.Build(doc), only))
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			return writeCaseTable(cmd.OutOrStdout(), infos)
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "list only cases whose name starts with one of these prefixes")
	cmd.Flags().StringVar(&source, "source", "", "contract file or URL (default: embedded)")

	return cmd
}

func describe(cases []matrix.Case) []CaseInfo {
	infos := make([]CaseInfo, 0, len(cases))
	for _, c := range cases {
		info := CaseInfo{
			Name:       c.Name,
			Family:     string(c.Endpoint.Family),
			Path:       c.Endpoint.PathTemplate,
			Params:     c.Params.Merge(c.Endpoint.BaseParams).String(),
			Credential: string(c.Credential),
			Paginated:  c.Peer != nil,
		}
		if c.Identifier != nil {
			info.Identifier = c.Identifier.Name
		}
		for _, r := range c.Rules {
			info.Rules = append(info.Rules, r.Description)
			if r.Severity == contract.SeverityKnownIssue {
				info.KnownIssues = append(info.KnownIssues, r.Reason)
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func writeCaseTable(out io.Writer, infos []CaseInfo) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tFAMILY\tPATH\tPARAMS\tCREDENTIAL\tRULES\tNOTES")
	for _, info := range infos {
		var notes []string
		if info.Identifier != "" {
			notes = append(notes, "needs "+info.Identifier+" id")
		}
		if info.Paginated {
			notes = append(notes, "peer page")
		}
		if len(info.KnownIssues) > 0 {
			notes = append(notes, "known issue")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			info.Name, info.Family, info.Path, info.Params, info.Credential, len(info.Rules), strings.Join(notes, ", "))
	}
	fmt.Fprintf(tw, "\n%d case(s)\n", len(infos))
	return tw.Flush()
}
