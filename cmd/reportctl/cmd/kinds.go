package cmd

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dipak0000812/credtrack/internal/report/model"
)

func newKindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the report kinds and their required filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := model.DefaultKinds()

			data := pterm.TableData{{"KIND", "REQUIRES", "FILENAME"}}
			for _, name := range kinds.Names() {
				k, err := kinds.Get(name)
				if err != nil {
					return err
				}
				requires := strings.Join([]string{
					model.ParamContentName, model.ParamStartDate, model.ParamEndDate, requiredParam(k.Requires),
				}, ", ")
				data = append(data, []string{k.Name, requires, k.Filename})
			}

			return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
		},
	}
}

func requiredParam(req model.Requirement) string {
	if req == model.RequireAgency {
		return model.ParamAgency
	}
	return model.ParamModality
}
