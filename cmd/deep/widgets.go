package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/deep/internal/pipeline"
	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
	"github.com/hyperengineering/deep/internal/widget/builtin"
)

var (
	widgetsJSONOutput bool
	widgetsReapply    bool
)

var widgetsCmd = &cobra.Command{
	Use:   "widgets",
	Short: "Inspect widget types and re-sync framework declarations",
}

var widgetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered widget types and their capabilities",
	Args:  cobra.NoArgs,
	RunE:  runWidgetsList,
}

var widgetsSyncCmd = &cobra.Command{
	Use:   "sync [framework-id]",
	Short: "Re-declare filters and exportables for every widget of a framework",
	Long: "Re-derives the filter and exportable declarations of every widget in the\n" +
		"framework, or in all frameworks when no id is given. With --reapply the\n" +
		"stored attributes are re-derived as well.",
	Args: cobra.MaximumNArgs(1),
	RunE: runWidgetsSync,
}

func init() {
	widgetsCmd.PersistentFlags().BoolVar(&widgetsJSONOutput, "json", false,
		"Output in JSON format")

	widgetsSyncCmd.Flags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and DEEP_DB_PATH)")
	widgetsSyncCmd.Flags().BoolVar(&widgetsReapply, "reapply", false,
		"Also re-derive filter and export data of stored attributes")

	widgetsCmd.AddCommand(widgetsListCmd)
	widgetsCmd.AddCommand(widgetsSyncCmd)
}

type widgetTypeInfo struct {
	Type string `json:"type"`
	widget.Capabilities
}

func runWidgetsList(cmd *cobra.Command, args []string) error {
	registry := builtin.Registry()

	var infos []widgetTypeInfo
	for _, t := range registry.Types() {
		res, _ := registry.Lookup(t)
		infos = append(infos, widgetTypeInfo{Type: t, Capabilities: res.Capabilities()})
	}

	if widgetsJSONOutput {
		return printJSON(cmd.OutOrStdout(), infos)
	}

	tw := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(tw, "TYPE\tFILTERS\tEXPORTABLE\tATTRIBUTE")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			info.Type, yesNo(info.Filters), yesNo(info.Exportable), yesNo(info.Attribute))
	}
	return tw.Flush()
}

type syncReport struct {
	FrameworkID string             `json:"framework_id,omitempty"`
	Widgets     types.SyncSummary  `json:"widgets"`
	Attributes  *types.SyncSummary `json:"attributes,omitempty"`
}

func runWidgetsSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var frameworkID string
	if len(args) == 1 {
		frameworkID = args[0]
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if frameworkID != "" {
		if _, err := db.GetFramework(ctx, frameworkID); err != nil {
			return fmt.Errorf("framework %s: %w", frameworkID, err)
		}
	}

	p := pipeline.New(db, builtin.Registry(), nil)

	report := syncReport{FrameworkID: frameworkID}
	report.Widgets, err = p.SyncAllWidgets(ctx, frameworkID)
	if err != nil {
		return fmt.Errorf("sync widgets: %w", err)
	}
	if widgetsReapply {
		attrs, err := p.ReapplyAttributes(ctx, frameworkID)
		if err != nil {
			return fmt.Errorf("reapply attributes: %w", err)
		}
		report.Attributes = &attrs
	}

	if widgetsJSONOutput {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		scope := "All frameworks"
		if frameworkID != "" {
			scope = "Framework " + frameworkID
		}
		fmt.Fprintf(out, "%s: %d widgets synced, %d failed\n",
			scope, report.Widgets.Synced, report.Widgets.Failed)
		if report.Attributes != nil {
			fmt.Fprintf(out, "Attributes: %d reapplied, %d failed\n",
				report.Attributes.Synced, report.Attributes.Failed)
		}
		for _, e := range report.Widgets.Errors {
			fmt.Fprintf(out, "  error: %s\n", e)
		}
	}

	if report.Widgets.Failed > 0 || (report.Attributes != nil && report.Attributes.Failed > 0) {
		return fmt.Errorf("sync finished with failures")
	}
	return nil
}
