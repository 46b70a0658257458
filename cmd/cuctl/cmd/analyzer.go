package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	appanalyzers "github.com/bryanwahyu/cu-orchestrator/internal/application/analyzers"
)

var createAnalyzerCmd = &cobra.Command{
	Use:   "create-analyzer [analyzer_id]",
	Short: "Create an analyzer and wait until it is ready",
	Long: `Create an analyzer from a JSON template. With --prefix the staged set is
referenced from the request (trainingData or knowledgeSources, by --mode);
with --dir it is validated first, and --stage uploads it before that.

Example:
  cuctl create-analyzer invoice-v1 --template analyzer.json
  cuctl create-analyzer invoice-v1 --template analyzer.json --dir ./train --prefix invoices/v1 --stage`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := targetFromFlags(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		templatePath, _ := flags.GetString("template")
		stage, _ := flags.GetBool("stage")
		if stage && target.LocalDir == "" {
			return fmt.Errorf("--stage needs --dir")
		}

		tmpl, err := readTemplate(templatePath)
		if err != nil {
			return err
		}

		staged := target.LocalDir != "" || flags.Changed("prefix")
		svc, err := newService(cmd.Context(), staged)
		if err != nil {
			return err
		}

		command := appanalyzers.CreateCommand{
			AnalyzerID: args[0],
			Template:   tmpl,
			Mode:       target.Mode,
			Prefix:     target.Prefix,
			LocalDir:   target.LocalDir,
			Staged:     staged,
		}
		var res appanalyzers.Result
		if stage {
			res, err = svc.StageAndCreate(cmd.Context(), command)
		} else {
			res, err = svc.CreateFromStagedData(cmd.Context(), command)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [analyzer_id]",
	Short: "Analyze a document and print the result",
	Long: `Analyze one input with an existing analyzer.

  --file sends the bytes directly; add --remote to upload the file to the
  object store first and let the service fetch it by presigned URL.
  --url hands the service a URL it can read itself.

Example:
  cuctl analyze invoice-v1 --file ./sample.pdf
  cuctl analyze prebuilt-documentAnalyzer --url https://example.com/doc.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		file, _ := flags.GetString("file")
		inputURL, _ := flags.GetString("url")
		remote, _ := flags.GetBool("remote")

		if (file == "") == (inputURL == "") {
			return fmt.Errorf("exactly one of --file or --url is required")
		}
		if remote && file == "" {
			return fmt.Errorf("--remote needs --file")
		}

		svc, err := newService(cmd.Context(), remote)
		if err != nil {
			return err
		}

		var res appanalyzers.Result
		switch {
		case remote:
			res, err = svc.AnalyzeRemote(cmd.Context(), "cli", args[0], file)
		case file != "":
			res, err = svc.AnalyzeFile(cmd.Context(), "cli", args[0], file)
		default:
			res, err = svc.AnalyzeURL(cmd.Context(), "cli", args[0], inputURL)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res.Operation)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List analyzers on the resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context(), false)
		if err != nil {
			return err
		}
		list, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), list)
		}
		for _, a := range list {
			id, _ := a.StringField("analyzerId")
			status, _ := a.StringField("status")
			cmd.Printf("%s\t%s\n", id, status)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [analyzer_id]",
	Short: "Delete an analyzer (absent analyzers are not an error)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context(), false)
		if err != nil {
			return err
		}
		if err := svc.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("✓ analyzer %s deleted\n", args[0])
		return nil
	},
}

func init() {
	addTargetFlags(createAnalyzerCmd, false)
	createAnalyzerCmd.Flags().StringP("template", "f", "", "analyzer template JSON file ('-' for stdin)")
	createAnalyzerCmd.Flags().Bool("stage", false, "upload --dir before validating")

	analyzeCmd.Flags().String("file", "", "local file to analyze")
	analyzeCmd.Flags().String("url", "", "remote URL to analyze")
	analyzeCmd.Flags().Bool("remote", false, "upload --file and analyze it by presigned URL")

	listCmd.Flags().Bool("json", false, "print full analyzer objects")

	rootCmd.AddCommand(createAnalyzerCmd, analyzeCmd, listCmd, deleteCmd)
}
