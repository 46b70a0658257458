package cmd

import (
	"github.com/spf13/cobra"

	appstaging "github.com/bryanwahyu/cu-orchestrator/internal/application/staging"
	domain "github.com/bryanwahyu/cu-orchestrator/internal/domain/staging"
)

func targetFromFlags(cmd *cobra.Command) (appstaging.Target, error) {
	flags := cmd.Flags()
	dir, _ := flags.GetString("dir")
	prefix, _ := flags.GetString("prefix")
	modeStr, _ := flags.GetString("mode")
	mode, err := domain.ParseMode(modeStr)
	if err != nil {
		return appstaging.Target{}, err
	}
	return appstaging.Target{LocalDir: dir, Prefix: prefix, Mode: mode}, nil
}

func addTargetFlags(cmd *cobra.Command, dirRequired bool) {
	flags := cmd.Flags()
	flags.StringP("dir", "d", "", "local directory with the source files")
	flags.StringP("prefix", "p", "", "object store prefix")
	flags.StringP("mode", "m", string(domain.ModeStandardTraining), "staging mode: standard-training, pro-mode-reference, pro-mode-skip-analyze")
	if dirRequired {
		_ = cmd.MarkFlagRequired("dir")
	}
}

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Upload a local training or reference set to the object store",
	Long: `Upload every file under --dir to --prefix, together with its companions.

In pro-mode-reference the OCR result of each reference document is produced
with the prebuilt analyzer before upload; pro modes also get a sources.jsonl.

Example:
  cuctl stage --dir ./train --prefix invoices/v1
  cuctl stage --dir ./refs --prefix policies --mode pro-mode-reference`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := targetFromFlags(cmd)
		if err != nil {
			return err
		}
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		ctx := cmd.Context()
		needClient := target.Mode == domain.ModeProReference
		up := &appstaging.Uploader{Concurrency: concurrency, Log: cliLogger()}
		if needClient {
			svc, err := newService(ctx, true)
			if err != nil {
				return err
			}
			up.Store = svc.Store
			up.Producer = svc.ReferenceProducer()
		} else {
			store, err := newStore(ctx)
			if err != nil {
				return err
			}
			up.Store = store
		}

		rep, err := up.Upload(ctx, target)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that everything an analyzer will reference is staged",
	Long: `List --prefix once and compare it with the keys every file under --dir needs.
Missing keys are reported and the command exits non-zero.

Example:
  cuctl validate --dir ./train --prefix invoices/v1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := targetFromFlags(cmd)
		if err != nil {
			return err
		}
		store, err := newStore(cmd.Context())
		if err != nil {
			return err
		}
		rep, err := appstaging.NewValidator(store, cliLogger()).Validate(cmd.Context(), target)
		if err != nil {
			if missing, ok := domain.AsMissing(err); ok {
				for _, k := range missing.Missing {
					cmd.PrintErrln("missing:", k)
				}
			}
			return err
		}
		cmd.Printf("✓ %d files staged under %q (%d keys checked)\n", len(rep.Files), rep.Prefix, len(rep.Required))
		return nil
	},
}

func init() {
	addTargetFlags(stageCmd, true)
	stageCmd.Flags().Int("concurrency", appstaging.DefaultConcurrency, "parallel uploads")
	addTargetFlags(validateCmd, true)

	rootCmd.AddCommand(stageCmd, validateCmd)
}
