package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/invariantlabs-ai/invariant-go/internal/ai"
	"github.com/invariantlabs-ai/invariant-go/internal/errors"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/ast"
	"github.com/invariantlabs-ai/invariant-go/internal/policy/interp"
	"github.com/invariantlabs-ai/invariant-go/internal/stdlib"
	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

var (
	analyzePolicyFile string
	analyzeTraceFile  string
	analyzeAll        bool
	analyzeWatch      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Evaluate policy rules against a recorded trace",
	Long: `Analyze loads a policy document (JSON or YAML) and a trace file,
evaluates every rule, and reports which rules fired together with the
trace addresses they implicate.

With --watch the evaluation re-runs whenever either file changes.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzePolicyFile, "policy", "p", "", "policy document (JSON or YAML)")
	analyzeCmd.Flags().StringVarP(&analyzeTraceFile, "trace", "t", "", "trace file (JSON)")
	analyzeCmd.Flags().BoolVar(&analyzeAll, "all", false, "collect all violations instead of the first per rule")
	analyzeCmd.Flags().BoolVarP(&analyzeWatch, "watch", "w", false, "re-evaluate when the policy or trace changes")
	_ = analyzeCmd.MarkFlagRequired("policy")
	_ = analyzeCmd.MarkFlagRequired("trace")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	classifier, err := ai.New(cfg.ClassifierConfig())
	if err != nil {
		return err
	}
	registry := stdlib.Default(classifier)

	in := interp.New(registry, interp.Options{
		CollectAll: analyzeAll || cfg.Eval.CollectAll,
		Logger:     slogger(),
	})

	if err := analyzeOnce(ctx, in, registry); err != nil && !analyzeWatch {
		return err
	}
	if !analyzeWatch {
		return nil
	}
	return watchAndAnalyze(ctx, in, registry)
}

// analyzeOnce runs one full load-validate-evaluate-render cycle.
func analyzeOnce(ctx context.Context, in *interp.Interpreter, registry *stdlib.Registry) error {
	root, err := loadPolicy(analyzePolicyFile, registry)
	if err != nil {
		return err
	}
	tr, err := loadTrace(analyzeTraceFile)
	if err != nil {
		return err
	}

	for _, verr := range root.Errors {
		fmt.Println(styles.Warning.Render("validation: ") + verr.Error())
	}

	report, err := in.Evaluate(ctx, root, tr)
	if err != nil {
		return err
	}
	renderReport(report)
	return nil
}

// watchAndAnalyze re-runs the analysis whenever the policy or trace
// file is rewritten. Editors replace files on save, so both the parent
// directories and the files themselves are watched.
func watchAndAnalyze(ctx context.Context, in *interp.Interpreter, registry *stdlib.Registry) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.ConfigWrap(err, "cli.watchAndAnalyze", "failed to create file watcher")
	}
	defer watcher.Close()

	for _, dir := range []string{filepath.Dir(analyzePolicyFile), filepath.Dir(analyzeTraceFile)} {
		if err := watcher.Add(dir); err != nil {
			return errors.ConfigWrap(err, "cli.watchAndAnalyze", "failed to watch "+dir)
		}
	}
	logger.Info("watching for changes", "policy", analyzePolicyFile, "trace", analyzeTraceFile)

	watched := map[string]bool{
		filepath.Clean(analyzePolicyFile): true,
		filepath.Clean(analyzeTraceFile):  true,
	}

	// Debounce bursts of write events from a single save.
	var pending *time.Timer
	rerun := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rerun:
			if err := analyzeOnce(ctx, in, registry); err != nil {
				logger.Error("analysis failed", "error", err)
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", werr)
		}
	}
}

// loadPolicy reads and validates a policy document. YAML documents are
// converted to JSON before decoding.
func loadPolicy(path string, registry *stdlib.Registry) (*ast.PolicyRoot, error) {
	const op = "cli.loadPolicy"
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied path
	if err != nil {
		return nil, errors.ConfigWrap(err, op, "failed to read policy file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrap(err, errors.KindParse, op, "invalid YAML policy")
		}
		data, err = json.Marshal(doc)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindParse, op, "failed to convert YAML policy")
		}
	}

	root, err := ast.DecodePolicy(data)
	if err != nil {
		return nil, err
	}
	ast.Resolve(root, registry)
	return root, nil
}

func loadTrace(path string) (*trace.Trace, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied path
	if err != nil {
		return nil, errors.ConfigWrap(err, "cli.loadTrace", "failed to read trace file")
	}
	return trace.ParseJSON(data)
}

// renderReport prints the per-rule outcomes.
func renderReport(report *interp.Report) {
	fmt.Println(styles.Title.Render("Analysis results"))
	fired := 0
	for _, rr := range report.Rules {
		switch {
		case rr.Status == interp.StatusError:
			fmt.Printf("  %s rule %d: %v\n", styles.Error.Render("✗"), rr.Rule, rr.Err)
		case rr.Fired:
			fired++
			fmt.Printf("  %s rule %d fired (%d satisfying)\n", styles.Warning.Render("!"), rr.Rule, rr.Count)
			for _, addr := range rr.Addresses {
				fmt.Printf("      %s\n", styles.Subtle.Render(addr))
			}
			for _, v := range rr.Violations {
				if v.Exception != nil {
					fmt.Printf("      %s %v\n", styles.Error.Render("raise"), v.Exception)
				}
			}
		default:
			fmt.Printf("  %s rule %d %s\n", styles.Success.Render("✓"), rr.Rule, styles.Subtle.Render(strings.ToLower(rr.Status.String())))
		}
	}
	summary := fmt.Sprintf("%d rules, %d fired", len(report.Rules), fired)
	if fired > 0 {
		fmt.Println(styles.Warning.Render(summary))
		return
	}
	fmt.Println(styles.Success.Render(summary))
}
