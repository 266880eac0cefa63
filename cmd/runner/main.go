package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wirl-lang/wirl/internal/callable"
	"github.com/wirl-lang/wirl/internal/checkpoint"
	"github.com/wirl-lang/wirl/internal/compile"
	"github.com/wirl-lang/wirl/internal/engine"
	"github.com/wirl-lang/wirl/internal/wirl/parser"
)

// cmd/runner is the standalone CLI from spec.md §6: compile one .wirl file,
// resolve every call target against a single named module, and drive one
// run to completion outside the Postgres-backed orchestrator entirely. It
// checkpoints against the embedded FileStore (spec.md §4.4 "one embedded
// single-file store ... for standalone runs via the CLI") so a suspended
// HITL node can be resumed with a second invocation instead of losing all
// progress.
func main() {
	var (
		functions string
		params    []string
		runID     string
	)

	cmd := &cobra.Command{
		Use:          "runner <path/to/file.wirl>",
		Short:        "Execute one WIRL workflow locally",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], functions, params, runID)
		},
	}
	cmd.Flags().StringVar(&functions, "functions", "", "path to the executable answering every call target (required)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "workflow input in K=V form, repeatable")
	cmd.Flags().StringVar(&runID, "run-id", "", "resume an existing run by id instead of starting a fresh one")
	_ = cmd.MarkFlagRequired("functions")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path, functions string, params []string, runID string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	ast, err := parser.Parse(src)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	name := ast.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(src))

	graph, err := compile.Compile(ast, name, hash)
	if err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}

	inputs, err := parseParams(params)
	if err != nil {
		return err
	}

	storeDir := os.Getenv("WORKFLOW_DEFINITIONS_PATH")
	if storeDir == "" {
		storeDir = ".wirl-checkpoints"
	}
	store, err := checkpoint.NewFileStore(storeDir)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}

	if runID == "" {
		runID = fmt.Sprintf("%s-%x", name, sha256.Sum256([]byte(fmt.Sprintf("%s%v", path, inputs)))[:4])
	}

	resolver := callable.NewModuleBinder(functions)
	eng := engine.New(graph, resolver)

	state, answer, err := loadOrSeed(ctx, store, runID, inputs)
	if err != nil {
		return err
	}

	result, err := eng.Run(ctx, runID, state, answer, nil, store)
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}

	switch result.Status {
	case engine.StatusSucceeded:
		out := engine.ProjectOutputs(graph, result.State.Channels)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case engine.StatusNeedsInput:
		fmt.Fprintf(os.Stderr, "run %s suspended at node %s awaiting input; re-run with --run-id %s and new --param answers once available\n",
			runID, result.Suspend.NodeID, runID)
		return fmt.Errorf("suspended")
	case engine.StatusCanceled:
		return fmt.Errorf("run %s canceled", runID)
	case engine.StatusFailed:
		return fmt.Errorf("run %s failed: %s", runID, result.Error.Error())
	default:
		return fmt.Errorf("unexpected run status %q", result.Status)
	}
}

// loadOrSeed resumes a run that already has a checkpoint under --run-id,
// otherwise seeds a fresh State from the workflow's declared inputs. A
// resumed run whose state is suspended on a HITL node treats the current
// --param values as the answer to that node.
func loadOrSeed(ctx context.Context, store *checkpoint.FileStore, runID string, inputs map[string]interface{}) (*engine.State, engine.ResumeAnswer, error) {
	snap, err := store.LoadLatest(ctx, runID)
	if err == nil {
		var answer engine.ResumeAnswer
		if snap.State.PendingHITL != nil {
			answer = engine.ResumeAnswer(inputs)
		}
		return snap.State, answer, nil
	}
	if !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return engine.NewState(inputs), nil, nil
}

// parseParams turns repeated --param K=V flags into a workflow inputs map.
// Values are parsed as JSON when possible (so --param n=3 yields a number,
// not the string "3"), falling back to a raw string otherwise.
func parseParams(params []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --param %q, expected K=V", p)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}
