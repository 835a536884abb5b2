package config

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/parse"
	"github.com/cognicore/stochlog/pkg/stochlog/proofgraph"
	"github.com/cognicore/stochlog/pkg/stochlog/prove"
	"github.com/cognicore/stochlog/pkg/stochlog/store"
	"github.com/cognicore/stochlog/pkg/stochlog/store/sqlite"
	"github.com/cognicore/stochlog/pkg/stochlog/wam"
)

func TestLoaderAllEmpty(t *testing.T) {
	loader := Loader{}

	comp, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Empty loader should succeed: %v", err)
	}
	defer comp.Close()

	if comp.Program == nil || comp.Program.Size() != 0 {
		t.Error("Should have an empty program")
	}
	if !comp.Program.Sealed() {
		t.Error("Program should be sealed")
	}
	if len(comp.Plugins) != 0 {
		t.Errorf("Expected no plugins, got %d", len(comp.Plugins))
	}
	if comp.Weighter == nil || comp.Prover == nil {
		t.Error("Should have weighter and prover")
	}
}

func TestLoaderBuildsComponents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rules/coworker.ppr", "coworker(X,Y) :- employee(X,Z), employee(Y,Z).\n")
	writeFile(t, dir, "facts/company.facts", "employee\talice\tibm\nemployee\tbob\tibm\n")
	writeFile(t, dir, "facts/family.graph", "child\tpam\tbob\n")
	writeFile(t, dir, "facts/kin.mg", "parent(/pam, /bob).\n")
	writeFile(t, dir, "params.tsv", "db(company)\t2\n")

	cfg := Default()
	cfg.Program.Rules = []string{"rules/**/*.ppr"}
	cfg.Program.Facts = []string{"facts/*.facts", "facts/*.graph", "facts/*.mg"}
	cfg.Weighting.Params = "params.tsv"
	cfg.Prover.Kind = "dfs"

	loader := Loader{Config: cfg, BaseDir: dir}
	comp, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer comp.Close()

	if !comp.Program.HasLabel("coworker/2") {
		t.Error("coworker/2 should be compiled")
	}
	if len(comp.Plugins) != 3 {
		t.Fatalf("Expected 3 plugins, got %d", len(comp.Plugins))
	}
	if v, ok := comp.Weighter.Params().Get(wam.NewFeature("db", "company")); !ok || v != 2 {
		t.Errorf("params not loaded: %v %v", v, ok)
	}
	if comp.Prover.Name() != "dfs" {
		t.Errorf("expected dfs prover, got %s", comp.Prover.Name())
	}

	q, err := parse.ParseQuery("coworker(alice,Y)")
	if err != nil {
		t.Fatal(err)
	}
	g, err := proofgraph.New(comp.Program, comp.Plugins, q, cfg.GraphOptions())
	if err != nil {
		t.Fatal(err)
	}
	d, err := comp.Prover.Prove(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(prove.SolvedQueries(g, d)); n != 2 {
		t.Errorf("expected 2 answers, got %d", n)
	}
}

func TestLoaderMissingRuleFile(t *testing.T) {
	cfg := Default()
	cfg.Program.Rules = []string{"missing.ppr"}
	loader := Loader{Config: cfg, BaseDir: t.TempDir()}

	_, err := loader.Load(context.Background())
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoaderEmptyGlobIsFine(t *testing.T) {
	cfg := Default()
	cfg.Program.Rules = []string{"**/*.ppr"}
	loader := Loader{Config: cfg, BaseDir: t.TempDir()}

	comp, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("unmatched glob should not fail: %v", err)
	}
	comp.Close()
}

func TestLoaderRuleSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.ppr", "p(X :- q(X).\n")
	cfg := Default()
	cfg.Program.Rules = []string{"bad.ppr"}
	loader := Loader{Config: cfg, BaseDir: dir}

	_, err := loader.Load(context.Background())
	if !errors.Is(err, internalerr.ErrSyntax) {
		t.Errorf("expected ErrSyntax, got %v", err)
	}
}

func TestLoaderUnknownFactSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "facts.csv", "a,b\n")
	cfg := Default()
	cfg.Program.Facts = []string{"facts.csv"}
	loader := Loader{Config: cfg, BaseDir: dir}

	if _, err := loader.Load(context.Background()); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoaderFactStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "facts.db")

	st, err := sqlite.OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := st.AddFact(ctx, store.Fact{Functor: "child", Args: []string{"pam", "bob"}}); err != nil {
		t.Fatal(err)
	}
	st.Close()

	cfg := Default()
	cfg.Program.Store = "facts.db"
	loader := Loader{Config: cfg, BaseDir: dir}
	comp, err := loader.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer comp.Close()

	if comp.Store == nil || len(comp.Plugins) != 1 {
		t.Fatalf("expected store plugin, got %d plugins", len(comp.Plugins))
	}
	if !comp.Plugins[0].Claim("child/2") {
		t.Error("store plugin should claim child/2")
	}
}

func TestCompileFilesAppendsSavedPrograms(t *testing.T) {
	dir := t.TempDir()
	rules, err := parse.ParseRules("employee(alice,ibm).\n")
	if err != nil {
		t.Fatal(err)
	}
	saved := wam.NewProgram()
	if err := wam.NewCompiler().CompileRules(rules, saved); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := saved.Save(&buf); err != nil {
		t.Fatal(err)
	}
	first := writeFile(t, dir, "a.ppr", "coworker(X,Y) :- employee(X,Z), employee(Y,Z).\n")
	second := writeFile(t, dir, "b.wam", buf.String())

	prog, err := CompileFiles([]string{first, second})
	if err != nil {
		t.Fatalf("CompileFiles: %v", err)
	}
	want := 17 + saved.Size()
	if prog.Size() != want {
		t.Errorf("expected %d instructions, got %d", want, prog.Size())
	}
	addrs := prog.Addresses("employee/2")
	if len(addrs) != 1 || addrs[0] != 18 {
		t.Errorf("expected employee/2 at 18, got %v", addrs)
	}
}

func TestCompileFilesKeepsSavedLabelOrder(t *testing.T) {
	dir := t.TempDir()
	rules, err := parse.ParseRules("employee(alice,ibm).\n")
	if err != nil {
		t.Fatal(err)
	}
	saved := wam.NewProgram()
	for _, l := range []string{"b/0", "a/0"} {
		if err := saved.InsertLabel(l); err != nil {
			t.Fatal(err)
		}
	}
	if err := wam.NewCompiler().CompileRules(rules, saved); err != nil {
		t.Fatal(err)
	}
	if err := saved.InsertLabel("tail/0"); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := saved.Save(&buf); err != nil {
		t.Fatal(err)
	}
	first := writeFile(t, dir, "a.ppr", "coworker(X,Y) :- employee(X,Z), employee(Y,Z).\n")
	second := writeFile(t, dir, "b.wam", buf.String())

	prog, err := CompileFiles([]string{first, second})
	if err != nil {
		t.Fatalf("CompileFiles: %v", err)
	}
	offset := prog.Size() - saved.Size()
	got := prog.LabelsAt(offset)
	want := []string{"b/0", "a/0", "employee/2"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("labels at %d: expected %v, got %v", offset, want, got)
	}
	if addrs := prog.Addresses("tail/0"); len(addrs) != 1 || addrs[0] != prog.Size() {
		t.Errorf("expected tail/0 at end address %d, got %v", prog.Size(), addrs)
	}

	var out bytes.Buffer
	if err := prog.Save(&out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.String(), "label:tail/0\n") {
		t.Errorf("listing should end with the trailing label:\n%s", out.String())
	}
}

func TestSquashingFromConfig(t *testing.T) {
	cfg := Default()
	cfg.Weighting.Squashing = "linear"
	comp, err := (&Loader{Config: cfg}).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer comp.Close()
	if comp.Weighter.Squashing().Name() != "linear" {
		t.Errorf("expected linear, got %s", comp.Weighter.Squashing().Name())
	}
}
