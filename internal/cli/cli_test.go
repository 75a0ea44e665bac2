package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mechbank/internal/bank"
	"github.com/roach88/mechbank/internal/config"
	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/store"
	"github.com/roach88/mechbank/internal/testutil"
)

const greenID = "green-space-cvd"

// cliEnv runs commands against one database with a pinned clock and ids.
type cliEnv struct {
	t     *testing.T
	db    string
	clock *testutil.StepClock
	ids   *testutil.SequentialIDs
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		t:     t,
		db:    filepath.Join(t.TempDir(), "bank.db"),
		clock: testutil.NewStepClock(),
		ids:   testutil.NewSequentialIDs("mech"),
	}
}

func (e *cliEnv) run(args ...string) (string, error) {
	return e.runWithInput("", args...)
}

func (e *cliEnv) runWithInput(stdin string, args ...string) (string, error) {
	e.t.Helper()
	opts := &RootOptions{
		BankOptions: []bank.Option{bank.WithClock(e.clock), bank.WithIDGenerator(e.ids)},
		Flags:       &config.Flags{},
	}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--db", e.db))
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, out)
	return out
}

// seedGreenSpace proposes the green-space record and takes it through a
// minor and a major revision: 1.0 -> 1.1 -> 2.0.
func (e *cliEnv) seedGreenSpace() {
	e.t.Helper()
	e.mustRun("propose", "testdata/green_space.yaml")
	e.mustRun("update", greenID, "testdata/patch_minor.yaml")
	e.mustRun("update", greenID, "testdata/patch_major.yaml")
}

func decodeResponse(t *testing.T, out string) (CLIResponse, map[string]any) {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	var data map[string]any
	if len(raw.Data) > 0 && raw.Data[0] == '{' {
		require.NoError(t, json.Unmarshal(raw.Data, &data))
	}
	return raw.CLIResponse, data
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mechbank", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"validate", "propose", "update", "retire", "get", "list", "search",
		"stats", "history", "export", "verify", "reconcile", "import",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestInvalidFormat(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("stats", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestValidate_Valid(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun("validate", "testdata/green_space.yaml")
	assert.Contains(t, out, "✓ 1 document(s) valid")

	_, err := os.Stat(env.db)
	assert.True(t, os.IsNotExist(err), "validate must not create the database")
}

func TestValidate_InvalidJSON(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run("validate", "testdata/invalid.yaml", "testdata/green_space.yaml", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  CLIError         `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Documents, 2)

	bad := resp.Data.Documents[0]
	assert.Equal(t, "weak-evidence", bad.ID)
	require.NotNil(t, bad.Problems)
	require.Len(t, bad.Problems.Fields, 1)
	assert.Equal(t, mechanism.ErrCodeEvidenceGrade, bad.Problems.Fields[0].Code)
	assert.True(t, resp.Data.Documents[1].Valid)
}

func TestValidate_InvalidText(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run("validate", "testdata/invalid.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E105 evidence.quality_rating")
}

func TestValidate_MissingPath(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("validate", "testdata/does-not-exist")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPropose_Text(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun("propose", "testdata/green_space.yaml")
	assert.Contains(t, out, "✓ green-space-cvd 0.0 -> 1.0 (INITIAL)")
	assert.Contains(t, out, "initial version")
}

func TestPropose_StdinGeneratesID(t *testing.T) {
	env := newCLIEnv(t)
	doc, err := os.ReadFile("testdata/green_space.yaml")
	require.NoError(t, err)
	withoutID := strings.Replace(string(doc), "id: green-space-cvd\n", "", 1)

	out, err := env.runWithInput(withoutID, "propose", "-", "--format", "json")
	require.NoError(t, err, out)

	var resp struct {
		Data bank.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "mech-0001", resp.Data.Record.ID)
	assert.Equal(t, bank.OutcomeCommitted, resp.Data.Outcome)
	assert.Equal(t, mechanism.Initial, resp.Data.Record.Version)
}

func TestPropose_Invalid(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run("propose", "testdata/invalid.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E105 evidence.quality_rating")
}

func TestPropose_Duplicate(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")

	out, err := env.run("propose", "testdata/green_space.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E107 id")
}

func TestPropose_ShapeError(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.runWithInput("name: A -> B\nversion: \"3.0\"\n", "propose", "-", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp, _ := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeShape, resp.Error.Code)
}

func TestUpdate_MinorThenMajor(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")

	out := env.mustRun("update", greenID, "testdata/patch_minor.yaml")
	assert.Contains(t, out, "1.0 -> 1.1 (MINOR)")

	out = env.mustRun("update", greenID, "testdata/patch_major.yaml")
	assert.Contains(t, out, "1.1 -> 2.0 (MAJOR)")
}

func TestUpdate_NoOp(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")

	out, err := env.runWithInput("effect_size:\n  point_estimate: 1.45\n", "update", greenID, "-")
	require.NoError(t, err)
	assert.Contains(t, out, "No change: green-space-cvd stays at version 1.0")

	history := env.mustRun("history", greenID, "--format", "json")
	var resp struct {
		Data []mechanism.ChangelogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(history), &resp))
	assert.Len(t, resp.Data, 1)
}

func TestUpdate_NotFound(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run("update", "missing", "testdata/patch_minor.yaml", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp, _ := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestHistory_Golden(t *testing.T) {
	env := newCLIEnv(t)
	env.seedGreenSpace()

	out := env.mustRun("history", greenID, "--format", "json")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "history_green_space", []byte(out))
}

func TestGet_Golden(t *testing.T) {
	env := newCLIEnv(t)
	env.seedGreenSpace()

	out := env.mustRun("get", greenID, "--format", "json")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "get_green_space", []byte(out))
}

func TestGet_Text(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")

	out := env.mustRun("get", greenID)
	assert.Contains(t, out, "odds_ratio 1.45 [1.2, 1.75]")
	assert.Contains(t, out, "yes (RM, FP)")
	assert.NotContains(t, out, "RETIRED")
}

func TestRetire_HidesFromListButNotGet(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")
	env.mustRun("propose", "testdata/batch/housing.json")

	out := env.mustRun("retire", greenID)
	assert.Contains(t, out, "✓ green-space-cvd retired")

	out = env.mustRun("list", "--format", "json")
	_, data := decodeResponse(t, out)
	assert.EqualValues(t, 1, data["total"])

	out = env.mustRun("list", "--include-retired", "--format", "json")
	_, data = decodeResponse(t, out)
	assert.EqualValues(t, 2, data["total"])

	out = env.mustRun("get", greenID, "--format", "json")
	_, data = decodeResponse(t, out)
	assert.Equal(t, true, data["retired"])
	assert.Equal(t, "1.0", data["version"])

	_, err := env.run("update", greenID, "testdata/patch_minor.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestList_Paging(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")
	env.mustRun("propose", "testdata/batch/housing.json")

	out := env.mustRun("list", "--skip", "1", "--limit", "1", "--format", "json")
	_, data := decodeResponse(t, out)
	assert.EqualValues(t, 2, data["total"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "housing-htn", items[0].(map[string]any)["id"])

	out = env.mustRun("list", "--category", "economic")
	assert.Contains(t, out, "housing-htn")
	assert.NotContains(t, out, greenID)

	_, err := env.run("list", "--skip", "-1")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")
	env.mustRun("propose", "testdata/batch/housing.json")

	out := env.mustRun("search", "--from", "housing", "--to", "HYPERTENSION", "--format", "json")
	var resp struct {
		Data []mechanism.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "housing-htn", resp.Data[0].ID)

	out = env.mustRun("search", "--from", "hypertension", "--to", "housing")
	assert.Contains(t, out, "No matching mechanisms")

	_, err := env.run("search")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")
	env.mustRun("propose", "testdata/batch/housing.json")

	out := env.mustRun("stats", "--format", "json")
	_, data := decodeResponse(t, out)
	assert.EqualValues(t, 2, data["total"])
	weighted := data["weighted_by_category"].(map[string]any)
	assert.InDelta(t, 1.0, weighted["built_environment"], 1e-9)
	assert.InDelta(t, 0.6, weighted["economic"], 1e-9)

	out = env.mustRun("stats")
	assert.Contains(t, out, "built_environment")
	assert.Contains(t, out, "0 retired")
}

func TestExport(t *testing.T) {
	env := newCLIEnv(t)
	env.seedGreenSpace()
	env.mustRun("propose", "testdata/batch/housing.json")

	path := filepath.Join(t.TempDir(), "changelog.json")
	env.mustRun("export", "-o", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []mechanism.ChangelogEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 4)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
	assert.Equal(t, "housing-htn", entries[3].MechanismID)
}

func corruptVersion(t *testing.T, dbPath, id string, major int) {
	t.Helper()
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.DB().ExecContext(context.Background(), `UPDATE mechanisms SET version_major = ? WHERE id = ?`, major, id)
	require.NoError(t, err)
}

func TestVerifyAndReconcile(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")

	out := env.mustRun("verify")
	assert.Contains(t, out, "✓ All changelogs consistent")

	corruptVersion(t, env.db, greenID, 5)

	out, err := env.run("verify", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp struct {
		Data VerifyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Len(t, resp.Data.Inconsistent, 1)
	assert.Equal(t, greenID, resp.Data.Inconsistent[0].ID)
	assert.Equal(t, mechanism.Version{Major: 5}, resp.Data.Inconsistent[0].Stored)

	// Quarantined: reads work, mutations are refused.
	env.mustRun("get", greenID)
	out, err = env.run("update", greenID, "testdata/patch_minor.yaml", "--format", "json")
	require.Error(t, err)
	r, _ := decodeResponse(t, out)
	require.NotNil(t, r.Error)
	assert.Equal(t, ErrCodeInconsistent, r.Error.Code)

	_, err = env.run("reconcile", greenID)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	corruptVersion(t, env.db, greenID, 1)
	out = env.mustRun("reconcile", greenID)
	assert.Contains(t, out, "✓ green-space-cvd reconciled")
	env.mustRun("update", greenID, "testdata/patch_minor.yaml")
}

func TestImport(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run("import", "testdata/batch", "--workers", "2", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, 2, resp.Data.Committed)
	assert.Equal(t, 1, resp.Data.Rejected)

	byID := map[string]ImportItem{}
	for _, it := range resp.Data.Items {
		byID[it.ID] = it
	}
	assert.Equal(t, ImportCommitted, byID[greenID].Status)
	assert.Equal(t, ImportCommitted, byID["housing-htn"].Status)
	assert.Equal(t, ImportRejected, byID["weak-evidence"].Status)

	// A second import rejects everything as duplicates.
	out, err = env.run("import", "testdata/batch/green_space.yaml", "--format", "json")
	require.Error(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Len(t, resp.Data.Items, 1)
	require.NotNil(t, resp.Data.Items[0].Problems)
	assert.Equal(t, mechanism.ErrCodeDuplicateID, resp.Data.Items[0].Problems.Fields[0].Code)
}

func TestYAMLOutput(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("propose", "testdata/green_space.yaml")

	out := env.mustRun("get", greenID, "--format", "yaml")
	assert.Contains(t, out, "status: ok")
	assert.Contains(t, out, "mechanism_type: social")
	assert.Contains(t, out, `version: "1.0"`)
}
