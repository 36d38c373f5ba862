package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ngbuild/internal/cli"
	"ngbuild/internal/stage"
)

const projectIndex = `<!DOCTYPE html>
<html ng-app="dash">
  <head>
    <!-- inject:css -->
    <!-- endinject -->
  </head>
  <body>
    <!-- inject:js -->
    <!-- endinject -->
  </body>
</html>
`

const projectOverrides = `tools:
  styles:
    command: cat
  annotate:
    command: cat
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

func newProject(t *testing.T, overrides string) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"package.json":                         `{"name":"dash","version":"1.0.0"}`,
		"ngbuild.yaml":                         overrides,
		"index.html":                           projectIndex,
		"app/app.js":                           `angular.module("dash", []).controller("MainCtrl", function MainCtrl($scope) { $scope.x = 1; });`,
		"app/app.spec.js":                      `describe("dash", function() {});`,
		"app/main/main.html":                   "<h1>{{ x }}</h1>\n",
		"assets/less/main.less":                "body { color: red; }\n",
		"assets/css/custom.css":                ".custom { margin: 0px; }\n",
		"assets/img/logo.png":                  "png-logo",
		"bower_components/angular/angular.js":  "window.angular = {};",
		"bower_components/angular/.bower.json": `{"name":"angular","version":"1.4.3"}`,
	}
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}
	return root
}

// run invokes the CLI and returns the result, stdout, stderr and error.
func run(t *testing.T, stdin string, args ...string) (cli.CLIResult, string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	res, err := cli.Run(context.Background(), args, cli.IO{In: strings.NewReader(stdin), Out: &out, Err: &errOut})
	return res, out.String(), errOut.String(), err
}

func TestStages_ListsCatalog(t *testing.T) {
	res, out, _, err := run(t, "", "stages")
	require.NoError(t, err)
	assert.Equal(t, cli.ExitSuccess, res.ExitCode)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(stage.All()))
	for i, s := range stage.All() {
		assert.True(t, strings.HasPrefix(lines[i], string(s.Name())+" "), lines[i])
		assert.Contains(t, lines[i], s.Help())
	}
}

func TestRun_InvalidInvocation(t *testing.T) {
	root := newProject(t, projectOverrides)
	cases := [][]string{
		{"--no-such-flag"},
		{"nonsense"},
		{"build", "extra"},
		{"stage"},
		{"--root", root, "stage", "copy", "no-such-stage"},
		{"--root", root, "ci", "trigger", "--env", "prod"},
		{"--timeout", "-1s", "stages"},
	}
	for _, args := range cases {
		res, _, _, err := run(t, "", args...)
		var inv *cli.InvocationError
		assert.True(t, errors.As(err, &inv), "%v: %v", args, err)
		assert.Equal(t, cli.ExitInvalidInvocation, res.ExitCode, "%v", args)
		assert.Nil(t, res.Report)
	}
}

func TestBuild_MissingPackageJSONIsConfigError(t *testing.T) {
	root := t.TempDir()
	res, _, _, err := run(t, "", "--root", root, "build")
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfigError, res.ExitCode)
}

func TestBuild_UnknownOverrideKeyIsConfigError(t *testing.T) {
	root := newProject(t, "bogus: 1\n")
	res, _, _, _ := run(t, "", "--root", root, "build")
	assert.Equal(t, cli.ExitConfigError, res.ExitCode)
}

func TestBuild_AssemblesDevelopmentTree(t *testing.T) {
	root := newProject(t, projectOverrides)
	res, _, logs, err := run(t, "", "--root", root, "--trace", "trace.json", "build")
	require.NoError(t, err, logs)
	assert.Equal(t, cli.ExitSuccess, res.ExitCode)
	require.NotNil(t, res.Report)
	assert.Len(t, res.Report.Results, 6)
	assert.Empty(t, res.Report.Skipped)

	index := readFile(t, root, "build/index.html")
	assert.Contains(t, index, `<script src="app/app.js"></script>`)
	assert.Contains(t, index, `href="assets/dash-1.0.0.css"`)
	assert.NotContains(t, index, "app.spec.js")
	assert.Equal(t, "body { color: red; }\n", readFile(t, root, "build/assets/dash-1.0.0.css"))

	var tr struct {
		Pipeline string            `json:"pipeline"`
		Events   []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(readFile(t, root, "trace.json")), &tr))
	assert.Equal(t, "build", tr.Pipeline)
	assert.NotEmpty(t, tr.Events)
	assert.Contains(t, logs, "pipeline completed")
}

func TestProd_DeclinedConfirmationAborts(t *testing.T) {
	root := newProject(t, projectOverrides)
	writeFile(t, root, "dist/index.html", "keep")

	res, _, logs, err := run(t, "n\n", "--root", root, "prod")
	var se *cli.StageError
	require.True(t, errors.As(err, &se), "%v", err)
	assert.Equal(t, stage.CleanProd, se.Result.Stage)
	assert.Equal(t, cli.ExitAborted, res.ExitCode)
	assert.Len(t, res.Report.Skipped, len(res.Report.FinalState)-1)
	assert.Equal(t, "keep", readFile(t, root, "dist/index.html"))
	assert.Contains(t, logs, stage.CleanProdQuestion)

	_, err = os.Stat(filepath.Join(root, "build"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "nothing after clean-prod may run")
}

func TestProd_AssemblesProductionTree(t *testing.T) {
	root := newProject(t, projectOverrides)
	writeFile(t, root, "dist/stale.txt", "old")

	res, _, logs, err := run(t, "", "--root", root, "--yes", "prod")
	require.NoError(t, err, logs)
	assert.Equal(t, cli.ExitSuccess, res.ExitCode)

	_, err = os.Stat(filepath.Join(root, "dist", "stale.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	index := readFile(t, root, "dist/index.html")
	assert.Contains(t, index, `<script src="//ajax.googleapis.com/ajax/libs/angularjs/1.4.3/angular.min.js"></script>`)
	assert.Contains(t, index, `<script src="assets/dash-1.0.0.min.js"></script>`)
	assert.Contains(t, index, `href="assets/dash-1.0.0.css"`)

	assert.FileExists(t, filepath.Join(root, "dist", "assets", "dash-1.0.0.min.js"))
	assert.FileExists(t, filepath.Join(root, "dist", "maps", "dash-1.0.0.min.js.map"))
	assert.Equal(t, "png-logo", readFile(t, root, "dist/assets/img/logo.png"))
}

func TestLint_ToolFailureIsStageFailure(t *testing.T) {
	root := newProject(t, projectOverrides+"  lint:\n    command: exit 3\n")
	res, _, _, err := run(t, "", "--root", root, "jshint")
	var se *cli.StageError
	require.True(t, errors.As(err, &se), "%v", err)
	assert.Equal(t, stage.Lint, se.Result.Stage)
	assert.Equal(t, stage.Failed, se.Result.Status)
	assert.Equal(t, cli.ExitStageFailure, res.ExitCode)
}

func TestImages_WithoutToolIsConfigError(t *testing.T) {
	root := newProject(t, projectOverrides)
	res, _, _, err := run(t, "", "--root", root, "images")
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfigError, res.ExitCode)
}

func TestStage_RunsNamedStagesInOrder(t *testing.T) {
	root := newProject(t, projectOverrides)
	res, _, _, err := run(t, "", "--root", root, "stage", "compile-styles", "copy")
	require.NoError(t, err)
	require.Len(t, res.Report.Results, 2)
	assert.Equal(t, stage.CompileStyles, res.Report.Results[0].Stage)
	assert.Equal(t, stage.Copy, res.Report.Results[1].Stage)
	assert.FileExists(t, filepath.Join(root, "build", "app", "app.js"))
}

func TestCITrigger(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer from-dotenv", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	root := newProject(t, "ci:\n  endpoint: "+srv.URL+"\n  tokenEnv: NGBUILD_CLI_TEST_TOKEN\n")
	t.Setenv("NGBUILD_CLI_TEST_TOKEN", "")
	require.NoError(t, os.Unsetenv("NGBUILD_CLI_TEST_TOKEN"))

	res, _, _, _ := run(t, "", "--root", root, "ci", "trigger", "--env", "staging", "--ref", "main")
	assert.Equal(t, cli.ExitConfigError, res.ExitCode, "no token anywhere")

	writeFile(t, root, ".env", "NGBUILD_CLI_TEST_TOKEN=from-dotenv\n")
	res, out, _, err := run(t, "", "--root", root, "ci", "trigger", "--env", "staging", "--ref", "main")
	require.NoError(t, err)
	assert.Equal(t, cli.ExitSuccess, res.ExitCode)
	assert.Equal(t, "staging", got["environment"])
	assert.Equal(t, "dash", got["project"])
	assert.Equal(t, got["request_id"], strings.TrimSpace(out))
}

func TestCITrigger_WithoutEndpointIsConfigError(t *testing.T) {
	root := newProject(t, projectOverrides)
	res, _, _, err := run(t, "", "--root", root, "ci", "trigger", "--env", "staging", "--ref", "main")
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfigError, res.ExitCode)
}

func TestCITrigger_FailuresAreStageFailures(t *testing.T) {
	t.Setenv("NGBUILD_CLI_TEST_TOKEN", "t")

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer rejecting.Close()
	closed := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closed.Close()

	for _, endpoint := range []string{rejecting.URL, closed.URL} {
		root := newProject(t, "ci:\n  endpoint: "+endpoint+"\n  tokenEnv: NGBUILD_CLI_TEST_TOKEN\n")
		res, _, _, err := run(t, "", "--root", root, "ci", "trigger", "--env", "staging", "--ref", "main")
		require.Error(t, err, endpoint)
		assert.Equal(t, cli.ExitStageFailure, res.ExitCode, endpoint)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, cli.ExitSuccess, cli.ExitCode(nil))
	assert.Equal(t, cli.ExitInternalError, cli.ExitCode(errors.New("boom")))
	assert.Equal(t, cli.ExitStageFailure, cli.ExitCode(context.Canceled))
	assert.Equal(t, cli.ExitAborted, cli.ExitCode(&cli.StageError{Result: &stage.Result{Stage: stage.CleanProd, Status: stage.Aborted}}))
	assert.Equal(t, cli.ExitStageFailure, cli.ExitCode(&cli.StageError{Result: &stage.Result{Stage: stage.Lint, Status: stage.Failed}}))
}
