package markup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ngbuild/internal/config"
)

const indexHTML = `<!DOCTYPE html>
<html ng-app="app">
  <head>
    <title>Dashboard</title>
    <!-- inject:css -->
    <link rel="stylesheet" href="stale.css">
    <!-- endinject -->
  </head>
  <body>
	<!-- inject:js --><!-- endinject -->
    <div ui-view></div>
  </body>
</html>
`

func TestInject_OrderedAndIndented(t *testing.T) {
	refs := []string{
		"bower_components/angular/angular.js",
		"app/app.module.js",
		"scripts/boot.js",
		"assets/css/custom.css",
		"bower_components/bootstrap/dist/css/bootstrap.min.css",
		"templates-app.js",
		"assets/dashboard-1.0.0.css",
	}
	out, err := Inject([]byte(indexHTML), refs)
	require.NoError(t, err)

	want := `<!DOCTYPE html>
<html ng-app="app">
  <head>
    <title>Dashboard</title>
    <!-- inject:css -->
    <link rel="stylesheet" href="assets/css/custom.css">
    <link rel="stylesheet" href="bower_components/bootstrap/dist/css/bootstrap.min.css">
    <link rel="stylesheet" href="assets/dashboard-1.0.0.css">
    <!-- endinject -->
  </head>
  <body>
	<!-- inject:js -->
	<script src="bower_components/angular/angular.js"></script>
	<script src="app/app.module.js"></script>
	<script src="scripts/boot.js"></script>
	<script src="templates-app.js"></script>
	<!-- endinject -->
    <div ui-view></div>
  </body>
</html>
`
	assert.Equal(t, want, string(out))
}

func TestInject_EmptyRefsClearRegion(t *testing.T) {
	out, err := Inject([]byte(indexHTML), nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "    <!-- inject:css -->\n    <!-- endinject -->")
	assert.NotContains(t, string(out), "stale.css")
}

func TestInject_IsIdempotent(t *testing.T) {
	refs := []string{"app/a.js", "assets/a.css"}
	once, err := Inject([]byte(indexHTML), refs)
	require.NoError(t, err)
	twice, err := Inject(once, refs)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
}

func TestInject_MissingRegion(t *testing.T) {
	_, err := Inject([]byte("<html><!-- inject:css --><!-- endinject --></html>"), []string{"a.js"})
	var re *RegionError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, RegionJS, re.Region)

	_, err = Inject([]byte("<!-- inject:js --> no end"), nil)
	require.Error(t, err)
}

type fixedVersions map[string]string

func (f fixedVersions) Version(pkg string) (string, error) {
	v, ok := f[pkg]
	if !ok {
		return "", ErrVersionNotFound
	}
	return v, nil
}

const prodIndex = `<html>
<head>
  <!-- inject:css -->
  <link rel="stylesheet" href="assets/dashboard-1.0.0.css">
  <link rel="stylesheet" href="bower_components/bootstrap/dist/css/bootstrap.min.css">
  <!-- endinject -->
</head>
<body>
  <!-- inject:js -->
  <script src="bower_components/angular/angular.js"></script>
  <script src="bower_components/Chart.js/Chart.js"></script>
  <script src="assets/dashboard-1.0.0.min.js"></script>
  <!-- endinject -->
  <script>var src = "bower_components/angular/angular.js";</script>
</body>
</html>
`

func TestSubstitute_AngularToCDN(t *testing.T) {
	cdn := NewCDN(config.Default().BowerFiles.CDN, fixedVersions{"angular": "1.4.3", "bootstrap": "3.3.5"})

	out, subs, err := cdn.Substitute([]byte(prodIndex))
	require.NoError(t, err)

	want := `<html>
<head>
  <!-- inject:css -->
  <link rel="stylesheet" href="assets/dashboard-1.0.0.css">
  <link rel="stylesheet" href="https://maxcdn.bootstrapcdn.com/bootstrap/3.3.5/css/bootstrap.min.css">
  <!-- endinject -->
</head>
<body>
  <!-- inject:js -->
  <script src="//ajax.googleapis.com/ajax/libs/angularjs/1.4.3/angular.min.js"></script>
  <script src="bower_components/Chart.js/Chart.js"></script>
  <script src="assets/dashboard-1.0.0.min.js"></script>
  <!-- endinject -->
  <script>var src = "bower_components/angular/angular.js";</script>
</body>
</html>
`
	assert.Equal(t, want, string(out))
	assert.Equal(t, []Substitution{
		{From: "bower_components/bootstrap/dist/css/bootstrap.min.css", To: "https://maxcdn.bootstrapcdn.com/bootstrap/3.3.5/css/bootstrap.min.css"},
		{From: "bower_components/angular/angular.js", To: "//ajax.googleapis.com/ajax/libs/angularjs/1.4.3/angular.min.js"},
	}, subs)
}

func TestSubstitute_MinAndRevisionedVariants(t *testing.T) {
	cdn := NewCDN([]config.CdnMapping{{
		File:    "bower_components/angular/angular.js",
		Package: "angular",
		CDN:     "//cdn/${ version }/${filenameMin}",
	}}, fixedVersions{"angular": "1.4.3"})

	for _, ref := range []string{
		"bower_components/angular/angular.min.js",
		"bower_components/angular/angular-3f2a9c1d.js",
		"./bower_components/angular/angular.js",
	} {
		out, subs, err := cdn.Substitute([]byte(`<script src="` + ref + `"></script>`))
		require.NoError(t, err)
		assert.Equal(t, `<script src="//cdn/1.4.3/angular.min.js"></script>`, string(out), ref)
		assert.Len(t, subs, 1)
	}

	out, subs, err := cdn.Substitute([]byte(`<script src="bower_components/angular/angular-mocks.js"></script>`))
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Equal(t, `<script src="bower_components/angular/angular-mocks.js"></script>`, string(out))
}

func TestSubstitute_OnlyRewritesTheRealAttribute(t *testing.T) {
	cdn := NewCDN([]config.CdnMapping{{
		File:    "bower_components/angular/angular.js",
		Package: "angular",
		CDN:     "//cdn/${version}/angular.min.js",
	}}, fixedVersions{"angular": "1.4.3"})

	doc := `<script data-src="bower_components/angular/angular.js" src="bower_components/angular/angular.js"></script>`
	out, subs, err := cdn.Substitute([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, `<script data-src="bower_components/angular/angular.js" src="//cdn/1.4.3/angular.min.js"></script>`, string(out))
	assert.Len(t, subs, 1)

	doc = `<link data-href="bower_components/angular/angular.js" rel="stylesheet" HREF='bower_components/angular/angular.js'>`
	out, _, err = cdn.Substitute([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, `<link data-href="bower_components/angular/angular.js" rel="stylesheet" HREF='//cdn/1.4.3/angular.min.js'>`, string(out))
}

func TestSubstitute_MissingVersionFails(t *testing.T) {
	cdn := NewCDN(config.Default().BowerFiles.CDN, fixedVersions{})
	_, _, err := cdn.Substitute([]byte(prodIndex))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestBowerVersions_PrefersInstalledManifest(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(root, "bower_components", rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("angular/.bower.json", `{"name":"angular","version":"1.4.3"}`)
	write("angular/bower.json", `{"name":"angular","version":"1.0.0"}`)
	write("ng-table/bower.json", `{"name":"ng-table","version":"v0.8.3"}`)

	v := NewBowerVersions(root)
	got, err := v.Version("angular")
	require.NoError(t, err)
	assert.Equal(t, "1.4.3", got)

	got, err = v.Version("ng-table")
	require.NoError(t, err)
	assert.Equal(t, "0.8.3", got)

	_, err = v.Version("missing")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	// Cached after first read.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "bower_components", "angular")))
	got, err = v.Version("angular")
	require.NoError(t, err)
	assert.Equal(t, "1.4.3", got)
}
