package worker_test

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gojarequire "github.com/dop251/goja_nodejs/require"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/respawn/internal/bridge"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/worker"
)

// fakeSource answers exchanges from a map and records every request.
type fakeSource struct {
	responses map[string]bridge.Response
	err       error
	requests  []string
}

func (s *fakeSource) Fetch(path string) (bridge.Response, error) {
	s.requests = append(s.requests, path)
	if s.err != nil {
		return bridge.Response{}, s.err
	}
	return s.responses[path], nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestHook_UsesBridgedCode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ts")
	writeFile(t, path, "export const a: number = 1")

	src := &fakeSource{responses: map[string]bridge.Response{
		path: {Code: []byte("exports.a = 1;"), Found: true},
	}}
	l := worker.NewHook(src, nil, false).Wrap(worker.NativeLoader{})

	code, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "exports.a = 1;", string(code))
	assert.Equal(t, []string{path}, src.requests)
}

func TestHook_NoArtifactFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.js")
	writeFile(t, path, "module.exports = 'native';")

	src := &fakeSource{responses: map[string]bridge.Response{}}
	l := worker.NewHook(src, nil, false).Wrap(worker.NativeLoader{})

	code, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 'native';", string(code))
	assert.Len(t, src.requests, 1)
}

func TestHook_ChannelFailureFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.js")
	writeFile(t, path, "native")

	src := &fakeSource{err: domain.ErrFrameTruncated}
	l := worker.NewHook(src, nil, false).Wrap(worker.NativeLoader{})

	code, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "native", string(code))
}

func TestHook_ExcludedDirSkipsBridge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node_modules", "lib", "index.js")
	writeFile(t, path, "module.exports = 1;")

	src := &fakeSource{}
	l := worker.NewHook(src, []string{"node_modules"}, false).Wrap(worker.NativeLoader{})

	code, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1;", string(code))
	assert.Empty(t, src.requests)
}

func TestHook_MissingFileIsNotBridged(t *testing.T) {
	src := &fakeSource{}
	l := worker.NewHook(src, nil, false).Wrap(worker.NativeLoader{})

	_, err := l.Load(filepath.Join(t.TempDir(), "missing.ts"))
	assert.ErrorIs(t, err, gojarequire.ModuleFileDoesNotExistError)
	assert.Empty(t, src.requests)
}

func TestHook_AttachesMapWhenTranslating(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ts")
	writeFile(t, path, "ts")

	posMap := []byte(`{"version":3,"sources":["a.ts"],"mappings":"AAAA"}`)
	src := &fakeSource{responses: map[string]bridge.Response{
		path: {Code: []byte("exports.a = 1;"), Map: posMap, Found: true},
	}}

	translated, err := worker.NewHook(src, nil, true).Wrap(worker.NativeLoader{}).Load(path)
	require.NoError(t, err)
	prefix := "exports.a = 1;\n//# sourceMappingURL=data:application/json;base64,"
	require.True(t, strings.HasPrefix(string(translated), prefix))
	encoded := strings.TrimSpace(strings.TrimPrefix(string(translated), prefix))
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, posMap, decoded)

	plain, err := worker.NewHook(src, nil, false).Wrap(worker.NativeLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "exports.a = 1;", string(plain))
}

func TestRegistry_DispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	ts := filepath.Join(dir, "a.ts")
	js := filepath.Join(dir, "b.js")
	writeFile(t, ts, "ts source")
	writeFile(t, js, "js source")

	var seen []string
	tag := func(name string) worker.Loader {
		return worker.LoaderFunc(func(path string) ([]byte, error) {
			seen = append(seen, name+":"+filepath.Base(path))
			return []byte(name), nil
		})
	}

	reg := worker.NewRegistry(worker.NativeLoader{})
	reg.Register(".ts", tag("ts"))
	reg.Register(".js", tag("js"))

	_, err := reg.Load(ts)
	require.NoError(t, err)
	_, err = reg.Load(js)
	require.NoError(t, err)

	assert.Equal(t, []string{"ts:a.ts", "js:b.js"}, seen)
	assert.Equal(t, []string{".ts", ".js"}, reg.Extensions())
}

func TestRegistry_ProbesExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "util.ts"), "ts")
	writeFile(t, filepath.Join(dir, "lib", "index.ts"), "index")

	reg := worker.NewRegistry(worker.NativeLoader{})
	reg.Register(".ts", worker.NativeLoader{})
	reg.Register(".js", worker.NativeLoader{})

	code, err := reg.Load(filepath.Join(dir, "util"))
	require.NoError(t, err)
	assert.Equal(t, "ts", string(code))

	code, err = reg.Load(filepath.Join(dir, "util.js"))
	require.NoError(t, err)
	assert.Equal(t, "ts", string(code), "a .js specifier may name a .ts file")

	code, err = reg.Load(filepath.Join(dir, "lib", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "index", string(code))

	_, err = reg.Load(filepath.Join(dir, "nothing"))
	assert.ErrorIs(t, err, gojarequire.ModuleFileDoesNotExistError)

	_, err = reg.Load(filepath.Join(dir, "nothing.js"))
	assert.ErrorIs(t, err, gojarequire.ModuleFileDoesNotExistError)
}

func TestRegistry_UnknownExtensionUsesFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	writeFile(t, path, `{"a":1}`)

	reg := worker.NewRegistry(worker.NativeLoader{})
	reg.Register(".ts", worker.LoaderFunc(func(string) ([]byte, error) {
		return nil, errors.New("must not be called")
	}))

	code, err := reg.Load(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(code))
}

func TestRegistry_WrapCoversEveryExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.ts", "b.mjs", "c.cjs"} {
		writeFile(t, filepath.Join(dir, name), name)
	}

	reg := worker.NewRegistry(worker.NativeLoader{})
	for _, ext := range []string{".ts", ".mjs", ".cjs"} {
		reg.Register(ext, worker.NativeLoader{})
	}

	src := &fakeSource{responses: map[string]bridge.Response{}}
	hook := worker.NewHook(src, nil, false)
	var wrapped []string
	reg.Wrap(func(ext string, l worker.Loader) worker.Loader {
		wrapped = append(wrapped, ext)
		return hook.Wrap(l)
	})

	for _, name := range []string{"a.ts", "b.mjs", "c.cjs"} {
		_, err := reg.Load(filepath.Join(dir, name))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{".ts", ".mjs", ".cjs"}, wrapped)
	assert.Len(t, src.requests, 3)
}
