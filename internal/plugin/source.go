package plugin

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"sellerbot/pkg/pluginapi"
)

// moduleKey is the plugin key of a source file: its name without extension.
func moduleKey(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// loadSource interprets one Go source file and extracts its entry points.
// Each file gets its own interpreter so modules cannot see each other.
func loadSource(ctx context.Context, path string, src []byte) (Module, error) {
	f, err := parser.ParseFile(token.NewFileSet(), path, src, parser.PackageClauseOnly)
	if err != nil {
		return Module{}, fmt.Errorf("parse: %w", err)
	}
	pkg := f.Name.Name

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return Module{}, fmt.Errorf("load stdlib: %w", err)
	}
	if err := i.Use(apiSymbols); err != nil {
		return Module{}, fmt.Errorf("load plugin api: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, string(src)); err != nil {
		return Module{}, fmt.Errorf("evaluate: %w", err)
	}

	lookup := func(name string) (reflect.Value, bool) {
		v, err := i.Eval(pkg + "." + name)
		if err != nil || !v.IsValid() {
			return reflect.Value{}, false
		}
		return v, true
	}

	m := Module{Key: moduleKey(path)}
	if v, ok := lookup("Info"); ok {
		if info, ok := v.Interface().(pluginapi.Info); ok {
			m.Info = info
		}
	}

	// The first entry point present decides the mode, even if a later one
	// exists too. A present entry point with the wrong signature is an error.
	if v, ok := lookup("Attach"); ok {
		fn, ok := v.Interface().(func(pluginapi.Router, pluginapi.Bot, *pluginapi.Context) error)
		if !ok {
			return Module{}, fmt.Errorf("Attach has type %s", v.Type())
		}
		m.Attach = fn
		return m, nil
	}
	if v, ok := lookup("Register"); ok {
		fn, ok := v.Interface().(func(pluginapi.Core) error)
		if !ok {
			return Module{}, fmt.Errorf("Register has type %s", v.Type())
		}
		m.Register = fn
		return m, nil
	}
	if v, ok := lookup("NewPlugin"); ok {
		fn, ok := v.Interface().(func(*pluginapi.Context) (*pluginapi.Plugin, error))
		if !ok {
			return Module{}, fmt.Errorf("NewPlugin has type %s", v.Type())
		}
		m.NewPlugin = fn
		return m, nil
	}
	return m, nil
}
