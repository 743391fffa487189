package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"sellerbot/internal/eventbus"
	logx "sellerbot/pkg/logx"
	"sellerbot/pkg/pluginapi"
)

const defaultCallTimeout = 10 * time.Second

// aliasFallbacks are tried, in order, after name and name+"_pro" when a
// lookup misses. Older configs refer to the lot creator by these keys.
var aliasFallbacks = []string{"create_lot_pro", "create_lot"}

// Handle is a discovered module and, once activated, its live state.
type Handle struct {
	Key      string
	Source   string
	Info     pluginapi.Info
	Mode     Mode
	Enabled  bool
	Active   bool
	Commands []string
	Buttons  []pluginapi.Button

	integration Integration
	instance    *pluginapi.Plugin
}

type Deps struct {
	Account pluginapi.Account
	Stock   pluginapi.Stock
	Bot     pluginapi.Bot
	// Config holds per-plugin sections keyed by plugin key.
	Config map[string]map[string]any
	// Admins may run plugin commands and press plugin buttons.
	Admins []int64
	Bus    eventbus.Bus
	Log    logx.Logger
}

type Option func(*Runtime)

// WithModules adds compiled-in modules. They are discovered before the
// plugin directory and win on key collisions.
func WithModules(mods ...Module) Option {
	return func(r *Runtime) { r.modules = append(r.modules, mods...) }
}

// WithDisabled lists plugin keys that Load discovers but never activates.
func WithDisabled(keys ...string) Option {
	return func(r *Runtime) {
		for _, k := range keys {
			if k = strings.TrimSpace(k); k != "" {
				r.disabled[k] = true
			}
		}
	}
}

// WithCallTimeout bounds every call into plugin code.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Runtime discovers plugin modules, activates them and routes events,
// commands and button presses to the handlers they registered.
//
// Every call into plugin code runs with a deadline and a recover, so a
// broken plugin is logged and skipped instead of taking the host down.
type Runtime struct {
	deps     Deps
	log      logx.Logger
	bus      eventbus.Bus
	modules  []Module
	disabled map[string]bool
	timeout  time.Duration
	admins   map[int64]bool

	mu        sync.RWMutex
	active    map[string]*Handle
	events    []eventRoute
	commands  map[string]commandRoute
	callbacks []callbackRoute
}

func New(deps Deps, opts ...Option) *Runtime {
	r := &Runtime{
		deps:     deps,
		log:      deps.Log,
		bus:      deps.Bus,
		disabled: map[string]bool{},
		timeout:  defaultCallTimeout,
		admins:   map[int64]bool{},
		active:   map[string]*Handle{},
		commands: map[string]commandRoute{},
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	r.log = r.log.With(logx.String("comp", "plugins"))
	if r.bus == nil {
		r.bus = eventbus.Nop{}
	}
	for _, id := range deps.Admins {
		r.admins[id] = true
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Discover lists the modules available to Load without activating any.
// Files starting with "_", test files and non-Go files are ignored. A
// file that fails to load is logged and skipped; a missing directory only
// yields the compiled-in modules.
func (r *Runtime) Discover(ctx context.Context, dir string) (map[string]*Handle, error) {
	found := map[string]*Handle{}
	for _, m := range r.modules {
		r.addHandle(found, m, "builtin")
	}
	if dir == "" {
		return found, nil
	}

	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.log.Info("plugin directory not found", logx.String("dir", dir))
		return found, nil
	case err != nil:
		return found, fmt.Errorf("read plugin dir: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
			continue
		}
		path := filepath.Join(dir, name)
		key := moduleKey(path)
		if _, dup := found[key]; dup {
			r.log.Warn("plugin key already taken; file skipped", logx.String("plugin", key), logx.String("path", path))
			continue
		}
		m, err := r.load(ctx, path)
		if err != nil {
			r.fail(key, "load", err)
			continue
		}
		r.addHandle(found, m, path)
	}
	return found, nil
}

func (r *Runtime) load(ctx context.Context, path string) (Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Module{}, err
	}
	return callValue(r, ctx, moduleKey(path), "load", func(ctx context.Context) (Module, error) {
		return loadSource(ctx, path, src)
	})
}

func (r *Runtime) addHandle(found map[string]*Handle, m Module, source string) {
	integ, err := m.integration()
	if err != nil {
		r.log.Warn("plugin skipped", logx.String("plugin", m.Key), logx.String("source", source), logx.Err(err))
		return
	}
	info := m.Info
	if info.Name == "" {
		info.Name = m.Key
	}
	found[m.Key] = &Handle{
		Key:         m.Key,
		Source:      source,
		Info:        info,
		Mode:        integ.Mode(),
		Enabled:     true,
		integration: integ,
	}
}

// Load discovers dir and activates every module not listed as disabled.
// It returns the number of active plugins afterwards.
func (r *Runtime) Load(ctx context.Context, dir string) (int, error) {
	found, err := r.Discover(ctx, dir)
	if err != nil {
		return r.activeCount(), err
	}
	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if r.disabled[k] {
			r.log.Info("plugin disabled by config", logx.String("plugin", k))
			continue
		}
		_ = r.Activate(ctx, found[k])
	}
	n := r.activeCount()
	r.log.Info("plugins loaded", logx.Int("active", n), logx.Int("discovered", len(found)))
	return n, nil
}

// Activate runs the module's entry point. Handlers it registered become
// routable only if it returns without error.
func (r *Runtime) Activate(ctx context.Context, h *Handle) error {
	if h == nil || h.integration == nil {
		return errors.New("plugin handle was not discovered")
	}
	r.mu.RLock()
	_, dup := r.active[h.Key]
	r.mu.RUnlock()
	if dup {
		return fmt.Errorf("plugin %q already active", h.Key)
	}

	reg := &registrar{key: h.Key}
	env := r.contextFor(h.Key)
	inst, err := callValue(r, ctx, h.Key, "activate", func(ctx context.Context) (*pluginapi.Plugin, error) {
		return h.integration.activate(ctx, reg, env, r.deps.Bot)
	})
	reg.seal()
	if err != nil {
		r.fail(h.Key, "activate", err)
		return err
	}

	h.instance = inst
	if inst != nil {
		if inst.Name != "" {
			h.Info = inst.Info
		}
		h.Enabled = inst.Enabled
		h.Buttons = inst.Buttons
	}
	h.Commands = reg.commandNames()
	h.Active = true

	r.mu.Lock()
	if _, dup := r.active[h.Key]; dup {
		r.mu.Unlock()
		return fmt.Errorf("plugin %q already active", h.Key)
	}
	r.active[h.Key] = h
	r.events = append(r.events, reg.events...)
	for _, c := range reg.commands {
		if prev, taken := r.commands[c.name]; taken || c.name == hostCommand {
			r.log.Warn("command already registered; ignored",
				logx.String("plugin", h.Key), logx.String("command", c.name), logx.String("owner", prev.key))
			continue
		}
		r.commands[c.name] = c
	}
	r.callbacks = append(r.callbacks, reg.callbacks...)
	r.mu.Unlock()

	r.bus.Publish(eventbus.Event{Type: eventbus.TopicPluginActivated, Kind: h.Key, Data: string(h.Mode)})
	r.log.Info("plugin activated",
		logx.String("plugin", h.Key),
		logx.String("mode", string(h.Mode)),
		logx.String("version", h.Info.Version),
		logx.Int("commands", len(h.Commands)),
	)
	return nil
}

// Deactivate drops the plugin's handlers and runs its OnStop hook.
// It reports whether the plugin was active.
func (r *Runtime) Deactivate(key string) bool {
	r.mu.Lock()
	h, ok := r.active[key]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.active, key)
	events := r.events[:0]
	for _, e := range r.events {
		if e.key != key {
			events = append(events, e)
		}
	}
	r.events = events
	for name, c := range r.commands {
		if c.key == key {
			delete(r.commands, name)
		}
	}
	callbacks := r.callbacks[:0]
	for _, c := range r.callbacks {
		if c.key != key {
			callbacks = append(callbacks, c)
		}
	}
	r.callbacks = callbacks
	inst := h.instance
	r.mu.Unlock()

	if inst != nil && inst.OnStop != nil {
		if err := r.call(context.Background(), key, "stop", func(context.Context) error {
			inst.OnStop()
			return nil
		}); err != nil {
			r.log.Warn("plugin stop failed", logx.String("plugin", key), logx.Err(err))
		}
	}
	r.log.Info("plugin unloaded", logx.String("plugin", key))
	return true
}

// Stop deactivates every plugin.
func (r *Runtime) Stop() {
	for _, h := range r.List() {
		r.Deactivate(h.Key)
	}
}

// Get looks up an active plugin by key, falling back to the "_pro" variant
// and then to the legacy lot creator keys.
func (r *Runtime) Get(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range append([]string{name, name + "_pro"}, aliasFallbacks...) {
		if h, ok := r.active[k]; ok {
			return *h, true
		}
	}
	return Handle{}, false
}

// List returns the active plugins sorted by key.
func (r *Runtime) List() []Handle {
	r.mu.RLock()
	out := make([]Handle, 0, len(r.active))
	for _, h := range r.active {
		out = append(out, *h)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *Runtime) activeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

func (r *Runtime) contextFor(key string) *pluginapi.Context {
	return &pluginapi.Context{
		Key:     key,
		Account: r.deps.Account,
		Stock:   r.deps.Stock,
		Bot:     r.deps.Bot,
		Log:     pluginLogger{r.log.With(logx.String("plugin", key))},
		Config:  r.deps.Config[key],
	}
}

func (r *Runtime) fail(key, stage string, err error) {
	r.log.Error("plugin failed", logx.String("plugin", key), logx.String("stage", stage), logx.Err(err))
	r.bus.Publish(eventbus.Event{Type: eventbus.TopicPluginFailed, Kind: key, Data: stage})
}

// call runs fn with the call timeout and turns a panic into an error.
// A call that overruns is abandoned and left to finish on its own.
func (r *Runtime) call(ctx context.Context, key, stage string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("plugin panic",
					logx.String("plugin", key),
					logx.String("stage", stage),
					logx.Any("panic", p),
					logx.Stack(string(debug.Stack())),
				)
				done <- fmt.Errorf("%s panicked: %v", stage, p)
			}
		}()
		done <- fn(cctx)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return fmt.Errorf("%s: %w", stage, cctx.Err())
	}
}

func callValue[T any](r *Runtime, ctx context.Context, key, stage string, fn func(context.Context) (T, error)) (T, error) {
	out := make(chan T, 1)
	err := r.call(ctx, key, stage, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out <- v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return <-out, nil
}
