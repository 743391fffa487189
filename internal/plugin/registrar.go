package plugin

import (
	"strings"
	"sync"

	"sellerbot/pkg/pluginapi"
)

type eventRoute struct {
	key  string
	kind string
	h    pluginapi.EventHandler
}

type commandRoute struct {
	key         string
	name        string
	description string
	h           pluginapi.CommandHandler
}

type callbackRoute struct {
	key    string
	prefix string
	h      pluginapi.CallbackHandler
}

// registrar collects the handlers one plugin registers while it activates.
// They are merged into the runtime only if activation succeeds. Calls made
// after activation returned are ignored.
type registrar struct {
	key string

	mu        sync.Mutex
	sealed    bool
	events    []eventRoute
	commands  []commandRoute
	callbacks []callbackRoute
}

func (r *registrar) OnEvent(kind string, h pluginapi.EventHandler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	r.events = append(r.events, eventRoute{key: r.key, kind: strings.ToLower(strings.TrimSpace(kind)), h: h})
}

func (r *registrar) Command(name, description string, h pluginapi.CommandHandler) {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" || h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	r.commands = append(r.commands, commandRoute{key: r.key, name: name, description: description, h: h})
}

func (r *registrar) Callback(prefix string, h pluginapi.CallbackHandler) {
	if prefix == "" || h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	r.callbacks = append(r.callbacks, callbackRoute{key: r.key, prefix: prefix, h: h})
}

// seal stops further registrations.
func (r *registrar) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *registrar) commandNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c.name)
	}
	return out
}
