package plugin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sellerbot/internal/eventbus"
	"sellerbot/internal/marketplace"
	kit "sellerbot/internal/transport"
	logx "sellerbot/pkg/logx"
	"sellerbot/pkg/pluginapi"
)

// hostCommand lists plugins and is always answered by the runtime itself.
const hostCommand = "plugins"

const callbackUnavailable = "Действие недоступно"

// Responder is what HandleUpdate needs to answer operators.
type Responder interface {
	kit.Sender
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// HandleEvent fans ev out to every matching handler. A failing handler is
// logged and does not stop the others.
func (r *Runtime) HandleEvent(ctx context.Context, ev marketplace.Event) {
	kind := string(ev.Kind)

	type target struct {
		key string
		h   pluginapi.EventHandler
	}
	var targets []target

	r.mu.RLock()
	for _, e := range r.events {
		if e.kind == "" || e.kind == kind {
			if h := r.active[e.key]; h != nil && h.Enabled {
				targets = append(targets, target{e.key, e.h})
			}
		}
	}
	for _, h := range r.active {
		if h.instance != nil && h.Enabled && h.instance.OnEvent != nil {
			targets = append(targets, target{h.Key, h.instance.OnEvent})
		}
	}
	r.mu.RUnlock()

	key, _ := marketplace.DedupKey(ev)
	for _, t := range targets {
		// Each handler gets its own payload map.
		pev := pluginapi.Event{
			Kind:     kind,
			EntityID: ev.EntityID,
			Key:      key,
			Trace:    ev.Trace,
			Received: ev.Received,
			Payload:  ev.Map(),
		}
		h := t.h
		if err := r.call(ctx, t.key, "event", func(ctx context.Context) error { return h(ctx, pev) }); err != nil {
			r.log.Warn("plugin event handler failed",
				logx.String("plugin", t.key), logx.String("kind", kind), logx.String("trace", ev.Trace), logx.Err(err))
			r.bus.Publish(eventbus.Event{Type: eventbus.TopicPluginFailed, Kind: t.key, Data: "event"})
		}
	}
}

// HandleUpdate routes an operator command or button press. Updates from
// non-admins and text that is not a command are ignored.
func (r *Runtime) HandleUpdate(ctx context.Context, up kit.Update, out Responder) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			r.handleCommand(ctx, *up.Message, out)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			r.handleCallback(ctx, *up.Callback, out)
		}
	}
}

func (r *Runtime) handleCommand(ctx context.Context, m kit.Message, out Responder) {
	name, args, ok := parseCommand(m.Text)
	if !ok {
		return
	}
	if !r.admins[m.FromID] {
		r.log.Debug("command from non-admin ignored", logx.Int64("from", m.FromID), logx.String("command", name))
		return
	}

	var reply string
	if name == hostCommand {
		reply = r.describe()
	} else {
		r.mu.RLock()
		route, found := r.commands[name]
		h := r.active[route.key]
		r.mu.RUnlock()
		if !found {
			return
		}
		if h == nil || !h.Enabled {
			reply = "Плагин отключён"
		} else {
			req := pluginapi.Request{ChatID: m.ChatID, FromID: m.FromID, Command: name, Args: args, Text: m.Text}
			s, err := callValue(r, ctx, route.key, "command", func(ctx context.Context) (string, error) {
				return route.h(ctx, req)
			})
			if err != nil {
				r.log.Warn("plugin command failed", logx.String("plugin", route.key), logx.String("command", name), logx.Err(err))
				s = "⚠️ Ошибка: " + err.Error()
			}
			reply = s
		}
	}
	if reply == "" {
		return
	}
	if _, err := out.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, reply, nil); err != nil {
		r.log.Warn("command reply failed", logx.String("command", name), logx.Err(err))
	}
}

func (r *Runtime) handleCallback(ctx context.Context, cb kit.Callback, out Responder) {
	answer := callbackUnavailable
	if r.admins[cb.FromID] {
		r.mu.RLock()
		var best callbackRoute
		for _, c := range r.callbacks {
			if strings.HasPrefix(cb.Data, c.prefix) && len(c.prefix) > len(best.prefix) {
				best = c
			}
		}
		h := r.active[best.key]
		r.mu.RUnlock()

		if best.h != nil && h != nil && h.Enabled {
			req := pluginapi.CallbackRequest{
				ChatID:    cb.ChatID,
				FromID:    cb.FromID,
				MessageID: cb.MessageID,
				Data:      cb.Data,
				Arg:       strings.TrimPrefix(cb.Data, best.prefix),
			}
			s, err := callValue(r, ctx, best.key, "callback", func(ctx context.Context) (string, error) {
				return best.h(ctx, req)
			})
			if err != nil {
				r.log.Warn("plugin callback failed", logx.String("plugin", best.key), logx.String("data", cb.Data), logx.Err(err))
				s = "⚠️ Ошибка"
			}
			answer = s
		}
	}
	if err := out.AnswerCallback(ctx, cb.ID, answer); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
}

// Commands returns the bot menu: the host command plus every plugin
// command, sorted by name.
func (r *Runtime) Commands() []kit.BotCommand {
	r.mu.RLock()
	out := make([]kit.BotCommand, 0, len(r.commands)+1)
	out = append(out, kit.BotCommand{Command: hostCommand, Description: "Список плагинов"})
	for _, c := range r.commands {
		desc := c.description
		if desc == "" {
			desc = c.name
		}
		out = append(out, kit.BotCommand{Command: c.name, Description: desc})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

func (r *Runtime) describe() string {
	list := r.List()
	if len(list) == 0 {
		return "🧩 Плагины не загружены"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🧩 Плагины (%d):", len(list))
	for _, h := range list {
		b.WriteString("\n• ")
		b.WriteString(h.Info.Name)
		if h.Info.Version != "" {
			b.WriteString(" v" + h.Info.Version)
		}
		fmt.Fprintf(&b, " [%s", h.Mode)
		if !h.Enabled {
			b.WriteString(", выкл")
		}
		b.WriteString("]")
		if len(h.Commands) > 0 {
			b.WriteString(" /" + strings.Join(h.Commands, " /"))
		}
	}
	return b.String()
}

// parseCommand splits "/name@bot a b" into "name" and its arguments.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}
