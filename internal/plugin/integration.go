package plugin

import (
	"context"
	"errors"

	"sellerbot/pkg/pluginapi"
)

// Mode is how a module hooks into the host.
type Mode string

const (
	ModeAttach   Mode = "attach"
	ModeRegister Mode = "register"
	ModeInstance Mode = "instance"
)

var ErrNoEntryPoint = errors.New("module exposes no Attach, Register or NewPlugin")

// Integration is the entry point chosen for a module at discovery time.
// Downstream code only calls activate and never probes the module again.
type Integration interface {
	Mode() Mode
	activate(ctx context.Context, reg *registrar, env *pluginapi.Context, bot pluginapi.Bot) (*pluginapi.Plugin, error)
}

type attachIntegration struct{ fn pluginapi.AttachFunc }

func (attachIntegration) Mode() Mode { return ModeAttach }

func (a attachIntegration) activate(_ context.Context, reg *registrar, env *pluginapi.Context, bot pluginapi.Bot) (*pluginapi.Plugin, error) {
	return nil, a.fn(reg, bot, env)
}

type registerIntegration struct{ fn pluginapi.RegisterFunc }

func (registerIntegration) Mode() Mode { return ModeRegister }

// Register entry points only get the event facade, not the command router.
func (r registerIntegration) activate(_ context.Context, reg *registrar, _ *pluginapi.Context, _ pluginapi.Bot) (*pluginapi.Plugin, error) {
	return nil, r.fn(coreOnly{reg})
}

type instanceIntegration struct{ fn pluginapi.NewPluginFunc }

func (instanceIntegration) Mode() Mode { return ModeInstance }

func (i instanceIntegration) activate(_ context.Context, reg *registrar, env *pluginapi.Context, _ pluginapi.Bot) (*pluginapi.Plugin, error) {
	p, err := i.fn(env)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("NewPlugin returned nil")
	}
	for _, c := range p.Commands {
		reg.Command(c.Name, c.Description, c.Handler)
	}
	return p, nil
}

// coreOnly hides the Router methods of a registrar.
type coreOnly struct{ reg *registrar }

func (c coreOnly) OnEvent(kind string, h pluginapi.EventHandler) { c.reg.OnEvent(kind, h) }

// Module is a plugin entry point set. Compiled-in plugins build one
// directly; interpreted files are turned into one by loadSource.
type Module struct {
	Key       string
	Info      pluginapi.Info
	Attach    pluginapi.AttachFunc
	Register  pluginapi.RegisterFunc
	NewPlugin pluginapi.NewPluginFunc
}

// integration picks the first entry point present, in priority order.
func (m Module) integration() (Integration, error) {
	switch {
	case m.Attach != nil:
		return attachIntegration{m.Attach}, nil
	case m.Register != nil:
		return registerIntegration{m.Register}, nil
	case m.NewPlugin != nil:
		return instanceIntegration{m.NewPlugin}, nil
	default:
		return nil, ErrNoEntryPoint
	}
}
