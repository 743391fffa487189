// Package pluginapi is the contract between sellerbot and its plugins.
//
// A plugin module exposes exactly one entry point. They are probed in this
// order and the first one found wins:
//
//	func Attach(r pluginapi.Router, bot pluginapi.Bot, ctx *pluginapi.Context) error
//	func Register(core pluginapi.Core) error
//	func NewPlugin(ctx *pluginapi.Context) (*pluginapi.Plugin, error)
//
// Attach receives the full context and registers its own command, callback
// and event handlers. Register only sees the event facade. NewPlugin builds
// an instance whose fields are shown to operators.
//
// Interpreted modules are single Go source files; they may import the
// standard library and this package. Attach and Register modules can describe
// themselves with a package-level Info variable.
//
// Every type here is plain data, a func type, or an interface implemented by
// the host, so interpreted code never has to satisfy a host interface.
package pluginapi

import (
	"context"
	"time"
)

// Event kinds.
const (
	KindMessage = "message"
	KindOrder   = "order"
	KindReview  = "review"
)

// Event is a marketplace event that passed deduplication and warm-up.
type Event struct {
	Kind     string
	EntityID string
	Key      string
	Trace    string
	Received time.Time
	Payload  map[string]any
}

// Request is an operator command such as "/stock keys".
type Request struct {
	ChatID  int64
	FromID  int64
	Command string
	Args    []string
	Text    string
}

// CallbackRequest is an inline button press. Data carries the full callback
// data; Arg is what follows the registered prefix.
type CallbackRequest struct {
	ChatID    int64
	FromID    int64
	MessageID int
	Data      string
	Arg       string
}

type (
	EventHandler    func(ctx context.Context, ev Event) error
	CommandHandler  func(ctx context.Context, req Request) (reply string, err error)
	CallbackHandler func(ctx context.Context, req CallbackRequest) (answer string, err error)
)

// Core is the event facade given to Register entry points.
type Core interface {
	// OnEvent subscribes h to kind; an empty kind means every event.
	OnEvent(kind string, h EventHandler)
}

// Router is the handler registry given to Attach entry points.
type Router interface {
	Core
	Command(name, description string, h CommandHandler)
	// Callback routes button presses whose data starts with prefix.
	Callback(prefix string, h CallbackHandler)
}

// Bot sends plain text to the operators.
type Bot interface {
	SendPlain(ctx context.Context, text string) error
}

// Account is the seller account facade.
type Account interface {
	Username() string
	SendMessage(ctx context.Context, chatID, text string) error
	ReplyToReview(ctx context.Context, reviewID, text string) error
}

// Stock is the auto-delivery stock.
type Stock interface {
	BulkImport(ctx context.Context, product string, values []string) (int, error)
	Pop(ctx context.Context, product string) (string, bool, error)
	Count(ctx context.Context, product string) (int, error)
}

// Logger writes structured log lines tagged with the plugin key.
// kv holds alternating keys and values.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Context is what the host hands to Attach and NewPlugin.
type Context struct {
	Key     string
	Account Account
	Stock   Stock
	Bot     Bot
	Log     Logger
	// Config is the plugin's section of the host config, if any.
	Config map[string]any
}

// Info describes a plugin to operators.
type Info struct {
	Name        string
	Version     string
	Author      string
	Description string
}

type Command struct {
	Name        string
	Description string
	Handler     CommandHandler
}

type Button struct {
	Text string
	Data string
}

// Plugin is an instance built by NewPlugin. Handlers of a disabled instance
// are not called.
type Plugin struct {
	Info
	Enabled  bool
	Commands []Command
	Buttons  []Button
	OnEvent  EventHandler
	OnStop   func()
}

// Entry point signatures.
type (
	AttachFunc    func(r Router, bot Bot, ctx *Context) error
	RegisterFunc  func(core Core) error
	NewPluginFunc func(ctx *Context) (*Plugin, error)
)
