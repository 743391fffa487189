package greeter

import (
	"context"
	"strings"

	"sellerbot/pkg/pluginapi"
)

var Info = pluginapi.Info{Name: "Greeter", Version: "0.1.0", Author: "ops"}

func Attach(r pluginapi.Router, bot pluginapi.Bot, ctx *pluginapi.Context) error {
	greeting := "hello"
	if v, ok := ctx.Config["greeting"].(string); ok && v != "" {
		greeting = v
	}
	r.Command("hello", "Say hello", func(_ context.Context, req pluginapi.Request) (string, error) {
		return strings.TrimSpace(greeting + " " + strings.Join(req.Args, " ")), nil
	})
	r.Callback("greet:", func(_ context.Context, req pluginapi.CallbackRequest) (string, error) {
		return "hi " + req.Arg, nil
	})
	return nil
}

// Register is ignored because Attach comes first.
func Register(core pluginapi.Core) error {
	panic("Register must not be called when Attach exists")
}
