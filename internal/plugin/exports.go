package plugin

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"sellerbot/pkg/pluginapi"
)

// apiSymbols makes sellerbot/pkg/pluginapi importable from interpreted
// modules. Keep it in sync with the package.
var apiSymbols = interp.Exports{
	"sellerbot/pkg/pluginapi/pluginapi": {
		"KindMessage": reflect.ValueOf(pluginapi.KindMessage),
		"KindOrder":   reflect.ValueOf(pluginapi.KindOrder),
		"KindReview":  reflect.ValueOf(pluginapi.KindReview),

		"Account":         reflect.ValueOf((*pluginapi.Account)(nil)),
		"AttachFunc":      reflect.ValueOf((*pluginapi.AttachFunc)(nil)),
		"Bot":             reflect.ValueOf((*pluginapi.Bot)(nil)),
		"Button":          reflect.ValueOf((*pluginapi.Button)(nil)),
		"CallbackHandler": reflect.ValueOf((*pluginapi.CallbackHandler)(nil)),
		"CallbackRequest": reflect.ValueOf((*pluginapi.CallbackRequest)(nil)),
		"Command":         reflect.ValueOf((*pluginapi.Command)(nil)),
		"CommandHandler":  reflect.ValueOf((*pluginapi.CommandHandler)(nil)),
		"Context":         reflect.ValueOf((*pluginapi.Context)(nil)),
		"Core":            reflect.ValueOf((*pluginapi.Core)(nil)),
		"Event":           reflect.ValueOf((*pluginapi.Event)(nil)),
		"EventHandler":    reflect.ValueOf((*pluginapi.EventHandler)(nil)),
		"Info":            reflect.ValueOf((*pluginapi.Info)(nil)),
		"Logger":          reflect.ValueOf((*pluginapi.Logger)(nil)),
		"NewPluginFunc":   reflect.ValueOf((*pluginapi.NewPluginFunc)(nil)),
		"Plugin":          reflect.ValueOf((*pluginapi.Plugin)(nil)),
		"RegisterFunc":    reflect.ValueOf((*pluginapi.RegisterFunc)(nil)),
		"Request":         reflect.ValueOf((*pluginapi.Request)(nil)),
		"Router":          reflect.ValueOf((*pluginapi.Router)(nil)),
		"Stock":           reflect.ValueOf((*pluginapi.Stock)(nil)),
	},
}
