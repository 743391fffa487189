package broken

import "sellerbot/pkg/pluginapi"

var _ = missingSymbol

func Attach(r pluginapi.Router, bot pluginapi.Bot, ctx *pluginapi.Context) error {
	return nil
}
