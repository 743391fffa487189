package plugin

import (
	"fmt"

	logx "sellerbot/pkg/logx"
)

// pluginLogger adapts logx to the key/value style of pluginapi.Logger.
type pluginLogger struct{ log logx.Logger }

func kvFields(kv []any) []logx.Field {
	fields := make([]logx.Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		k := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			fields = append(fields, logx.String("extra", k))
			break
		}
		fields = append(fields, logx.Any(k, kv[i+1]))
	}
	return fields
}

func (l pluginLogger) Debug(msg string, kv ...any) { l.log.Debug(msg, kvFields(kv)...) }
func (l pluginLogger) Info(msg string, kv ...any)  { l.log.Info(msg, kvFields(kv)...) }
func (l pluginLogger) Warn(msg string, kv ...any)  { l.log.Warn(msg, kvFields(kv)...) }
func (l pluginLogger) Error(msg string, kv ...any) { l.log.Error(msg, kvFields(kv)...) }
