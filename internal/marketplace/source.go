package marketplace

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	logx "sellerbot/pkg/logx"
)

// ReadJSONL feeds one event per non-empty line of r into out until r is
// exhausted or ctx is cancelled. Malformed lines and unknown kinds are logged
// and skipped.
func ReadJSONL(ctx context.Context, r io.Reader, out chan<- Event, log logx.Logger) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		raw, err := DecodeRaw([]byte(text))
		if err != nil {
			log.Warn("skipping malformed event line", logx.Int("line", line), logx.Err(err))
			continue
		}
		ev, ok := FromRaw(raw, time.Now())
		if !ok {
			log.Debug("ignoring unknown event kind", logx.Int("line", line), logx.String("type", raw.Type))
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}
