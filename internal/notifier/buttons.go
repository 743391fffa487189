package notifier

import kit "sellerbot/internal/transport"

// Keyboard returns the inline buttons for a notification about entity id.
// Link buttons are omitted when linkBase is empty.
func Keyboard(kind, id, linkBase string) [][]kit.Button {
	if id == "" {
		return nil
	}
	open := func(path string) []kit.Button {
		if linkBase == "" {
			return nil
		}
		return []kit.Button{{Text: "🔗 Открыть", URL: linkBase + path + id}}
	}
	var rows [][]kit.Button
	switch kind {
	case "message":
		if r := open("/chat/"); r != nil {
			rows = append(rows, r)
		}
		rows = append(rows, []kit.Button{
			{Text: "✍️ Ответить", Data: "chat:reply:" + id},
			{Text: "📋 Шаблон", Data: "chat:tpl:" + id},
		})
	case "order":
		if r := open("/order/"); r != nil {
			rows = append(rows, r)
		}
		rows = append(rows, []kit.Button{{Text: "💸 Возврат", Data: "order:refund:" + id}})
	case "review":
		rows = append(rows, []kit.Button{{Text: "💬 Ответить на отзыв", Data: "review:reply:" + id}})
	}
	return rows
}
