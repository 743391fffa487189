package marketplace

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "sellerbot/pkg/logx"
)

func ev(kind Kind, entity, payload string) Event {
	return Event{Kind: kind, EntityID: entity, Payload: json.RawMessage(payload)}
}

func TestNormalizeKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"new_message", KindMessage, true},
		{"MESSAGE", KindMessage, true},
		{"new_order", KindOrder, true},
		{"order", KindOrder, true},
		{" review ", KindReview, true},
		{"order_status_changed", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeKind(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("NormalizeKind(%q)=%q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDedupKey(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{"message", ev(KindMessage, "", `{"id": 42, "chatId": "c1", "content": "hi"}`), "c1:42"},
		{"message entity fallback", ev(KindMessage, "c9", `{"id": "7"}`), "c9:7"},
		{"message snake case", ev(KindMessage, "", `{"id": "7", "chat_id": 55}`), "55:7"},
		{"order", ev(KindOrder, "", `{"id": "o-1"}`), "order:o-1"},
		{"order entity fallback", ev(KindOrder, "o-2", `{}`), "order:o-2"},
		{"review", ev(KindReview, "", `{"id": 99}`), "review:99"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DedupKey(tc.ev)
			if err != nil {
				t.Fatalf("DedupKey: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}

	if _, err := DedupKey(ev(KindMessage, "c1", `{"content":"x"}`)); err != ErrMissingID {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestOrderProductNameFallbackChain(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{`{"offerDetails":{"name":"Offer","descriptions":{"rus":{"briefDescription":"Brief","description":"Long"}}}}`, "Brief"},
		{`{"offerDetails":{"name":"Offer","descriptions":{"rus":{"description":"Long"}}}}`, "Long"},
		{`{"offer":{"name":"Offer"}}`, "Offer"},
		{`{"offer":{"name":"   "}}`, DefaultProductName},
		{`{}`, DefaultProductName},
	}
	for _, tc := range cases {
		o, err := ev(KindOrder, "1", tc.payload).Order()
		if err != nil {
			t.Fatalf("Order: %v", err)
		}
		if o.Product != tc.want {
			t.Fatalf("payload %s: product=%q want %q", tc.payload, o.Product, tc.want)
		}
	}
}

func TestOrderPriceAndBuyer(t *testing.T) {
	o, err := ev(KindOrder, "", `{"id":1,"user":{"username":"bob"},"quantity":3,"totalPrice":0,"basePrice":"12345"}`).Order()
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if o.Buyer != "bob" || o.Quantity != 3 || o.Price != 12345 || !o.PriceOK {
		t.Fatalf("order=%+v", o)
	}

	bad, _ := ev(KindOrder, "", `{"id":1,"buyer":{"username":"amy"},"totalPrice":"n/a"}`).Order()
	if bad.PriceOK || bad.Buyer != "amy" || bad.Quantity != 1 {
		t.Fatalf("order=%+v", bad)
	}
}

func TestReviewAuthorAndRating(t *testing.T) {
	r, err := ev(KindReview, "", `{"id":"r1","author":"ann","rating":4,"comment":"ok"}`).Review()
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if r.Author != "ann" || r.Rating != 4 || r.Comment != "ok" {
		t.Fatalf("review=%+v", r)
	}

	r, _ = ev(KindReview, "", `{"id":"r2","author":{},"_order":{"user":{"username":"buyer1"}},"text":"t"}`).Review()
	if r.Author != "buyer1" || r.Rating != 5 || r.Comment != "t" {
		t.Fatalf("review=%+v", r)
	}
}

func TestReviewRatingClamp(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`3`, 3},
		{`"2"`, 2},
		{`4.9`, 4},
		{`7`, 5},
		{`-3`, 1},
		{`0`, 5},
		{`null`, 5},
		{`1e20`, 5},
		{`-1e20`, 1},
		{`"NaN"`, 5},
		{`"+Inf"`, 5},
	}
	for _, tc := range cases {
		r, err := ev(KindReview, "r", `{"id":"r","rating":`+tc.raw+`}`).Review()
		if err != nil {
			t.Fatalf("rating %s: %v", tc.raw, err)
		}
		if r.Rating != tc.want {
			t.Fatalf("rating %s = %d, want %d", tc.raw, r.Rating, tc.want)
		}
	}
}

func TestReadJSONLSkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"new_message","payload":{"id":1,"chatId":"c","content":"hi"}}`,
		`not json`,
		`{"type":"something_else","payload":{}}`,
		``,
		`{"type":"order","entity_id":"o1","payload":{}}`,
	}, "\n")
	out := make(chan Event, 8)
	if err := ReadJSONL(context.Background(), strings.NewReader(input), out, logx.Nop()); err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	close(out)
	var kinds []Kind
	for e := range out {
		if e.Trace == "" {
			t.Fatalf("missing trace id")
		}
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 2 || kinds[0] != KindMessage || kinds[1] != KindOrder {
		t.Fatalf("kinds=%v", kinds)
	}
}

func TestGatewayPostsJSON(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if strings.Contains(r.URL.Path, "/reviews/") {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g, err := NewGateway(GatewayConfig{BaseURL: srv.URL + "/", Token: "tkn", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if err := g.SendMessage(context.Background(), "c 1", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotPath != "/chats/c 1/messages" || gotAuth != "Bearer tkn" || gotBody != `{"text":"hello"}` {
		t.Fatalf("path=%q auth=%q body=%q", gotPath, gotAuth, gotBody)
	}
	if err := g.ReplyToReview(context.Background(), "r1", "thanks"); err == nil {
		t.Fatalf("expected error on 502")
	}
}
