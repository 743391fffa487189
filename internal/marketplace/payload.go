package marketplace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultProductName is used when an order carries no usable product title.
const DefaultProductName = "Товар"

// Message is the typed view of a NewMessage payload.
type Message struct {
	ID      string
	ChatID  string
	Author  string
	Content string
	System  bool
}

// Order is the typed view of a NewOrder payload.
type Order struct {
	ID       string
	ChatID   string
	Buyer    string
	Product  string
	Quantity int
	// Price is in minor units (kopecks). PriceOK is false when the source
	// value could not be read as an integer amount.
	Price   int64
	PriceOK bool
}

// Review is the typed view of a NewReview payload.
type Review struct {
	ID      string
	Author  string
	Rating  int
	Comment string
}

type wireMessage struct {
	ID            flexString `json:"id"`
	ChatID        flexString `json:"chatId"`
	ChatIDSnake   flexString `json:"chat_id"`
	Content       string     `json:"content"`
	Author        userRef    `json:"author"`
	IsSystem      bool       `json:"isSystem"`
	IsSystemSnake bool       `json:"is_system"`
}

// Message decodes a NewMessage payload. The chat id falls back to EntityID.
func (ev Event) Message() (Message, error) {
	var w wireMessage
	if err := decodePayload(ev.Payload, &w); err != nil {
		return Message{}, err
	}
	m := Message{
		ID:      string(w.ID),
		ChatID:  firstNonEmpty(string(w.ChatID), string(w.ChatIDSnake), ev.EntityID),
		Author:  w.Author.Username,
		Content: w.Content,
		System:  w.IsSystem || w.IsSystemSnake,
	}
	return m, nil
}

type wireOffer struct {
	Name         string `json:"name"`
	Descriptions struct {
		Rus struct {
			BriefDescription string `json:"briefDescription"`
			Description      string `json:"description"`
		} `json:"rus"`
	} `json:"descriptions"`
}

type wireOrder struct {
	ID           flexString      `json:"id"`
	ChatID       flexString      `json:"chatId"`
	ChatIDSnake  flexString      `json:"chat_id"`
	User         userRef         `json:"user"`
	Buyer        userRef         `json:"buyer"`
	OfferDetails *wireOffer      `json:"offerDetails"`
	Offer        *wireOffer      `json:"offer"`
	Quantity     flexString      `json:"quantity"`
	TotalPrice   json.RawMessage `json:"totalPrice"`
	BasePrice    json.RawMessage `json:"basePrice"`
}

// Order decodes a NewOrder payload. The order id falls back to EntityID.
func (ev Event) Order() (Order, error) {
	var w wireOrder
	if err := decodePayload(ev.Payload, &w); err != nil {
		return Order{}, err
	}
	o := Order{
		ID:       firstNonEmpty(string(w.ID), ev.EntityID),
		ChatID:   firstNonEmpty(string(w.ChatID), string(w.ChatIDSnake)),
		Buyer:    firstNonEmpty(w.User.Username, w.Buyer.Username),
		Quantity: 1,
	}

	offer := w.OfferDetails
	if offer == nil {
		offer = w.Offer
	}
	if offer != nil {
		o.Product = firstNonEmpty(offer.Descriptions.Rus.BriefDescription, offer.Descriptions.Rus.Description, offer.Name)
	}
	if o.Product == "" {
		o.Product = DefaultProductName
	}

	if q, err := strconv.Atoi(strings.TrimSpace(string(w.Quantity))); err == nil {
		o.Quantity = q
	}

	price := w.TotalPrice
	if isFalsy(price) {
		price = w.BasePrice
	}
	o.Price, o.PriceOK = parseMinor(price)
	return o, nil
}

type wireReview struct {
	ID     flexString `json:"id"`
	Author userRef    `json:"author"`
	Order  struct {
		User userRef `json:"user"`
	} `json:"_order"`
	Rating  flexString `json:"rating"`
	Content string     `json:"content"`
	Comment string     `json:"comment"`
	Text    string     `json:"text"`
}

// Review decodes a NewReview payload. Rating defaults to 5 when absent, zero
// or NaN, and is clamped to [1,5].
func (ev Event) Review() (Review, error) {
	var w wireReview
	if err := decodePayload(ev.Payload, &w); err != nil {
		return Review{}, err
	}
	r := Review{
		ID:      firstNonEmpty(string(w.ID), ev.EntityID),
		Author:  firstNonEmpty(w.Author.Username, w.Order.User.Username),
		Comment: firstNonEmpty(w.Content, w.Comment, w.Text),
		Rating:  5,
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(string(w.Rating)), 64); err == nil && f != 0 && !math.IsNaN(f) {
		r.Rating = ratingFromFloat(f)
	}
	return r, nil
}

// ratingFromFloat clamps to [1,5] before converting so huge values cannot
// overflow int.
func ratingFromFloat(f float64) int {
	switch {
	case f >= 5:
		return 5
	case f <= 1:
		return 1
	}
	return int(f)
}

func decodePayload(b json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// flexString accepts JSON strings and numbers; null stays empty.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// userRef accepts either "name" or {"username": "name"}.
type userRef struct {
	Username string
}

func (u *userRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		u.Username = ""
		return nil
	case b[0] == '"':
		return json.Unmarshal(b, &u.Username)
	case b[0] == '{':
		var obj struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		u.Username = obj.Username
		return nil
	default:
		u.Username = string(b)
		return nil
	}
}

func isFalsy(b json.RawMessage) bool {
	s := strings.TrimSpace(string(b))
	switch s {
	case "", "null", "0", `""`, "false":
		return true
	}
	return false
}

// parseMinor reads an integer amount; floats are truncated, other strings fail.
func parseMinor(b json.RawMessage) (int64, bool) {
	if isFalsy(b) {
		return 0, true
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
