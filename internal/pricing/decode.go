package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxCount caps decoded quantities and usage counters so the float to int
// conversion cannot overflow.
const maxCount = math.MaxInt32

// ErrInvalidInput signals a structurally invalid payload (a contract violation),
// as opposed to dirty field values which are coerced to defaults.
var ErrInvalidInput = errors.New("pricing: invalid input")

// DecodeLineItems parses a JSON array of loosely typed cart records.
func DecodeLineItems(raw []byte) ([]LineItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("line items must be a list: %w", ErrInvalidInput)
	}
	var records []any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode line items: %v: %w", err, ErrInvalidInput)
	}
	items := make([]LineItem, 0, len(records))
	for i, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("line item %d is not an object: %w", i, ErrInvalidInput)
		}
		items = append(items, NormalizeLineItem(obj))
	}
	return items, nil
}

// NormalizeLineItem coerces a cart record into a LineItem. The unit price falls back
// from unitPrice to displayPrice to price; invalid prices become 0 and invalid
// quantities become 1.
func NormalizeLineItem(rec map[string]any) LineItem {
	item := LineItem{ID: stringField(rec, "id", "productId"), Quantity: 1}
	for _, key := range []string{"unitPrice", "displayPrice", "price"} {
		if v, ok := numberField(rec, key); ok && v > 0 {
			item.UnitPrice = v
			break
		}
	}
	if q, ok := numberField(rec, "quantity"); ok && q >= 1 {
		item.Quantity = clampCount(q)
	}
	return item
}

// DecodeCoupon coerces a loosely typed coupon record.
func DecodeCoupon(rec map[string]any) Coupon {
	c := Coupon{
		Code:        strings.TrimSpace(stringField(rec, "code")),
		Type:        ParseCouponType(stringField(rec, "type")),
		Description: stringField(rec, "description"),
	}
	if v, ok := numberField(rec, "value"); ok {
		c.Value = v
	}
	if v, ok := numberField(rec, "minOrder"); ok && v > 0 {
		c.MinOrder = v
	}
	if v, ok := rec["firstOrderOnly"].(bool); ok {
		c.FirstOrderOnly = v
	}
	if v, ok := numberField(rec, "usageLimit"); ok {
		limit := 0
		if v > 0 {
			limit = clampCount(v)
		}
		c.UsageLimit = &limit
	}
	if v, ok := numberField(rec, "usedCount"); ok && v > 0 {
		c.UsedCount = clampCount(v)
	}
	c.ExpiryDate = timeField(rec, "expiryDate")
	return c
}

func clampCount(v float64) int {
	if v >= maxCount {
		return maxCount
	}
	return int(math.Floor(v))
}

func stringField(rec map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := rec[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func numberField(rec map[string]any, key string) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch v := rec[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func timeField(rec map[string]any, key string) *time.Time {
	switch v := rec[key].(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return &v
	case string:
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
			return &parsed
		}
	}
	if ms, ok := numberField(rec, key); ok && ms > 0 {
		t := time.UnixMilli(int64(ms)).UTC()
		return &t
	}
	return nil
}
