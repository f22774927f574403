package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_Recognized(t *testing.T) {
	sub, ok, err := DecodePayload([]byte(`{
		"type": "new_order",
		"orderId": "O1",
		"userInfo": {"id": 111, "first_name": "Aziz", "username": "aziz"},
		"items": [{"name": "Shirt", "size": "M", "quantity": 2, "price": 50000}],
		"totalPrice": 100000
	}`))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "O1", sub.OrderID)
	assert.Equal(t, "111", sub.UserInfo.ID)

	sub, ok, err = DecodePayload([]byte(`{"type": "new_order", "orderId": 1700000000123}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1700000000123", sub.OrderID)
	assert.Equal(t, "Aziz", sub.UserInfo.FirstName)
	require.Len(t, sub.Items, 1)
	assert.Equal(t, 2, sub.Items[0].Quantity)
	assert.Equal(t, 50000.0, sub.Items[0].Price)
	assert.Equal(t, 100000.0, sub.TotalPrice)
}

func TestDecodePayload_Defaults(t *testing.T) {
	sub, ok, err := DecodePayload([]byte(`{
		"type": "new_order",
		"userInfo": {"id": "111"},
		"items": [{"name": "Cap", "size": "L", "quantity": 1, "price": 0}]
	}`))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, MissingOrderID, sub.OrderID)
	assert.Zero(t, sub.TotalPrice)
	assert.Equal(t, UnknownName, DisplayFirstName(sub.UserInfo))
	assert.Equal(t, "@"+UnavailableHandle, DisplayHandle(sub.UserInfo))
}

func TestDecodePayload_Unrecognized(t *testing.T) {
	for _, raw := range []string{
		`{"type": "cart_update", "items": []}`,
		`{"orderId": "O1"}`,
		`{}`,
		`{"type": 5, "items": [{"name": "a"}]}`,
		`{"type": true}`,
		`{"type": {"kind": "new_order"}}`,
		`{"type": ["new_order"]}`,
		`{"type": null}`,
	} {
		_, ok, err := DecodePayload([]byte(raw))
		assert.NoError(t, err, raw)
		assert.False(t, ok, raw)
	}
}

func TestDecodePayload_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"type": "new_order"`,
		"array":            `[{"type": "new_order"}]`,
		"bare string":      `"new_order"`,
		"missing name":     `{"type": "new_order", "items": [{"size": "M", "quantity": 1, "price": 1}]}`,
		"missing size":     `{"type": "new_order", "items": [{"name": "a", "quantity": 1, "price": 1}]}`,
		"missing quantity": `{"type": "new_order", "items": [{"name": "a", "size": "M", "price": 1}]}`,
		"missing price":    `{"type": "new_order", "items": [{"name": "a", "size": "M", "quantity": 1}]}`,
		"zero quantity":    `{"type": "new_order", "items": [{"name": "a", "size": "M", "quantity": 0, "price": 1}]}`,
		"negative price":   `{"type": "new_order", "items": [{"name": "a", "size": "M", "quantity": 1, "price": -5}]}`,
		"fraction qty":     `{"type": "new_order", "items": [{"name": "a", "size": "M", "quantity": 1.5, "price": 1}]}`,
		"negative total":   `{"type": "new_order", "items": [{"name": "a", "size": "M", "quantity": 1, "price": 1}], "totalPrice": -1}`,
	}
	for name, raw := range cases {
		_, _, err := DecodePayload([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidOrder, name)
	}
}

func TestDecodePayload_WithoutItems(t *testing.T) {
	for _, raw := range []string{
		`{"type": "new_order", "orderId": "O1"}`,
		`{"type": "new_order", "orderId": "O1", "items": []}`,
	} {
		sub, ok, err := DecodePayload([]byte(raw))
		require.NoError(t, err, raw)
		require.True(t, ok, raw)
		assert.Empty(t, sub.Items, raw)
	}
}

func TestDecodePayload_OrderIDByteLimit(t *testing.T) {
	item := `"items": [{"name": "a", "size": "M", "quantity": 1, "price": 1}]`
	longest := MaxControlBytes - len(ActionReject)

	_, ok, err := DecodePayload([]byte(`{"type": "new_order", "orderId": "` + strings.Repeat("x", longest) + `", ` + item + `}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, OrderIDFits(strings.Repeat("x", longest)))

	_, _, err = DecodePayload([]byte(`{"type": "new_order", "orderId": "` + strings.Repeat("x", longest+1) + `", ` + item + `}`))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	// 30 Cyrillic runes are 60 bytes
	cyrillic := strings.Repeat("д", 30)
	_, _, err = DecodePayload([]byte(`{"type": "new_order", "orderId": "` + cyrillic + `", ` + item + `}`))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Contains(t, err.Error(), "orderId")
}

func TestDecodePayload_ErrorNamesField(t *testing.T) {
	_, _, err := DecodePayload([]byte(`{"type": "new_order", "items": [{"name": "a", "size": "M", "price": 1}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "items[0].quantity")
}

func TestParseControl(t *testing.T) {
	c, ok := ParseControl(AcceptControl("O1"))
	require.True(t, ok)
	assert.Equal(t, ActionAccept, c.Action)
	assert.Equal(t, "O1", c.Arg)

	c, ok = ParseControl(RejectControl("order_with_underscores"))
	require.True(t, ok)
	assert.Equal(t, ActionReject, c.Action)
	assert.Equal(t, "order_with_underscores", c.Arg)

	c, ok = ParseControl(ContactControl("111"))
	require.True(t, ok)
	assert.Equal(t, ActionContact, c.Action)
	_, isTransition := c.TargetStatus()
	assert.False(t, isTransition)

	_, ok = ParseControl("order_accept_")
	assert.False(t, ok)
	_, ok = ParseControl("my_orders")
	assert.False(t, ok)
}
