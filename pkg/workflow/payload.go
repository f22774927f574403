package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/example/modashop/pkg/models"
	"github.com/go-playground/validator/v10"
)

// OrderPayloadType is the discriminant of storefront order submissions.
const OrderPayloadType = "new_order"

// MissingOrderID is stored as the order id when the storefront sends none.
const MissingOrderID = "N/A"

// Submission is a validated order submission.
type Submission struct {
	OrderID    string
	UserInfo   models.UserInfo
	Items      []models.OrderItem
	TotalPrice float64
}

// Order builds the order document for the shopper identified by userID.
func (s *Submission) Order(userID string) *models.Order {
	info := s.UserInfo
	if info.ID == "" {
		info.ID = userID
	}
	items := make([]models.OrderItem, len(s.Items))
	copy(items, s.Items)

	return &models.Order{
		ID:         s.OrderID,
		UserID:     userID,
		UserInfo:   info,
		Items:      items,
		TotalPrice: s.TotalPrice,
		Status:     models.StatusNew,
	}
}

// flexibleID accepts both JSON strings and numbers; web views send chat and
// order ids as numbers.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexibleID(s)
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = flexibleID(n.String())
	return nil
}

type payloadUserInfo struct {
	ID        flexibleID `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Username  string     `json:"username"`
}

type payloadItem struct {
	Name     *string  `json:"name" validate:"required"`
	Size     *string  `json:"size" validate:"required"`
	Quantity *int     `json:"quantity" validate:"required,gt=0"`
	Price    *float64 `json:"price" validate:"required,gte=0"`
}

type orderPayload struct {
	OrderID    flexibleID      `json:"orderId" validate:"control_id"`
	UserInfo   payloadUserInfo `json:"userInfo"`
	Items      []payloadItem   `json:"items" validate:"dive"`
	TotalPrice *float64        `json:"totalPrice" validate:"omitempty,gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("control_id", func(fl validator.FieldLevel) bool {
		return OrderIDFits(fl.Field().String())
	})
	return v
}

// DecodePayload parses web view data. ok is false when the payload is not an
// order submission, including a discriminant that is not a string; such
// payloads are not errors. Input that is not a JSON object, or a recognized
// but malformed submission, yields ErrInvalidOrder.
func DecodePayload(raw []byte) (sub Submission, ok bool, err error) {
	var envelope struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Submission{}, false, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	var kind string
	if err := json.Unmarshal(envelope.Type, &kind); err != nil || kind != OrderPayloadType {
		return Submission{}, false, nil
	}

	var p orderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Submission{}, true, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if err := validate.Struct(&p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return Submission{}, true, fmt.Errorf("%w: %s", ErrInvalidOrder, describe(verrs))
		}
		return Submission{}, true, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	sub = Submission{
		OrderID: string(p.OrderID),
		UserInfo: models.UserInfo{
			ID:        string(p.UserInfo.ID),
			FirstName: p.UserInfo.FirstName,
			LastName:  p.UserInfo.LastName,
			Username:  p.UserInfo.Username,
		},
		Items: make([]models.OrderItem, 0, len(p.Items)),
	}
	if sub.OrderID == "" {
		sub.OrderID = MissingOrderID
	}
	if p.TotalPrice != nil {
		sub.TotalPrice = *p.TotalPrice
	}
	for _, item := range p.Items {
		sub.Items = append(sub.Items, models.OrderItem{
			Name:     *item.Name,
			Size:     *item.Size,
			Quantity: *item.Quantity,
			Price:    *item.Price,
		})
	}
	return sub, true, nil
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "orderPayload.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
