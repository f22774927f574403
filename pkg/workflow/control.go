package workflow

import (
	"strings"

	"github.com/example/modashop/pkg/models"
)

type Action string

const (
	ActionAccept  Action = "order_accept_"
	ActionReject  Action = "order_reject_"
	ActionContact Action = "contact_user_"
)

// MaxControlBytes is the Bot API limit on callback data.
const MaxControlBytes = 64

// OrderIDFits reports whether both order controls built for orderID stay
// within MaxControlBytes. Lengths are in bytes, not runes.
func OrderIDFits(orderID string) bool {
	longest := max(len(ActionAccept), len(ActionReject))
	return longest+len(orderID) <= MaxControlBytes
}

// Control is a decoded administrator control: an order action carrying an
// order id, or a contact request carrying a user id.
type Control struct {
	Action Action
	Arg    string
}

func AcceptControl(orderID string) string { return string(ActionAccept) + orderID }

func RejectControl(orderID string) string { return string(ActionReject) + orderID }

func ContactControl(userID string) string { return string(ActionContact) + userID }

func ParseControl(data string) (Control, bool) {
	for _, action := range []Action{ActionAccept, ActionReject, ActionContact} {
		if arg, found := strings.CutPrefix(data, string(action)); found && arg != "" {
			return Control{Action: action, Arg: arg}, true
		}
	}
	return Control{}, false
}

// TargetStatus is the status an order action moves an order to.
func (c Control) TargetStatus() (models.OrderStatus, bool) {
	switch c.Action {
	case ActionAccept:
		return models.StatusAccepted, true
	case ActionReject:
		return models.StatusRejected, true
	}
	return "", false
}
