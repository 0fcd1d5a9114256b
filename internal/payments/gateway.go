package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	razorpay "github.com/razorpay/razorpay-go"
)

// Order is a gateway order the client pays against.
type Order struct {
	ID       string
	Amount   int64 // minor units
	Currency string
	Receipt  string
}

// Gateway creates orders with the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)
}

// ErrGatewayDisabled is returned when no payment credentials are configured.
var ErrGatewayDisabled = errors.New("payment gateway not configured")

// RazorpayGateway creates orders through the Razorpay Orders API.
type RazorpayGateway struct {
	client *razorpay.Client
}

// NewRazorpayGateway builds a gateway from the merchant key pair.
func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{client: razorpay.NewClient(keyID, keySecret)}
}

// CreateOrder implements Gateway. The SDK is not context aware; ctx is only
// checked before the call.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		n := make(map[string]interface{}, len(notes))
		for k, v := range notes {
			n[k] = v
		}
		data["notes"] = n
	}
	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	return orderFromBody(body, amount, currency, receipt)
}

func orderFromBody(body map[string]interface{}, amount int64, currency, receipt string) (*Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, errors.New("razorpay create order: response has no id")
	}
	o := &Order{ID: id, Amount: amount, Currency: currency, Receipt: receipt}
	// JSON numbers decode as float64.
	if v, ok := body["amount"].(float64); ok {
		o.Amount = int64(v)
	}
	if v, ok := body["currency"].(string); ok && v != "" {
		o.Currency = v
	}
	if v, ok := body["receipt"].(string); ok && v != "" {
		o.Receipt = v
	}
	return o, nil
}

// FakeGateway issues sequential order ids without any network access. It is
// used in tests and when the service runs without gateway credentials in
// debug mode.
type FakeGateway struct {
	mu     sync.Mutex
	next   int
	Orders []Order
	Err    error
}

// CreateOrder implements Gateway.
func (f *FakeGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.next++
	o := Order{ID: fmt.Sprintf("order_fake_%06d", f.next), Amount: amount, Currency: currency, Receipt: receipt}
	f.Orders = append(f.Orders, o)
	return &o, nil
}
