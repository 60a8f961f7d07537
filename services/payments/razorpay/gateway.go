// Package razorpaygw creates Razorpay orders and verifies the checkout & webhook signatures.
package razorpaygw

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/razorpay/razorpay-go"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
)

var ErrOrderCreationFailed = errors.New("failed to create razorpay order")

type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type Gateway struct {
	orders        orderCreator
	keyID         string
	keySecret     string
	webhookSecret string
}

var _ payment.RazorpayGateway = (*Gateway)(nil)

// NewGateway returns nil when the Razorpay keys are not configured.
func NewGateway(conf *core.Config) payment.RazorpayGateway {
	pc := conf.Payments
	if pc.RazorpayKeyID == "" || pc.RazorpayKeySecret == "" {
		return nil
	}
	client := razorpay.NewClient(pc.RazorpayKeyID, pc.RazorpayKeySecret)
	return &Gateway{
		orders:        client.Order,
		keyID:         pc.RazorpayKeyID,
		keySecret:     pc.RazorpayKeySecret,
		webhookSecret: pc.RazorpayWebhookSecret,
	}
}

func (gw *Gateway) KeyID() string {
	return gw.keyID
}

func (gw *Gateway) CreateOrder(_ context.Context, amount int64, currency, receipt string) (payment.Order, error) {
	data := map[string]interface{}{
		"amount":   amount, // paise
		"currency": currency,
		"receipt":  receipt,
	}
	resp, err := gw.orders.Create(data, nil)
	if err != nil {
		return payment.Order{}, errors.Wrap(ErrOrderCreationFailed, err.Error())
	}

	order := payment.Order{
		ID:       stringField(resp, "id"),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   stringField(resp, "status"),
	}
	if order.ID == "" {
		return payment.Order{}, errors.Wrap(ErrOrderCreationFailed, "missing order id")
	}
	if v, ok := resp["amount"].(float64); ok {
		order.Amount = int64(v)
	}
	return order, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// VerifyPaymentSignature checks the HMAC-SHA256 of "order_id|payment_id", keyed with the key secret.
func (gw *Gateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verify([]byte(orderID+"|"+paymentID), signature, gw.keySecret)
}

// VerifyWebhookSignature checks the HMAC-SHA256 of the raw body, keyed with the webhook secret.
func (gw *Gateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return verify(body, signature, gw.webhookSecret)
}

func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
