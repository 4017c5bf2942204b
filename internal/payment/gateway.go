package payment

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/astranetix/bms/common/errors"
)

// Gateway names.
const (
	GatewayStripe   = "stripe"
	GatewayPayPal   = "paypal"
	GatewayRazorpay = "razorpay"
	GatewayCrypto   = "crypto"
)

// Method types accepted by /process.
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodWallet       = "wallet"
	MethodCrypto       = "crypto"
)

// Charge is a request to move money through a gateway.
type Charge struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	MethodID  string
}

// ChargeResult is the gateway's acknowledgement of a charge.
type ChargeResult struct {
	TransactionID string
	Response      map[string]interface{}
}

// Gateway is a payment processor.
type Gateway interface {
	Name() string
	Charge(ctx context.Context, charge Charge) (*ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (string, error)
}

type route struct {
	method   string
	currency string
	gateway  string
}

// routes is ordered: the first entry matching method and currency wins, an
// empty currency matches any.
var routes = []route{
	{MethodCard, "INR", GatewayRazorpay},
	{MethodWallet, "INR", GatewayRazorpay},
	{MethodWallet, "", GatewayPayPal},
	{MethodCard, "", GatewayStripe},
	{MethodBankTransfer, "", GatewayStripe},
	{MethodCrypto, "", GatewayCrypto},
}

// SelectGateway picks the processor for a method type and currency.
func SelectGateway(method, currency string) (string, bool) {
	currency = strings.ToUpper(currency)
	for _, r := range routes {
		if r.method == method && (r.currency == "" || r.currency == currency) {
			return r.gateway, true
		}
	}
	return "", false
}

// simulatedGateway acknowledges every charge with a generated reference.
type simulatedGateway struct {
	name   string
	prefix string
}

func (g *simulatedGateway) Name() string { return g.name }

func (g *simulatedGateway) Charge(_ context.Context, charge Charge) (*ChargeResult, error) {
	txID := g.prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	return &ChargeResult{
		TransactionID: txID,
		Response: map[string]interface{}{
			"gateway":  g.name,
			"status":   "succeeded",
			"amount":   charge.Amount.StringFixed(2),
			"currency": charge.Currency,
		},
	}, nil
}

func (g *simulatedGateway) Refund(_ context.Context, transactionID string, _ decimal.Decimal) (string, error) {
	if transactionID == "" {
		return "", errors.Invalid.Explain("payment has no gateway transaction")
	}
	return "re_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24], nil
}

// cryptoGateway settles to an EVM address given as the method id.
type cryptoGateway struct {
	simulatedGateway
}

func (g *cryptoGateway) Charge(ctx context.Context, charge Charge) (*ChargeResult, error) {
	res, err := g.simulatedGateway.Charge(ctx, charge)
	if err != nil {
		return nil, err
	}
	res.TransactionID = common.BytesToHash([]byte(res.TransactionID)).Hex()
	res.Response["wallet_address"] = common.HexToAddress(charge.MethodID).Hex()
	res.Response["network"] = "ethereum"
	return res, nil
}

// validateMethodID rejects method ids the gateway could never settle to.
func validateMethodID(method, id string) error {
	if method == MethodCrypto && !common.IsHexAddress(id) {
		return errors.Invalid.WithField("invalid_address", "payment_method_id", "payment_method_id must be a hex wallet address")
	}
	return nil
}

// DefaultGateways returns the simulated processors for every route.
func DefaultGateways() []Gateway {
	return []Gateway{
		&simulatedGateway{name: GatewayStripe, prefix: "pi_"},
		&simulatedGateway{name: GatewayPayPal, prefix: "PAYID-"},
		&simulatedGateway{name: GatewayRazorpay, prefix: "pay_"},
		&cryptoGateway{simulatedGateway{name: GatewayCrypto, prefix: "tx_"}},
	}
}

// MethodResponse describes a payment method offered to subscribers.
type MethodResponse struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Type           string             `json:"type"`
	Currencies     []string           `json:"currencies"`
	Fees           map[string]float64 `json:"fees"`
	ProcessingTime string             `json:"processing_time"`
	IsEnabled      bool               `json:"is_enabled"`
}

var methodCatalogue = []MethodResponse{
	{
		ID:             "stripe_card",
		Name:           "Credit/Debit Card (Stripe)",
		Type:           MethodCard,
		Currencies:     []string{"USD", "EUR", "GBP", "CAD", "AUD"},
		Fees:           map[string]float64{"percentage": 2.9, "fixed": 0.30},
		ProcessingTime: "Instant",
		IsEnabled:      true,
	},
	{
		ID:             "paypal_wallet",
		Name:           "PayPal",
		Type:           MethodWallet,
		Currencies:     []string{"USD", "EUR", "GBP", "CAD", "AUD"},
		Fees:           map[string]float64{"percentage": 3.49, "fixed": 0.49},
		ProcessingTime: "Instant",
		IsEnabled:      true,
	},
	{
		ID:             "razorpay",
		Name:           "Razorpay (UPI, Cards, Wallets)",
		Type:           MethodWallet,
		Currencies:     []string{"INR"},
		Fees:           map[string]float64{"percentage": 2.0, "fixed": 0},
		ProcessingTime: "Instant",
		IsEnabled:      true,
	},
	{
		ID:             "bank_transfer",
		Name:           "Bank Transfer (ACH/SEPA)",
		Type:           MethodBankTransfer,
		Currencies:     []string{"USD", "EUR"},
		Fees:           map[string]float64{"percentage": 0.8, "fixed": 0},
		ProcessingTime: "1-3 business days",
		IsEnabled:      true,
	},
	{
		ID:             "crypto",
		Name:           "Cryptocurrency (ETH, USDC)",
		Type:           MethodCrypto,
		Currencies:     []string{"ETH", "USDC", "USD"},
		Fees:           map[string]float64{"percentage": 1.0, "fixed": 0},
		ProcessingTime: "10-30 minutes",
		IsEnabled:      true,
	},
}

// Methods returns a copy of the method catalogue.
func Methods() []MethodResponse {
	out := make([]MethodResponse, len(methodCatalogue))
	copy(out, methodCatalogue)
	return out
}
