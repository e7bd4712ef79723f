// Package linepay is a client for the LINE Pay Online API v3.
package linepay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"teahouse-backend/internal/domain"
)

const (
	requestPath = "/v3/payments/request"
	confirmPath = "/v3/payments/%s/confirm"
	successCode = "0000"
)

// Client signs and sends reservation and confirmation requests.
type Client struct {
	channelID     string
	channelSecret string
	baseURL       string
	httpClient    *http.Client
	nonce         func() string
}

var _ domain.PaymentGateway = (*Client)(nil)

func NewClient(channelID, channelSecret, baseURL string, timeout time.Duration) *Client {
	return &Client{
		channelID:     channelID,
		channelSecret: channelSecret,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		nonce:         uuid.NewString,
	}
}

// Product is one line shown on the LINE Pay payment page.
type Product struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type Package struct {
	ID       string    `json:"id"`
	Amount   int64     `json:"amount"`
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

type RedirectURLs struct {
	ConfirmURL string `json:"confirmUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// RequestPayload is the body of POST /v3/payments/request
type RequestPayload struct {
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
	OrderID      string       `json:"orderId"`
	Packages     []Package    `json:"packages"`
	RedirectURLs RedirectURLs `json:"redirectUrls"`
}

type confirmPayload struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// envelope is the common response shape. transactionId is a 19 digit number,
// so it is kept as json.Number to avoid float rounding.
type envelope struct {
	ReturnCode    string `json:"returnCode"`
	ReturnMessage string `json:"returnMessage"`
	Info          struct {
		TransactionID json.Number `json:"transactionId"`
		PaymentURL    struct {
			Web string `json:"web"`
			App string `json:"app"`
		} `json:"paymentUrl"`
	} `json:"info"`
}

// Reserve asks LINE Pay for a payment page for the order.
func (c *Client) Reserve(ctx context.Context, req domain.PaymentReservation) (*domain.ReservationResult, error) {
	products := make([]Product, len(req.Items))
	for i, it := range req.Items {
		products[i] = Product{Name: it.Name, Quantity: it.Quantity, Price: it.Price}
	}

	payload := RequestPayload{
		Amount:   req.Amount,
		Currency: req.Currency,
		OrderID:  req.OrderNumber,
		Packages: []Package{{
			ID:       req.OrderID,
			Amount:   req.Amount,
			Name:     req.OrderNumber,
			Products: products,
		}},
		RedirectURLs: RedirectURLs{
			ConfirmURL: req.ConfirmURL,
			CancelURL:  withOrderID(req.CancelURL, req.OrderNumber),
		},
	}

	env, raw, err := c.post(ctx, requestPath, payload)
	if err != nil {
		return nil, err
	}
	if env.Info.TransactionID == "" || env.Info.PaymentURL.Web == "" {
		return nil, &domain.PaymentGatewayError{Provider: domain.PaymentProviderLinePay, Code: "malformed", Message: "missing transactionId or paymentUrl"}
	}
	return &domain.ReservationResult{
		TransactionID: env.Info.TransactionID.String(),
		PaymentURL:    env.Info.PaymentURL.Web,
		Raw:           raw,
	}, nil
}

// Confirm captures a reservation the customer approved.
func (c *Client) Confirm(ctx context.Context, transactionID string, amount int64, currency string) (*domain.ConfirmationResult, error) {
	path := fmt.Sprintf(confirmPath, url.PathEscape(transactionID))
	env, raw, err := c.post(ctx, path, confirmPayload{Amount: amount, Currency: currency})
	if err != nil {
		return nil, err
	}
	id := env.Info.TransactionID.String()
	if id == "" {
		id = transactionID
	}
	return &domain.ConfirmationResult{TransactionID: id, Raw: raw}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*envelope, domain.RawJSON, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal linepay request: %w", err)
	}

	nonce := c.nonce()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-LINE-ChannelId", c.channelID)
	httpReq.Header.Set("X-LINE-Authorization-Nonce", nonce)
	httpReq.Header.Set("X-LINE-Authorization", Sign(c.channelSecret, path, string(body), nonce))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("linepay request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read linepay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, &domain.PaymentGatewayError{
			Provider: domain.PaymentProviderLinePay,
			Code:     fmt.Sprintf("http_%d", resp.StatusCode),
			Message:  truncate(string(respBody), 200),
		}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, nil, fmt.Errorf("decode linepay response: %w", err)
	}
	if env.ReturnCode != successCode {
		return nil, nil, &domain.PaymentGatewayError{
			Provider: domain.PaymentProviderLinePay,
			Code:     env.ReturnCode,
			Message:  env.ReturnMessage,
		}
	}
	return &env, domain.RawJSON(respBody), nil
}

// Sign computes base64(HMAC-SHA256(secret, secret + uri + body + nonce)).
func Sign(secret, uri, body, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(secret + uri + body + nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func withOrderID(rawURL, orderNumber string) string {
	u, err := url.Parse(rawURL)
	if err != nil || rawURL == "" {
		return rawURL
	}
	q := u.Query()
	q.Set("orderId", orderNumber)
	u.RawQuery = q.Encode()
	return u.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
