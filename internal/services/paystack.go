package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PaystackService talks to the payment rail. The engine never calls it inside
// an atomic unit; refunds and transfers are fired after commit.
type PaystackService struct {
	SecretKey string
	BaseURL   string
	Client    *http.Client
}

func NewPaystackService(secretKey string) *PaystackService {
	return &PaystackService{
		SecretKey: secretKey,
		BaseURL:   "https://api.paystack.co",
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type paystackResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *PaystackService) post(path string, payload any) (*paystackResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, p.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out paystackResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid paystack response: %w", err)
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack: %s", out.Message)
	}
	return &out, nil
}

// InitiateRefund instructs the rail to return a captured payment to the
// buyer. Amount is in kobo.
func (p *PaystackService) InitiateRefund(transactionReference string, amount int64) error {
	_, err := p.post("/refund", map[string]any{
		"transaction": transactionReference,
		"amount":      amount,
	})
	return err
}

// CreateTransferRecipient registers a bank account for payouts and returns
// the recipient code.
func (p *PaystackService) CreateTransferRecipient(accountName, accountNumber, bankCode string) (string, error) {
	resp, err := p.post("/transferrecipient", map[string]any{
		"type":           "nuban",
		"name":           accountName,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       "NGN",
	})
	if err != nil {
		return "", err
	}

	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

// InitiateTransfer pays out to a registered recipient. Amount is in kobo.
func (p *PaystackService) InitiateTransfer(recipientCode string, amount int64, reason string) (string, error) {
	resp, err := p.post("/transfer", map[string]any{
		"source":    "balance",
		"amount":    amount,
		"recipient": recipientCode,
		"reason":    reason,
	})
	if err != nil {
		return "", err
	}

	var data struct {
		TransferCode string `json:"transfer_code"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", err
	}
	return data.TransferCode, nil
}
