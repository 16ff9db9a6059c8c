package client

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultAPIURL = "https://api.nexmo.com"

type VoiceClient struct {
	apiURL        string
	applicationID string
	key           *rsa.PrivateKey
	client        *http.Client
	now           func() time.Time
}

// NewVoiceClient parses privateKey, a PEM encoded RSA key optionally wrapped
// in base64, and returns a client for the Voice API at apiURL.
func NewVoiceClient(apiURL, applicationID, privateKey string) (*VoiceClient, error) {
	pemBytes, err := decodeKey(privateKey)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse voice private key: %w", err)
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	return &VoiceClient{
		apiURL:        strings.TrimRight(apiURL, "/"),
		applicationID: applicationID,
		key:           key,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}, nil
}

func decodeKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "-----BEGIN") {
		return []byte(raw), nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode voice private key: %w", err)
	}
	return b, nil
}

type CallRequest struct {
	To       string
	From     string
	NCCO     []Action
	EventURL string
}

type endpoint struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type createCallRequest struct {
	To       []endpoint `json:"to"`
	From     endpoint   `json:"from"`
	NCCO     []Action   `json:"ncco"`
	EventURL []string   `json:"event_url"`
}

type createCallResponse struct {
	UUID             string `json:"uuid"`
	Status           string `json:"status"`
	Direction        string `json:"direction"`
	ConversationUUID string `json:"conversation_uuid"`
}

// PlaceCall starts one outbound call and returns the provider call uuid.
func (c *VoiceClient) PlaceCall(ctx context.Context, call CallRequest) (string, error) {
	reqBody, err := json.Marshal(createCallRequest{
		To:       []endpoint{{Type: "phone", Number: call.To}},
		From:     endpoint{Type: "phone", Number: call.From},
		NCCO:     call.NCCO,
		EventURL: []string{call.EventURL},
	})
	if err != nil {
		return "", err
	}

	token, err := c.token()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v1/calls", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var cr createCallResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if cr.UUID == "" {
		return "", fmt.Errorf("missing uuid in response body=%q", string(body))
	}

	return cr.UUID, nil
}

// token signs a short lived application JWT.
func (c *VoiceClient) token() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"application_id": c.applicationID,
		"iat":            now.Unix(),
		"exp":            now.Add(5 * time.Minute).Unix(),
		"jti":            uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign voice token: %w", err)
	}
	return signed, nil
}
