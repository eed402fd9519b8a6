package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autodialer/internal/config"
	"autodialer/internal/phone"
)

const twilioAPIBase = "https://api.twilio.com"

// TwilioProvider places outbound voice calls through Twilio's REST API.
//
// The adapter enforces the test-number allow-list once more at dispatch time;
// intake validation runs earlier, but this is the last line before money (or
// a real phone) is involved, so it refuses on its own too.
type TwilioProvider struct {
	accountSID string
	authToken  string
	fromNumber string

	// baseURL is swapped for an httptest server in tests.
	baseURL    string
	httpClient *http.Client
}

func NewTwilioProvider(cfg config.TwilioConfig) (*TwilioProvider, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, errors.New("telephony: twilio credentials are incomplete; set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER")
	}
	return &TwilioProvider{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    twilioAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	// Fetching the account resource is the cheapest authenticated probe.
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", p.baseURL, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telephony: twilio health check status %d", resp.StatusCode)
	}
	return nil
}

// ensureTestDestination guards against dialing real numbers.
func ensureTestDestination(to string) error {
	if !strings.HasPrefix(to, phone.TestPrefix) {
		return &RejectionError{
			Reason: "Only Twilio test numbers are permitted. Use numbers beginning with +1500.",
		}
	}
	return nil
}

type twilioCallResponse struct {
	Sid      string  `json:"sid"`
	Status   string  `json:"status"`
	Duration *string `json:"duration"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *TwilioProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if err := ensureTestDestination(req.To); err != nil {
		return PlaceCallResult{}, err
	}

	twiml, err := RenderSayTwiML(req.Message)
	if err != nil {
		return PlaceCallResult{Success: false, ErrorDetail: err.Error()}, nil
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", p.fromNumber)
	form.Set("Twiml", twiml)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", p.baseURL, p.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return PlaceCallResult{Success: false, ErrorDetail: err.Error()}, nil
	}
	httpReq.SetBasicAuth(p.accountSID, p.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return PlaceCallResult{Success: false, ErrorDetail: phone.StripANSI(err.Error())}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return PlaceCallResult{Success: false, ErrorDetail: readTwilioError(resp)}, nil
	}

	var call twilioCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&call); err != nil {
		return PlaceCallResult{Success: false, ErrorDetail: fmt.Sprintf("twilio response decode failed: %v", err)}, nil
	}

	out := PlaceCallResult{Success: true, ProviderCallID: call.Sid}
	if call.Duration != nil {
		if n, err := strconv.Atoi(*call.Duration); err == nil && n >= 0 {
			out.DurationSeconds = &n
		}
	}
	return out, nil
}

func readTwilioError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var e twilioErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return phone.StripANSI(fmt.Sprintf("twilio error %d: %s", e.Code, e.Message))
	}
	return phone.StripANSI(fmt.Sprintf("twilio status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
}
