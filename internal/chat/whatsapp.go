package chat

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"poupa/internal/ports"

	"github.com/ttacon/libphonenumber"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const (
	DefaultRegion = "BR"

	whatsAppPrefix = "whatsapp:"
)

// NormalizeWhatsAppFrom turns a Twilio sender ("whatsapp:+5511...") into an
// E.164 number. Numbers without a country code are read as Brazilian.
func NormalizeWhatsAppFrom(from string) (string, error) {
	from = strings.TrimSpace(from)
	from = strings.TrimSpace(strings.TrimPrefix(from, whatsAppPrefix))
	if from == "" {
		return "", ErrInvalidAddress
	}

	num, err := libphonenumber.Parse(from, DefaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %q is not a valid phone number", ErrInvalidAddress, from)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// ParseTwilioForm reads the From and Body fields of a Twilio webhook.
func ParseTwilioForm(r *http.Request) (IncomingMessage, error) {
	if err := r.ParseForm(); err != nil {
		return IncomingMessage{}, fmt.Errorf("parse form: %w", err)
	}
	text := strings.TrimSpace(r.PostFormValue("Body"))
	if text == "" {
		return IncomingMessage{}, ErrNoMessage
	}
	address, err := NormalizeWhatsAppFrom(r.PostFormValue("From"))
	if err != nil {
		return IncomingMessage{}, err
	}
	return IncomingMessage{Channel: ports.ChannelWhatsApp, Address: address, Text: text}, nil
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// TwiML renders a MessagingResponse with a single message. An empty text
// renders an empty response, which Twilio treats as "no reply".
func TwiML(text string) []byte {
	body, err := xml.Marshal(twimlResponse{Message: text})
	if err != nil {
		return []byte(xml.Header + "<Response></Response>")
	}
	return append([]byte(xml.Header), body...)
}

// WriteTwiML writes a TwiML reply with status 200.
func WriteTwiML(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(TwiML(text))
}

// TwilioClient sends WhatsApp messages through the Twilio Messages API.
type TwilioClient struct {
	api  *twilio.RestClient
	from string
}

var _ ports.Notifier = (*TwilioClient)(nil)

func NewTwilioClient(accountSID, authToken, from string) *TwilioClient {
	return newTwilioClient(accountSID, authToken, from, &http.Client{Timeout: 15 * time.Second})
}

func newTwilioClient(accountSID, authToken, from string, httpClient *http.Client) *TwilioClient {
	if from != "" && !strings.HasPrefix(from, whatsAppPrefix) {
		from = whatsAppPrefix + from
	}
	if accountSID == "" {
		return &TwilioClient{from: from}
	}

	base := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(accountSID, authToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(accountSID)

	return &TwilioClient{
		api:  twilio.NewRestClientWithParams(twilio.ClientParams{Client: base}),
		from: from,
	}
}

// Send delivers text to an E.164 address.
func (t *TwilioClient) Send(ctx context.Context, address, text string) error {
	if t.api == nil || t.from == "" {
		return fmt.Errorf("twilio client not configured")
	}
	if address == "" {
		return ErrInvalidAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(whatsAppPrefix + strings.TrimPrefix(address, whatsAppPrefix))
	params.SetBody(text)

	msg, err := t.api.Api.CreateMessage(params)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) {
			return fmt.Errorf("twilio send failed: code %d: %s: %w", restErr.Code, restErr.Message, err)
		}
		return fmt.Errorf("twilio send: %w", err)
	}

	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	slog.DebugContext(ctx, "WhatsApp message sent", "to", address, "sid", sid)
	return nil
}
