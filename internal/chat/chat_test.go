package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"poupa/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWhatsAppFrom(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "whatsapp:+5511999990000", want: "+5511999990000"},
		{in: " whatsapp: +55 11 98765-4321 ", want: "+5511987654321"},
		{in: "11987654321", want: "+5511987654321"},
		{in: "whatsapp:", wantErr: true},
		{in: "123", wantErr: true},
		{in: "not a phone", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeWhatsAppFrom(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidAddress), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func twilioRequest(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestParseTwilioForm(t *testing.T) {
	msg, err := ParseTwilioForm(twilioRequest(url.Values{
		"From": {"whatsapp:+5511999990000"},
		"Body": {"  25,90 uber "},
	}))
	require.NoError(t, err)
	assert.Equal(t, IncomingMessage{Channel: ports.ChannelWhatsApp, Address: "+5511999990000", Text: "25,90 uber"}, msg)

	_, err = ParseTwilioForm(twilioRequest(url.Values{"From": {"whatsapp:+5511999990000"}}))
	assert.True(t, errors.Is(err, ErrNoMessage))

	_, err = ParseTwilioForm(twilioRequest(url.Values{"From": {"x"}, "Body": {"oi"}}))
	assert.True(t, errors.Is(err, ErrInvalidAddress))
}

func TestTwiML(t *testing.T) {
	assert.Equal(t,
		`<?xml version="1.0" encoding="UTF-8"?>`+"\n"+`<Response><Message>Saldo &lt; R$ 0 &amp; subindo</Message></Response>`,
		string(TwiML("Saldo < R$ 0 & subindo")))
	assert.Equal(t,
		`<?xml version="1.0" encoding="UTF-8"?>`+"\n"+`<Response></Response>`,
		string(TwiML("")))

	rec := httptest.NewRecorder()
	WriteTwiML(rec, "ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Message>ok</Message>")
}

// redirectTransport sends every request to target, keeping path and query.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func twilioAgainst(t *testing.T, srv *httptest.Server, from string) *TwilioClient {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return newTwilioClient("AC123", "secret", from, &http.Client{Transport: redirectTransport{target: target}})
}

func TestTwilioClient_Send(t *testing.T) {
	var (
		mu   sync.Mutex
		got  url.Values
		path string
		user string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		path = r.URL.Path
		user, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"sid":"SM1","status":"queued"}`)
	}))
	defer srv.Close()

	c := twilioAgainst(t, srv, "+14155238886")

	require.NoError(t, c.Send(context.Background(), "+5511999990000", "Olá"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", path)
	assert.Equal(t, "AC123", user)
	assert.Equal(t, "whatsapp:+14155238886", got.Get("From"))
	assert.Equal(t, "whatsapp:+5511999990000", got.Get("To"))
	assert.Equal(t, "Olá", got.Get("Body"))
}

func TestTwilioClient_SendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`)
	}))
	defer srv.Close()

	c := twilioAgainst(t, srv, "whatsapp:+14155238886")

	err := c.Send(context.Background(), "+5511999990000", "Olá")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 21211")

	assert.True(t, errors.Is(c.Send(context.Background(), "", "Olá"), ErrInvalidAddress))
	assert.Error(t, NewTwilioClient("", "", "").Send(context.Background(), "+5511999990000", "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Send(ctx, "+5511999990000", "x"), context.Canceled)
}

func fakeTelegram(t *testing.T, sent *[]url.Values) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Poupa","username":"poupa_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			*sent = append(*sent, r.PostForm)
			mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
}

func TestTelegramNotifier_Send(t *testing.T) {
	var sent []url.Values
	srv := fakeTelegram(t, &sent)
	defer srv.Close()

	n, err := NewTelegramNotifierWithEndpoint("TOKEN", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "42", "Resumo pronto"))
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].Get("chat_id"))
	assert.Equal(t, "Resumo pronto", sent[0].Get("text"))

	assert.True(t, errors.Is(n.Send(context.Background(), "+5511", "x"), ErrInvalidAddress))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(n.Send(ctx, "42", "x"), context.Canceled))
	assert.Len(t, sent, 1)
}

func telegramUpdate(chatID int64, text string, command bool) string {
	entities := ""
	if command {
		cmdLen := len(strings.Fields(text)[0])
		entities = fmt.Sprintf(`,"entities":[{"type":"bot_command","offset":0,"length":%d}]`, cmdLen)
	}
	return fmt.Sprintf(`{"update_id":1,"message":{"message_id":3,"date":0,"chat":{"id":%d,"type":"private"},"text":%q%s}}`,
		chatID, text, entities)
}

func TestParseTelegramUpdate(t *testing.T) {
	msg, err := ParseTelegramUpdate(strings.NewReader(telegramUpdate(42, "25,90 uber", false)))
	require.NoError(t, err)
	assert.Equal(t, IncomingMessage{Channel: ports.ChannelTelegram, Address: "42", Text: "25,90 uber"}, msg)

	msg, err = ParseTelegramUpdate(strings.NewReader(telegramUpdate(-100, "/resumo 2025-01", true)))
	require.NoError(t, err)
	assert.Equal(t, "resumo 2025-01", msg.Text)
	assert.Equal(t, "-100", msg.Address)

	msg, err = ParseTelegramUpdate(strings.NewReader(telegramUpdate(42, "/start", true)))
	require.NoError(t, err)
	assert.Equal(t, "start", msg.Text)

	_, err = ParseTelegramUpdate(strings.NewReader(`{"update_id":2,"edited_message":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"},"text":"x"}}`))
	assert.True(t, errors.Is(err, ErrNoMessage))

	_, err = ParseTelegramUpdate(strings.NewReader(telegramUpdate(42, "   ", false)))
	assert.True(t, errors.Is(err, ErrNoMessage))

	_, err = ParseTelegramUpdate(strings.NewReader(`{`))
	assert.Error(t, err)
}
