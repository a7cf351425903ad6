package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSStatusPath receives Twilio delivery callbacks for confirmation texts.
const SMSStatusPath = "/twilio/sms-status"

// TwilioTexter sends confirmations through the Twilio Messages API.
type TwilioTexter struct {
	client         *twilio.RestClient
	from           string
	statusCallback string
}

// NewTwilioTexter builds a texter. When publicURL is set, Twilio reports delivery to SMSStatusPath.
func NewTwilioTexter(accountSID, authToken, from, publicURL string) *TwilioTexter {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	t := &TwilioTexter{client: client, from: from}
	if publicURL != "" {
		t.statusCallback = strings.TrimRight(publicURL, "/") + SMSStatusPath
	}
	return t
}

func (t *TwilioTexter) SendSMS(_ context.Context, to, body string) (string, error) {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)
	if t.statusCallback != "" {
		params.SetStatusCallback(t.statusCallback)
	}
	msg, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio create message: %w", err)
	}
	if msg.Sid == nil {
		return "", nil
	}
	return *msg.Sid, nil
}
