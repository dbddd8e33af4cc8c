package sms

import (
	"context"
	"errors"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioProvider struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioProvider(accountSID, authToken, fromNumber string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioProvider{
		client:     client,
		fromNumber: fromNumber,
	}
}

func (t *TwilioProvider) SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error) {
	params, err := t.messageParams(request)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return &SMSResponse{
			Status: "failed",
			Error:  err.Error(),
		}, err
	}

	response := &SMSResponse{Status: "queued"}
	if resp.Sid != nil {
		response.MessageID = *resp.Sid
	}
	if resp.Status != nil {
		response.Status = string(*resp.Status)
	}
	return response, nil
}

func (t *TwilioProvider) messageParams(request *SMSRequest) (*api.CreateMessageParams, error) {
	from := t.getFromNumber(request.From)
	if request.To == "" || from == "" {
		return nil, errors.New("sms needs both a recipient and a sender number")
	}

	params := &api.CreateMessageParams{}
	params.SetTo(request.To)
	params.SetFrom(from)
	params.SetBody(request.Message)
	return params, nil
}

func (t *TwilioProvider) getFromNumber(from string) string {
	if from != "" {
		return from
	}
	return t.fromNumber
}
