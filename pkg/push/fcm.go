package push

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(ctx context.Context, projectID, credentialsFile string) (*FCMProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{
		client: client,
	}, nil
}

func (f *FCMProvider) SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error) {
	message, err := buildMessage(request)
	if err != nil {
		return nil, err
	}

	response, err := f.client.Send(ctx, message)
	if err != nil {
		return &NotificationResponse{
			Success: false,
			Error:   err.Error(),
			Token:   request.Token,
		}, err
	}

	return &NotificationResponse{
		MessageID: response,
		Success:   true,
		Token:     request.Token,
	}, nil
}

func buildMessage(request *NotificationRequest) (*messaging.Message, error) {
	message := &messaging.Message{
		Data: request.Data,
	}

	// Set target
	switch {
	case request.Token != "":
		message.Token = request.Token
	case request.Topic != "":
		message.Topic = request.Topic
	default:
		return nil, fmt.Errorf("push notification needs a token or a topic")
	}

	if request.Title != "" || request.Body != "" {
		message.Notification = &messaging.Notification{
			Title: request.Title,
			Body:  request.Body,
		}
	}

	if request.Priority != "" || request.CollapseKey != "" {
		message.Android = &messaging.AndroidConfig{
			Priority:    request.Priority,
			CollapseKey: request.CollapseKey,
		}
	}

	return message, nil
}
