package push

import "testing"

func TestBuildMessageTargets(t *testing.T) {
	t.Parallel()

	msg, err := buildMessage(&NotificationRequest{Topic: "user_abc", Title: "New messages", Data: map[string]string{"kind": "unread_messages"}})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	if msg.Topic != "user_abc" || msg.Token != "" {
		t.Errorf("expected topic target, got topic=%q token=%q", msg.Topic, msg.Token)
	}
	if msg.Notification == nil || msg.Notification.Title != "New messages" {
		t.Errorf("expected notification title to be set")
	}
	if msg.Android != nil {
		t.Errorf("expected no android config without priority or collapse key")
	}

	msg, err = buildMessage(&NotificationRequest{Token: "device", Topic: "ignored", CollapseKey: "unread"})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	if msg.Token != "device" || msg.Topic != "" {
		t.Errorf("expected token to win over topic")
	}
	if msg.Android == nil || msg.Android.CollapseKey != "unread" {
		t.Errorf("expected collapse key on android config")
	}

	if _, err := buildMessage(&NotificationRequest{Title: "x"}); err == nil {
		t.Error("expected error without a target")
	}
}
