//go:build integration

package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Puntos/internal/domain/kafka"
	kafkax "github.com/NordCoder/Puntos/internal/repository/kafka"
)

func TestPushWorker_NoTokenLandsInInbox(t *testing.T) {
	cfg := LoadCfg()
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.ReminderTopic)
	WaitHealthz(t, cfg.PWHealthURL, 30*time.Second)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	id := uuid.New()
	userID := RandUser()
	msg, err := kafkax.ReminderToStruct(kafka.ReminderRequest{
		ID:     id.String(),
		UserID: userID,
		Title:  "Ana, tienes 120 puntos",
		Body:   "Tus puntos te esperan",
		Link:   "http://localhost:3000/points",
	})
	if err != nil {
		t.Fatal(err)
	}
	PublishProto(t, cfg.KafkaBootstrap, cfg.ReminderTopic, []byte(userID), msg)
	// a redelivery of the same request must not add a second row
	PublishProto(t, cfg.KafkaBootstrap, cfg.ReminderTopic, []byte(userID), msg)

	channel, ok := WaitNotification(t, db, id, 25*time.Second)
	if !ok {
		t.Fatalf("notification %s not stored", id)
	}
	if channel != "inbox" {
		t.Fatalf("channel = %q, want inbox", channel)
	}
	time.Sleep(2 * time.Second)
	if n := CountNotifications(t, db, userID); n != 1 {
		t.Fatalf("stored %d notifications, want 1", n)
	}
}

func TestPushWorker_MalformedIgnored(t *testing.T) {
	cfg := LoadCfg()
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.ReminderTopic)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	userID := RandUser()
	msg, err := kafkax.ReminderToStruct(kafka.ReminderRequest{UserID: userID, Title: "no id"})
	if err != nil {
		t.Fatal(err)
	}
	PublishProto(t, cfg.KafkaBootstrap, cfg.ReminderTopic, []byte(userID), msg)

	time.Sleep(5 * time.Second)
	if n := CountNotifications(t, db, userID); n != 0 {
		t.Fatalf("malformed request stored %d rows", n)
	}
}
