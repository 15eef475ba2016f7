package worker

import (
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/payrail/internal/stream"
)

// FailureAlertWorker emails the user whenever a withdrawal ends in failure,
// whichever part of the system declared it failed.
func (wk *Worker) FailureAlertWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: withdrawalFailureGroupID,
		Topic:   stream.WithdrawalFailedTopic,
	})

	if err != nil {
		log.Fatalf("Error creating consumer: %v", err)
	}
	defer consumer.Close()

	for {
		select {
		case <-wk.Ctx.Done():
			log.Println("FailureAlertWorker received cancellation signal, shutting down...")
			return
		default:
			event := consumer.Poll(100)
			switch e := event.(type) {
			case *kafka.Message:
				var withdrawalEvent stream.WithdrawalEvent
				if err := json.Unmarshal(e.Value, &withdrawalEvent); err != nil {
					log.Printf("Error decoding withdrawal event: %v", err)
					continue
				}

				wk.sendFailureAlert(&withdrawalEvent)
			case kafka.Error:
				log.Printf("Error: %v\n", e)
			case *kafka.AssignedPartitions:
				consumer.Assign(e.Partitions)
			case *kafka.RevokedPartitions:
				consumer.Unassign()
			}
		}
	}
}

func (wk *Worker) sendFailureAlert(event *stream.WithdrawalEvent) {
	user, found, err := wk.DB.User().GetOne(event.UserID)
	if err != nil || !found {
		log.Printf("Error finding user for failure alert: %v", err)
		return
	}

	record, found, err := wk.DB.Withdrawal().GetOne(event.ID)
	if err != nil || !found {
		log.Printf("Error finding withdrawal %s for failure alert: %v", event.ID, err)
		return
	}

	reason := record.FailureReason.String
	if reason == "" {
		reason = record.Message.String
	}

	wk.Notifier.SendFailureAlert(user, record, reason)
}
