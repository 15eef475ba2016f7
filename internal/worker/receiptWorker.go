// A withdrawal that reached the money-sent state gets a receipt email.
// The receipt is driven off the completed topic so it is sent exactly once
// regardless of whether the send was confirmed synchronously or by the
// settlement worker.
package worker

import (
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/payrail/internal/stream"
)

func (wk *Worker) ReceiptWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: withdrawalReceiptGroupID,
		Topic:   stream.WithdrawalCompletedTopic,
	})

	if err != nil {
		log.Fatalf("Error creating consumer: %v", err)
	}
	defer consumer.Close()

	for {
		select {
		case <-wk.Ctx.Done():
			log.Println("ReceiptWorker received cancellation signal, shutting down...")
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

				wk.sendReceipt(&withdrawalEvent)
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

func (wk *Worker) sendReceipt(event *stream.WithdrawalEvent) {
	user, found, err := wk.DB.User().GetOne(event.UserID)
	if err != nil || !found {
		log.Printf("Error finding user for withdrawal receipt: %v", err)
		return
	}

	record, found, err := wk.DB.Withdrawal().GetOne(event.ID)
	if err != nil || !found {
		log.Printf("Error finding withdrawal %s for receipt: %v", event.ID, err)
		return
	}

	wk.Notifier.SendReceipt(user, record)
}
