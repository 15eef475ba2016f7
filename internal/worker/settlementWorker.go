// Pending withdrawals are ones the payout rail accepted but has not yet
// confirmed sent. The money already left the wallet, so this worker polls the
// rail until every pending row reaches a terminal answer, then records it and
// announces the outcome on the lifecycle topics.
package worker

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/cradoe/payrail/internal/repository"
	"github.com/cradoe/payrail/internal/stream"
	"github.com/cradoe/payrail/internal/withdrawal"
)

const (
	settlementPollInterval = 15 * time.Second
	settlementBatchSize    = 50
)

func (wk *Worker) SettlementWorker() {
	ticker := time.NewTicker(settlementPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wk.Ctx.Done():
			log.Println("SettlementWorker received cancellation signal, shutting down...")
			return
		case <-ticker.C:
			wk.expireAbandonedWithdrawals()
			wk.settlePendingWithdrawals()
		}
	}
}

// A withdrawal stuck awaiting a code whose challenge is gone blocks every
// future submission by that user, so each tick releases those rows first.
func (wk *Worker) expireAbandonedWithdrawals() {
	expired, err := wk.Orchestrator.ExpireAbandoned(settlementBatchSize)
	if err != nil {
		log.Printf("Error expiring abandoned withdrawals: %v", err)
		return
	}

	if expired > 0 {
		log.Printf("Expired %d abandoned withdrawals", expired)
	}
}

func (wk *Worker) settlePendingWithdrawals() {
	records, err := wk.DB.Withdrawal().ListByStatus(int(withdrawal.StatusPending), settlementBatchSize)
	if err != nil {
		log.Printf("Error listing pending withdrawals: %v", err)
		return
	}

	for _, record := range records {
		// rows without a payout reference never reached the rail; nothing to
		// reconcile against
		if !record.PaymentReferenceID.Valid {
			continue
		}

		wk.settleOne(&record)
	}
}

func (wk *Worker) settleOne(record *repository.Withdrawal) {
	result, err := wk.Processor.GetPayout(wk.Ctx, record.PaymentReferenceID.String)
	if err != nil {
		log.Printf("Error polling payout %s: %v", record.PaymentReferenceID.String, err)
		return
	}

	status := withdrawal.MapPayoutStatus(result.Status)
	if status == withdrawal.StatusPending {
		return
	}

	update := &repository.WithdrawalUpdate{
		Status:               int(status),
		Commission:           record.Commission,
		Message:              record.Message,
		PaymentReferenceID:   record.PaymentReferenceID,
		ReceiverName:         sql.NullString{String: result.ReceiverName, Valid: result.ReceiverName != ""},
		YandexTransactionID:  sql.NullString{String: result.YandexTransactionID, Valid: result.YandexTransactionID != ""},
		BankTransactionRefNo: sql.NullString{String: result.BankTransactionRefNo, Valid: result.BankTransactionRefNo != ""},
		BankPaymentNo:        sql.NullString{String: result.BankPaymentNo, Valid: result.BankPaymentNo != ""},
	}

	topic := stream.WithdrawalCompletedTopic

	if status == withdrawal.StatusFailed {
		topic = stream.WithdrawalFailedTopic

		reason := result.FailureReason
		if reason == "" {
			reason = "The payout could not be completed"
		}
		update.FailureReason = sql.NullString{String: reason, Valid: true}
		update.Message = sql.NullString{String: reason, Valid: true}

		// the money left the wallet at dispatch; a failed settlement must
		// put it back
		wk.refund(record)
	}

	if err := wk.DB.Withdrawal().UpdateOutcome(record.ID, update); err != nil {
		log.Printf("Error recording settlement for withdrawal %s: %v", record.ID, err)
		return
	}

	log.Printf("Withdrawal %s settled as %s", record.ID, status)

	payload, err := json.Marshal(stream.WithdrawalEvent{
		ID:         record.ID,
		UserID:     record.UserID,
		Amount:     record.Amount,
		Status:     int(status),
		MaskedIBAN: record.MaskedIBAN,
	})
	if err != nil {
		log.Printf("Error encoding settlement event: %v", err)
		return
	}

	if err := wk.KafkaStream.ProduceMessage(topic, string(payload)); err != nil {
		log.Printf("Error producing %s event: %v", topic, err)
	}
}

func (wk *Worker) refund(record *repository.Withdrawal) {
	wallet, found, err := wk.DB.Wallet().GetByUserId(record.UserID)
	if err != nil || !found {
		log.Printf("Error finding wallet for refund of withdrawal %s: %v", record.ID, err)
		return
	}

	total := record.Amount
	if record.Commission.Valid {
		total += record.Commission.Float64
	}

	if _, err := wk.DB.Wallet().Credit(wallet.ID, total); err != nil {
		log.Printf("Error refunding wallet %s: %v", wallet.ID, err)
	}
}
