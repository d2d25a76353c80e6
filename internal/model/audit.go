package model

import "time"

type AuditAction string

const (
	AuditActionAdded   AuditAction = "added"
	AuditActionRemoved AuditAction = "removed"
)

// Теги причин для журнала изменений расписания
const (
	AuditReasonSlotAdded        = "slot_added"
	AuditReasonSlotRemoved      = "slot_removed"
	AuditReasonTemplateApplied  = "template_applied"
	AuditReasonCopyDay          = "copy_day"
	AuditReasonBulkCreate       = "bulk_create"
	AuditReasonClearFuture      = "clear_future"
	AuditReasonBookingCancelled = "booking_cancelled"
	AuditReasonReconciled       = "reconciled"
)

// AuditEntry — запись журнала изменений слотов.
// Журнал append-only и best-effort: его отказ никогда не блокирует
// и не откатывает операцию расписания.
type AuditEntry struct {
	ID        int64       `json:"id"`
	TutorID   int64       `json:"tutor_id"`
	Date      time.Time   `json:"date"`
	Hour      int         `json:"hour"`
	Action    AuditAction `json:"action"`
	Reason    string      `json:"reason"`
	Actor     int64       `json:"actor"`
	CreatedAt time.Time   `json:"created_at"`
}
