package enums

// NotificationType is carried on notification_requested events.
type NotificationType string

const (
	NotificationOrderConfirm    NotificationType = "ORDER_CONFIRM"
	NotificationOrderUpdate     NotificationType = "ORDER_UPDATE"
	NotificationShipmentUpdate  NotificationType = "SHIPMENT_UPDATE"
	NotificationCancelRequest   NotificationType = "CANCEL_REQUEST"
	NotificationReturnRequest   NotificationType = "RETURN_REQUEST"
	NotificationRefundUpdate    NotificationType = "REFUND_UPDATE"
	NotificationDisputeUpdate   NotificationType = "DISPUTE_UPDATE"
	NotificationDisputeRevision NotificationType = "DISPUTE_REVISION"
	NotificationPayoutRequested NotificationType = "PAYOUT_REQUESTED"
)

// NotificationAudience selects the recipients of a notification.
type NotificationAudience string

const (
	AudienceUser   NotificationAudience = "user"
	AudienceAdmins NotificationAudience = "admins"
)

func (a NotificationAudience) IsValid() bool {
	switch a {
	case AudienceUser, AudienceAdmins:
		return true
	}
	return false
}
