package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Topic is a Kafka topic name without the configured prefix.
type Topic string

const (
	TopicISPCreated          Topic = "isp.created"
	TopicPaymentCompleted    Topic = "payment.completed"
	TopicPaymentBlocked      Topic = "payment.blocked"
	TopicPaymentRefunded     Topic = "payment.refunded"
	TopicNOCAlert            Topic = "noc.alert"
	TopicCampaignLaunched    Topic = "crm.campaign.launched"
	TopicSupportTicket       Topic = "support.ticket.created"
	TopicReportGenerated     Topic = "reporting.report.generated"
	TopicSubscriberCreated   Topic = "isp.subscriber.created"
	TopicSubscriberSuspended Topic = "isp.subscriber.suspended"
)

// AllTopics lists every topic the service publishes to.
var AllTopics = []Topic{
	TopicISPCreated,
	TopicPaymentCompleted,
	TopicPaymentBlocked,
	TopicPaymentRefunded,
	TopicNOCAlert,
	TopicCampaignLaunched,
	TopicSupportTicket,
	TopicReportGenerated,
	TopicSubscriberCreated,
	TopicSubscriberSuspended,
}

// BaseMessage contains the envelope fields shared by every event.
type BaseMessage struct {
	MessageID string    `json:"message_id"`
	Type      Topic     `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Source    string    `json:"source"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// Event is a domain event scoped to a tenant.
type Event struct {
	BaseMessage
	TenantID string                 `json:"tenant_id,omitempty"`
	ActorID  string                 `json:"actor_id,omitempty"`
	Data     map[string]interface{} `json:"data"`
}

// NewEvent builds an event envelope for topic.
func NewEvent(topic Topic, tenantID, actorID string, data map[string]interface{}) *Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Event{
		BaseMessage: BaseMessage{
			MessageID: uuid.NewString(),
			Type:      topic,
			Timestamp: time.Now().UTC(),
			Version:   "1.0",
			Source:    "astranetix-bms",
		},
		TenantID: tenantID,
		ActorID:  actorID,
		Data:     data,
	}
}
