package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/carebridge-health/fhir-relay/internal/metrics"
	"github.com/carebridge-health/fhir-relay/pkg/model"
)

// Publisher emits audit events for successful writes against the FHIR
// service. Publishing is best-effort: failures are logged and counted, never
// surfaced to the inbound caller.
type Publisher struct {
	logger  *zap.Logger
	js      nats.JetStreamContext
	subject string
	service string
}

// New creates a Publisher with JetStream enabled.
func New(logger *zap.Logger, nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		logger:  logger,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// ResourceCreated emits a resource.created audit event.
func (p *Publisher) ResourceCreated(resourceType, resourceID string, payload json.RawMessage) {
	p.publish("resource.created", resourceType, resourceID, payload)
}

// ResourceUpdated emits a resource.updated audit event.
func (p *Publisher) ResourceUpdated(resourceType, resourceID string, payload json.RawMessage) {
	p.publish("resource.updated", resourceType, resourceID, payload)
}

func (p *Publisher) publish(eventType, resourceType, resourceID string, payload json.RawMessage) {
	if p == nil {
		return
	}

	env := model.AuditEvent{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     eventType,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("audit.marshal_failed",
			zap.String("event_type", eventType),
			zap.Error(err))
		metrics.AuditPublishErrors.WithLabelValues(p.subject).Inc()
		return
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{eventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"resource_type":  []string{resourceType},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		p.logger.Error("audit.publish_failed",
			zap.String("subject", p.subject),
			zap.String("event_type", eventType),
			zap.Error(err))
		metrics.AuditPublishErrors.WithLabelValues(p.subject).Inc()
		return
	}

	p.logger.Debug("audit.publish_success",
		zap.String("subject", p.subject),
		zap.String("event_type", eventType),
		zap.String("resource_id", resourceID))
}
