package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event categories. Each category gets its own Manager and its own
// connection; they are never multiplexed.
const (
	CategoryOrderChange = "order-change"
	CategoryInference   = "inference-result"
)

// Frame type tags as sent by the clinical gateway.
const (
	TypeOrderStatusChanged = "OCS_STATUS_CHANGED"
	TypeOrderCreated       = "OCS_CREATED"
	TypeOrderCancelled     = "OCS_CANCELLED"
	TypeInferenceResult    = "AI_INFERENCE_RESULT"

	typePing = "ping"
	typePong = "pong"
)

// envelope carries only the tag; the payload is decoded in a second pass
// once the concrete type is known.
type envelope struct {
	Type string `json:"type"`
}

// OrderStatusChanged reports an order (OCS) moving between workflow states.
type OrderStatusChanged struct {
	OCSID       string    `json:"ocs_id"`
	OCSPK       int64     `json:"ocs_pk"`
	FromStatus  string    `json:"from_status"`
	ToStatus    string    `json:"to_status"`
	JobRole     string    `json:"job_role"`
	PatientName string    `json:"patient_name"`
	ActorName   string    `json:"actor_name"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// OrderCreated reports a newly placed order.
type OrderCreated struct {
	OCSID       string    `json:"ocs_id"`
	OCSPK       int64     `json:"ocs_pk"`
	JobRole     string    `json:"job_role"`
	JobType     string    `json:"job_type"`
	Priority    string    `json:"priority"`
	PatientName string    `json:"patient_name"`
	DoctorName  string    `json:"doctor_name"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// OrderCancelled reports an order withdrawn before completion.
type OrderCancelled struct {
	OCSID     string    `json:"ocs_id"`
	OCSPK     int64     `json:"ocs_pk"`
	Reason    string    `json:"reason"`
	ActorName string    `json:"actor_name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// InferenceResult reports a state change of an asynchronous AI job. The
// same transition may also be observed by the polling reconciler; both
// paths converge in the job store.
type InferenceResult struct {
	JobID     string          `json:"job_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ModelType string          `json:"model_type"`
}

// decodeFrame parses one inbound frame into its typed event. Keepalive
// pongs decode to (nil, nil) and never reach subscribers. Unknown tags and
// unparseable payloads are errors; the caller logs and drops them.
func decodeFrame(data []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}

	switch env.Type {
	case typePong:
		return nil, nil
	case TypeOrderStatusChanged:
		var e OrderStatusChanged
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return e, nil
	case TypeOrderCreated:
		var e OrderCreated
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return e, nil
	case TypeOrderCancelled:
		var e OrderCancelled
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return e, nil
	case TypeInferenceResult:
		var e InferenceResult
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
