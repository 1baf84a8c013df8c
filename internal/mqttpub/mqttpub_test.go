package mqttpub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mithilesh5957/nidar/internal/model"
)

func TestTopicFor(t *testing.T) {
	e := model.Event{Topic: model.TopicTelemetry, VehicleID: "scout"}
	assert.Equal(t, "groundlink/scout/events/telemetry", topicFor(e))

	e = model.Event{Topic: model.TopicDetectionApproved, VehicleID: "delivery"}
	assert.Equal(t, "groundlink/delivery/events/detection_approved", topicFor(e))
}
