package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

func TestAcceptTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		columns []string
		want    bool
	}{
		{name: "timestamp marker", columns: []string{"id", "timestamp"}, want: true},
		{name: "severity marker", columns: []string{"severity", "payload"}, want: true},
		{name: "log name marker", columns: []string{"log_name"}, want: true},
		{name: "camel case log name", columns: []string{"logName"}, want: true},
		{name: "mixed case", columns: []string{"Timestamp"}, want: true},
		{name: "no markers", columns: []string{"id", "payload", "created"}, want: false},
		{name: "empty", columns: nil, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, AcceptTable(tc.columns))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	stream := Classify("prod_logs", "audit_activity")

	assert.Equal(t, "prod_logs.audit_activity", stream.StreamID)
	assert.Equal(t, logmodel.DirectionInternal, stream.Direction)
	assert.Equal(t, logmodel.FlowBatch, stream.Flow)
	assert.True(t, stream.Enabled)

	stream = Classify("prod_logs", "request_frontend")
	assert.Equal(t, logmodel.DirectionInbound, stream.Direction)

	stream = Classify("prod_logs", "run_stdout")
	assert.Equal(t, logmodel.FlowRealtime, stream.Flow)

	stream = Classify("prod_logs", "sink_error_export")
	assert.Equal(t, logmodel.DirectionOutbound, stream.Direction)
}
