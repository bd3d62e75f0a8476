package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/logfang/internal/config"
	"github.com/Sumatoshi-tech/logfang/internal/trigger"
)

func TestRunCommand_ResolveRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cmd  RunCommand
		want trigger.Request
	}{
		{
			name: "default is a full run",
			cmd:  RunCommand{},
			want: trigger.Request{JobType: trigger.JobTypeFull},
		},
		{
			name: "incremental hours",
			cmd:  RunCommand{hours: 6},
			want: trigger.Request{JobType: trigger.JobTypeIncremental, Hours: 6},
		},
		{
			name: "single stream",
			cmd:  RunCommand{streamID: "prod_logs.run_stdout"},
			want: trigger.Request{JobType: trigger.JobTypeStream, StreamID: "prod_logs.run_stdout"},
		},
		{
			name: "message wins over flags",
			cmd: RunCommand{
				hours:   6,
				message: `{"job_type": "stream", "stream_id": "prod_logs.run_requests"}`,
			},
			want: trigger.Request{JobType: trigger.JobTypeStream, StreamID: "prod_logs.run_requests"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.cmd.resolveRequest()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunCommand_ResolveRequest_RejectsInvalidMessage(t *testing.T) {
	t.Parallel()

	rc := RunCommand{message: `{"job_type": "incremental"}`}

	_, err := rc.resolveRequest()
	require.ErrorIs(t, err, trigger.ErrInvalidMessage)
}

func TestPipelineConfig_RequestOverrides(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Pipeline.BatchSize = 1000
	cfg.Pipeline.ParallelStreams = 4

	out := pipelineConfig(cfg, trigger.Request{BatchSize: 250, EnableAI: true})

	assert.Equal(t, int64(250), out.BatchSize)
	assert.True(t, out.EnableAIEnrichment)
	assert.Equal(t, 4, out.ParallelStreams)
}

func TestPipelineConfig_KeepsFileValues(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Pipeline.BatchSize = 1000
	cfg.Pipeline.ContinueOnError = true

	out := pipelineConfig(cfg, trigger.Request{})

	assert.Equal(t, int64(1000), out.BatchSize)
	assert.True(t, out.ContinueOnError)
	assert.False(t, out.EnableAIEnrichment)
}
