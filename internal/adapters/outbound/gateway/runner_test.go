package gateway_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/jobadapter/internal/adapters/outbound/gateway"
	"github.com/skillcoder/jobadapter/internal/logic/job"
)

type gatewayCase struct {
	name         string
	giveStatus   int
	giveBody     string
	wantOutput   string
	wantExitCode int
	wantErr      bool
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	tests := []gatewayCase{
		{
			name:       "success",
			giveStatus: http.StatusOK,
			giveBody:   `{"output":"pod/a\n","exit_code":0}`,
			wantOutput: "pod/a\n",
		},
		{
			name:         "command failed",
			giveStatus:   http.StatusOK,
			giveBody:     `{"output":"Error from server (Forbidden)","exit_code":1}`,
			wantExitCode: 1,
			wantErr:      true,
		},
		{
			name:         "gateway rejected",
			giveStatus:   http.StatusUnauthorized,
			giveBody:     `invalid token`,
			wantExitCode: -1,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotRequest map[string]string

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/remote/command" ||
					r.Header.Get(gateway.TokenHeader) != "secret" ||
					r.Header.Get(gateway.TargetHeader) != "staging" {
					http.Error(w, "unexpected request", http.StatusBadRequest)

					return
				}

				_ = json.NewDecoder(r.Body).Decode(&gotRequest)

				w.WriteHeader(tt.giveStatus)
				_, _ = w.Write([]byte(tt.giveBody))
			}))
			t.Cleanup(server.Close)

			runner := gateway.New(slog.Default(), server.Client(), server.URL+"/", "secret", "staging", "/tmp")

			output, err := runner.Run(t.Context(), "kubectl get pods")
			require.Equal(t, map[string]string{"command": "kubectl get pods", "workdir": "/tmp"}, gotRequest)

			if !tt.wantErr {
				require.NoError(t, err)
				require.Equal(t, tt.wantOutput, output)

				return
			}

			var cmdErr *job.CommandError
			require.ErrorAs(t, err, &cmdErr)
			require.Equal(t, tt.wantExitCode, cmdErr.ExitCode)
			require.Equal(t, "kubectl get pods", cmdErr.Command)
		})
	}
}
