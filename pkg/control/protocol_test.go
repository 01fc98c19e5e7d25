package control

import "testing"

func TestRequestKind(t *testing.T) {
	cases := []struct {
		command string
		want    Kind
	}{
		{"start", KindStart},
		{"stop", KindStop},
		{"restart", KindRestart},
		{"enable", KindEnable},
		{"disable", KindDisable},
		{"status", KindStatus},
		{"logs_stream", KindLogsStream},
		{"logs_stop", KindLogsStop},
		{"", KindUnknown},
		{"STATUS", KindUnknown},
		{"reboot", KindUnknown},
	}
	for _, tc := range cases {
		if got := (Request{Command: tc.command}).Kind(); got != tc.want {
			t.Errorf("Kind(%q) = %v, want %v", tc.command, got, tc.want)
		}
	}
}
