package logger

import "testing"

func TestSanitizeValue(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  interface{}
		want interface{}
	}{
		{name: "redis_password", key: "redis_password", val: "hunter2", want: "[REDACTED]"},
		{name: "database_dsn", key: "database_dsn", val: "postgres://u:p@h/db", want: "[REDACTED]"},
		{name: "url_userinfo", key: "addr", val: "redis://user:pw@cache:6379", want: "redis://[REDACTED]@cache:6379"},
		{name: "plain", key: "channel_id", val: "c-1", want: "c-1"},
		{name: "non_string", key: "attempts", val: 3, want: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sanitizeValue(tc.key, tc.val)
			if got != tc.want {
				t.Fatalf("sanitizeValue(%q, %v)=%v, want %v", tc.key, tc.val, got, tc.want)
			}
		})
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"api_key", "abc", "dangling"})
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("expected api_key to be redacted, got %v", out[1])
	}
	if out[2] != "dangling" {
		t.Fatalf("expected dangling key to pass through, got %v", out[2])
	}
}
