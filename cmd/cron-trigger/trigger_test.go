package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchedulesParse(t *testing.T) {
	for _, j := range defaultJobs {
		sched, err := cron.ParseStandard(j.schedule)
		require.NoError(t, err, j.name)

		next := sched.Next(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC))
		assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), next.Truncate(time.Hour), j.name)
	}
}

func TestFindJob(t *testing.T) {
	j, ok := findJob(defaultJobs, "monthly")
	require.True(t, ok)
	assert.Equal(t, "/analytics/cron-aggregate-monthly", j.path)

	_, ok = findJob(defaultJobs, "weekly")
	assert.False(t, ok)
}

func TestFireSendsBearerSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		assert.Equal(t, "/analytics/cron-aggregate", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	body, err := newTriggerClient(srv.URL+"/", "s3cret", time.Second).fire(context.Background(), "/analytics/cron-aggregate")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, body)

	_, err = newTriggerClient(srv.URL, "wrong", time.Second).fire(context.Background(), "/analytics/cron-aggregate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestParseOptionsReadsSecretFromEnvironment(t *testing.T) {
	opts, err := parseOptions([]string{"-run-once", "daily"}, envOf(map[string]string{
		"CRON_SECRET": "s3cret",
		"BACKEND_URL": "https://api.test",
	}))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", opts.secret)
	assert.Equal(t, "https://api.test", opts.baseURL)
	assert.Equal(t, "daily", opts.runOnce)
	assert.Equal(t, 5*time.Minute, opts.timeout)
}

func TestParseOptionsHasNoSecretFlag(t *testing.T) {
	_, err := parseOptions([]string{"-secret", "s3cret"}, envOf(map[string]string{"CRON_SECRET": "env"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag provided but not defined")
}

func TestParseOptionsRequiresSecret(t *testing.T) {
	_, err := parseOptions(nil, envOf(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRON_SECRET")
}
