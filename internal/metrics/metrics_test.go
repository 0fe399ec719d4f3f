// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordReplay(t *testing.T) {
	tests := []struct {
		name       string
		actionType string
		err        error
		result     string
	}{
		{name: "successful replay", actionType: "favorite", err: nil, result: "success"},
		{name: "failed replay", actionType: "review", err: errors.New("upstream 500"), result: "failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(QueueReplaysTotal.WithLabelValues(tt.actionType, tt.result))
			RecordReplay(tt.actionType, tt.err)
			after := testutil.ToFloat64(QueueReplaysTotal.WithLabelValues(tt.actionType, tt.result))
			if after != before+1 {
				t.Errorf("counter %s/%s = %v, want %v", tt.actionType, tt.result, after, before+1)
			}
		})
	}
}

func TestRecordFlushSetsLastSuccessOnlyWhenClean(t *testing.T) {
	QueueLastFlushSuccess.Set(0)

	RecordFlush(50*time.Millisecond, 2)
	if got := testutil.ToFloat64(QueueLastFlushSuccess); got != 0 {
		t.Errorf("last flush success = %v after failed flush, want 0", got)
	}

	RecordFlush(50*time.Millisecond, 0)
	if got := testutil.ToFloat64(QueueLastFlushSuccess); got == 0 {
		t.Error("last flush success not set after clean flush")
	}
}

func TestRecordDeadLetter(t *testing.T) {
	before := testutil.ToFloat64(DeadLettersAdded.WithLabelValues("completion"))
	RecordDeadLetter("completion")
	after := testutil.ToFloat64(DeadLettersAdded.WithLabelValues("completion"))
	if after != before+1 {
		t.Errorf("dead letter counter = %v, want %v", after, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+1 {
		t.Errorf("active requests = %v, want %v", got, base+1)
	}

	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("active requests = %v, want %v", got, base)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/sync/status", "200"))
	RecordAPIRequest("GET", "/api/v1/sync/status", "200", 3*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/sync/status", "200"))
	if after != before+1 {
		t.Errorf("api request counter = %v, want %v", after, before+1)
	}
}
