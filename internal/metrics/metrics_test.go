package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(RecordsYielded)
	RecordsYielded.Inc()
	if got := testutil.ToFloat64(RecordsYielded); got != before+1 {
		t.Errorf("RecordsYielded: got %v, want %v", got, before+1)
	}

	PagesFetched.WithLabelValues("ok").Inc()
	if got := testutil.ToFloat64(PagesFetched.WithLabelValues("ok")); got < 1 {
		t.Errorf("PagesFetched[ok]: got %v", got)
	}

	SessionReconnects.WithLabelValues("failed").Inc()
	if got := testutil.ToFloat64(SessionReconnects.WithLabelValues("failed")); got < 1 {
		t.Errorf("SessionReconnects[failed]: got %v", got)
	}
}

func TestServerStop(t *testing.T) {
	srv := Start(0)
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}

	var empty Server
	if err := empty.Stop(context.Background()); err != nil {
		t.Errorf("Stop on zero server: %v", err)
	}
}
