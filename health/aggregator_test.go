package health

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func fixed(name string, r Result) Checker {
	return NewCheckerFunc(name, func(context.Context) Result { return r })
}

func TestNewAggregator(t *testing.T) {
	if got := NewAggregator().timeout; got != DefaultTimeout {
		t.Errorf("default timeout = %v, want %v", got, DefaultTimeout)
	}
	if got := NewAggregator(AggregatorConfig{Timeout: 5 * time.Second}).timeout; got != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", got)
	}
	if got := NewAggregator(AggregatorConfig{Timeout: -1}).timeout; got != DefaultTimeout {
		t.Errorf("negative timeout = %v, want %v", got, DefaultTimeout)
	}
}

func TestAggregator_RegisterReplacesByName(t *testing.T) {
	agg := NewAggregator()
	agg.Register(fixed("a", Healthy("first")))
	agg.Register(fixed("b", Healthy("ok")))
	agg.Register(fixed("a", Degraded("second")))

	if got, want := agg.Names(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	result, err := agg.Check(context.Background(), "a")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Message != "second" {
		t.Errorf("Check() Message = %v, want second", result.Message)
	}
}

func TestAggregator_CheckNotFound(t *testing.T) {
	_, err := NewAggregator().Check(context.Background(), "missing")
	if err != ErrCheckerNotFound {
		t.Errorf("Check() error = %v, want ErrCheckerNotFound", err)
	}
}

func TestAggregator_CheckAllKeepsRegistrationOrder(t *testing.T) {
	agg := NewAggregator()
	agg.Register(NewCheckerFunc("slow", func(context.Context) Result {
		time.Sleep(20 * time.Millisecond)
		return Healthy("ok")
	}))
	agg.Register(fixed("fast", Degraded("meh")))

	reports := agg.CheckAll(context.Background())
	if len(reports) != 2 {
		t.Fatalf("CheckAll() returned %d reports, want 2", len(reports))
	}
	if reports[0].Name != "slow" || reports[1].Name != "fast" {
		t.Errorf("CheckAll() order = [%s %s], want [slow fast]", reports[0].Name, reports[1].Name)
	}
	if reports[0].Result.Duration <= 0 {
		t.Error("Duration should be recorded")
	}
}

func TestAggregator_CheckAllEmpty(t *testing.T) {
	if got := NewAggregator().CheckAll(context.Background()); len(got) != 0 {
		t.Errorf("CheckAll() = %v, want empty", got)
	}
}

func TestAggregator_CheckAllTimeout(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: 30 * time.Millisecond})
	agg.Register(NewCheckerFunc("stuck", func(context.Context) Result {
		time.Sleep(300 * time.Millisecond)
		return Healthy("ok")
	}))

	reports := agg.CheckAll(context.Background())
	if reports[0].Result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want StatusUnhealthy", reports[0].Result.Status)
	}
	if reports[0].Result.Error != ErrCheckTimeout {
		t.Errorf("Error = %v, want ErrCheckTimeout", reports[0].Result.Error)
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name    string
		reports []Report
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Report{{"a", Healthy("ok")}, {"b", Healthy("ok")}}, StatusHealthy},
		{"one degraded", []Report{{"a", Healthy("ok")}, {"b", Degraded("meh")}}, StatusDegraded},
		{"unhealthy wins", []Report{{"a", Unhealthy("bad", nil)}, {"b", Degraded("meh")}}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overall(tt.reports); got != tt.want {
				t.Errorf("Overall() = %v, want %v", got, tt.want)
			}
		})
	}
}
