package triage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rpggio/triagewatch/internal/cache"
	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/triage"
	"github.com/rpggio/triagewatch/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingInvalidator struct {
	keys []string
	err  error
}

func (c *countingInvalidator) Invalidate(_ context.Context, key string) error {
	c.keys = append(c.keys, key)
	return c.err
}

func TestTrigger_FiresOnlyForTriageCompletion(t *testing.T) {
	for _, typ := range activity.Types {
		t.Run(string(typ), func(t *testing.T) {
			inv := &countingInvalidator{}
			trigger := triage.NewTrigger(inv, nil)

			trigger.OnActivity(activity.Record{ID: "a1", FindingID: "f1", Type: typ})

			if typ == activity.TypeAITriage || typ == activity.TypeAITriageFailed {
				require.True(t, triage.IsCompletion(typ))
				require.Equal(t, []string{
					cache.TriageKey("f1"),
					cache.FindingKey("f1"),
					cache.ActivitiesKey("f1"),
				}, inv.keys)
				return
			}
			require.False(t, triage.IsCompletion(typ))
			require.Empty(t, inv.keys)
		})
	}
}

func TestTrigger_OncePerQualifyingEvent(t *testing.T) {
	inv := &countingInvalidator{}
	trigger := triage.NewTrigger(inv, nil)

	trigger.OnActivity(activity.Record{ID: "a1", FindingID: "f1", Type: activity.TypeAITriage})
	trigger.OnActivity(activity.Record{ID: "a2", FindingID: "f1", Type: activity.TypeAITriageRequested})
	trigger.OnActivity(activity.Record{ID: "a3", FindingID: "f1", Type: activity.TypeAITriageFailed})

	require.Len(t, inv.keys, 6)
}

func TestTrigger_SwallowsInvalidationErrors(t *testing.T) {
	inv := &mocks.Invalidator{}
	inv.On("Invalidate", mock.Anything, mock.Anything).Return(errors.New("network down"))

	trigger := triage.NewTrigger(inv, nil)
	require.NotPanics(t, func() {
		trigger.OnActivity(activity.Record{ID: "a1", FindingID: "f1", Type: activity.TypeAITriageFailed})
	})
	inv.AssertNumberOfCalls(t, "Invalidate", 3)
}

func TestTrigger_InvalidatesRealCache(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})

	var refetches int
	c.Subscribe(cache.ActivitiesKey("f1"), func(string) { refetches++ })

	trigger := triage.NewTrigger(c, nil)
	_, err := cache.Fetch(ctx, c, cache.TriageKey("f1"), func(context.Context) (string, error) { return "pending", nil })
	require.NoError(t, err)

	trigger.OnActivity(activity.Record{ID: "a1", FindingID: "f1", Type: activity.TypeAITriage})
	trigger.OnActivity(activity.Record{ID: "a1", FindingID: "f1", Type: activity.TypeAITriage})

	v, err := cache.Fetch(ctx, c, cache.TriageKey("f1"), func(context.Context) (string, error) { return "completed", nil })
	require.NoError(t, err)
	require.Equal(t, "completed", v)
	require.Equal(t, 2, refetches)
}
