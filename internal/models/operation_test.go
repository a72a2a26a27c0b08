package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/listsync/internal/types"
)

func TestOperationRecordListKey(t *testing.T) {
	listID := "list-1"

	t.Run("includes the target list id", func(t *testing.T) {
		record := &OperationRecord{OwnerID: "user-1", TargetListID: &listID}
		assert.Equal(t, "user-1/list-1", record.ListKey())
	})

	t.Run("create operations share the owner key", func(t *testing.T) {
		record := &OperationRecord{OwnerID: "user-1"}
		assert.Equal(t, "user-1/", record.ListKey())
	})

	t.Run("different owners never collide", func(t *testing.T) {
		a := &OperationRecord{OwnerID: "user-1", TargetListID: &listID}
		b := &OperationRecord{OwnerID: "user-2", TargetListID: &listID}
		assert.NotEqual(t, a.ListKey(), b.ListKey())
	})
}

func TestOperationRecordStatusChecks(t *testing.T) {
	cases := []struct {
		status    types.OperationStatus
		terminal  bool
		canRetry  bool
		canCancel bool
	}{
		{types.StatusPending, false, false, true},
		{types.StatusInProgress, false, false, false},
		{types.StatusCompleted, true, false, false},
		{types.StatusFailed, false, false, false},
		{types.StatusFailedPermanent, true, true, false},
		{types.StatusCancelled, true, false, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			record := &OperationRecord{Status: tc.status}
			assert.Equal(t, tc.terminal, record.IsTerminal())
			assert.Equal(t, tc.canRetry, record.CanRetry())
			assert.Equal(t, tc.canCancel, record.CanCancel())
		})
	}
}
