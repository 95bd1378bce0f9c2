package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/allisson/logvault/internal/client"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/rotation"
)

func TestRunRotateKEK(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	previous := newVersion(kekDomain.StatusDecryptOnly, "initial")
	active := newVersion(kekDomain.StatusActive, "offboarding")

	t.Run("Success_Completed", func(t *testing.T) {
		rotator := &fakeRotator{outcome: &client.RotationOutcome{
			Version:  active,
			Previous: previous,
			Job: &kekDomain.RotationJob{
				ID:         uuid.Must(uuid.NewV7()),
				Mode:       kekDomain.ModeRekey,
				Status:     kekDomain.JobCompleted,
				TotalItems: 2,
				DoneItems:  2,
			},
			Report: &rotation.Report{Done: []uuid.UUID{uuid.New(), uuid.New()}},
		}}

		var out bytes.Buffer
		err := RunRotateKEK(ctx, rotator, logger, &out, "offboarding", []string{"mallory"}, "text")
		require.NoError(t, err)
		require.Equal(t, []string{"mallory"}, rotator.removedUsers)
		require.Contains(t, out.String(), "Active KEK version: "+active.ID.String())
		require.Contains(t, out.String(), "(rekey): completed, 2/2 logs done, 0 failed")
		require.NotContains(t, out.String(), "resume-rotation")
	})

	t.Run("Success_PartialJobIsReported", func(t *testing.T) {
		failedLog := uuid.Must(uuid.NewV7())
		rotator := &fakeRotator{outcome: &client.RotationOutcome{
			Version:  active,
			Previous: previous,
			Job: &kekDomain.RotationJob{
				ID:          uuid.Must(uuid.NewV7()),
				Mode:        kekDomain.ModeRewrap,
				Status:      kekDomain.JobPartial,
				TotalItems:  3,
				DoneItems:   2,
				FailedItems: 1,
			},
			Report: &rotation.Report{Failed: []rotation.ItemFailure{{LogID: failedLog, Err: errors.New("conflict")}}},
		}}

		var out bytes.Buffer
		err := RunRotateKEK(ctx, rotator, logger, &out, "", nil, "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "log "+failedLog.String()+": conflict")
		require.Contains(t, out.String(), "Run resume-rotation")
	})

	t.Run("Success_FirstVersionJSON", func(t *testing.T) {
		rotator := &fakeRotator{outcome: &client.RotationOutcome{Version: active}}

		var out bytes.Buffer
		err := RunRotateKEK(ctx, rotator, logger, &out, "", nil, "json")
		require.NoError(t, err)
		require.Contains(t, out.String(), `"completed": true`)
		require.NotContains(t, out.String(), "previous_version_id")
	})

	t.Run("Error_OutcomeStillWritten", func(t *testing.T) {
		rotator := &fakeRotator{
			outcome: &client.RotationOutcome{
				Version: active,
				Job: &kekDomain.RotationJob{
					ID:         uuid.Must(uuid.NewV7()),
					Mode:       kekDomain.ModeRewrap,
					Status:     kekDomain.JobRunning,
					TotalItems: 1,
				},
			},
			err: errors.New("context canceled"),
		}

		var out bytes.Buffer
		err := RunRotateKEK(ctx, rotator, logger, &out, "", nil, "text")
		require.ErrorContains(t, err, "failed to rotate kek")
		require.Contains(t, out.String(), "0/1 logs done")
	})

	t.Run("Error_NoOutcome", func(t *testing.T) {
		rotator := &fakeRotator{err: kekDomain.ErrOperationInProgress}

		var out bytes.Buffer
		err := RunRotateKEK(ctx, rotator, logger, &out, "", nil, "text")
		require.ErrorIs(t, err, kekDomain.ErrOperationInProgress)
		require.Empty(t, out.String())
	})
}

func TestRunResumeRotation(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("Success_JSON", func(t *testing.T) {
		jobID := uuid.Must(uuid.NewV7())
		rotator := &fakeRotator{outcome: &client.RotationOutcome{
			Version: newVersion(kekDomain.StatusActive, ""),
			Job: &kekDomain.RotationJob{
				ID:         jobID,
				Mode:       kekDomain.ModeRewrap,
				Status:     kekDomain.JobCompleted,
				TotalItems: 1,
				DoneItems:  1,
			},
		}}

		var out bytes.Buffer
		err := RunResumeRotation(ctx, rotator, logger, &out, "json")
		require.NoError(t, err)
		require.Contains(t, out.String(), `"id": "`+jobID.String()+`"`)
		require.Contains(t, out.String(), `"status": "completed"`)
	})

	t.Run("Error_NoJob", func(t *testing.T) {
		rotator := &fakeRotator{err: kekDomain.ErrRotationJobNotFound}
		err := RunResumeRotation(ctx, rotator, logger, &bytes.Buffer{}, "text")
		require.ErrorIs(t, err, kekDomain.ErrRotationJobNotFound)
	})
}
