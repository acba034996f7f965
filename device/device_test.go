package device_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/srvcerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFingerprint() device.Fingerprint {
	return device.Fingerprint{
		ScreenResolution: "1920x1080",
		Timezone:         "Europe/Riga",
		Canvas:           "c4nv4s",
		WebGL:            "w3bgl",
		Audio:            "4ud10",
		FontHash:         "f0nts",
		Platform:         "Linux x86_64",
	}
}

func TestEvaluateMatch(t *testing.T) {
	fp := sampleFingerprint()
	assert.Equal(t, 100, device.EvaluateMatch(fp, fp))

	other := fp
	other.ScreenResolution = "1280x720"
	assert.Equal(t, 90, device.EvaluateMatch(fp, other))

	other.Canvas = "different"
	other.WebGL = "different"
	assert.Equal(t, 50, device.EvaluateMatch(fp, other))

	assert.Equal(t, 0, device.EvaluateMatch(fp, device.Fingerprint{
		ScreenResolution: "a", Timezone: "b", Canvas: "c", WebGL: "d", Audio: "e", FontHash: "f", Platform: "g",
	}))

	// fields missing on one side are not compared
	partial := device.Fingerprint{Canvas: fp.Canvas, Timezone: "UTC"}
	assert.Equal(t, 66, device.EvaluateMatch(fp, partial))
	assert.Equal(t, 100, device.EvaluateMatch(fp, device.Fingerprint{}))
}

func TestTrustScore(t *testing.T) {
	d := device.Device{Fingerprint: sampleFingerprint()}
	assert.Equal(t, 100, device.ComputeTrustScore(d))

	d.IsVPN = true
	assert.Equal(t, 60, device.ComputeTrustScore(d))

	d.Fingerprint.Audio = ""
	d.ViolationCount = 2
	assert.Equal(t, 35, device.ComputeTrustScore(d))

	d.ViolationCount = 20
	assert.Equal(t, 0, device.ComputeTrustScore(d))
}

func TestRegistry_RegisterIsIdempotentPerFingerprint(t *testing.T) {
	ctx := context.Background()
	reg := device.NewRegistry(device.NewInMemDeviceRepo())
	user := uuid.New()

	d1, err := reg.Register(ctx, device.RegisterParams{UserUUID: user, Fingerprint: sampleFingerprint(), IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, 100, d1.TrustScore)
	assert.Equal(t, 1, d1.Version)

	d2, err := reg.Register(ctx, device.RegisterParams{UserUUID: user, Fingerprint: sampleFingerprint(), IPAddress: "10.0.0.2", IsVPN: true})
	require.NoError(t, err)
	assert.Equal(t, d1.UUID, d2.UUID)
	assert.Equal(t, d1.FirstSeenAt, d2.FirstSeenAt)
	assert.Equal(t, "10.0.0.2", d2.IPAddress)
	assert.Equal(t, 60, d2.TrustScore)

	other, err := reg.Register(ctx, device.RegisterParams{UserUUID: uuid.New(), Fingerprint: sampleFingerprint()})
	require.NoError(t, err)
	assert.NotEqual(t, d1.UUID, other.UUID, "same hardware of another user is another device record")

	d3, err := reg.RecordViolation(ctx, d1.UUID)
	require.NoError(t, err)
	assert.Equal(t, 1, d3.ViolationCount)
	assert.Equal(t, 50, d3.TrustScore)

	_, err = reg.RecordViolation(ctx, uuid.New())
	assert.True(t, srvcerror.HasCode(err, device.ErrCodeDeviceNotFound))

	_, err = reg.Register(ctx, device.RegisterParams{UserUUID: user})
	assert.True(t, srvcerror.HasCode(err, device.ErrCodeFingerprintMissing))
}

func TestInMemDeviceRepo_VersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := device.NewInMemDeviceRepo()
	d := device.Device{UUID: uuid.New()}
	require.NoError(t, repo.SaveDevice(ctx, &d))

	stale := d
	stale.Version = 0
	assert.ErrorIs(t, repo.SaveDevice(ctx, &stale), device.ErrVersionConflict)

	fresh := device.Device{UUID: uuid.New(), Version: 3}
	assert.ErrorIs(t, repo.SaveDevice(ctx, &fresh), device.ErrVersionConflict)
	got, err := repo.GetDevice(ctx, fresh.UUID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInMemLockRepo_ConcurrentAcquireHasOneWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		repo := device.NewInMemLockRepo()
		attempt := uuid.New()
		devices := []uuid.UUID{uuid.New(), uuid.New()}

		var wg sync.WaitGroup
		errs := make([]error, len(devices))
		start := make(chan struct{})
		for i, d := range devices {
			wg.Add(1)
			go func(i int, d uuid.UUID) {
				defer wg.Done()
				<-start
				_, errs[i] = repo.AcquireLock(context.Background(), attempt, d, time.Now())
			}(i, d)
		}
		close(start)
		wg.Wait()

		won := 0
		conflicts := 0
		for _, err := range errs {
			if err == nil {
				won++
			} else if srvcerror.HasCode(err, device.ErrCodeDeviceConflict) {
				conflicts++
			}
		}
		require.Equal(t, 1, won)
		require.Equal(t, 1, conflicts)
	}
}

func TestInMemLockRepo_ReuseAndRelease(t *testing.T) {
	ctx := context.Background()
	repo := device.NewInMemLockRepo()
	attempt, dev := uuid.New(), uuid.New()

	l1, err := repo.AcquireLock(ctx, attempt, dev, time.Now())
	require.NoError(t, err)
	l2, err := repo.AcquireLock(ctx, attempt, dev, time.Now())
	require.NoError(t, err)
	assert.Equal(t, l1.UUID, l2.UUID)

	require.NoError(t, repo.ReleaseLock(ctx, attempt, device.LockReleased, time.Now()))
	active, err := repo.GetActiveLock(ctx, attempt)
	require.NoError(t, err)
	assert.Nil(t, active)

	// after release another device may take over
	l3, err := repo.AcquireLock(ctx, attempt, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, l1.UUID, l3.UUID)
}
