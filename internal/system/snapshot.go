package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
	"github.com/KevinKickass/OpenRoadwayCore/internal/storage"
)

const snapshotSaveTimeout = 10 * time.Second

// snapshots converts device status into storage records stamped at now.
func snapshots(objs []devices.Object, now time.Time) []storage.StatusSnapshot {
	snaps := make([]storage.StatusSnapshot, 0, len(objs))
	for _, obj := range objs {
		st := obj.Status()
		snaps = append(snaps, storage.StatusSnapshot{
			DeviceName: st.Name,
			Kind:       string(st.Kind),
			Controller: st.Controller,
			Failed:     st.Failed,
			LastError:  st.LastError,
			Fields:     st.Values,
			RecordedAt: now,
		})
	}
	return snaps
}

// saveSnapshots writes the status of every device object once.
func (lm *LifecycleManager) saveSnapshots(ctx context.Context) error {
	snaps := snapshots(lm.DeviceManager().Objects(), time.Now())
	ctx, cancel := context.WithTimeout(ctx, snapshotSaveTimeout)
	defer cancel()
	return lm.store.SaveSnapshots(ctx, snaps)
}

func (lm *LifecycleManager) snapshotLoop(ctx context.Context, interval time.Duration) {
	defer lm.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lm.saveSnapshots(ctx); err != nil {
				lm.logger.Warn("Failed to save device snapshots", zap.Error(err))
			}
		}
	}
}
