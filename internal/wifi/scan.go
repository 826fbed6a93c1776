package wifi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/dispatch"
	"github.com/srg/vwifi/internal/groutine"
)

// Scan accepts a scan request and returns before any result is reported.
// Exactly one Host.ScanDone follows for every nil return.
func (d *Device) Scan(ctx context.Context, req *ScanRequest) error {
	const op = "scan"

	if req == nil {
		return newError(op, StateInvalidArgument, "nil scan request")
	}
	if len(req.SSIDs) > d.cfg.MaxScanSSIDs {
		return newError(op, StateInvalidArgument, "%d ssids exceed limit of %d", len(req.SSIDs), d.cfg.MaxScanSSIDs)
	}

	if err := d.acquire(ctx, op); err != nil {
		return err
	}
	if d.scanRequest != nil {
		d.gate.Release()
		return newError(op, StateBusy, "scan %s already pending", d.scanRequest.ID)
	}
	d.scanRequest = req
	d.scanAborted = false
	d.gate.Release()

	if err := d.work.Schedule(dispatch.KindScan, d.scanRoutine); err != nil {
		d.gate.Lock()
		if d.scanRequest == req {
			d.scanRequest = nil
		}
		d.gate.Release()

		d.logger.WithError(err).WithField("op", op).Warn("Scan rolled back")
		return scheduleError(op, err)
	}

	d.logger.WithFields(logrus.Fields{
		"op":    op,
		"id":    req.ID,
		"ssids": len(req.SSIDs),
	}).Debug("Scan accepted")

	return nil
}

// AbortScan asks the pending scan to finish as aborted without results.
func (d *Device) AbortScan(ctx context.Context) error {
	const op = "abort_scan"

	if err := d.acquire(ctx, op); err != nil {
		return err
	}
	defer d.gate.Release()

	if d.scanRequest == nil {
		return newError(op, StateNotFound, "no scan pending")
	}
	d.scanAborted = true
	return nil
}

// scanRoutine waits out the simulated scan, announces the dummy BSS and
// reports completion. Completion never precedes the return of Scan because
// the latency elapses first.
func (d *Device) scanRoutine(ctx context.Context) {
	log := d.logger.WithFields(logrus.Fields{
		"op":     "scan",
		"worker": groutine.Name(ctx),
	})

	timer := time.NewTimer(d.cfg.ScanLatency)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		d.gate.Lock()
		d.completeScanLocked(log, true)
		d.gate.Release()
		return
	}

	cancelled := d.lockForCompletion(ctx)
	defer d.gate.Release()

	if d.scanRequest == nil {
		return
	}

	aborted := cancelled || d.scanAborted
	if !aborted {
		d.informDummyBSS(log)
	}
	d.completeScanLocked(log, aborted)
}

// completeScanLocked reports ScanDone for the pending request and clears the
// slot. With no request pending nothing was accepted and nothing is reported.
func (d *Device) completeScanLocked(log *logrus.Entry, aborted bool) {
	req := d.scanRequest
	if req == nil {
		return
	}

	d.host.ScanDone(req, ScanInfo{Aborted: aborted})
	d.scanRequest = nil
	d.scanAborted = false

	log.WithFields(logrus.Fields{
		"id":      req.ID,
		"aborted": aborted,
	}).Info("Scan finished")
}
