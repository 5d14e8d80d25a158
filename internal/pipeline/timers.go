package pipeline

import (
	"context"
	"time"
)

// startTimers arms the silence-hangup and max-call-duration timers. Both
// run for the lifetime of the call; either firing triggers an end-call
// with a distinct reason, per the concurrency model's cancellation rules.
func (p *Pipeline) startTimers(ctx context.Context) {
	p.sess.SilenceTimer = time.AfterFunc(p.sess.Cfg.SilenceTimeout, func() {
		p.EndCall(ctx, "silence_timeout")
	})
	p.sess.MaxDurationTimer = time.AfterFunc(p.sess.Cfg.MaxCallDuration, func() {
		p.EndCall(ctx, "max_duration")
	})
}

// stopSilenceTimer halts the silence-hangup timer without restarting it,
// used while the caller is actively speaking.
func (p *Pipeline) stopSilenceTimer() {
	if p.sess.SilenceTimer != nil {
		p.sess.SilenceTimer.Stop()
	}
}

// restartSilenceTimer re-arms the silence-hangup timer, used after every
// point where the pipeline returns to waiting for the caller.
func (p *Pipeline) restartSilenceTimer() {
	if p.sess.SilenceTimer == nil {
		return
	}
	p.sess.SilenceTimer.Stop()
	p.sess.SilenceTimer.Reset(p.sess.Cfg.SilenceTimeout)
}

func (p *Pipeline) stopAllTimers() {
	if p.sess.SilenceTimer != nil {
		p.sess.SilenceTimer.Stop()
	}
	if p.sess.MaxDurationTimer != nil {
		p.sess.MaxDurationTimer.Stop()
	}
}
