package alert

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/babylonlabs-io/sentinel/config/params"
	"github.com/babylonlabs-io/sentinel/types"
)

var alertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_alerts_emitted_total",
	Help: "The number of alerts handed to the notification sink, by severity.",
}, []string{"severity"})

// SubjectKind distinguishes the families of monitored subjects.
type SubjectKind string

const (
	// KindValidator marks consensus validators.
	KindValidator SubjectKind = "validator"
	// KindFinalityProvider marks BTC-staking finality providers.
	KindFinalityProvider SubjectKind = "finality provider"
)

// Governor decides whether an observation warrants an outbound
// notification, applying hysteresis, step-change thresholds, cooldowns
// and recovery detection. State transitions for a subject are
// serialized by a per-subject lock.
type Governor struct {
	network  string
	notifier Notifier

	trackedValidators map[string]bool
	trackedProviders  map[string]bool

	states *stateMap

	// now is stubbed by tests exercising the cooldown rules.
	now func() time.Time
}

// NewGovernor constructs a governor for one network. Empty tracking
// lists leave every subject eligible for alerting.
func NewGovernor(network string, notifier Notifier, trackedValidators, trackedProviders []string) *Governor {
	g := &Governor{
		network:           network,
		notifier:          notifier,
		trackedValidators: make(map[string]bool, len(trackedValidators)),
		trackedProviders:  make(map[string]bool, len(trackedProviders)),
		states:            newStateMap(),
		now:               time.Now,
	}
	for _, v := range trackedValidators {
		g.trackedValidators[v] = true
	}
	for _, p := range trackedProviders {
		g.trackedProviders[p] = true
	}
	return g
}

// Reset clears the alert state of one subject within one family.
func (g *Governor) Reset(kind SubjectKind, subjectKey string) {
	g.states.reset(stateKey(kind, subjectKey))
}

func stateKey(kind SubjectKind, subjectKey string) string {
	return string(kind) + ":" + subjectKey
}

func (g *Governor) validatorTracked(keys ...string) bool {
	if len(g.trackedValidators) == 0 {
		return true
	}
	for _, k := range keys {
		if k != "" && g.trackedValidators[k] {
			return true
		}
	}
	return false
}

func (g *Governor) providerTracked(keys ...string) bool {
	if len(g.trackedProviders) == 0 {
		return true
	}
	for _, k := range keys {
		if k != "" && g.trackedProviders[k] {
			return true
		}
	}
	return false
}

// emit hands one alert to the sink. Delivery failure is logged and the
// alert is dropped; governor state has already advanced (at-most-once).
func (g *Governor) emit(ctx context.Context, severity types.Severity, title, message string, metadata map[string]string) {
	a := &types.Alert{
		Title:     title,
		Message:   message,
		Severity:  severity,
		Network:   g.network,
		Timestamp: g.now(),
		Metadata:  metadata,
	}
	alertsEmitted.WithLabelValues(string(severity)).Inc()
	if err := g.notifier.SendAlert(ctx, a); err != nil {
		log.WithError(err).WithField("title", title).Error("Could not deliver alert")
	}
}

// ObserveValidatorStats applies the rate-threshold hysteresis and the
// consecutive-miss rule to a freshly updated validator record.
func (g *Governor) ObserveValidatorStats(ctx context.Context, stats *types.ValidatorSigStats) {
	if !g.validatorTracked(stats.SubjectKey, stats.Moniker) {
		return
	}
	cfg := params.Get()
	st := g.states.get(stateKey(KindValidator, stats.SubjectKey))
	st.mu.Lock()
	defer st.mu.Unlock()

	subject := stats.Moniker
	if subject == "" {
		subject = stats.SubjectKey
	}
	meta := map[string]string{
		"subject": subject,
		"rate":    fmt.Sprintf("%.2f", stats.SignatureRate),
	}

	if stats.TotalBlocksInWindow >= cfg.MinRateSampleSize {
		g.applyRateRule(ctx, st, stats.SignatureRate, cfg.ValidatorRateThreshold, cfg.RateDropStep, false, subject, "block signature rate", meta)
	}

	if stats.ConsecutiveMissed >= cfg.ConsecutiveMissLimit && !st.SentCritical {
		g.emit(ctx, types.SeverityCritical,
			"Validator missing consecutive blocks",
			fmt.Sprintf("%s has missed %d consecutive blocks", subject, stats.ConsecutiveMissed),
			meta)
		st.SentCritical = true
		st.LastCriticalTime = g.now()
	} else if stats.ConsecutiveMissed == 0 && st.SentCritical {
		st.SentCritical = false
	}
}

// ObserveFinalityProviderStats applies the bucketed rate rule and the
// recent-miss rule to a freshly updated provider record.
func (g *Governor) ObserveFinalityProviderStats(ctx context.Context, stats *types.FinalityProviderStats) {
	if !g.providerTracked(stats.BTCPK, stats.Moniker) {
		return
	}
	cfg := params.Get()
	st := g.states.get(stateKey(KindFinalityProvider, stats.BTCPK))
	st.mu.Lock()
	defer st.mu.Unlock()

	subject := stats.Moniker
	if subject == "" {
		subject = stats.BTCPK
	}
	meta := map[string]string{
		"subject": subject,
		"rate":    fmt.Sprintf("%.2f", stats.SignatureRate),
	}

	if stats.TotalBlocks >= cfg.MinRateSampleSize {
		g.applyRateRule(ctx, st, stats.SignatureRate, cfg.FinalityProviderRateThreshold, cfg.FinalityProviderRateStep, true, subject, "finality vote rate", meta)
	}

	recentMisses := countRecentMisses(stats.MissedBlockHeights, stats.EndHeight, cfg.RecentMissWindow)
	if recentMisses >= cfg.RecentMissLimit {
		if !st.SentCritical || g.now().Sub(st.LastCriticalTime) > cfg.CriticalRepeatInterval {
			g.emit(ctx, types.SeverityCritical,
				"Finality provider missing recent votes",
				fmt.Sprintf("%s missed %d of the last %d blocks", subject, recentMisses, cfg.RecentMissWindow),
				meta)
			st.SentCritical = true
			st.LastCriticalTime = g.now()
		}
	} else if recentMisses == 0 && st.SentCritical {
		g.emit(ctx, types.SeverityInfo,
			"Finality provider voting again",
			fmt.Sprintf("%s has no misses within the last %d blocks", subject, cfg.RecentMissWindow),
			meta)
		st.SentCritical = false
	}
}

// applyRateRule implements the shared hysteresis cycle: a LOW alert on
// first crossing or on a sufficient worsening after the cooldown, and
// a single RECOVERY per episode once the rate is back at threshold.
// bucketed selects the provider variant, which compares
// floor(rate/step) buckets instead of an absolute drop.
func (g *Governor) applyRateRule(ctx context.Context, st *subjectState, rate, threshold, step float64, bucketed bool, subject, what string, meta map[string]string) {
	if rate < threshold {
		worsened := false
		if bucketed {
			worsened = math.Floor(rate/step) < math.Floor(st.LastAlertedRate/step)
		} else {
			worsened = rate <= st.LastAlertedRate-step
		}
		cooled := g.now().Sub(st.LastRateAlertTime) >= params.Get().MinAlertInterval
		if st.LastAlertedRate == 0 || (worsened && cooled) {
			g.emit(ctx, types.SeverityWarning,
				"Low "+what,
				fmt.Sprintf("%s %s dropped to %.2f%% (threshold %.0f%%)", subject, what, rate, threshold),
				meta)
			st.LastAlertedRate = rate
			st.LastRateAlertTime = g.now()
			st.IsRecovering = false
		}
		return
	}
	if st.LastAlertedRate > 0 {
		if !st.IsRecovering || g.now().Sub(st.LastRecoveryTime) >= params.Get().MinAlertInterval {
			g.emit(ctx, types.SeverityInfo,
				"Recovered "+what,
				fmt.Sprintf("%s %s recovered to %.2f%%", subject, what, rate),
				meta)
			st.IsRecovering = true
			st.LastRecoveryTime = g.now()
			st.LastAlertedRate = 0
		}
	}
}

// countRecentMisses counts missed heights within the last `window`
// heights ending at endHeight.
func countRecentMisses(missed []uint64, endHeight uint64, window int) int {
	if endHeight == 0 {
		return 0
	}
	var floor uint64
	if endHeight > uint64(window) {
		floor = endHeight - uint64(window)
	}
	n := 0
	for _, h := range missed {
		if h > floor && h <= endHeight {
			n++
		}
	}
	return n
}

// ObserveCheckpoint applies the per-validator BLS rules and the
// aggregate participation warning for one epoch's checkpoint.
func (g *Governor) ObserveCheckpoint(ctx context.Context, obs *types.CheckpointObservation, stats *types.BLSCheckpointStats) {
	cfg := params.Get()
	for _, vote := range obs.Votes {
		if !g.validatorTracked(vote.Key, vote.Moniker) {
			continue
		}
		subject := vote.Moniker
		if subject == "" {
			subject = vote.Key
		}
		st := g.states.get(stateKey("bls", vote.Key))
		st.mu.Lock()
		meta := map[string]string{
			"subject": subject,
			"epoch":   fmt.Sprintf("%d", obs.Epoch),
		}
		if !vote.Signed {
			g.emit(ctx, types.SeverityCritical,
				"Missed BLS checkpoint signature",
				fmt.Sprintf("%s did not sign the BLS checkpoint for epoch %d", subject, obs.Epoch),
				meta)
			st.LastMissedEpoch = obs.Epoch
		} else if st.LastMissedEpoch > 0 {
			g.emit(ctx, types.SeverityInfo,
				"BLS checkpoint signature recovered",
				fmt.Sprintf("%s signed the BLS checkpoint for epoch %d", subject, obs.Epoch),
				meta)
			st.LastMissedEpoch = 0
		}
		st.mu.Unlock()
	}

	if stats.TotalPower > 0 {
		powerRate := 100 * float64(stats.SignedPower) / float64(stats.TotalPower)
		if powerRate < cfg.BLSRateThreshold {
			g.emit(ctx, types.SeverityWarning,
				"Low BLS checkpoint participation",
				fmt.Sprintf("epoch %d checkpoint signed by %.2f%% of power (threshold %.0f%%)", stats.Epoch, powerRate, cfg.BLSRateThreshold),
				map[string]string{"epoch": fmt.Sprintf("%d", stats.Epoch)})
		}
	}
}

// JailedTransition emits on every jailed-flag change; transitions are
// never rate limited.
func (g *Governor) JailedTransition(ctx context.Context, kind SubjectKind, subjectKey, moniker string, jailed bool) {
	tracked := g.validatorTracked(subjectKey, moniker)
	if kind == KindFinalityProvider {
		tracked = g.providerTracked(subjectKey, moniker)
	}
	if !tracked {
		return
	}
	subject := moniker
	if subject == "" {
		subject = subjectKey
	}
	meta := map[string]string{"subject": subject}
	if jailed {
		g.emit(ctx, types.SeverityCritical,
			fmt.Sprintf("%s jailed", titleCase(string(kind))),
			fmt.Sprintf("%s has been jailed", subject),
			meta)
		return
	}
	g.emit(ctx, types.SeverityInfo,
		fmt.Sprintf("%s unjailed", titleCase(string(kind))),
		fmt.Sprintf("%s is active again", subject),
		meta)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
