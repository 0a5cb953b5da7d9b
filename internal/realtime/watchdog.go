package realtime

// Health is the watchdog's classification of subscription liveness.
type Health string

const (
	HealthOK         Health = "ok"
	HealthStale      Health = "stale"
	HealthRecovering Health = "recovering"
	HealthBlocked    Health = "blocked"
	HealthPaused     Health = "paused"
)

// StaleKind says which baseline the staleness age is measured against.
type StaleKind string

const (
	// KindInitial: no server snapshot has ever arrived; baseline is when
	// the subscription started.
	KindInitial StaleKind = "initial"
	// KindPost: at least one server snapshot arrived; baseline is its
	// timestamp.
	KindPost StaleKind = "post"
	// KindCacheOnly: the latest snapshot was served from local cache;
	// baseline is when cache-only mode began.
	KindCacheOnly StaleKind = "cache-only"
)

// Trigger identifies what woke the watchdog up.
type Trigger string

const (
	TriggerInit       Trigger = "init"
	TriggerInterval   Trigger = "interval"
	TriggerVisibility Trigger = "visibility"
	TriggerFocus      Trigger = "focus"
	TriggerOnline     Trigger = "online"
)

// Episode tracks one continuous period of apparent unhealth and the
// recovery attempts spent on it. Cleared the moment a fresh server
// snapshot arrives within threshold.
type Episode struct {
	Active            bool
	Kind              StaleKind
	StartedAt         Instant
	LastAttemptAt     Instant
	Attempts          int
	HardCooldownUntil Instant
}

// Thresholds configures the staleness windows per kind. CacheOnlyResumeMS
// is the shorter window used right after a visibility/focus/online
// trigger so a returning tab recovers fast; CacheOnlySteadyMS applies
// otherwise.
type Thresholds struct {
	InitialStaleMS    int64
	PostStaleMS       int64
	CacheOnlySteadyMS int64
	CacheOnlyResumeMS int64
	AttemptCooldownMS int64
	HardCooldownMS    int64
	MaxAttempts       int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		InitialStaleMS:    15_000,
		PostStaleMS:       45_000,
		CacheOnlySteadyMS: 30_000,
		CacheOnlyResumeMS: 4_000,
		AttemptCooldownMS: 10_000,
		HardCooldownMS:    120_000,
		MaxAttempts:       3,
	}
}

// Input is everything the decision depends on. The evaluation is a pure
// function of this struct, no clocks and no subscription handles.
type Input struct {
	Now      Instant
	Trigger  Trigger
	Blocked  bool
	Visible  bool
	Online   bool
	Kind     StaleKind
	Baseline Instant
	Episode  Episode
}

// Decision is the watchdog's verdict plus the updated episode the caller
// must carry into the next evaluation.
type Decision struct {
	Health       Health
	Exhausted    bool
	ForceRefresh bool
	Restart      bool
	Episode      Episode
}

// Evaluate classifies subscription health and picks the remediation, if
// any. Precedence: blocked beats paused beats staleness. Remediation
// escalates within an episode: attempt 1 is a cheap force-refresh, later
// attempts also restart the listener, and once MaxAttempts are spent a
// hard cooldown opens and the caller is told to surface a reconnect
// prompt.
func Evaluate(in Input, th Thresholds) Decision {
	if in.Blocked {
		return Decision{Health: HealthBlocked, Episode: Episode{}}
	}
	if !in.Visible {
		return Decision{Health: HealthPaused, Episode: in.Episode}
	}

	age := AgeMS(in.Now, in.Baseline)
	if age < threshold(in, th) {
		return Decision{Health: HealthOK, Episode: Episode{}}
	}

	ep := in.Episode
	if !ep.Active || ep.Kind != in.Kind {
		ep = Episode{Active: true, Kind: in.Kind, StartedAt: in.Now, HardCooldownUntil: ep.HardCooldownUntil}
	}

	if !in.Online {
		return Decision{Health: HealthStale, Episode: ep}
	}
	if ep.HardCooldownUntil > 0 && in.Now < ep.HardCooldownUntil {
		return Decision{Health: HealthStale, Exhausted: true, Episode: ep}
	}
	if ep.Attempts > 0 && in.Now-ep.LastAttemptAt < th.AttemptCooldownMS {
		return Decision{Health: HealthStale, Episode: ep}
	}
	if ep.Attempts >= th.MaxAttempts {
		ep.HardCooldownUntil = in.Now + th.HardCooldownMS
		return Decision{Health: HealthStale, Exhausted: true, Episode: ep}
	}

	ep.Attempts++
	ep.LastAttemptAt = in.Now
	return Decision{
		Health:       HealthRecovering,
		ForceRefresh: true,
		Restart:      ep.Attempts >= 2,
		Episode:      ep,
	}
}

func threshold(in Input, th Thresholds) int64 {
	switch in.Kind {
	case KindInitial:
		return th.InitialStaleMS
	case KindCacheOnly:
		switch in.Trigger {
		case TriggerVisibility, TriggerFocus, TriggerOnline:
			return th.CacheOnlyResumeMS
		}
		return th.CacheOnlySteadyMS
	default:
		return th.PostStaleMS
	}
}
