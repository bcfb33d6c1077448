// Package config defines the top-level configuration for the opening-range
// breakout simulator and provides validation helpers. All thresholds consumed
// by the engine are enumerated here; the core assumes Validate() has been
// called before any bar is processed.
package config

import (
	"fmt"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ORBSIM_* environment variables.
type Config struct {
	Range      RangeConfig      `toml:"range"`
	Auction    AuctionConfig    `toml:"auction"`
	Playbook   PlaybookConfig   `toml:"playbook"`
	Arbiter    ArbiterConfig    `toml:"arbiter"`
	Risk       RiskConfig       `toml:"risk"`
	Governance GovernanceConfig `toml:"governance"`
	Feed       FeedConfig       `toml:"feed"`
	Engine     EngineConfig     `toml:"engine"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// RangeConfig holds opening-range construction parameters.
type RangeConfig struct {
	MicroMinutes       int `toml:"micro_minutes"`
	PrimaryBaseMinutes int `toml:"primary_base_minutes"`
	PrimaryMinMinutes  int `toml:"primary_min_minutes"`
	PrimaryMaxMinutes  int `toml:"primary_max_minutes"`

	// LowVolRatio / HighVolRatio bound the normalized early-session
	// volatility ratio that shortens or lengthens the primary window. The
	// decision is made once, at first update.
	LowVolRatio  float64 `toml:"low_vol_ratio"`
	HighVolRatio float64 `toml:"high_vol_ratio"`

	// MinWidthATR / MaxWidthATR bound the ATR-normalized primary width for a
	// range to be considered valid. Invalid ranges suppress all signals for
	// the session.
	MinWidthATR float64 `toml:"min_width_atr"`
	MaxWidthATR float64 `toml:"max_width_atr"`
}

// AuctionConfig holds the state-classifier thresholds. Rule order in the
// classifier is fixed; only the thresholds are configurable.
type AuctionConfig struct {
	DriveThreshold     float64 `toml:"drive_threshold"`       // INITIATIVE: drive_energy >=
	RotationMax        int     `toml:"rotation_max"`          // INITIATIVE: rotation_count <=
	VolumeZMin         float64 `toml:"volume_z_min"`          // INITIATIVE: volume_z >=
	CompressionWidth   float64 `toml:"compression_width"`     // COMPRESSION: width_atr <=
	CompressionEntropy float64 `toml:"compression_entropy"`   // COMPRESSION: path_entropy <=
	SmallGap           float64 `toml:"small_gap"`             // gap classification floor (prior-range units)
	LargeGap           float64 `toml:"large_gap"`             // GAP_REVERSION: |gap| >= (prior-range units)
	BalanceRotationMin int     `toml:"balance_rotation_min"`
	BalanceVolumeZBand float64 `toml:"balance_volume_z_band"` // BALANCED: |volume_z| <=
	InventoryExtreme   float64 `toml:"inventory_extreme"`     // INVENTORY_FIX: |overnight_bias| >=
}

// TacticConfig holds per-tactic parameters. The entry buffer is computed as
// base + alpha*vol + beta*rotation_penalty, clamped to [buffer_min, buffer_max].
type TacticConfig struct {
	Enabled    bool    `toml:"enabled"`
	BufferBase float64 `toml:"buffer_base"`
	VolAlpha   float64 `toml:"vol_alpha"`
	RotBeta    float64 `toml:"rot_beta"`
	BufferMin  float64 `toml:"buffer_min"`
	BufferMax  float64 `toml:"buffer_max"`

	// TargetRs and TargetFractions describe the profit-target ladder in
	// R-multiples; the slices are parallel and fractions must sum to <= 1.
	TargetRs        []float64 `toml:"target_rs"`
	TargetFractions []float64 `toml:"target_fractions"`

	// Repeatable overrides the default one-shot-per-tactic-per-session rule.
	Repeatable  bool `toml:"repeatable"`
	MaxHoldBars int  `toml:"max_hold_bars"`
	AllowRunner bool `toml:"allow_runner"`

	// StopWidthR scales the statistical phase-1 stop distance as a fraction
	// of the primary range width.
	StopWidthR float64 `toml:"stop_width_r"`
}

// PlaybookConfig enumerates the shipped tactics.
type PlaybookConfig struct {
	Breakout               TacticConfig `toml:"breakout"`
	Fade                   TacticConfig `toml:"fade"`
	Pullback               TacticConfig `toml:"pullback"`
	CompressionMaxWidthATR float64      `toml:"compression_max_width_atr"` // breakout eligibility in COMPRESSION
}

// ArbiterConfig holds signal-arbitration policy parameters.
type ArbiterConfig struct {
	// MinConfidence skips the session's signal entirely below this floor.
	MinConfidence float64 `toml:"min_confidence"`
	// ShadeBelow shrinks accepted size proportionally to confidence when the
	// classification confidence is below this level.
	ShadeBelow float64 `toml:"shade_below"`
	// MaxConcurrentTrades is fixed at 1 in the baseline design; a new signal
	// is suppressed while a trade is open, never queued.
	MaxConcurrentTrades int `toml:"max_concurrent_trades"`
}

// RiskConfig holds the two-phase stop and salvage thresholds.
type RiskConfig struct {
	Phase2TriggerR float64 `toml:"phase2_trigger_r"`
	RunnerTriggerR float64 `toml:"runner_trigger_r"`
	RunnerProbMin  float64 `toml:"runner_prob_min"`

	BreakevenTriggerR float64 `toml:"breakeven_trigger_r"`
	BreakevenBufferR  float64 `toml:"breakeven_buffer_r"`

	SalvageTriggerR    float64 `toml:"salvage_trigger_r"`
	SalvageRetrace     float64 `toml:"salvage_retrace_ratio"`
	SalvageConfirmBars int     `toml:"salvage_confirm_bars"`
	SalvageReclaimFrac float64 `toml:"salvage_reclaim_frac"`

	TrailEnvelopeR    float64 `toml:"trail_envelope_r"`     // phase-3 volatility envelope, in R
	TrailTightR       float64 `toml:"trail_tight_r"`        // tighter phase-2 trail when runner gate fails
	PivotLookbackBars int     `toml:"pivot_lookback_bars"`  // structural pivot window
}

// GovernanceConfig holds daily caps, lockout, and time-cutoff parameters.
type GovernanceConfig struct {
	DailySignalCap     int  `toml:"daily_signal_cap"`
	LockoutAfterLosses int  `toml:"lockout_after_losses"`
	CutoffMinutes      int  `toml:"cutoff_minutes"` // minutes after session open; 0 disables
	FlattenOnLockout   bool `toml:"flatten_on_lockout"`
}

// FeedConfig describes where bar files live.
type FeedConfig struct {
	Dir         string   `toml:"dir"`
	Instruments []string `toml:"instruments"`
}

// EngineConfig holds run-level parameters.
type EngineConfig struct {
	// Parallelism caps concurrent instrument simulations. 0 means one
	// goroutine per instrument.
	Parallelism int    `toml:"parallelism"`
	RunKey      string `toml:"run_key"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// trade-record sink. An empty DSN with an empty Host disables persistence.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the optional run cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the optional
// result archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// Defaults returns a Config populated with the reference thresholds.
func Defaults() Config {
	tactic := func(base float64) TacticConfig {
		return TacticConfig{
			Enabled:         true,
			BufferBase:      base,
			VolAlpha:        0.5,
			RotBeta:         0.05,
			BufferMin:       0.02,
			BufferMax:       0.35,
			TargetRs:        []float64{1.0, 2.0},
			TargetFractions: []float64{0.5, 0.25},
			MaxHoldBars:     0,
			AllowRunner:     true,
			StopWidthR:      0.5,
		}
	}
	return Config{
		Range: RangeConfig{
			MicroMinutes:       5,
			PrimaryBaseMinutes: 15,
			PrimaryMinMinutes:  10,
			PrimaryMaxMinutes:  30,
			LowVolRatio:        0.6,
			HighVolRatio:       1.4,
			MinWidthATR:        0.08,
			MaxWidthATR:        0.85,
		},
		Auction: AuctionConfig{
			DriveThreshold:     0.55,
			RotationMax:        2,
			VolumeZMin:         1.0,
			CompressionWidth:   0.18,
			CompressionEntropy: 0.45,
			SmallGap:           0.10,
			LargeGap:           0.35,
			BalanceRotationMin: 4,
			BalanceVolumeZBand: 0.75,
			InventoryExtreme:   0.60,
		},
		Playbook: PlaybookConfig{
			Breakout:               tactic(0.05),
			Fade:                   tactic(0.04),
			Pullback:               tactic(0.03),
			CompressionMaxWidthATR: 0.25,
		},
		Arbiter: ArbiterConfig{
			MinConfidence:       0.25,
			ShadeBelow:          0.55,
			MaxConcurrentTrades: 1,
		},
		Risk: RiskConfig{
			Phase2TriggerR:     0.6,
			RunnerTriggerR:     1.2,
			RunnerProbMin:      0.58,
			BreakevenTriggerR:  0.8,
			BreakevenBufferR:   0.05,
			SalvageTriggerR:    0.4,
			SalvageRetrace:     0.65,
			SalvageConfirmBars: 2,
			SalvageReclaimFrac: 0.5,
			TrailEnvelopeR:     0.75,
			TrailTightR:        0.45,
			PivotLookbackBars:  5,
		},
		Governance: GovernanceConfig{
			DailySignalCap:     3,
			LockoutAfterLosses: 2,
			CutoffMinutes:      210,
			FlattenOnLockout:   true,
		},
		Feed: FeedConfig{
			Dir: "data",
		},
		Engine: EngineConfig{
			Parallelism: 0,
		},
		Postgres: PostgresConfig{
			Port:         5432,
			Database:     "orbsim",
			User:         "orbsim",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:       "",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: false,
		},
		Mode:     "simulate",
		LogLevel: "info",
	}
}

// Validate rejects contradictory or misordered thresholds eagerly, before any
// bar is processed. The engine assumes a validated configuration.
func (c *Config) Validate() error {
	r := c.Range
	if r.MicroMinutes <= 0 || r.PrimaryBaseMinutes <= 0 {
		return fmt.Errorf("config: range windows must be positive")
	}
	if r.PrimaryMinMinutes > r.PrimaryBaseMinutes || r.PrimaryBaseMinutes > r.PrimaryMaxMinutes {
		return fmt.Errorf("config: primary window bounds misordered: min %d <= base %d <= max %d required",
			r.PrimaryMinMinutes, r.PrimaryBaseMinutes, r.PrimaryMaxMinutes)
	}
	if r.MicroMinutes > r.PrimaryMinMinutes {
		return fmt.Errorf("config: micro window %dm exceeds primary minimum %dm", r.MicroMinutes, r.PrimaryMinMinutes)
	}
	if r.LowVolRatio >= r.HighVolRatio {
		return fmt.Errorf("config: low_vol_ratio %.2f must be below high_vol_ratio %.2f", r.LowVolRatio, r.HighVolRatio)
	}
	if r.MinWidthATR >= r.MaxWidthATR {
		return fmt.Errorf("config: min_width_atr %.2f must be below max_width_atr %.2f", r.MinWidthATR, r.MaxWidthATR)
	}

	if c.Auction.DriveThreshold <= 0 || c.Auction.DriveThreshold > 1 {
		return fmt.Errorf("config: drive_threshold %.2f outside (0,1]", c.Auction.DriveThreshold)
	}
	if c.Auction.LargeGap <= 0 {
		return fmt.Errorf("config: large_gap must be positive")
	}
	if c.Auction.SmallGap < 0 || c.Auction.SmallGap >= c.Auction.LargeGap {
		return fmt.Errorf("config: small_gap %.2f must be in [0, large_gap)", c.Auction.SmallGap)
	}

	for _, tc := range []struct {
		name string
		t    TacticConfig
	}{
		{"breakout", c.Playbook.Breakout},
		{"fade", c.Playbook.Fade},
		{"pullback", c.Playbook.Pullback},
	} {
		if !tc.t.Enabled {
			continue
		}
		if tc.t.BufferMin > tc.t.BufferMax {
			return fmt.Errorf("config: %s buffer bounds misordered", tc.name)
		}
		if len(tc.t.TargetRs) != len(tc.t.TargetFractions) {
			return fmt.Errorf("config: %s target ladder slices differ in length", tc.name)
		}
		var sum float64
		prev := 0.0
		for i, tr := range tc.t.TargetRs {
			if tr <= prev {
				return fmt.Errorf("config: %s target_rs must be positive and ascending", tc.name)
			}
			prev = tr
			if tc.t.TargetFractions[i] <= 0 {
				return fmt.Errorf("config: %s target fraction %d not positive", tc.name, i)
			}
			sum += tc.t.TargetFractions[i]
		}
		if sum > 1+1e-9 {
			return fmt.Errorf("config: %s target fractions sum to %.3f > 1", tc.name, sum)
		}
		if tc.t.StopWidthR <= 0 {
			return fmt.Errorf("config: %s stop_width_r must be positive", tc.name)
		}
	}

	k := c.Risk
	if k.Phase2TriggerR <= 0 {
		return fmt.Errorf("config: phase2_trigger_r must be positive")
	}
	if k.RunnerTriggerR < k.Phase2TriggerR {
		return fmt.Errorf("config: runner_trigger_r %.2f below phase2_trigger_r %.2f", k.RunnerTriggerR, k.Phase2TriggerR)
	}
	if k.RunnerProbMin < 0 || k.RunnerProbMin > 1 {
		return fmt.Errorf("config: runner_prob_min %.2f outside [0,1]", k.RunnerProbMin)
	}
	// The salvage guarantee (a salvage exit always beats the full-stop loss)
	// requires a positive trigger and a retrace ratio strictly inside (0,1):
	// worst-case salvage R = trigger * (1 - retrace) > 0 > -1.
	if k.SalvageTriggerR <= 0 {
		return fmt.Errorf("config: salvage_trigger_r must be positive")
	}
	if k.SalvageRetrace <= 0 || k.SalvageRetrace >= 1 {
		return fmt.Errorf("config: salvage_retrace_ratio %.2f outside (0,1)", k.SalvageRetrace)
	}
	if k.SalvageConfirmBars < 0 {
		return fmt.Errorf("config: salvage_confirm_bars must be non-negative")
	}
	if k.SalvageReclaimFrac < 0 || k.SalvageReclaimFrac > 1 {
		return fmt.Errorf("config: salvage_reclaim_frac %.2f outside [0,1]", k.SalvageReclaimFrac)
	}
	if k.BreakevenTriggerR <= 0 || k.BreakevenBufferR < 0 {
		return fmt.Errorf("config: breakeven thresholds misconfigured")
	}
	if k.TrailEnvelopeR <= 0 || k.TrailTightR <= 0 {
		return fmt.Errorf("config: trail distances must be positive")
	}
	if k.PivotLookbackBars <= 0 {
		return fmt.Errorf("config: pivot_lookback_bars must be positive")
	}

	g := c.Governance
	if g.DailySignalCap <= 0 {
		return fmt.Errorf("config: daily_signal_cap must be positive")
	}
	if g.LockoutAfterLosses <= 0 {
		return fmt.Errorf("config: lockout_after_losses must be positive")
	}
	if g.CutoffMinutes < 0 {
		return fmt.Errorf("config: cutoff_minutes must be non-negative")
	}

	a := c.Arbiter
	if a.MinConfidence < 0 || a.MinConfidence > 1 || a.ShadeBelow < 0 || a.ShadeBelow > 1 {
		return fmt.Errorf("config: arbiter confidence thresholds outside [0,1]")
	}
	if a.MaxConcurrentTrades != 1 {
		return fmt.Errorf("config: max_concurrent_trades must be 1 in the baseline design")
	}

	switch c.Mode {
	case "simulate", "persist", "archive":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}
	return nil
}

// PostgresEnabled reports whether the persistence sink is configured.
func (c *Config) PostgresEnabled() bool {
	return c.Postgres.DSN != "" || c.Postgres.Host != ""
}

// RedisEnabled reports whether the run cache is configured.
func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }

// S3Enabled reports whether the result archiver is configured.
func (c *Config) S3Enabled() bool { return c.S3.Bucket != "" }
