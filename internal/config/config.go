// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"loadalert-sim/internal/logging"
	"loadalert-sim/internal/telemetry"
)

// Initial is the truck state before the first tick.
type Initial struct {
	Weight float64 `mapstructure:"weight" yaml:"weight"`
	Lat    float64 `mapstructure:"lat" yaml:"lat"`
	Lon    float64 `mapstructure:"lon" yaml:"lon"`
}

// Precision sets how many decimals generated values keep.
type Precision struct {
	Weight int32 `mapstructure:"weight" yaml:"weight"`
	Coord  int32 `mapstructure:"coord" yaml:"coord"`
}

// AdminConfig configures the HTTP admin UI.
type AdminConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	MapWindow int    `mapstructure:"map_window" yaml:"map_window"`
}

// GreptimeConfig configures the GreptimeDB sink. An empty endpoint disables it.
type GreptimeConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Database string `mapstructure:"database" yaml:"database"`
	Table    string `mapstructure:"table" yaml:"table"`
}

// PostgresConfig configures the PostgreSQL/Timescale sink. An empty DSN disables it.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn" yaml:"-"`
	Table string `mapstructure:"table" yaml:"table"`
}

// SQLiteConfig configures the SQLite session sink. An empty path disables it.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// RedisConfig configures the Redis live-state sink. An empty addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr,omitempty"`
	Password string `mapstructure:"password" yaml:"-"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// SinksConfig groups the optional database sinks.
type SinksConfig struct {
	Greptime GreptimeConfig `mapstructure:"greptime" yaml:"greptime"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

// SimulationConfig is the root configuration for one simulated truck session.
type SimulationConfig struct {
	TruckID         string          `mapstructure:"truck_id" yaml:"truck_id"`
	Threshold       float64         `mapstructure:"threshold" yaml:"threshold"`
	NoiseStd        float64         `mapstructure:"noise_std" yaml:"noise_std"`
	PositionStepStd float64         `mapstructure:"position_step_std" yaml:"position_step_std"`
	JumpProbability float64         `mapstructure:"jump_probability" yaml:"jump_probability"`
	JumpRange       telemetry.Range `mapstructure:"jump_range" yaml:"jump_range"`
	WeightBounds    telemetry.Range `mapstructure:"weight_bounds" yaml:"weight_bounds"`
	Initial         Initial         `mapstructure:"initial" yaml:"initial"`
	Precision       Precision       `mapstructure:"precision" yaml:"precision"`
	Seed            int64           `mapstructure:"seed" yaml:"seed"`
	TickInterval    time.Duration   `mapstructure:"tick_interval" yaml:"tick_interval"`
	PointsPerTick   int             `mapstructure:"points_per_tick" yaml:"points_per_tick"`
	Scenario        string          `mapstructure:"scenario" yaml:"scenario,omitempty"`
	Admin           AdminConfig     `mapstructure:"admin" yaml:"admin"`
	Logging         logging.Config  `mapstructure:"logging" yaml:"logging"`
	Sinks           SinksConfig     `mapstructure:"sinks" yaml:"sinks"`
}

// ErrInvalid is wrapped by semantic validation failures outside the generator settings.
var ErrInvalid = errors.New("invalid simulation config")

// Load reads configuration from defaults, an optional YAML file and the environment.
// When cueSchemaPath is set the file is validated against the CUE schema first.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if configPath != "" {
		if cueSchemaPath != "" {
			if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
				return nil, err
			}
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg SimulationConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, matching config/simulation.yaml.
func Default() *SimulationConfig {
	cfg, err := Load("", "")
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("truck_id", "KA01AB1234")
	v.SetDefault("threshold", 10.0)
	v.SetDefault("noise_std", 0.05)
	v.SetDefault("position_step_std", 0.0003)
	v.SetDefault("jump_probability", 0.08)
	v.SetDefault("jump_range.min", 0.5)
	v.SetDefault("jump_range.max", 5.0)
	v.SetDefault("weight_bounds.min", 0.0)
	v.SetDefault("weight_bounds.max", 40.0)
	v.SetDefault("initial.weight", 8.0)
	v.SetDefault("initial.lat", 12.9716)
	v.SetDefault("initial.lon", 77.5946)
	v.SetDefault("precision.weight", telemetry.DefaultWeightPrecision)
	v.SetDefault("precision.coord", telemetry.DefaultCoordPrecision)
	v.SetDefault("seed", 0)
	v.SetDefault("tick_interval", "1s")
	v.SetDefault("points_per_tick", 1)
	v.SetDefault("scenario", "")

	v.SetDefault("admin.addr", ":8080")
	v.SetDefault("admin.map_window", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")

	v.SetDefault("sinks.greptime.endpoint", "")
	v.SetDefault("sinks.greptime.database", "public")
	v.SetDefault("sinks.greptime.table", telemetry.ReadingTableName)
	v.SetDefault("sinks.postgres.dsn", "")
	v.SetDefault("sinks.postgres.table", telemetry.ReadingTableName)
	v.SetDefault("sinks.sqlite.path", "")
	v.SetDefault("sinks.redis.addr", "")
	v.SetDefault("sinks.redis.password", "")
	v.SetDefault("sinks.redis.db", 0)
	v.SetDefault("sinks.redis.prefix", "loadalert")
}

// bindEnv enables LOADALERT_* overrides and keeps the established variable names working.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("LOADALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := map[string][]string{
		"truck_id":                {"LOADALERT_TRUCK_ID", "TRUCK_ID"},
		"tick_interval":           {"LOADALERT_TICK_INTERVAL", "TICK_INTERVAL"},
		"sinks.greptime.endpoint": {"LOADALERT_SINKS_GREPTIME_ENDPOINT", "GREPTIMEDB_ENDPOINT"},
		"sinks.greptime.table":    {"LOADALERT_SINKS_GREPTIME_TABLE", "GREPTIMEDB_TABLE"},
		"sinks.postgres.dsn":      {"LOADALERT_SINKS_POSTGRES_DSN", "DATABASE_URL"},
		"sinks.redis.addr":        {"LOADALERT_SINKS_REDIS_ADDR", "REDIS_ADDR"},
		"sinks.redis.password":    {"LOADALERT_SINKS_REDIS_PASSWORD", "REDIS_PASSWORD"},
	}
	for key, names := range explicit {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}

// Validate performs the semantic checks the schema cannot express.
func (c *SimulationConfig) Validate() error {
	if err := c.Telemetry().Validate(); err != nil {
		return err
	}
	switch {
	case strings.TrimSpace(c.TruckID) == "":
		return fmt.Errorf("%w: truck_id is required", ErrInvalid)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick_interval must be positive, got %s", ErrInvalid, c.TickInterval)
	case c.PointsPerTick < 1:
		return fmt.Errorf("%w: points_per_tick must be at least 1, got %d", ErrInvalid, c.PointsPerTick)
	case !c.WeightBounds.Contains(c.Initial.Weight):
		return fmt.Errorf("%w: initial.weight %v outside weight_bounds [%v,%v]", ErrInvalid, c.Initial.Weight, c.WeightBounds.Min, c.WeightBounds.Max)
	case !(math.Abs(c.Initial.Lat) <= 90) || !(math.Abs(c.Initial.Lon) <= 180):
		return fmt.Errorf("%w: initial position (%v, %v) is not a valid coordinate", ErrInvalid, c.Initial.Lat, c.Initial.Lon)
	case c.Admin.MapWindow < 1:
		return fmt.Errorf("%w: admin.map_window must be at least 1", ErrInvalid)
	}
	return nil
}

// Telemetry returns the generator settings.
func (c *SimulationConfig) Telemetry() telemetry.Config {
	return telemetry.Config{
		Threshold:       c.Threshold,
		NoiseStd:        c.NoiseStd,
		PositionStepStd: c.PositionStepStd,
		JumpProbability: c.JumpProbability,
		JumpRange:       c.JumpRange,
		WeightBounds:    c.WeightBounds,
		WeightPrecision: c.Precision.Weight,
		CoordPrecision:  c.Precision.Coord,
	}
}

// InitialState returns the state the first tick starts from.
func (c *SimulationConfig) InitialState() telemetry.State {
	return telemetry.State{
		Weight:   c.Initial.Weight,
		Position: telemetry.Position{Lat: c.Initial.Lat, Lon: c.Initial.Lon},
	}
}

// ValidateWithCue validates a YAML configuration file using a CUE schema file.
func ValidateWithCue(configFile, cueFile string) error {
	ctx := cuecontext.New()

	// Read YAML config
	yamlBytes, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	file, err := cueyaml.Extract(configFile, yamlBytes)
	if err != nil {
		return fmt.Errorf("cannot parse YAML config: %w", err)
	}
	configVal := ctx.BuildFile(file)

	// Read CUE schema
	schemaBytes, err := os.ReadFile(cueFile)
	if err != nil {
		return fmt.Errorf("cannot read CUE schema: %w", err)
	}
	schemaVal := ctx.CompileBytes(schemaBytes, cue.Filename(cueFile))
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}

	// Merge values with schema
	final := schemaVal.Unify(configVal)
	if final.Err() != nil {
		return fmt.Errorf("schema unify failed: %w", final.Err())
	}

	// Validate final structure
	if err := final.Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
