package config

import (
	"context"
	"log/slog"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/internal/units"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings keeps all configuration options. Built once, read-only afterwards.
type Settings struct {
	RPCURLs      []string      `mapstructure:"rpc_urls"`
	ChainID      int64         `mapstructure:"chain_id"`
	Quorum       int           `mapstructure:"quorum"`
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	// RPCRateLimit is requests per second per endpoint, 0 = unlimited.
	RPCRateLimit float64 `mapstructure:"rpc_rate_limit"`

	MaxFeeGwei         int64  `mapstructure:"max_fee_gwei"`
	MaxPriorityFeeGwei int64  `mapstructure:"max_priority_fee_gwei"`
	GasLimitEstimate   uint64 `mapstructure:"gas_limit_estimate"`

	AttemptsPerTier int           `mapstructure:"attempts_per_tier"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
	PurchaseTimeout time.Duration `mapstructure:"purchase_timeout"`

	SaleStart    time.Time      `mapstructure:"sale_start"`
	TokenAddress common.Address `mapstructure:"token_address"`
	SaleAddress  common.Address `mapstructure:"sale_address"`
	PromoCode    string         `mapstructure:"promo_code"`
	WalletsFile  string         `mapstructure:"wallets_file"`

	Logger logger.Config `mapstructure:"logger"`
}

var defaults = map[string]any{
	"rpc_urls": []string{
		"https://rpc.ankr.com/arbitrum",
		"https://arbitrum.llamarpc.com",
		"https://arbitrum.drpc.org",
		"https://arbitrum.blockpi.network/v1/rpc/public",
		"https://arb1.arbitrum.io/rpc",
	},
	"chain_id":              42161,
	"quorum":                1,
	"stall_timeout":         "500ms",
	"poll_interval":         "1s",
	"call_timeout":          "10s",
	"rpc_rate_limit":        0,
	"max_fee_gwei":          10,
	"max_priority_fee_gwei": 6,
	"gas_limit_estimate":    500_000,
	"attempts_per_tier":     5,
	"retry_delay":           "200ms",
	"approval_timeout":      "300s",
	"purchase_timeout":      "30s",
	// three seconds ahead of the announced opening
	"sale_start":    strconv.FormatInt(1729764000000-3000, 10),
	"token_address": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	"sale_address":  "0xbB8f1675A371262e9909c6A3BC7d4bf98AE5f47D",
	"promo_code":    "oduvanchik",
	"wallets_file":  "wallets.txt",
	"logger.output": "TEXT",
	"logger.debug":  false,
	"logger.dir":    "",
}

// Load reads .env / .env.local, then the optional YAML file, then environment variables.
// An empty file means ./config.yaml when present. flags maps config keys to command line flags,
// which win over every other source once set.
func Load(file string, flags map[string]*pflag.Flag) (Settings, error) {
	ctx := logger.WithContext(context.Background(), slog.String("package", "config"))

	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Settings{}, errors.Wrapf(err, "bind flag %s", flag.Name)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath("./")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || file != "" {
			return Settings{}, errors.Mark(errors.Wrap(err, "invalid config file"), errs.ConfigDefect)
		}
		logger.DebugContext(ctx, "Config file not found, using defaults and environment")
	}

	var s Settings
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		addressHook,
		saleStartHook,
	)
	if err := v.Unmarshal(&s, viper.DecodeHook(hook)); err != nil {
		return Settings{}, errors.Mark(errors.Wrap(err, "decode config"), errs.ConfigDefect)
	}
	s.RPCURLs = cleanList(s.RPCURLs)
	s.PromoCode = strings.TrimSpace(s.PromoCode)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	logger.DebugContext(ctx, "Config loaded", slogx.Int("rpc_urls", len(s.RPCURLs)))
	return s, nil
}

// Validate rejects settings the sale can't run with.
func (s Settings) Validate() error {
	var problems []string
	if len(s.RPCURLs) == 0 {
		problems = append(problems, "no RPC endpoints configured")
	}
	if s.Quorum < 1 || s.Quorum > len(s.RPCURLs) {
		problems = append(problems, "quorum must be between 1 and the number of RPC endpoints")
	}
	if s.ChainID <= 0 {
		problems = append(problems, "chain_id must be positive")
	}
	if s.MaxFeeGwei <= 0 {
		problems = append(problems, "max_fee_gwei must be positive")
	}
	if s.MaxPriorityFeeGwei < 0 || s.MaxPriorityFeeGwei > s.MaxFeeGwei {
		problems = append(problems, "max_priority_fee_gwei must be between 0 and max_fee_gwei")
	}
	if s.AttemptsPerTier < 0 {
		problems = append(problems, "attempts_per_tier can't be negative")
	}
	if s.StallTimeout <= 0 || s.PollInterval <= 0 || s.CallTimeout <= 0 || s.ApprovalTimeout <= 0 || s.PurchaseTimeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if s.RetryDelay < 0 {
		problems = append(problems, "retry_delay can't be negative")
	}
	if s.TokenAddress == (common.Address{}) || s.SaleAddress == (common.Address{}) {
		problems = append(problems, "token_address and sale_address are required")
	}
	if s.WalletsFile == "" {
		problems = append(problems, "wallets_file is required")
	}
	if len(problems) > 0 {
		return errors.Wrap(errs.ConfigDefect, strings.Join(problems, "; "))
	}
	return nil
}

func (s Settings) ChainIDBig() *big.Int { return big.NewInt(s.ChainID) }

func (s Settings) MaxFeePerGas() *big.Int { return units.GweiToWei(s.MaxFeeGwei) }

func (s Settings) MaxPriorityFeePerGas() *big.Int { return units.GweiToWei(s.MaxPriorityFeeGwei) }

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, x := range in {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}

var (
	addressType = reflect.TypeOf(common.Address{})
	timeType    = reflect.TypeOf(time.Time{})
)

func addressHook(from, to reflect.Type, data any) (any, error) {
	if to != addressType || from.Kind() != reflect.String {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return nil, errors.Newf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// saleStartHook accepts unix milliseconds or RFC3339.
func saleStartHook(from, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		s := strings.TrimSpace(data.(string))
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, errors.Newf("sale_start %q is neither unix milliseconds nor RFC3339", s)
		}
		return t, nil
	case reflect.Int, reflect.Int64, reflect.Int32:
		return time.UnixMilli(reflect.ValueOf(data).Int()), nil
	}
	return data, nil
}

// Describe lists the effective settings for the startup banner. Nothing here is secret,
// but RPC URLs may embed API keys and are shortened.
func (s Settings) Describe() [][2]string {
	urls := make([]string, len(s.RPCURLs))
	for i, u := range s.RPCURLs {
		urls[i] = maskURL(u)
	}
	return [][2]string{
		{"RPC_URLS", strings.Join(urls, ", ")},
		{"CHAIN_ID", strconv.FormatInt(s.ChainID, 10)},
		{"QUORUM", strconv.Itoa(s.Quorum)},
		{"STALL_TIMEOUT", s.StallTimeout.String()},
		{"CALL_TIMEOUT", s.CallTimeout.String()},
		{"MAX_FEE (gwei)", units.FormatGwei(s.MaxFeePerGas())},
		{"MAX_PRIORITY_FEE (gwei)", units.FormatGwei(s.MaxPriorityFeePerGas())},
		{"ATTEMPTS_PER_TIER", strconv.Itoa(s.AttemptsPerTier)},
		{"SALE_START", s.SaleStart.UTC().Format(time.RFC3339Nano)},
		{"TOKEN", s.TokenAddress.Hex()},
		{"SALE", s.SaleAddress.Hex()},
		{"WALLETS_FILE", s.WalletsFile},
	}
}

func maskURL(u string) string {
	i := strings.Index(u, "://")
	rest := u
	if i >= 0 {
		rest = u[i+3:]
	}
	if j := strings.IndexAny(rest, "/?"); j >= 0 && len(rest)-j > 12 {
		return u[:len(u)-len(rest)+j] + "/…"
	}
	return u
}
