package config

import (
	"os"
	"path/filepath"
)

const configTemplate = `# hkbacktest configuration

[commission]
# HKEX fee schedule (spec 4.8). Every rate/min/max below is a tunable
# parameter; the stamp duty minimum is frozen at 1.00 HKD for
# reproducibility even though published HKEX rules have varied by year.

[commission.trade_commission]
rate = 0.00025
min = 5.00
max = 100.00

[commission.trading_fee]
rate = 0.00005
min = 0.01
max = 100.00

[commission.settlement_fee]
rate = 0.00002
min = 2.00
max = 100.00

[commission.ccass_fee]
rate = 0.00002
min = 2.00
max = 100.00

[commission.stamp_duty]
rate = 0.0013
min = 1.00
sell_only = true
waived_for_etf = true

[commission.investor_compensation_fee]
rate = 0.00002
max = 100.00
sell_only = true

[risk]
# Account-level pre-trade limits (spec 4.6).
max_single_position = 500000
max_daily_loss = 0.02
consecutive_loss_limit = 5
max_drawdown = 0.25

[data]
# Persistent-store path and data-pipeline fetch/retry bounds (spec 4.1, 5).
store_path = ""
fetch_timeout = "30s"
prepare_timeout = "120s"
retry_attempts = 3
# Directory of <symbol>.csv candle fixtures, used when no live broker
# connector is configured (the broker connector itself is out of scope
# for this core; see internal/broker).
candle_source_path = ""

[symbols]
# Per-symbol overrides of lot size and ETF status. Any symbol omitted
# here defaults to lot_size=100, is_etf=false.

[symbols."00005.HK"]
lot_size = 400
display_name = "HSBC Holdings"

[symbols."00939.HK"]
lot_size = 1000
display_name = "China Construction Bank"

[symbols."01299.HK"]
lot_size = 500
display_name = "AIA Group"

[symbols."02800.HK"]
lot_size = 500
is_etf = true
display_name = "Tracker Fund of Hong Kong"

[symbols."03033.HK"]
lot_size = 2000
is_etf = true
display_name = "CSOP Hang Seng TECH Index ETF"
`

// writeTemplateConfig writes the default backtest.toml to configDir if
// the directory does not already contain one.
func writeTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "backtest.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(configTemplate), 0644)
}
