package config

const (
	defaultDataDir            = "~/.local/share/nxinfo"
	defaultLogDir             = "~/.local/share/nxinfo/logs"
	defaultKeysDir            = "~/.switch"
	defaultProdKeysName       = "prod.keys"
	defaultTitleKeysName      = "title.keys"
	defaultConsoleKeysName    = "console.keys"
	defaultVersionListURL     = "https://tagaya.hac.lp1.eshop.nintendo.net/tagaya/hac_versionlist"
	defaultVersionListName    = "hac_versionlist.json"
	defaultVersionsTimeout    = 30
	defaultHactoolBinary      = "hactool"
	defaultHactoolTimeout     = 300
	defaultHistoryName        = "history.db"
	defaultHistorySize        = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultWatchSettleSeconds = 2
)

var defaultExtensions = []string{".xci", ".nsp", ".nro"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Keys: Keys{
			Dir: defaultKeysDir,
		},
		Versions: Versions{
			URL:            defaultVersionListURL,
			TimeoutSeconds: defaultVersionsTimeout,
		},
		Hactool: Hactool{
			Binary:         defaultHactoolBinary,
			TimeoutSeconds: defaultHactoolTimeout,
		},
		History: History{
			Enabled: true,
			Size:    defaultHistorySize,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Scan: Scan{
			Extensions: append([]string(nil), defaultExtensions...),
		},
		Watch: Watch{
			SettleSeconds: defaultWatchSettleSeconds,
		},
	}
}
