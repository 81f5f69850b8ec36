package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			PublicBaseURL: "http://localhost:8080",
		},
		Model: ModelConfig{
			APIBase:        "https://api.openai.com/v1",
			Name:           "gpt-4o-mini",
			TimeoutSeconds: 60,
		},
		Farcaster: FarcasterConfig{
			APIBase:     "https://api.neynar.com/v2",
			BotUsername: "commodus",
		},
		Pinning: PinningConfig{
			APIBase:     "https://api.pinata.cloud",
			GatewayBase: "https://gateway.pinata.cloud/ipfs",
		},
		Chain: ChainConfig{
			PlatformReferrer:      "0xbD78783a26252bAf756e22f0DE764dfDcDa7733c",
			ReceiptPollSeconds:    2,
			ReceiptTimeoutSeconds: 120,
		},
		Tasks: TasksConfig{
			TimeoutSeconds: 300,
		},
		Moderation: ModerationConfig{
			MinUserScore: 0.5,
		},
		Memory: MemoryConfig{
			Enabled:          true,
			DBPath:           "~/.commodus/state.db",
			RefreshThreshold: 10,
			RefreshCron:      "0 */10 * * * *",
		},
		Alerts: AlertsConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
