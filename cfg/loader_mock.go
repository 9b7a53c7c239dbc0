package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (yl *MockLoader) Load() (*Config, error) {
	return &Config{
		App: App{
			Name:    "ghcollector",
			Version: "0.0.1",
		},

		Postgres: Postgres{
			Host:                  "127.0.0.1",
			Port:                  "5432",
			Username:              "postgres",
			Password:              "postgres",
			Database:              "ghcollector",
			SslMode:               "disable",
			MaxIdleConnection:     10,
			MaxOpenConnection:     50,
			MaxLifeTimeConnection: 3600,
		},

		Log: Log{Level: "info"},

		Broker: Broker{
			Tokens:    []string{"dev-token"},
			UserAgent: "ghcollector/0.1 (+https://github.com/thep200/ghcollector)",
			FetchMode: "hybrid",
			Budgets: []Budget{
				{
					Name:        "core",
					Concurrency: 8,
					Classes: []BudgetClass{
						{Name: "interactive", Weight: 3, QueueCap: 500},
						{Name: "background", Weight: 2, QueueCap: 2000},
						{Name: "bulk", Weight: 1, QueueCap: 5000},
					},
				},
				{
					Name:        "search",
					Concurrency: 2,
					Classes: []BudgetClass{
						{Name: "interactive", Weight: 3, QueueCap: 100},
						{Name: "background", Weight: 2, QueueCap: 500},
						{Name: "bulk", Weight: 1, QueueCap: 1000},
					},
				},
				{
					Name:        "graphql",
					Concurrency: 4,
					Classes: []BudgetClass{
						{Name: "interactive", Weight: 3, QueueCap: 200},
						{Name: "background", Weight: 2, QueueCap: 1000},
						{Name: "bulk", Weight: 1, QueueCap: 2000},
					},
				},
			},
		},

		Cache: Cache{MaxBytes: 64 * 1024 * 1024},

		Retry: Retry{MaxAttempts: 5, BaseMs: 500, CapMs: 30000},

		Worker: Worker{
			Concurrency:    4,
			BatchSize:      10,
			PollIntervalMs: 2000,
			RunOnce:        false,
			MaxFailures:    5,
		},

		Kafka: Kafka{
			Brokers:       []string{"127.0.0.1:9092"},
			IntakeTopic:   "repo-discovered",
			ConsumerGroup: "ghcollector-intake",
			EventsTopic:   "issue-lifecycle",
		},

		ControlSurface: ControlSurface{Addr: ":8080"},
	}, nil
}
