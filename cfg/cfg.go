package cfg

import "time"

type (
	App struct {
		Name    string
		Version string
	}

	Postgres struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		SslMode               string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	Log struct {
		Level string
	}

	// BudgetClass is one DRR-weighted priority tier within a budget.
	BudgetClass struct {
		Name     string
		Weight   int
		QueueCap int
	}

	// Budget configures one named upstream quota class (REST core,
	// search, GraphQL, ...).
	Budget struct {
		Name        string
		Concurrency int
		Classes     []BudgetClass
	}

	Broker struct {
		Tokens    []string
		Budgets   []Budget
		UserAgent string
		FetchMode string // rest | graph | hybrid
	}

	Cache struct {
		MaxBytes int64
	}

	Retry struct {
		MaxAttempts int
		BaseMs      int
		CapMs       int
	}

	Worker struct {
		Concurrency     int
		BatchSize       int
		PollIntervalMs  int
		RunOnce         bool
		MaxFailures     int
	}

	Kafka struct {
		Brokers        []string
		IntakeTopic    string
		ConsumerGroup  string
		EventsTopic    string
	}

	ControlSurface struct {
		Addr string
	}
)

type Config struct {
	App            App
	Postgres       Postgres
	Log            Log
	Broker         Broker
	Cache          Cache
	Retry          Retry
	Worker         Worker
	Kafka          Kafka
	ControlSurface ControlSurface
}

// PollInterval returns the worker's idle poll interval as a duration,
// defaulting to a sane floor so a misconfigured zero never busy-loops.
func (c *Config) PollInterval() time.Duration {
	if c.Worker.PollIntervalMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Worker.PollIntervalMs) * time.Millisecond
}

func (c *Config) RetryBase() time.Duration {
	if c.Retry.BaseMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Retry.BaseMs) * time.Millisecond
}

func (c *Config) RetryCap() time.Duration {
	if c.Retry.CapMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Retry.CapMs) * time.Millisecond
}
