package cfg

import "time"

type Cfg struct {
	// Podcast configuration
	PodcastConfig string

	// Snapshot storage
	Store     string
	DBPath    string
	RedisAddr string

	// Application configuration
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

func (c *Cfg) SchedulerIntervalDuration() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}
