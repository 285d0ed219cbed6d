package models

import "time"

const (
	DefaultIPLookupURL    = "http://ip-api.com/json/{ip}?fields=status,message,country,regionName,city,isp,org,as,hosting,proxy,mobile,query"
	DefaultIPNameFmt      = "{region}-{random}"
	DefaultLatencyFmt     = "{avg}ms"
	DefaultCoreTestURL    = "https://www.gstatic.com/generate_204"
	defaultCoreStartDelay = 90 * time.Second
)

// RegionRule maps a name pattern onto a region label.
type RegionRule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Region  string `json:"region" yaml:"region"`
}

// Settings is the backend test configuration. Durations are carried as
// nanoseconds on the wire.
type Settings struct {
	Attempts         int           `json:"attempts" yaml:"attempts"`
	Threshold        time.Duration `json:"threshold" yaml:"threshold"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	Concurrency      int           `json:"concurrency" yaml:"concurrency"`
	RequireAll       bool          `json:"requireAll" yaml:"require_all"`
	StopOnFail       bool          `json:"stopOnFail" yaml:"stop_on_fail"`
	Dedup            bool          `json:"dedup" yaml:"dedup"`
	Rename           bool          `json:"rename" yaml:"rename"`
	RenameFmt        string        `json:"renameFmt" yaml:"rename_fmt"`
	RegionRules      []RegionRule  `json:"regionRules" yaml:"region_rules"`
	ExcludeEnabled   bool          `json:"excludeEnabled" yaml:"exclude_enabled"`
	ExcludeKeywords  []string      `json:"excludeKeywords" yaml:"exclude_keywords"`
	LatencyName      bool          `json:"latencyName" yaml:"latency_name"`
	LatencyFmt       string        `json:"latencyFmt" yaml:"latency_fmt"`
	IPRename         bool          `json:"ipRename" yaml:"ip_rename"`
	IPLookupURL      string        `json:"ipLookupURL" yaml:"ip_lookup_url"`
	IPLookupTimeout  time.Duration `json:"ipLookupTimeout" yaml:"ip_lookup_timeout"`
	IPNameFmt        string        `json:"ipNameFmt" yaml:"ip_name_fmt"`
	UseCoreTest      bool          `json:"useCoreTest" yaml:"use_core_test"`
	CorePath         string        `json:"corePath" yaml:"core_path"`
	CoreTestURL      string        `json:"coreTestURL" yaml:"core_test_url"`
	CoreStartTimeout time.Duration `json:"coreStartTimeout" yaml:"core_start_timeout"`
	UseBatchMode     bool          `json:"useBatchMode" yaml:"use_batch_mode"`
}

// DefaultSettings mirrors the defaults the backend starts with. The local
// mirror holds these until the first successful load.
func DefaultSettings() Settings {
	return Settings{
		Attempts:         3,
		Threshold:        1500 * time.Millisecond,
		Timeout:          1500 * time.Millisecond,
		Concurrency:      32,
		RequireAll:       true,
		StopOnFail:       true,
		Dedup:            true,
		CoreTestURL:      DefaultCoreTestURL,
		CoreStartTimeout: defaultCoreStartDelay,
	}
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	if s.RegionRules != nil {
		s.RegionRules = append([]RegionRule(nil), s.RegionRules...)
	}
	if s.ExcludeKeywords != nil {
		s.ExcludeKeywords = append([]string(nil), s.ExcludeKeywords...)
	}
	return s
}
