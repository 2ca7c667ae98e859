package resilience

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/time/rate"
)

// LoadLevel classifies system load into four degradation tiers.
type LoadLevel int

const (
	LoadNormal LoadLevel = iota
	LoadElevated
	LoadHigh
	LoadCritical
)

func (l LoadLevel) String() string {
	switch l {
	case LoadElevated:
		return "elevated"
	case LoadHigh:
		return "high"
	case LoadCritical:
		return "critical"
	default:
		return "normal"
	}
}

// DegradationConfig is the set of request parameters the orchestrator should
// use at a given load level, derived from the caller's originally requested
// top_k and max output tokens.
type DegradationConfig struct {
	TopK              int
	EnableMMR         bool
	MaxOutputTokens   int
	Temperature       float64
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
}

// LoadMetrics is a single load sample plus the resulting degradation decision.
type LoadMetrics struct {
	CPUPercent   float64
	MemPercent   float64
	Level        LoadLevel
	Degraded     bool
	Degradation  DegradationConfig
	SampledAt    time.Time
}

// LoadShedderOpts configures the threshold bands. The CPU thresholds are
// compared against the CPU reading and the Mem thresholds against the memory
// reading; the higher of the two resulting levels wins. The defaults mirror
// the shedder this package is modeled on.
type LoadShedderOpts struct {
	CPUElevated  float64
	CPUHigh      float64
	CPUCritical  float64
	MemElevated  float64
	MemHigh      float64
	MemCritical  float64
	// SampleInterval gates how often the system is actually probed; calls
	// inside the interval reuse the last sample instead of re-probing.
	SampleInterval time.Duration
}

var DefaultLoadShedderOpts = LoadShedderOpts{
	CPUElevated:    70.0,
	CPUHigh:        85.0,
	CPUCritical:    95.0,
	MemElevated:    75.0,
	MemHigh:        90.0,
	MemCritical:    95.0,
	SampleInterval: time.Second,
}

// metricsSource abstracts the system probe so tests can supply fixed
// readings instead of querying the real host.
type metricsSource interface {
	Sample() (cpuPercent, memPercent float64, err error)
}

type gopsutilSource struct{}

func (gopsutilSource) Sample() (float64, float64, error) {
	cpuPercents, err := cpu.Percent(0, false)
	if err != nil || len(cpuPercents) == 0 {
		return 0, 0, err
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return cpuPercents[0], vm.UsedPercent, nil
}

// LoadShedder samples host CPU/memory and degrades retrieval/generation
// parameters under pressure. The probe itself is rate-limited by a
// token-bucket so CheckLoad can be called on every request without hammering
// the OS for fresh readings.
type LoadShedder struct {
	opts   LoadShedderOpts
	source metricsSource
	probe  *rate.Limiter

	mu       sync.Mutex
	lastCPU  float64
	lastMem  float64
	lastSample time.Time
	degradedSince time.Time
}

// NewLoadShedder creates a load shedder using the live host as its metrics source.
func NewLoadShedder(opts LoadShedderOpts) *LoadShedder {
	return newLoadShedder(opts, gopsutilSource{})
}

func newLoadShedder(opts LoadShedderOpts, source metricsSource) *LoadShedder {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultLoadShedderOpts.SampleInterval
	}
	for _, pair := range []*float64{&opts.CPUElevated, &opts.CPUHigh, &opts.CPUCritical, &opts.MemElevated, &opts.MemHigh, &opts.MemCritical} {
		if *pair <= 0 {
			*pair = 100
		}
	}
	return &LoadShedder{
		opts:   opts,
		source: source,
		probe:  rate.NewLimiter(rate.Every(opts.SampleInterval), 1),
	}
}

// sample returns the current cpu/mem percentages, reusing the last reading
// when the probe's rate limiter denies a fresh one.
func (s *LoadShedder) sample() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.probe.Allow() && !s.lastSample.IsZero() {
		return s.lastCPU, s.lastMem
	}

	cpuPct, memPct, err := s.source.Sample()
	if err != nil {
		return s.lastCPU, s.lastMem
	}
	s.lastCPU, s.lastMem, s.lastSample = cpuPct, memPct, time.Now()
	return cpuPct, memPct
}

func (s *LoadShedder) determineLevel(cpuPct, memPct float64) LoadLevel {
	switch {
	case cpuPct >= s.opts.CPUCritical || memPct >= s.opts.MemCritical:
		return LoadCritical
	case cpuPct >= s.opts.CPUHigh || memPct >= s.opts.MemHigh:
		return LoadHigh
	case cpuPct >= s.opts.CPUElevated || memPct >= s.opts.MemElevated:
		return LoadElevated
	default:
		return LoadNormal
	}
}

func degradationFor(level LoadLevel, originalTopK, originalMaxTokens int) DegradationConfig {
	switch level {
	case LoadCritical:
		return DegradationConfig{TopK: 2, EnableMMR: false, MaxOutputTokens: 512, Temperature: 0.3, RetrievalTimeout: 5 * time.Second, GenerationTimeout: 10 * time.Second}
	case LoadHigh:
		topK := originalTopK / 2
		if topK < 3 {
			topK = 3
		}
		return DegradationConfig{TopK: topK, EnableMMR: false, MaxOutputTokens: 1024, Temperature: 0.5, RetrievalTimeout: 10 * time.Second, GenerationTimeout: 20 * time.Second}
	case LoadElevated:
		topK := int(float64(originalTopK) * 0.75)
		if topK < 4 {
			topK = 4
		}
		return DegradationConfig{TopK: topK, EnableMMR: true, MaxOutputTokens: int(float64(originalMaxTokens) * 0.75), Temperature: 0.7, RetrievalTimeout: 15 * time.Second, GenerationTimeout: 30 * time.Second}
	default:
		return DegradationConfig{TopK: originalTopK, EnableMMR: true, MaxOutputTokens: originalMaxTokens, Temperature: 0.7, RetrievalTimeout: 30 * time.Second, GenerationTimeout: 60 * time.Second}
	}
}

// CheckLoad samples system load and returns the degradation parameters the
// orchestrator should apply to this request. It never returns an error: on
// a probe failure it reuses the last successful reading, and with no earlier
// reading it reports LoadNormal with the caller's original parameters
// unchanged.
func (s *LoadShedder) CheckLoad(originalTopK, originalMaxTokens int) LoadMetrics {
	cpuPct, memPct := s.sample()
	level := s.determineLevel(cpuPct, memPct)

	s.mu.Lock()
	if level != LoadNormal && s.degradedSince.IsZero() {
		s.degradedSince = time.Now()
	} else if level == LoadNormal {
		s.degradedSince = time.Time{}
	}
	s.mu.Unlock()

	return LoadMetrics{
		CPUPercent:  cpuPct,
		MemPercent:  memPct,
		Level:       level,
		Degraded:    level != LoadNormal,
		Degradation: degradationFor(level, originalTopK, originalMaxTokens),
		SampledAt:   time.Now(),
	}
}
